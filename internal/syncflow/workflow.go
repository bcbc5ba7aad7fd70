// Package syncflow runs the bulk sync as a Temporal workflow so a long
// history import survives worker restarts and never overlaps with itself.
package syncflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalactivity "go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	temporalworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/clawcobie-afk/strava-connector/internal/activity"
	"github.com/clawcobie-afk/strava-connector/internal/strava"
	"github.com/clawcobie-afk/strava-connector/internal/syncer"
)

const (
	TaskQueue            = "strava-sync-task-queue"
	WorkflowID           = "strava-bulk-sync"
	bulkSyncWorkflowName = "strava.sync.bulk"
	bulkSyncActivityName = "strava.sync.run"
	authErrorType        = "StravaAuthError"
	heartbeatTimeout     = 2 * time.Minute
)

// ErrAlreadyRunning is returned when a bulk sync workflow is still open.
var ErrAlreadyRunning = errors.New("bulk sync already running")

// Input carries parameters into the workflow.
type Input struct {
	After   *time.Time `json:"after,omitempty"`
	PerPage int        `json:"per_page"`
	Reason  string     `json:"reason"`
}

// Result captures the workflow output.
type Result struct {
	WorkflowID  string         `json:"workflow_id"`
	RunID       string         `json:"run_id"`
	Summary     syncer.Summary `json:"summary"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Runner is the bulk sync the activity delegates to.
type Runner interface {
	Run(ctx context.Context, opts syncer.Options) (syncer.Summary, error)
}

// Activities hosts the activity implementations.
type Activities struct {
	runner Runner
	logger *slog.Logger
}

func NewActivities(runner Runner, logger *slog.Logger) *Activities {
	return &Activities{runner: runner, logger: logger}
}

// BulkSyncActivity runs one complete sync pass. A rejected credential is not
// retried; transient remote and store failures are.
func (a *Activities) BulkSyncActivity(ctx context.Context, input Input) (syncer.Summary, error) {
	summary, err := a.runner.Run(ctx, syncer.Options{
		After:   input.After,
		PerPage: input.PerPage,
		Progress: func(act activity.Activity) {
			temporalactivity.RecordHeartbeat(ctx, act.ID)
		},
		OnPage: func(page int) {
			temporalactivity.RecordHeartbeat(ctx, page)
		},
	})
	if err != nil {
		a.logger.Error("activity bulk sync failed", "error", err, "reason", input.Reason)
		if errors.Is(err, strava.ErrAuth) {
			return summary, temporal.NewNonRetryableApplicationError(err.Error(), authErrorType, err)
		}
		return summary, err
	}
	a.logger.Info("activity bulk sync", "run_id", summary.RunID, "saved", summary.Saved, "skipped", summary.Skipped, "pages", summary.Pages, "reason", input.Reason)
	return summary, nil
}

// bulkSyncActivityOptions bounds one sync attempt. The activity heartbeats on
// every page and save, so a stalled worker is abandoned after
// heartbeatTimeout rather than the full start-to-close window.
func bulkSyncActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    heartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        5,
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			NonRetryableErrorTypes: []string{authErrorType},
		},
	}
}

// BulkSyncWorkflow delegates the whole pass to a single activity. The pass
// is idempotent, so a retried attempt only redoes what was not yet stored.
func BulkSyncWorkflow(ctx workflow.Context, input Input) (Result, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, bulkSyncActivityOptions())

	info := workflow.GetInfo(ctx)
	result := Result{
		WorkflowID: info.WorkflowExecution.ID,
		RunID:      info.WorkflowExecution.RunID,
		StartedAt:  workflow.Now(ctx),
	}
	logger.Info("bulk sync workflow started", "per_page", input.PerPage, "reason", input.Reason)

	if err := workflow.ExecuteActivity(ctx, bulkSyncActivityName, input).Get(ctx, &result.Summary); err != nil {
		logger.Error("bulk sync activity failed", "error", err)
		return result, err
	}

	result.CompletedAt = workflow.Now(ctx)
	logger.Info("bulk sync workflow finished", "saved", result.Summary.Saved, "skipped", result.Summary.Skipped)
	return result, nil
}

// RegisterWorker wires up the Temporal worker consuming the sync task queue.
func RegisterWorker(c client.Client, runner Runner, logger *slog.Logger) temporalworker.Worker {
	w := temporalworker.New(c, TaskQueue, temporalworker.Options{})
	w.RegisterWorkflowWithOptions(BulkSyncWorkflow, workflow.RegisterOptions{Name: bulkSyncWorkflowName})
	activities := NewActivities(runner, logger.With("component", "sync.activities"))
	w.RegisterActivityWithOptions(activities.BulkSyncActivity, temporalactivity.RegisterOptions{Name: bulkSyncActivityName})
	return w
}

// Orchestrator starts bulk sync workflows through the Temporal client.
type Orchestrator struct {
	client client.Client
	logger *slog.Logger
}

func NewOrchestrator(c client.Client, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{client: c, logger: logger.With("component", "sync.orchestrator")}
}

// StartOptions uses a fixed workflow id: while one bulk sync is open a
// second start fails instead of attaching to or duplicating it.
func StartOptions() client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:                                       WorkflowID,
		TaskQueue:                                TaskQueue,
		WorkflowIDReusePolicy:                    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy:                 enums.WORKFLOW_ID_CONFLICT_POLICY_FAIL,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
		WorkflowExecutionTimeout:                 6 * time.Hour,
	}
}

// RunSync starts the workflow and waits for its result.
func (o *Orchestrator) RunSync(ctx context.Context, input Input) (Result, error) {
	we, err := o.client.ExecuteWorkflow(ctx, StartOptions(), bulkSyncWorkflowName, input)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return Result{}, fmt.Errorf("%w: workflow %s", ErrAlreadyRunning, WorkflowID)
		}
		o.logger.Error("start workflow failed", "error", err)
		return Result{}, fmt.Errorf("start bulk sync workflow: %w", err)
	}
	o.logger.Info("workflow dispatched", "workflow_id", we.GetID(), "run_id", we.GetRunID(), "reason", input.Reason)

	var result Result
	if err := we.Get(ctx, &result); err != nil {
		o.logger.Error("wait workflow failed", "workflow_id", we.GetID(), "error", err)
		result.WorkflowID = we.GetID()
		result.RunID = we.GetRunID()
		return result, err
	}
	o.logger.Info("workflow completed", "workflow_id", result.WorkflowID, "run_id", result.RunID, "saved", result.Summary.Saved, "skipped", result.Summary.Skipped)
	return result, nil
}
