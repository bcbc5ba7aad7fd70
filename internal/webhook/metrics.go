package webhook

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strava_connector",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Webhook deliveries handled, labeled by outcome.",
	}, []string{"outcome"})

	verificationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strava_connector",
		Subsystem: "webhook",
		Name:      "verifications_total",
		Help:      "Subscription verification handshakes, labeled by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(eventsCounter, verificationsCounter)
}
