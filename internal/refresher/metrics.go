package refresher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	refreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strava_connector",
		Subsystem: "refresher",
		Name:      "refreshes_total",
		Help:      "Credential refresh attempts, labeled by result.",
	}, []string{"result"})

	expiryGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "strava_connector",
		Subsystem: "refresher",
		Name:      "credential_expiry_timestamp_seconds",
		Help:      "Unix timestamp at which the published access credential expires.",
	})
)

func init() {
	prometheus.MustRegister(refreshCounter, expiryGauge)
}

func recordExpiry(ts time.Time) {
	if ts.IsZero() {
		return
	}
	expiryGauge.Set(float64(ts.Unix()))
}
