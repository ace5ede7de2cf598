package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitExceeded *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		RateLimitExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ralphbot_ratelimit_exceeded_total",
			Help: "Total number of requests denied by rate limiting",
		}, []string{"scope", "class"}),
	}
}

func (m *Metrics) RecordExceeded(scope, class string) {
	m.RateLimitExceeded.WithLabelValues(scope, class).Inc()
}
