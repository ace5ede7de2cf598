package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Submitted   prometheus.Counter
	Transitions *prometheus.CounterVec
	Duplicates  *prometheus.CounterVec
	Votes       prometheus.Counter
	Priority    prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Submitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ralphbot_feedback_submitted_total",
			Help: "Total feedback entries accepted into the queue",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ralphbot_feedback_transitions_total",
			Help: "Total feedback status transitions applied",
		}, []string{"from", "to"}),
		Duplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ralphbot_feedback_duplicates_total",
			Help: "Total duplicate verdicts by detection method",
		}, []string{"method"}),
		Votes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ralphbot_feedback_votes_total",
			Help: "Total votes recorded on feedback entries",
		}),
		Priority: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ralphbot_feedback_priority",
			Help:    "Priority scores assigned at submit and rescore",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

func (m *Metrics) RecordTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordDuplicate(exact bool) {
	method := "near"
	if exact {
		method = "exact"
	}
	m.Duplicates.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordPriority(priority float64) {
	m.Priority.Observe(priority)
}
