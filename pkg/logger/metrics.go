package logger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	readsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jidl",
		Subsystem: "scheduler",
		Name:      "reads_total",
		Help:      "Completed read passes per connection.",
	}, []string{"connection"})

	readErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jidl",
		Subsystem: "scheduler",
		Name:      "read_errors_total",
		Help:      "Read passes aborted by a device failure.",
	}, []string{"connection"})

	reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jidl",
		Subsystem: "scheduler",
		Name:      "reconnects_total",
		Help:      "Successful reconnections after a device failure.",
	}, []string{"connection"})

	readDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jidl",
		Subsystem: "scheduler",
		Name:      "read_duration_seconds",
		Help:      "Duration of one read pass over a connection.",
		Buckets:   prometheus.DefBuckets,
	})

	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jidl",
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Scheduler ticks dispatched.",
	})
)
