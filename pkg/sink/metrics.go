package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jidl_sink_rows_inserted_total",
		Help: "Rows appended to data tables, by table.",
	}, []string{"table"})

	insertErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jidl_sink_insert_errors_total",
		Help: "Failed data table inserts, by table.",
	}, []string{"table"})

	diagnosticsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jidl_sink_diagnostics_total",
		Help: "Diagnostic rows written.",
	})

	archiveRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jidl_sink_archive_runs_total",
		Help: "Completed archive passes.",
	})

	insertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jidl_sink_insert_duration_seconds",
		Help:    "Latency of data table inserts.",
		Buckets: prometheus.DefBuckets,
	})
)
