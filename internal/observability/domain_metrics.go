package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	importBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydeck_import_batches_total",
			Help: "Total number of completed import batches.",
		},
	)
	importFilesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydeck_import_files_total",
			Help: "Total number of files registered across import batches.",
		},
	)
	importBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydeck_import_bytes_total",
			Help: "Total bytes registered across import batches.",
		},
	)
	queryDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querydeck_query_duration_ms",
			Help:    "Workbench query latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
	queryErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydeck_query_errors_total",
			Help: "Total number of failed workbench queries.",
		},
	)
	exportRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydeck_export_rows_total",
			Help: "Total number of rows written to CSV exports.",
		},
	)
	exportChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydeck_export_chunks_total",
			Help: "Total number of CSV chunks flushed to clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		importBatchesTotal,
		importFilesTotal,
		importBytesTotal,
		queryDurationMs,
		queryErrorsTotal,
		exportRowsTotal,
		exportChunksTotal,
	)
}

func ObserveImportBatch(files int, bytes int64) {
	importBatchesTotal.Inc()
	if files > 0 {
		importFilesTotal.Add(float64(files))
	}
	if bytes > 0 {
		importBytesTotal.Add(float64(bytes))
	}
}

func ObserveQuery(elapsed time.Duration, failed bool) {
	queryDurationMs.Observe(float64(elapsed.Milliseconds()))
	if failed {
		queryErrorsTotal.Inc()
	}
}

func ObserveExport(rows int64, chunks int) {
	if rows > 0 {
		exportRowsTotal.Add(float64(rows))
	}
	if chunks > 0 {
		exportChunksTotal.Add(float64(chunks))
	}
}
