package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tcxstat_http_requests_total",
		Help: "HTTP requests by route pattern, method and status code",
	}, []string{"route", "method", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tcxstat_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"route"})

	// ingestFiles counts TCX uploads by outcome: inserted, duplicate,
	// invalid, rejected or error.
	ingestFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tcxstat_ingest_files_total",
		Help: "TCX uploads by outcome",
	}, []string{"outcome"})

	ingestTrackpoints = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcxstat_ingest_trackpoints_total",
		Help: "Trackpoints written by TCX uploads",
	})

	ingestBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tcxstat_ingest_document_bytes",
		Help:    "Decompressed size of uploaded TCX documents",
		Buckets: prometheus.ExponentialBuckets(4096, 4, 8), // 4KiB to 64MiB
	})

	importsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tcxstat_directory_imports_running",
		Help: "Directory imports currently running",
	})
)
