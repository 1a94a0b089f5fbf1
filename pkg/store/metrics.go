package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReportSaves tracks saved reports by sweep
	ReportSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_report_saves_total",
			Help: "Total number of sweep reports saved",
		},
		[]string{"sweep"},
	)

	// StoreErrors tracks store operation errors
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_report_errors_total",
			Help: "Total number of report store operation errors",
		},
		[]string{"operation"}, // "save", "latest", "history", "delete"
	)

	// ReportSize tracks the size of each sweep's latest report in bytes
	ReportSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_report_size_bytes",
			Help: "Size of the latest sweep report in bytes",
		},
		[]string{"sweep"},
	)
)
