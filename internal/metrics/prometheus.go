package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesReceived - celkem přijatých zpráv z data topicu
	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_messages_received_total",
			Help: "Total number of telemetry messages received from MQTT",
		},
	)

	// MessagesDropped - zahozené zprávy (reason: decode, lane_full)
	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_messages_dropped_total",
			Help: "Total number of telemetry messages dropped before processing",
		},
		[]string{"reason"},
	)

	// StoreErrors - chyby úložiště podle operace
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Total number of storage operation failures",
		},
		[]string{"operation"},
	)

	// ReadingsWithoutAssessment - čtení uložená bez assessmentu (degradovaný stav,
	// musí být viditelný - viz invariant v datovém modelu)
	ReadingsWithoutAssessment = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readings_without_assessment_total",
			Help: "Readings persisted whose risk assessment write failed",
		},
	)

	// PublishErrors - selhané publikace alertu
	PublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alert_publish_errors_total",
			Help: "Total number of failed alert publications",
		},
	)

	// PipelineDuration - doba zpracování jedné zprávy (decode -> publish)
	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_duration_seconds",
			Help:    "End-to-end processing latency of one telemetry message",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// LastRiskProbability - poslední spočítané riziko per zařízení
	LastRiskProbability = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "last_risk_probability",
			Help: "Most recent risk probability per device",
		},
		[]string{"device_id"},
	)
)
