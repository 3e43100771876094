// Package metrics exposes run counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Collection metrics
	SignalsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painpoint_signals_collected_total",
			Help: "Raw signals returned by each source",
		},
		[]string{"source"},
	)

	SignalsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painpoint_signals_dropped_total",
			Help: "Signals dropped before delivery, by reason",
		},
		[]string{"source", "reason"},
	)

	SourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painpoint_source_errors_total",
			Help: "Failed source runs by error kind",
		},
		[]string{"source", "kind"},
	)

	SourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "painpoint_source_duration_seconds",
			Help:    "Duration of one source collection in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// Delivery metrics
	DeliveryBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painpoint_delivery_batches_total",
			Help: "Sink batches by outcome",
		},
		[]string{"status"},
	)

	SignalsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "painpoint_signals_delivered_total",
			Help: "Signals delivered and committed to the dedup ledger",
		},
	)

	LedgerSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "painpoint_dedup_ledger_size",
			Help: "Hashes committed to the dedup ledger as seen by the last run",
		},
	)

	// Analysis metrics
	CompaniesAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "painpoint_companies_analyzed_total",
			Help: "Companies marked analyzed",
		},
	)

	AnalysisErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "painpoint_analysis_errors_total",
			Help: "Companies whose profile lookup or analysis write failed",
		},
	)

	// Scoring metrics
	CompaniesScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "painpoint_companies_scored_total",
			Help: "Companies scored",
		},
	)

	PainScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "painpoint_pain_score",
			Help:    "Distribution of composite pain scores",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		},
	)

	ScoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "painpoint_score_errors_total",
			Help: "Companies whose signals or writes failed",
		},
	)

	// Gate metrics
	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painpoint_gate_decisions_total",
			Help: "Outreach gate decisions",
		},
		[]string{"decision"},
	)

	BudgetRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "painpoint_outreach_budget_remaining",
			Help: "Admissions left in the current daily budget",
		},
	)

	PublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "painpoint_publish_errors_total",
			Help: "Admitted prospects that failed to publish",
		},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "painpoint_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)
)
