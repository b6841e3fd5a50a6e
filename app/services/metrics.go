package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analyzerFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "magpie_analyzer_fallback_total",
			Help: "Number of analyses answered by the local heuristic instead of the model",
		},
		[]string{"reason"},
	)

	extractorFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "magpie_extractor_failures_total",
			Help: "Number of failed content extractions",
		},
		[]string{"kind"},
	)

	regenerationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "magpie_regeneration_total",
			Help: "Static artifact regenerations by outcome",
		},
		[]string{"status"},
	)
)
