package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest outcomes
const (
	ingestOutcomePublished = "published"
	ingestOutcomePending   = "pending"
	ingestOutcomeDuplicate = "duplicate"
	ingestOutcomeInvalid   = "invalid"
	ingestOutcomeError     = "error"
)

var ingestTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "magpie_ingest_total",
		Help: "Link submissions by outcome",
	},
	[]string{"outcome"},
)
