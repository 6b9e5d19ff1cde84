// Package metrics holds the in-process prometheus collectors of the tiling
// engine. Exposing them over HTTP is left to the host service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "geotile"

// Skip reasons used as the FacetsSkipped label
const (
	ReasonSentinel  = "sentinel"
	ReasonEmpty     = "empty"
	ReasonCount     = "negative_count"
	ReasonMalformed = "malformed"
)

// Key kinds used as the KeysEncoded and EncodeErrors label
const (
	KindGeo    = "geo"
	KindChrono = "chrono"
	KindEvent  = "event"
)

var (
	// Aggregation metrics
	FacetsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "aggregate",
		Name:      "facets_skipped_total",
		Help:      "Facets dropped before aggregation",
	}, []string{"reason"})

	AggregationPasses = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "aggregate",
		Name:      "passes",
		Help:      "Truncation passes needed per aggregation",
		Buckets:   []float64{1, 2, 3, 4, 5, 6, 8},
	})

	RegionsProduced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "aggregate",
		Name:      "regions_total",
		Help:      "Regions emitted by aggregation",
	})

	// Encoding metrics
	KeysEncoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "keys_encoded_total",
		Help:      "Facet keys produced by batch encoding",
	}, []string{"kind"})

	EncodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "encode_errors_total",
		Help:      "Records rejected by batch encoding",
	}, []string{"kind"})
)
