// Package aggregate clusters quadtree facet counts into map regions.
//
// The search backend returns (path, count) buckets keyed by tile paths at
// the index depth. Aggregate picks a display depth from the spatial spread
// of the result set, truncates every path to that depth and sums counts per
// truncated tile. When that leaves fewer than two regions it retries deeper,
// in a loop bounded by the maximum depth.
//
// Aggregation is permissive: sentinel, empty, negative-count and malformed
// keys are skipped and counted, never returned as errors.
package aggregate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/1F47E/go-geo-tiles/pkg/chrono"
	"github.com/1F47E/go-geo-tiles/pkg/logger"
	"github.com/1F47E/go-geo-tiles/pkg/mercator"
	"github.com/1F47E/go-geo-tiles/pkg/metrics"
	"github.com/1F47E/go-geo-tiles/pkg/models"
)

const (
	DefaultMaxDepth   = 20
	DefaultMinDepth   = 6
	DefaultStep       = 3
	DefaultZoomMargin = 3

	geoIDFormat    = "#geo-disc-tile-%d"
	geoLabelFormat = "Discovery region (%d)"
	componentName  = "aggregate"
)

// Facet is one search backend bucket. ChronoPath optionally carries the
// chrono tile of the bucket for date annotation.
type Facet struct {
	Path       string `json:"path" yaml:"path"`
	Count      int64  `json:"count" yaml:"count"`
	ChronoPath string `json:"chrono_path,omitempty" yaml:"chrono_path,omitempty"`
}

// Region is one aggregated cluster
type Region struct {
	ID      string             `json:"id" yaml:"id"`
	Label   string             `json:"label" yaml:"label"`
	Path    string             `json:"path" yaml:"path"`
	Count   int64              `json:"count" yaml:"count"`
	Box     models.BoundingBox `json:"box" yaml:"box"`
	Polygon [][2]float64       `json:"polygon,omitempty" yaml:"polygon,omitempty"`
	Dates   *models.DateRange  `json:"dates,omitempty" yaml:"dates,omitempty"`
}

// Result is the outcome of one aggregation
type Result struct {
	Depth   int               `json:"depth" yaml:"depth"`
	Scope   string            `json:"scope" yaml:"scope"`
	Passes  int               `json:"passes" yaml:"passes"`
	Regions []Region          `json:"regions" yaml:"regions"`
	Skipped int               `json:"skipped" yaml:"skipped"`
	Dates   *models.DateRange `json:"dates,omitempty" yaml:"dates,omitempty"`
	Total   int64             `json:"total" yaml:"total"`
}

// Aggregator holds immutable aggregation settings. Safe for concurrent use.
type Aggregator struct {
	maxDepth   int
	minDepth   int
	step       int
	zoomMargin int
	sentinel   string
	log        *zap.SugaredLogger
	mercator   *mercator.GlobalMercator
	chrono     *chrono.Tiler
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithMaxDepth sets the deepest aggregation depth
func WithMaxDepth(depth int) Option {
	return func(a *Aggregator) { a.maxDepth = depth }
}

// WithMinDepth sets the shallowest automatically chosen depth
func WithMinDepth(depth int) Option {
	return func(a *Aggregator) { a.minDepth = depth }
}

// WithStep sets how much deeper each retry goes
func WithStep(step int) Option {
	return func(a *Aggregator) { a.step = step }
}

// WithZoomMargin sets the levels added to the zoom implied by the spread
func WithZoomMargin(margin int) Option {
	return func(a *Aggregator) { a.zoomMargin = margin }
}

// WithSentinel sets the prefix of tiles without coordinates; empty disables
// sentinel filtering
func WithSentinel(prefix string) Option {
	return func(a *Aggregator) { a.sentinel = prefix }
}

// WithLogger sets the logger; by default the "aggregate" component logger
// is resolved on each call
func WithLogger(l *zap.SugaredLogger) Option {
	return func(a *Aggregator) { a.log = l }
}

// WithMercator sets the projection used to decode tiles
func WithMercator(m *mercator.GlobalMercator) Option {
	return func(a *Aggregator) { a.mercator = m }
}

// WithChrono sets the chrono tiler used for date annotation
func WithChrono(c *chrono.Tiler) Option {
	return func(a *Aggregator) { a.chrono = c }
}

// New creates an Aggregator
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		maxDepth:   DefaultMaxDepth,
		minDepth:   DefaultMinDepth,
		step:       DefaultStep,
		zoomMargin: DefaultZoomMargin,
		sentinel:   mercator.SentinelPrefix,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.maxDepth <= 0 || a.maxDepth > mercator.MaxZoom {
		a.maxDepth = DefaultMaxDepth
	}
	if a.minDepth <= 0 {
		a.minDepth = 1
	}
	if a.minDepth > a.maxDepth {
		a.minDepth = a.maxDepth
	}
	if a.step <= 0 {
		a.step = DefaultStep
	}
	if a.mercator == nil {
		a.mercator = mercator.New()
	}
	if a.chrono == nil {
		a.chrono = chrono.DefaultTiler()
	}
	return a
}

// MaxDepth returns the configured depth ceiling
func (a *Aggregator) MaxDepth() int { return a.maxDepth }

// Aggregate clusters geo facets. depth <= 0 picks the depth from the
// spatial spread; a positive depth is relative to the common prefix of all
// paths.
func (a *Aggregator) Aggregate(facets []Facet, depth int) Result {
	log := a.logger()

	valid, skipped := a.filter(facets, log)
	res := Result{Skipped: skipped}
	if len(valid) == 0 {
		log.Debugw("No facets to aggregate", logger.FieldCount, len(facets), "skipped", skipped)
		return res
	}

	paths := make([]string, len(valid))
	for i, f := range valid {
		paths[i] = f.Path
	}
	res.Scope = commonPrefix(paths)

	if depth > 0 {
		depth = clamp(depth+len(res.Scope), 1, a.maxDepth)
	} else {
		depth = a.AutoDepth(paths)
	}

	buckets, passes := a.deepen(valid, depth, a.maxDepth, truncatePath, pathLen)
	res.Depth = buckets.depth
	res.Passes = passes

	res.Regions = make([]Region, 0, len(buckets.keys))
	for i, key := range buckets.keys {
		b := buckets.byKey[key]
		box, err := a.mercator.QuadTreeToLatLon(key)
		if err != nil {
			// unreachable after filtering, but never abort the batch
			log.Warnw("Cannot decode aggregated tile", logger.FieldPath, key, logger.FieldError, err)
			continue
		}
		region := Region{
			ID:      fmt.Sprintf(geoIDFormat, i+1),
			Label:   fmt.Sprintf(geoLabelFormat, i+1),
			Path:    key,
			Count:   b.count,
			Box:     box,
			Polygon: box.Ring(),
			Dates:   a.dateRange(b.chronoPaths, log),
		}
		res.Total += region.Count
		res.Dates = extendDates(res.Dates, region.Dates)
		res.Regions = append(res.Regions, region)
	}

	metrics.AggregationPasses.Observe(float64(passes))
	metrics.RegionsProduced.Add(float64(len(res.Regions)))
	log.Debugw("Aggregated facets",
		logger.FieldCount, len(valid),
		logger.FieldScope, res.Scope,
		logger.FieldDepth, res.Depth,
		logger.FieldPasses, res.Passes,
		logger.FieldRegions, len(res.Regions),
	)
	return res
}

// AutoDepth derives a depth from the spread of the given tile paths: the
// great-circle diagonal of their combined box converted to a zoom, plus the
// margin, clamped to [minDepth, maxDepth].
func (a *Aggregator) AutoDepth(paths []string) int {
	var (
		box   models.BoundingBox
		found bool
	)
	for _, p := range paths {
		if len(p) > mercator.MaxZoom {
			p = p[:mercator.MaxZoom]
		}
		b, err := a.mercator.QuadTreeToLatLon(p)
		if err != nil {
			continue
		}
		if !found {
			box, found = b, true
			continue
		}
		box = box.Union(b)
	}
	if !found {
		return a.minDepth
	}

	diagonal := mercator.Distance(box.South(), box.West(), box.North(), box.East())
	zoom := a.mercator.ZoomForPixelSize(diagonal) + a.zoomMargin
	return clamp(zoom, a.minDepth, a.maxDepth)
}

// filter drops keys that cannot be aggregated
func (a *Aggregator) filter(facets []Facet, log *zap.SugaredLogger) ([]Facet, int) {
	valid := make([]Facet, 0, len(facets))
	skipped := 0
	for _, f := range facets {
		reason := ""
		switch {
		case f.Path == "":
			reason = metrics.ReasonEmpty
		case a.sentinel != "" && len(f.Path) >= len(a.sentinel) && f.Path[:len(a.sentinel)] == a.sentinel:
			reason = metrics.ReasonSentinel
		case f.Count < 0:
			reason = metrics.ReasonCount
		case mercator.ValidatePath(f.Path) != nil:
			reason = metrics.ReasonMalformed
		}
		if reason != "" {
			skip(log, f.Path, f.Count, reason)
			skipped++
			continue
		}
		valid = append(valid, f)
	}
	return valid, skipped
}

func (a *Aggregator) dateRange(chronoPaths []string, log *zap.SugaredLogger) *models.DateRange {
	var dates *models.DateRange
	for _, cp := range chronoPaths {
		earliest, latest, err := a.chrono.DecodePath(cp)
		if err != nil {
			log.Debugw("Skipping chrono path", logger.FieldPath, cp, logger.FieldError, err)
			continue
		}
		dates = extendDates(dates, &models.DateRange{Earliest: earliest, Latest: latest})
	}
	return dates
}

func (a *Aggregator) logger() *zap.SugaredLogger {
	if a.log != nil {
		return a.log
	}
	return logger.ComponentLogger(componentName)
}

func skip(log *zap.SugaredLogger, path string, count int64, reason string) {
	metrics.FacetsSkipped.WithLabelValues(reason).Inc()
	log.Debugw("Skipping facet", logger.FieldPath, path, logger.FieldCount, count, logger.FieldReason, reason)
}

func extendDates(acc, next *models.DateRange) *models.DateRange {
	if next == nil {
		return acc
	}
	if acc == nil {
		d := *next
		return &d
	}
	d := acc.Extend(*next)
	return &d
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
