package aggregate

import (
	"fmt"
	"math"
	"sort"

	"github.com/1F47E/go-geo-tiles/pkg/event"
	"github.com/1F47E/go-geo-tiles/pkg/logger"
	"github.com/1F47E/go-geo-tiles/pkg/metrics"
	"github.com/1F47E/go-geo-tiles/pkg/models"
)

const (
	chronoIDFormat    = "#chrono-disc-tile-%d"
	chronoLabelFormat = "Discovery period (%d)"
)

// AggregateEvents clusters event tile facets by their geo axis. Each path
// is split into geo and chrono paths first; the chrono side feeds the
// region date ranges unless the facet already carries a ChronoPath.
func (a *Aggregator) AggregateEvents(facets []Facet, depth int) Result {
	log := a.logger()

	geo := make([]Facet, 0, len(facets))
	skipped := 0
	for _, f := range facets {
		chronoPath, geoPath, err := event.Split(f.Path)
		if err != nil {
			skip(log, f.Path, f.Count, metrics.ReasonMalformed)
			skipped++
			continue
		}
		if f.ChronoPath != "" {
			chronoPath = f.ChronoPath
		}
		geo = append(geo, Facet{Path: geoPath, Count: f.Count, ChronoPath: chronoPath})
	}

	res := a.Aggregate(geo, depth)
	res.Skipped += skipped
	return res
}

// AggregateChrono clusters chrono tile facets into periods, ordered by
// earliest year and then by descending span. depth <= 0 picks the depth
// from the spread of the decoded brackets.
func (a *Aggregator) AggregateChrono(facets []Facet, depth int) Result {
	log := a.logger()
	maxDepth := a.chrono.Config().MaxDepth

	valid := make([]Facet, 0, len(facets))
	res := Result{}
	for _, f := range facets {
		reason := ""
		switch {
		case f.Path == "":
			reason = metrics.ReasonEmpty
		case f.Count < 0:
			reason = metrics.ReasonCount
		default:
			if _, _, err := a.chrono.DecodePath(f.Path); err != nil {
				reason = metrics.ReasonMalformed
			}
		}
		if reason != "" {
			skip(log, f.Path, f.Count, reason)
			res.Skipped++
			continue
		}
		valid = append(valid, f)
	}
	if len(valid) == 0 {
		return res
	}

	res.Scope = a.chronoScope(valid)
	if depth > 0 {
		depth = clamp(depth+len(res.Scope), 1, maxDepth)
	} else {
		depth = a.autoChronoDepth(valid, maxDepth)
	}

	key := func(path string, d int) string {
		prefix, _, body := a.chrono.ParsePrefix(path)
		return prefix + truncatePath(body, d)
	}
	bodyLen := func(path string) int {
		_, _, body := a.chrono.ParsePrefix(path)
		return len(body)
	}
	grouped, passes := a.deepen(valid, depth, maxDepth, key, bodyLen)
	res.Depth = grouped.depth
	res.Passes = passes

	res.Regions = make([]Region, 0, len(grouped.keys))
	for _, k := range grouped.keys {
		earliest, latest, err := a.chrono.DecodePath(k)
		if err != nil {
			log.Warnw("Cannot decode aggregated period", logger.FieldPath, k, logger.FieldError, err)
			continue
		}
		dates := &models.DateRange{Earliest: earliest, Latest: latest}
		res.Regions = append(res.Regions, Region{
			Path:  k,
			Count: grouped.byKey[k].count,
			Dates: dates,
		})
		res.Total += grouped.byKey[k].count
		res.Dates = extendDates(res.Dates, dates)
	}

	sort.SliceStable(res.Regions, func(i, j int) bool {
		di, dj := res.Regions[i].Dates, res.Regions[j].Dates
		if di.Earliest != dj.Earliest {
			return di.Earliest < dj.Earliest
		}
		return di.Span() > dj.Span()
	})
	for i := range res.Regions {
		res.Regions[i].ID = fmt.Sprintf(chronoIDFormat, i+1)
		res.Regions[i].Label = fmt.Sprintf(chronoLabelFormat, i+1)
	}

	metrics.AggregationPasses.Observe(float64(passes))
	metrics.RegionsProduced.Add(float64(len(res.Regions)))
	log.Debugw("Aggregated chrono facets",
		logger.FieldCount, len(valid),
		logger.FieldDepth, res.Depth,
		logger.FieldPasses, res.Passes,
		logger.FieldRegions, len(res.Regions),
	)
	return res
}

// chronoScope is the common digit prefix of the facets, or empty when
// they do not share a magnitude prefix
func (a *Aggregator) chronoScope(facets []Facet) string {
	first, _, _ := a.chrono.ParsePrefix(facets[0].Path)
	bodies := make([]string, 0, len(facets))
	for _, f := range facets {
		prefix, _, body := a.chrono.ParsePrefix(f.Path)
		if prefix != first {
			return ""
		}
		bodies = append(bodies, body)
	}
	return commonPrefix(bodies)
}

// autoChronoDepth picks the depth whose bracket is zoomMargin halvings
// narrower than the combined span of the facets. The root is the one named
// by the facets' magnitude prefix; with mixed prefixes the widest root wins.
func (a *Aggregator) autoChronoDepth(facets []Facet, maxDepth int) int {
	var (
		span    *models.DateRange
		pathMax float64
	)
	for _, f := range facets {
		earliest, latest, err := a.chrono.DecodePath(f.Path)
		if err != nil {
			continue
		}
		span = extendDates(span, &models.DateRange{Earliest: earliest, Latest: latest})
		_, pm, _ := a.chrono.ParsePrefix(f.Path)
		pathMax = math.Max(pathMax, pm)
	}
	if span == nil || span.Span() <= 0 || pathMax <= 0 {
		return maxDepth
	}

	root := 2 * pathMax
	depth := int(math.Floor(math.Log2(root/span.Span()))) + a.zoomMargin
	return clamp(depth, 1, maxDepth)
}
