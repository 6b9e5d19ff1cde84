package aggregate

import (
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/1F47E/go-geo-tiles/pkg/chrono"
	"github.com/1F47E/go-geo-tiles/pkg/event"
	"github.com/1F47E/go-geo-tiles/pkg/mercator"
	"github.com/1F47E/go-geo-tiles/pkg/models"
)

func TestAggregateSkipsSentinelAndKeepsTiles(t *testing.T) {
	a := New()

	res := a.Aggregate([]Facet{
		{Path: "211111abc", Count: 5},
		{Path: "012", Count: 10},
		{Path: "013", Count: 7},
	}, 3)

	require.Len(t, res.Regions, 2)
	assert.Equal(t, "012", res.Regions[0].Path)
	assert.Equal(t, int64(10), res.Regions[0].Count)
	assert.Equal(t, "013", res.Regions[1].Path)
	assert.Equal(t, int64(7), res.Regions[1].Count)

	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, int64(17), res.Total)
	assert.Equal(t, "01", res.Scope)
	assert.Equal(t, "#geo-disc-tile-1", res.Regions[0].ID)
	assert.Equal(t, "Discovery region (2)", res.Regions[1].Label)
}

func TestAggregateRegionGeometry(t *testing.T) {
	a := New()
	gm := mercator.New()

	res := a.Aggregate([]Facet{{Path: "0120", Count: 1}, {Path: "0300", Count: 1}}, 1)
	require.Len(t, res.Regions, 2)

	for _, r := range res.Regions {
		box, err := gm.QuadTreeToLatLon(r.Path)
		require.NoError(t, err)
		assert.Equal(t, box, r.Box)
		require.Len(t, r.Polygon, 5)
		assert.Equal(t, r.Polygon[0], r.Polygon[4])
	}
}

func TestAggregateDegenerateInput(t *testing.T) {
	a := New()

	res := a.Aggregate(nil, 0)
	assert.Empty(t, res.Regions)
	assert.Zero(t, res.Skipped)

	res = a.Aggregate([]Facet{
		{Path: "211111", Count: 1},
		{Path: mercator.SentinelPath(20), Count: 2},
	}, 0)
	assert.Empty(t, res.Regions)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.Total)
}

func TestAggregateSkipReasons(t *testing.T) {
	a := New()

	res := a.Aggregate([]Facet{
		{Path: "", Count: 1},
		{Path: "01x", Count: 1},
		{Path: "0123", Count: -4},
		{Path: "0123", Count: 2},
		{Path: "0130", Count: 0},
	}, 2)

	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, int64(2), res.Total)
	require.Len(t, res.Regions, 2)
}

func TestAggregateSentinelDisabled(t *testing.T) {
	a := New(WithSentinel(""))

	res := a.Aggregate([]Facet{{Path: "211111", Count: 3}, {Path: "0", Count: 1}}, 1)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, int64(4), res.Total)
}

func TestAggregateCountsAreConserved(t *testing.T) {
	a := New()
	gm := mercator.New()
	r := rand.New(rand.NewSource(3))

	var facets []Facet
	var expected int64
	skipped := 0
	for i := 0; i < 300; i++ {
		count := int64(r.Intn(50))
		switch i % 10 {
		case 0:
			facets = append(facets, Facet{Path: mercator.SentinelPath(20), Count: count})
			skipped++
		case 1:
			facets = append(facets, Facet{Path: "01a", Count: count})
			skipped++
		default:
			lat := r.Float64()*170 - 85
			lon := r.Float64()*360 - 180
			path := gm.LatLonToQuadTree(lat, lon, 20)
			facets = append(facets, Facet{Path: path, Count: count})
			if mercator.IsSentinel(path) {
				skipped++
				continue
			}
			expected += count
		}
	}

	for _, depth := range []int{0, 1, 4, 30} {
		res := a.Aggregate(facets, depth)

		var sum int64
		for _, region := range res.Regions {
			sum += region.Count
		}
		assert.Equal(t, expected, sum, "depth %d", depth)
		assert.Equal(t, expected, res.Total)
		assert.Equal(t, skipped, res.Skipped)
		assert.LessOrEqual(t, res.Depth, DefaultMaxDepth)
	}
}

func TestAggregateAutoDepthClampsToMinimum(t *testing.T) {
	a := New()

	res := a.Aggregate([]Facet{{Path: "0", Count: 1}, {Path: "3", Count: 2}}, 0)
	assert.Equal(t, DefaultMinDepth, res.Depth)
	require.Len(t, res.Regions, 2)
	assert.Equal(t, 1, res.Passes)
}

func TestAutoDepth(t *testing.T) {
	a := New()
	gm := mercator.New()

	assert.Equal(t, DefaultMinDepth, a.AutoDepth(nil))
	assert.Equal(t, DefaultMinDepth, a.AutoDepth([]string{"0", "3"}))

	near := []string{
		gm.LatLonToQuadTree(52.5200, 13.4050, 20),
		gm.LatLonToQuadTree(52.5201, 13.4052, 20),
	}
	depth := a.AutoDepth(near)
	assert.Greater(t, depth, DefaultMinDepth)
	assert.LessOrEqual(t, depth, DefaultMaxDepth)

	capped := New(WithMaxDepth(9))
	assert.Equal(t, 9, capped.AutoDepth(near))
}

func TestDeepenRetriesUntilSplit(t *testing.T) {
	a := New()

	facets := []Facet{
		{Path: "0000000000000001", Count: 1},
		{Path: "0000000000000002", Count: 2},
	}
	grouped, passes := a.deepen(facets, 10, DefaultMaxDepth, truncatePath, pathLen)
	assert.Equal(t, 16, grouped.depth)
	assert.Equal(t, 3, passes)
	assert.Len(t, grouped.keys, 2)
}

func TestDeepenIsBounded(t *testing.T) {
	a := New()

	same := []Facet{{Path: "0123", Count: 1}, {Path: "0123", Count: 1}}
	grouped, passes := a.deepen(same, 1, DefaultMaxDepth, truncatePath, pathLen)
	assert.Equal(t, 4, grouped.depth)
	assert.Equal(t, 2, passes)
	assert.Equal(t, []string{"0123"}, grouped.keys)

	deep := []Facet{
		{Path: strings.Repeat("0", 25), Count: 1},
		{Path: strings.Repeat("0", 24) + "1", Count: 1},
	}
	grouped, passes = a.deepen(deep, 10, DefaultMaxDepth, truncatePath, pathLen)
	assert.Equal(t, DefaultMaxDepth, grouped.depth)
	assert.Equal(t, 5, passes)
	assert.Len(t, grouped.keys, 1)
}

func TestAggregateMergesFirstSeenOrder(t *testing.T) {
	a := New()

	res := a.Aggregate([]Facet{
		{Path: "0321", Count: 1},
		{Path: "0100", Count: 2},
		{Path: "0322", Count: 3},
		{Path: "0101", Count: 4},
	}, 1)

	require.Len(t, res.Regions, 2)
	assert.Equal(t, "03", res.Regions[0].Path)
	assert.Equal(t, int64(4), res.Regions[0].Count)
	assert.Equal(t, "01", res.Regions[1].Path)
	assert.Equal(t, int64(6), res.Regions[1].Count)
}

func TestAggregateDateRanges(t *testing.T) {
	a := New()

	res := a.Aggregate([]Facet{
		{Path: "0120", Count: 5, ChronoPath: "2"},
		{Path: "0121", Count: 3, ChronoPath: "0"},
		{Path: "0121", Count: 1, ChronoPath: "9"},
		{Path: "0300", Count: 4},
	}, 1)

	require.Len(t, res.Regions, 2)
	require.NotNil(t, res.Regions[0].Dates)
	assert.Equal(t, models.DateRange{Earliest: -5_000_000, Latest: 10_000_000}, *res.Regions[0].Dates)
	assert.Nil(t, res.Regions[1].Dates)

	require.NotNil(t, res.Dates)
	assert.Equal(t, -5_000_000.0, res.Dates.Earliest)
}

func TestAggregateEvents(t *testing.T) {
	a := New()
	tiler := event.DefaultTiler()

	paris1, err := tiler.Encode(48.8566, 2.3522, 1900, 1850, "")
	require.NoError(t, err)
	paris2, err := tiler.Encode(48.8570, 2.3530, 1790, 1780, "")
	require.NoError(t, err)
	nyc, err := tiler.Encode(40.7128, -74.0060, 1700, 1650, "")
	require.NoError(t, err)
	noCoords := event.Interleave("", "0", mercator.SentinelPath(20))

	res := a.AggregateEvents([]Facet{
		{Path: paris1, Count: 2},
		{Path: paris2, Count: 3},
		{Path: nyc, Count: 4},
		{Path: noCoords, Count: 9},
		{Path: "not-an-event", Count: 1},
	}, 0)

	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Regions, 2)
	assert.Equal(t, int64(5), res.Regions[0].Count)
	assert.Equal(t, int64(4), res.Regions[1].Count)

	assert.True(t, res.Regions[0].Box.Contains(models.Location{Lat: 48.8566, Lon: 2.3522}, 1e-9))
	// dates come from the decoded, zero-padded chrono axes
	d1, err := tiler.Decode(paris1)
	require.NoError(t, err)
	d2, err := tiler.Decode(paris2)
	require.NoError(t, err)
	require.NotNil(t, res.Regions[0].Dates)
	assert.Equal(t, math.Min(d1.Earliest, d2.Earliest), res.Regions[0].Dates.Earliest)
	assert.Equal(t, math.Max(d1.Latest, d2.Latest), res.Regions[0].Dates.Latest)
}

func TestAggregateChronoOrdering(t *testing.T) {
	a := New()

	res := a.AggregateChrono([]Facet{
		{Path: "0", Count: 4},
		{Path: "2", Count: 3},
		{Path: "33", Count: 2},
		{Path: "3", Count: 1},
		{Path: "3x", Count: 1},
	}, 2)

	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, int64(10), res.Total)
	require.Len(t, res.Regions, 4)

	paths := make([]string, len(res.Regions))
	for i, r := range res.Regions {
		paths[i] = r.Path
	}
	assert.Equal(t, []string{"3", "33", "2", "0"}, paths)
	assert.Equal(t, "#chrono-disc-tile-1", res.Regions[0].ID)
	assert.Equal(t, "Discovery period (4)", res.Regions[3].Label)
	assert.Equal(t, models.DateRange{Earliest: -10_000_000, Latest: 10_000_000}, *res.Dates)
}

func TestAggregateChronoKeepsPrefix(t *testing.T) {
	a := New()

	res := a.AggregateChrono([]Facet{
		{Path: "10k-0033", Count: 1},
		{Path: "10k-0032", Count: 1},
		{Path: "10k-3", Count: 1},
	}, 1)

	require.Len(t, res.Regions, 2)
	assert.Equal(t, "10k-3", res.Regions[0].Path)
	assert.Equal(t, "10k-0", res.Regions[1].Path)
	assert.Equal(t, 10_000.0, res.Regions[1].Dates.Latest)
}

func TestAggregateChronoAutoDepth(t *testing.T) {
	a := New()

	res := a.AggregateChrono([]Facet{{Path: "2", Count: 1}}, 0)
	assert.Equal(t, 4, res.Depth)
	require.Len(t, res.Regions, 1)
	assert.Equal(t, "2", res.Regions[0].Path)
}

func TestAggregateChronoAutoDepthUsesPrefixRoot(t *testing.T) {
	facets := []Facet{
		{Path: "10k-000000", Count: 1},
		{Path: "10k-000003", Count: 1},
		{Path: "10k-030000", Count: 1},
	}

	res := New().AggregateChrono(facets, 0)
	assert.Equal(t, 4, res.Depth)
	require.Len(t, res.Regions, 2)
	assert.Equal(t, "10k-0300", res.Regions[0].Path)
	assert.Equal(t, int64(1), res.Regions[0].Count)
	assert.Equal(t, "10k-0000", res.Regions[1].Path)
	assert.Equal(t, int64(2), res.Regions[1].Count)

	// same brackets under an unprefixed 10k root
	ct := chrono.New(chrono.Config{PathMax: 10_000, MaxDepth: chrono.DefaultMaxDepth})
	bare := make([]Facet, len(facets))
	for i, f := range facets {
		bare[i] = Facet{Path: f.Path[len("10k-"):], Count: f.Count}
	}
	plain := New(WithChrono(ct)).AggregateChrono(bare, 0)
	assert.Equal(t, res.Depth, plain.Depth)
	assert.Len(t, plain.Regions, len(res.Regions))
}

func TestAggregateLogsSkippedFacets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := New(WithLogger(zap.New(core).Sugar()))

	a.Aggregate([]Facet{{Path: "211111", Count: 1}, {Path: "0", Count: 1}}, 1)

	skipped := logs.FilterMessage("Skipping facet")
	require.Equal(t, 1, skipped.Len())
	assert.Equal(t, 1, skipped.FilterField(zap.String("reason", "sentinel")).Len())
	assert.Equal(t, 1, logs.FilterMessage("Aggregated facets").Len())
}

func TestOptionsAreSanitized(t *testing.T) {
	a := New(WithMaxDepth(99), WithMinDepth(50), WithStep(0))
	assert.Equal(t, DefaultMaxDepth, a.MaxDepth())
	assert.Equal(t, DefaultMaxDepth, a.minDepth)
	assert.Equal(t, DefaultStep, a.step)
}

func TestAggregateConcurrentUse(t *testing.T) {
	a := New()
	facets := []Facet{{Path: "0120", Count: 1}, {Path: "0300", Count: 2}, {Path: "2111110", Count: 3}}
	want := a.Aggregate(facets, 0)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, a.Aggregate(facets, 0))
		}()
	}
	wg.Wait()
}

func BenchmarkAggregate(b *testing.B) {
	a := New()
	gm := mercator.New()
	r := rand.New(rand.NewSource(1))
	facets := make([]Facet, 1000)
	for i := range facets {
		facets[i] = Facet{
			Path:  gm.LatLonToQuadTree(r.Float64()*170-85, r.Float64()*360-180, 20),
			Count: int64(r.Intn(100)),
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = a.Aggregate(facets, 0)
	}
}
