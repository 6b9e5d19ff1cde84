// Package rtree indexes aggregated regions in longitude-partitioned R-Trees
// so map clients can ask which clusters meet a viewport or lie near a point.
package rtree

import (
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"

	"github.com/1F47E/go-geo-tiles/pkg/aggregate"
	"github.com/1F47E/go-geo-tiles/pkg/errors"
	"github.com/1F47E/go-geo-tiles/pkg/mercator"
	"github.com/1F47E/go-geo-tiles/pkg/models"
)

const (
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// spatialRegion wraps a region to implement rtreego.Spatial
type spatialRegion struct {
	aggregate.Region
	rect rtreego.Rect
}

func (sr *spatialRegion) Bounds() rtreego.Rect {
	return sr.rect
}

// RegionIndex is a thread-safe R-Tree index of aggregated regions.
// Regions are assigned to a partition by the longitude of their centre;
// each partition tracks the union of its boxes for query routing.
type RegionIndex struct {
	partitions    []*rtreego.Rtree
	extents       []*models.BoundingBox
	numPartitions int
	mu            sync.RWMutex
	itemCount     atomic.Int64
}

// NewRegionIndex creates an index with one partition per CPU
func NewRegionIndex() *RegionIndex {
	return NewRegionIndexWithWorkers(runtime.NumCPU())
}

// NewRegionIndexWithWorkers creates an index with the given partition count
func NewRegionIndexWithWorkers(numPartitions int) *RegionIndex {
	if numPartitions <= 0 {
		numPartitions = runtime.NumCPU()
	}

	partitions := make([]*rtreego.Rtree, numPartitions)
	for i := range partitions {
		partitions[i] = rtreego.NewTree(dimensions, minChildren, maxChildren)
	}

	return &RegionIndex{
		partitions:    partitions,
		extents:       make([]*models.BoundingBox, numPartitions),
		numPartitions: numPartitions,
	}
}

// IndexRegions adds regions to the index. Regions without geometry
// (time-only periods) are ignored.
func (g *RegionIndex) IndexRegions(regions []aggregate.Region) error {
	if len(regions) == 0 {
		return nil
	}

	// Group regions by partition
	partitioned := make([][]*spatialRegion, g.numPartitions)
	lonRange := 360.0 / float64(g.numPartitions)
	for _, region := range regions {
		if len(region.Polygon) == 0 {
			continue
		}

		rect, err := boxRect(region.Box)
		if err != nil {
			return errors.Wrapf(err, "region %s", region.ID)
		}

		idx := int((region.Box.Center().Lon + 180.0) / lonRange)
		if idx >= g.numPartitions {
			idx = g.numPartitions - 1
		}
		if idx < 0 {
			idx = 0
		}
		partitioned[idx] = append(partitioned[idx], &spatialRegion{Region: region, rect: rect})
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// Insert into partitions in parallel
	var wg sync.WaitGroup
	var inserted atomic.Int64
	for i := 0; i < g.numPartitions; i++ {
		if len(partitioned[i]) == 0 {
			continue
		}

		wg.Add(1)
		go func(idx int, items []*spatialRegion) {
			defer wg.Done()

			extent := g.extents[idx]
			for _, item := range items {
				g.partitions[idx].Insert(item)
				if extent == nil {
					box := item.Box
					extent = &box
				} else {
					union := extent.Union(item.Box)
					extent = &union
				}
			}
			g.extents[idx] = extent
			inserted.Add(int64(len(items)))
		}(i, partitioned[i])
	}

	wg.Wait()
	g.itemCount.Add(inserted.Load())
	return nil
}

// QueryBox returns the regions intersecting box, largest count first
func (g *RegionIndex) QueryBox(box models.BoundingBox) ([]aggregate.Region, error) {
	if box.South() > box.North() || box.West() > box.East() {
		return nil, errors.Wrapf(errors.ErrCoordinateOutOfRange,
			"inverted box (%v, %v, %v, %v)", box.South(), box.West(), box.North(), box.East())
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.searchBoxes([]models.BoundingBox{box}, func(*spatialRegion) bool { return true })
}

// QueryRadius returns the regions whose box comes within radiusKm of
// center, largest count first
func (g *RegionIndex) QueryRadius(center models.Location, radiusKm float64) ([]aggregate.Region, error) {
	if radiusKm < 0 || math.IsNaN(radiusKm) {
		return nil, errors.Newf("invalid radius %v", radiusKm)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.searchBoxes(radiusBoxes(center, radiusKm), func(item *spatialRegion) bool {
		return DistanceToBox(center, item.Box) <= radiusKm
	})
}

// radiusBoxes returns the lat/lon boxes covering radiusKm around center,
// split in two where the circle crosses the antimeridian
func radiusBoxes(center models.Location, radiusKm float64) []models.BoundingBox {
	latDeg := radiusKm * 1000 / mercator.EarthRadius * (180 / math.Pi)
	south := math.Max(center.Lat-latDeg, -90)
	north := math.Min(center.Lat+latDeg, 90)

	lonDeg := 180.0
	if c := math.Cos(center.Lat * math.Pi / 180); c > 1e-9 {
		lonDeg = latDeg / c
	}
	// Circles reaching a pole cover every longitude
	if lonDeg >= 180 || south <= -90 || north >= 90 {
		return []models.BoundingBox{models.NewBoundingBox(south, -180, north, 180)}
	}

	_, lon := mercator.ClampLatLon(0, center.Lon)
	west, east := lon-lonDeg, lon+lonDeg
	switch {
	case west < -180:
		return []models.BoundingBox{
			models.NewBoundingBox(south, west+360, north, 180),
			models.NewBoundingBox(south, -180, north, east),
		}
	case east > 180:
		return []models.BoundingBox{
			models.NewBoundingBox(south, west, north, 180),
			models.NewBoundingBox(south, -180, north, east-360),
		}
	default:
		return []models.BoundingBox{models.NewBoundingBox(south, west, north, east)}
	}
}

// NearestNeighbors returns up to n regions closest to center, nearest
// first. Regions containing center are at distance 0.
func (g *RegionIndex) NearestNeighbors(center models.Location, n int) []aggregate.Region {
	if n <= 0 {
		return []aggregate.Region{}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	type nearestResult struct {
		region   aggregate.Region
		distance float64
	}

	// Search all partitions in parallel
	resultsChan := make(chan []nearestResult, g.numPartitions)
	for i := 0; i < g.numPartitions; i++ {
		go func(idx int) {
			queryPoint := rtreego.Point{center.Lat, center.Lon}
			// Get more candidates than needed, the tree ranks by planar distance
			results := g.partitions[idx].NearestNeighbors(n*2, queryPoint)

			nearest := make([]nearestResult, 0, len(results))
			for _, result := range results {
				sr, ok := result.(*spatialRegion)
				if !ok || sr == nil {
					continue
				}
				nearest = append(nearest, nearestResult{
					region:   sr.Region,
					distance: DistanceToBox(center, sr.Box),
				})
			}
			resultsChan <- nearest
		}(i)
	}

	var all []nearestResult
	for i := 0; i < g.numPartitions; i++ {
		all = append(all, <-resultsChan...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].distance != all[j].distance {
			return all[i].distance < all[j].distance
		}
		return all[i].region.Path < all[j].region.Path
	})

	count := min(n, len(all))
	regions := make([]aggregate.Region, count)
	for i := 0; i < count; i++ {
		regions[i] = all[i].region
	}
	return regions
}

// Regions returns every indexed region, largest count first
func (g *RegionIndex) Regions() []aggregate.Region {
	world := models.NewBoundingBox(-90, -180, 90, 180)

	g.mu.RLock()
	defer g.mu.RUnlock()

	regions, _ := g.searchBoxes([]models.BoundingBox{world}, func(*spatialRegion) bool { return true })
	return regions
}

// Count returns the number of indexed regions
func (g *RegionIndex) Count() int64 {
	return g.itemCount.Load()
}

// Clear removes all regions from the index
func (g *RegionIndex) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < g.numPartitions; i++ {
		g.partitions[i] = rtreego.NewTree(dimensions, minChildren, maxChildren)
		g.extents[i] = nil
	}
	g.itemCount.Store(0)
}

// search runs query on every partition whose extent meets box, in
// parallel, and keeps the items accepted by keep. Callers hold the read lock.
func (g *RegionIndex) search(box models.BoundingBox, query func(*rtreego.Rtree) []rtreego.Spatial, keep func(*spatialRegion) bool) []*spatialRegion {
	relevant := g.getRelevantPartitions(box)
	resultsChan := make(chan []*spatialRegion, len(relevant))

	for _, partitionIdx := range relevant {
		go func(idx int) {
			results := query(g.partitions[idx])

			items := make([]*spatialRegion, 0, len(results))
			for _, result := range results {
				item, ok := result.(*spatialRegion)
				if !ok || item == nil || !keep(item) {
					continue
				}
				items = append(items, item)
			}
			resultsChan <- items
		}(partitionIdx)
	}

	var all []*spatialRegion
	for i := 0; i < len(relevant); i++ {
		all = append(all, <-resultsChan...)
	}
	return all
}

// searchBoxes runs search over several query boxes, keeping each item once
func (g *RegionIndex) searchBoxes(boxes []models.BoundingBox, keep func(*spatialRegion) bool) ([]aggregate.Region, error) {
	seen := make(map[*spatialRegion]struct{})
	var regions []aggregate.Region
	for _, box := range boxes {
		bounds, err := boxRect(box)
		if err != nil {
			return nil, err
		}
		items := g.search(box, func(tree *rtreego.Rtree) []rtreego.Spatial {
			return tree.SearchIntersect(bounds)
		}, keep)
		for _, item := range items {
			if _, dup := seen[item]; dup {
				continue
			}
			seen[item] = struct{}{}
			regions = append(regions, item.Region)
		}
	}
	sortRegions(regions)
	return regions, nil
}

// getRelevantPartitions returns the partitions whose extent intersects box
func (g *RegionIndex) getRelevantPartitions(box models.BoundingBox) []int {
	var relevant []int
	for i, extent := range g.extents {
		if extent != nil && extent.Intersects(box) {
			relevant = append(relevant, i)
		}
	}
	return relevant
}

// DistanceToBox returns the great-circle distance in km from loc to the
// closest point of box, 0 when box contains loc. loc is also projected one
// turn east and west so distances across the antimeridian stay short.
func DistanceToBox(loc models.Location, box models.BoundingBox) float64 {
	lat := math.Max(box.South(), math.Min(loc.Lat, box.North()))
	best := math.Inf(1)
	for _, shift := range []float64{0, -360, 360} {
		lon := math.Max(box.West(), math.Min(loc.Lon+shift, box.East()))
		best = math.Min(best, mercator.Distance(loc.Lat, loc.Lon, lat, lon))
	}
	return best / 1000
}

func boxRect(box models.BoundingBox) (rtreego.Rect, error) {
	return rtreego.NewRectFromPoints(
		rtreego.Point{box.South(), box.West()},
		rtreego.Point{box.North(), box.East()},
	)
}

func sortRegions(regions []aggregate.Region) {
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Count != regions[j].Count {
			return regions[i].Count > regions[j].Count
		}
		if regions[i].Path != regions[j].Path {
			return regions[i].Path < regions[j].Path
		}
		return regions[i].ID < regions[j].ID
	})
}
