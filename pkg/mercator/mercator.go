// Package mercator implements TMS / spherical Web Mercator tile math:
// lat/lon <-> meters <-> pixels <-> tile indices <-> quadtree digit paths.
//
// The formulas follow the public GDAL2Tiles GlobalMercator reference
// (EPSG:3857, 256px tiles, TMS origin at the bottom-left). Out-of-range input
// never fails here: latitudes are clamped to the projection limit and
// longitudes wrap around the antimeridian so rendering keeps working on
// slightly malformed stored data. Ingestion code that would rather reject such
// values calls ValidateLatLon first.
package mercator

import (
	"math"
	"strings"

	"github.com/1F47E/go-geo-tiles/pkg/errors"
	"github.com/1F47E/go-geo-tiles/pkg/models"
)

const (
	// TileSize is the edge length of a tile in pixels
	TileSize = 256
	// EarthRadius is the WGS84 semi-major axis used by spherical Mercator (m)
	EarthRadius = 6378137.0
	// MaxLatitude is the latitude where the square Mercator world ends
	MaxLatitude = 85.05112877980659
	// MaxZoom is the deepest supported zoom level
	MaxZoom = 32
	// SentinelPrefix marks tiles of items without real coordinates
	SentinelPrefix = "211111"

	meanEarthRadius = 6371000.0 // m, for great-circle distances
)

// GlobalMercator converts between WGS84 coordinates and TMS tiles.
// The zero value is not usable; call New.
type GlobalMercator struct {
	tileSize          float64
	initialResolution float64
	originShift       float64
}

// New creates a converter for the standard 256px tile pyramid
func New() *GlobalMercator {
	return NewWithTileSize(TileSize)
}

// NewWithTileSize creates a converter for a custom tile edge length.
// Non-positive sizes fall back to TileSize.
func NewWithTileSize(tileSize int) *GlobalMercator {
	if tileSize <= 0 {
		tileSize = TileSize
	}
	return &GlobalMercator{
		tileSize:          float64(tileSize),
		initialResolution: 2 * math.Pi * EarthRadius / float64(tileSize),
		originShift:       2 * math.Pi * EarthRadius / 2.0,
	}
}

// LatLonToMeters converts WGS84 lat/lon to spherical Mercator meters
func (g *GlobalMercator) LatLonToMeters(lat, lon float64) (mx, my float64) {
	lat, lon = ClampLatLon(lat, lon)

	mx = lon * g.originShift / 180.0
	my = math.Log(math.Tan((90+lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	my = my * g.originShift / 180.0
	return mx, my
}

// MetersToLatLon converts spherical Mercator meters to WGS84 lat/lon
func (g *GlobalMercator) MetersToLatLon(mx, my float64) (lat, lon float64) {
	lon = (mx / g.originShift) * 180.0
	lat = (my / g.originShift) * 180.0
	lat = 180 / math.Pi * (2*math.Atan(math.Exp(lat*math.Pi/180.0)) - math.Pi/2.0)
	return lat, lon
}

// Resolution returns the ground size of one pixel in meters at zoom
func (g *GlobalMercator) Resolution(zoom int) float64 {
	return math.Ldexp(g.initialResolution, -zoom)
}

// PixelsToMeters converts pyramid pixel coordinates at zoom to meters
func (g *GlobalMercator) PixelsToMeters(px, py float64, zoom int) (mx, my float64) {
	res := g.Resolution(zoom)
	return px*res - g.originShift, py*res - g.originShift
}

// MetersToPixels converts meters to pyramid pixel coordinates at zoom
func (g *GlobalMercator) MetersToPixels(mx, my float64, zoom int) (px, py float64) {
	res := g.Resolution(zoom)
	return (mx + g.originShift) / res, (my + g.originShift) / res
}

// PixelsToTile returns the TMS tile covering the pixel. A pixel lying exactly
// on a tile edge belongs to the lower tile; results are clamped to the grid.
func (g *GlobalMercator) PixelsToTile(px, py float64, zoom int) (tx, ty int) {
	tx = int(math.Ceil(px/g.tileSize) - 1)
	ty = int(math.Ceil(py/g.tileSize) - 1)
	last := (1 << ClampZoom(zoom)) - 1
	return clampInt(tx, 0, last), clampInt(ty, 0, last)
}

// MetersToTile returns the TMS tile containing the Mercator coordinates
func (g *GlobalMercator) MetersToTile(mx, my float64, zoom int) (tx, ty int) {
	px, py := g.MetersToPixels(mx, my, zoom)
	return g.PixelsToTile(px, py, zoom)
}

// TileBounds returns the tile extent in Mercator meters
func (g *GlobalMercator) TileBounds(tx, ty, zoom int) (minx, miny, maxx, maxy float64) {
	minx, miny = g.PixelsToMeters(float64(tx)*g.tileSize, float64(ty)*g.tileSize, zoom)
	maxx, maxy = g.PixelsToMeters(float64(tx+1)*g.tileSize, float64(ty+1)*g.tileSize, zoom)
	return minx, miny, maxx, maxy
}

// TileLatLonBounds returns the tile extent as a WGS84 bounding box
func (g *GlobalMercator) TileLatLonBounds(tx, ty, zoom int) models.BoundingBox {
	minx, miny, maxx, maxy := g.TileBounds(tx, ty, zoom)
	south, west := g.MetersToLatLon(minx, miny)
	north, east := g.MetersToLatLon(maxx, maxy)
	return models.NewBoundingBox(south, west, north, east)
}

// ZoomForPixelSize returns the deepest zoom whose pixel is still at least
// pixelSize meters wide
func (g *GlobalMercator) ZoomForPixelSize(pixelSize float64) int {
	if math.IsNaN(pixelSize) || pixelSize <= 0 {
		return MaxZoom - 1
	}
	for i := 0; i < MaxZoom; i++ {
		if pixelSize > g.Resolution(i) {
			if i == 0 {
				return 0
			}
			return i - 1
		}
	}
	return MaxZoom - 1
}

// GoogleTile converts TMS tile coordinates to Google/XYZ (top-left origin)
func GoogleTile(tx, ty, zoom int) (gx, gy int) {
	return tx, (1 << zoom) - 1 - ty
}

// QuadTree converts TMS tile coordinates to a quadkey digit path, most
// significant level first
func QuadTree(tx, ty, zoom int) string {
	_, gy := GoogleTile(tx, ty, zoom)

	var b strings.Builder
	b.Grow(zoom)
	for i := zoom; i > 0; i-- {
		digit := byte('0')
		mask := 1 << (i - 1)
		if tx&mask != 0 {
			digit++
		}
		if gy&mask != 0 {
			digit += 2
		}
		b.WriteByte(digit)
	}
	return b.String()
}

// QuadTreeToTile converts a quadkey digit path back to TMS tile coordinates;
// the zoom is the path length
func QuadTreeToTile(path string) (tx, ty, zoom int, err error) {
	if err := ValidatePath(path); err != nil {
		return 0, 0, 0, err
	}
	zoom = len(path)
	if zoom > MaxZoom {
		return 0, 0, 0, errors.Wrapf(errors.ErrOutOfRange, "path depth %d exceeds %d", zoom, MaxZoom)
	}

	gx, gy := 0, 0
	for i := 0; i < zoom; i++ {
		d := path[i] - '0'
		gx <<= 1
		gy <<= 1
		if d&1 != 0 {
			gx |= 1
		}
		if d&2 != 0 {
			gy |= 1
		}
	}
	return gx, (1 << zoom) - 1 - gy, zoom, nil
}

// LatLonToQuadTree returns the quadkey path of the tile containing the
// coordinates at zoom. Coordinates are clamped/wrapped, zoom is clamped.
func (g *GlobalMercator) LatLonToQuadTree(lat, lon float64, zoom int) string {
	zoom = ClampZoom(zoom)
	mx, my := g.LatLonToMeters(lat, lon)
	tx, ty := g.MetersToTile(mx, my, zoom)
	return QuadTree(tx, ty, zoom)
}

// QuadTreeToLatLon decodes a quadkey path into its (south, west, north, east)
// bounding box at zoom len(path). The empty path is the whole world.
func (g *GlobalMercator) QuadTreeToLatLon(path string) (models.BoundingBox, error) {
	tx, ty, zoom, err := QuadTreeToTile(path)
	if err != nil {
		return models.BoundingBox{}, err
	}
	return g.TileLatLonBounds(tx, ty, zoom), nil
}

// QuadTreeToGeoJSONPolyCoords returns the tile box as a closed
// counter-clockwise ring of (lon, lat) pairs
func (g *GlobalMercator) QuadTreeToGeoJSONPolyCoords(path string) ([][2]float64, error) {
	box, err := g.QuadTreeToLatLon(path)
	if err != nil {
		return nil, err
	}
	return box.Ring(), nil
}

// ValidatePath checks that every character is a quadtree digit
func ValidatePath(path string) error {
	for i, r := range path {
		if r < '0' || r > '3' {
			return errors.NewMalformedPath(path, i, r)
		}
	}
	return nil
}

// IsSentinel reports whether the path marks an item without coordinates
func IsSentinel(path string) bool {
	return strings.HasPrefix(path, SentinelPrefix)
}

// SentinelPath returns the placeholder tile for items lacking coordinates
func SentinelPath(zoom int) string {
	zoom = ClampZoom(zoom)
	if zoom == 0 {
		return ""
	}
	return "2" + strings.Repeat("1", zoom-1)
}

// ClampLatLon maps any input onto the projectable range: NaN becomes 0,
// latitude is clamped to ±MaxLatitude and longitude wraps modulo 360.
func ClampLatLon(lat, lon float64) (float64, float64) {
	switch {
	case math.IsNaN(lat):
		lat = 0
	case lat > MaxLatitude:
		lat = MaxLatitude
	case lat < -MaxLatitude:
		lat = -MaxLatitude
	}

	switch {
	case math.IsNaN(lon):
		lon = 0
	case math.IsInf(lon, 1):
		lon = 180
	case math.IsInf(lon, -1):
		lon = -180
	case lon < -180 || lon > 180:
		lon = math.Mod(lon+180, 360)
		if lon < 0 {
			lon += 360
		}
		lon -= 180
	}
	return lat, lon
}

// ValidateLatLon is the strict check for ingestion pipelines
func ValidateLatLon(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return errors.Wrapf(errors.ErrCoordinateOutOfRange, "non-finite coordinate (%v, %v)", lat, lon)
	}
	if lat < -90 || lat > 90 {
		return errors.Wrapf(errors.ErrCoordinateOutOfRange, "latitude %v outside [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return errors.Wrapf(errors.ErrCoordinateOutOfRange, "longitude %v outside [-180, 180]", lon)
	}
	return nil
}

// ClampZoom limits zoom to [0, MaxZoom]
func ClampZoom(zoom int) int {
	return clampInt(zoom, 0, MaxZoom)
}

// Distance calculates the great-circle (haversine) distance between two
// points in meters
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return meanEarthRadius * c
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
