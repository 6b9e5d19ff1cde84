package event

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/1F47E/go-geo-tiles/pkg/chrono"
	"github.com/1F47E/go-geo-tiles/pkg/errors"
	"github.com/1F47E/go-geo-tiles/pkg/mercator"
	"github.com/1F47E/go-geo-tiles/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterleave(t *testing.T) {
	testCases := []struct {
		name     string
		prefix   string
		chrono   string
		geo      string
		expected string
	}{
		{"equal levels", "", "0323", "21", "e-032-231"},
		{"odd chrono padded", "", "023", "21", "e-022-301"},
		{"geo padded", "", "023", "", "e-020-300"},
		{"chrono padded", "10k-", "0", "123", "10k-e-001-002-003"},
		{"empty", "", "", "", "e-"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Interleave(tc.prefix, tc.chrono, tc.geo))
		})
	}
}

func TestEncodeDecodeMatchesIndependentPaths(t *testing.T) {
	tiler := DefaultTiler()
	ct := chrono.DefaultTiler()
	gm := mercator.New()
	r := rand.New(rand.NewSource(11))

	for i := 0; i < 500; i++ {
		lat := r.Float64()*170 - 85
		lon := r.Float64()*360 - 180
		earliest := r.Float64()*4000 - 2000
		latest := earliest + r.Float64()*500

		path, err := tiler.Encode(lat, lon, latest, earliest, "")
		require.NoError(t, err)

		decoded, err := tiler.Decode(path)
		require.NoError(t, err)

		geoPath := gm.LatLonToQuadTree(lat, lon, DefaultZoom)
		chronoPath, err := ct.EncodePath(latest, earliest, "")
		require.NoError(t, err)

		assert.Equal(t, geoPath, decoded.GeoPath)
		require.True(t, strings.HasPrefix(decoded.ChronoPath, chronoPath))
		assert.Equal(t, strings.Repeat("0", len(decoded.ChronoPath)-len(chronoPath)),
			decoded.ChronoPath[len(chronoPath):])

		// zero padding only narrows the encoded bracket
		lo, hi, err := ct.DecodePath(chronoPath)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, decoded.Earliest, lo)
		assert.LessOrEqual(t, decoded.Latest, hi)
		assert.True(t, decoded.Box.Contains(models.Location{Lat: lat, Lon: lon}, 1e-9))
		assert.Equal(t, DefaultZoom, Levels(path))
	}
}

func TestEncodeShallowZoomPadsGeo(t *testing.T) {
	tiler := New(nil, 5)
	assert.Equal(t, 5, tiler.Zoom())

	path, err := tiler.Encode(48.8566, 2.3522, 1900, 1850, "")
	require.NoError(t, err)

	decoded, err := tiler.Decode(path)
	require.NoError(t, err)

	geo5 := mercator.New().LatLonToQuadTree(48.8566, 2.3522, 5)
	require.Greater(t, len(decoded.GeoPath), 5)
	assert.Equal(t, geo5, decoded.GeoPath[:5])
	assert.Equal(t, strings.Repeat("0", len(decoded.GeoPath)-5), decoded.GeoPath[5:])
}

func TestEncodeWithPrefix(t *testing.T) {
	tiler := DefaultTiler()

	path, err := tiler.Encode(10, 10, 1500, 1400, "10k")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "10k-e-"), path)

	decoded, err := tiler.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, "10k-", decoded.Prefix)

	chronoPath, err := tiler.Chrono().EncodePath(1500, 1400, "10k")
	require.NoError(t, err)
	lo, hi, err := tiler.Chrono().DecodePath(chronoPath)
	require.NoError(t, err)
	assert.LessOrEqual(t, lo, 1400.0)
	assert.GreaterOrEqual(t, hi, 1500.0)
	assert.True(t, strings.HasPrefix(decoded.ChronoPath, chronoPath))
	assert.GreaterOrEqual(t, decoded.Earliest, lo)
	assert.LessOrEqual(t, decoded.Latest, hi)
}

func TestEncodePadsChronoWithZeros(t *testing.T) {
	tiler := DefaultTiler()

	path, err := tiler.Encode(10, 10, 1000, -5e6, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "e-201-002-"), path)

	decoded, err := tiler.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, "2"+strings.Repeat("0", 2*DefaultZoom-1), decoded.ChronoPath)

	want, err := tiler.Chrono().EncodePath(1000, -5e6, "")
	require.NoError(t, err)
	assert.Equal(t, "2", want)
}

func TestEncodeErrors(t *testing.T) {
	tiler := DefaultTiler()

	_, err := tiler.Encode(0, 0, 100, 200, "")
	assert.True(t, errors.IsInvalidInterval(err))

	_, err = tiler.Encode(0, 0, 2e7, 0, "")
	assert.True(t, errors.IsOutOfRange(err))
}

func TestReducePrecision(t *testing.T) {
	tiler := DefaultTiler()
	path, err := tiler.Encode(37.7749, -122.4194, 1906, 1906, "")
	require.NoError(t, err)
	levels := Levels(path)

	same, err := tiler.ReducePrecision(path, levels)
	require.NoError(t, err)
	assert.Equal(t, path, same)

	same, err = ReducePrecision(path, levels+10)
	require.NoError(t, err)
	assert.Equal(t, path, same)

	root, err := ReducePrecision(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "e-", root)

	coarse, err := ReducePrecision(path, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, Levels(coarse))
	assert.True(t, strings.HasPrefix(path, coarse))

	decoded, err := tiler.Decode(coarse)
	require.NoError(t, err)
	assert.True(t, decoded.Box.Contains(models.Location{Lat: 37.7749, Lon: -122.4194}, 1e-9))
	assert.LessOrEqual(t, decoded.Earliest, 1906.0)
	assert.GreaterOrEqual(t, decoded.Latest, 1906.0)

	prefixed, err := ReducePrecision("10k-e-032-232", 1)
	require.NoError(t, err)
	assert.Equal(t, "10k-e-032", prefixed)

	prefixedRoot, err := ReducePrecision("10k-e-032-232", 0)
	require.NoError(t, err)
	assert.Equal(t, "10k-e-", prefixedRoot)

	_, err = ReducePrecision(path, -1)
	assert.True(t, errors.Is(err, errors.ErrInvalidLevel))
}

func TestDecodeMalformed(t *testing.T) {
	tiler := DefaultTiler()

	testCases := []struct {
		name string
		path string
		pos  int
	}{
		{"missing separator", "032-232", -1},
		{"short group", "e-03-232", 2},
		{"empty group", "e-032--232", 6},
		{"bad digit", "e-032-2x2", 7},
		{"bad geo digit", "10k-e-034", 8},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tiler.Decode(tc.path)
			require.Error(t, err)
			assert.True(t, errors.IsMalformedPath(err))

			var malformed *errors.MalformedPathError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tc.pos, malformed.Pos)
		})
	}
}

func TestSplitAndLevels(t *testing.T) {
	chronoPath, geoPath, err := Split("10k-e-032-232")
	require.NoError(t, err)
	assert.Equal(t, "10k-0323", chronoPath)
	assert.Equal(t, "22", geoPath)

	assert.Equal(t, 0, Levels("e-"))
	assert.Equal(t, 0, Levels("not an event"))
	assert.Equal(t, 2, Levels("e-032-232"))

	assert.True(t, IsEvent("10k-e-032"))
	assert.False(t, IsEvent("0123"))
}

func TestDecodeRoot(t *testing.T) {
	decoded, err := DefaultTiler().Decode("e-")
	require.NoError(t, err)
	assert.Equal(t, "", decoded.GeoPath)
	assert.Equal(t, -chrono.DefaultPathMax, decoded.Earliest)
	assert.Equal(t, chrono.DefaultPathMax, decoded.Latest)
	assert.InDelta(t, 180, decoded.Box.East(), 1e-9)
}

func BenchmarkEncode(b *testing.B) {
	tiler := DefaultTiler()
	for i := 0; i < b.N; i++ {
		_, _ = tiler.Encode(37.7749, -122.4194, 1950, 1900, "")
	}
}

func BenchmarkDecode(b *testing.B) {
	tiler := DefaultTiler()
	path, _ := tiler.Encode(37.7749, -122.4194, 1950, 1900, "")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = tiler.Decode(path)
	}
}
