package main

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1F47E/go-geo-tiles/pkg/errors"
)

var testArea = bounds{
	minLat: 30, maxLat: 46,
	minLon: -6, maxLon: 36,
	minYear: -10000, maxYear: 2000,
}

func TestValidateOp(t *testing.T) {
	tests := []struct {
		op      string
		wantErr bool
	}{
		{"encode", false},
		{"decode", false},
		{"aggregate", false},
		{"query", false},
		{"all", false},
		{"", true},
		{"Encode", true},
		{"nearest", true},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			err := validateOp(tt.op)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "unknown operation")
			assert.NotEmpty(t, errors.GetAllHints(err))
		})
	}
}

func TestGenerateRecordsDeterministic(t *testing.T) {
	const n, workers = 103, 4

	a := generateRecords(rand.New(rand.NewSource(42)), n, testArea, workers)
	b := generateRecords(rand.New(rand.NewSource(42)), n, testArea, workers)
	c := generateRecords(rand.New(rand.NewSource(43)), n, testArea, workers)

	require.Len(t, a, n)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	for i, r := range a {
		require.NotNil(t, r.Location, "record %d", i)
		assert.GreaterOrEqual(t, r.Location.Lat, testArea.minLat)
		assert.LessOrEqual(t, r.Location.Lat, testArea.maxLat)
		assert.GreaterOrEqual(t, r.Location.Lon, testArea.minLon)
		assert.LessOrEqual(t, r.Location.Lon, testArea.maxLon)
		assert.LessOrEqual(t, r.Earliest, r.Latest)
	}
}

func TestMeasure(t *testing.T) {
	src := rand.New(rand.NewSource(1))
	result := measure(src, "count", 50, 3, func(_ *rand.Rand, i int) int {
		if i%10 == 0 {
			return -1
		}
		return 2
	})

	assert.Equal(t, "count", result.Operation)
	assert.Equal(t, 50, result.TotalOps)
	assert.Equal(t, int64(90), result.TotalResults)
	assert.LessOrEqual(t, result.MinDuration, result.MaxDuration)
	assert.InDelta(t, 1.8, result.AvgResults, 1e-9)
}

func BenchmarkGenerateRecords(b *testing.B) {
	src := rand.New(rand.NewSource(1))
	for i := 0; i < b.N; i++ {
		generateRecords(src, 1000, testArea, 4)
	}
}
