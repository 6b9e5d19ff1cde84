package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/1F47E/go-geo-tiles/pkg/aggregate"
	"github.com/1F47E/go-geo-tiles/pkg/batch"
	"github.com/1F47E/go-geo-tiles/pkg/event"
)

// execute runs the CLI with args and stdin, returning stdout
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestChronoRoundTrip(t *testing.T) {
	out, err := execute(t, "", "chrono", "encode", "--earliest", "-500", "--latest", "-300")
	require.NoError(t, err)

	var encoded pathOutput
	require.NoError(t, json.Unmarshal([]byte(out), &encoded))
	require.NotEmpty(t, encoded.Path)

	out, err = execute(t, "", "chrono", "decode", encoded.Path)
	require.NoError(t, err)

	var decoded intervalOutput
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.LessOrEqual(t, decoded.Earliest, -500.0)
	assert.GreaterOrEqual(t, decoded.Latest, -300.0)
	assert.NotEmpty(t, decoded.EarliestISO)
}

func TestGeoEncodeDecode(t *testing.T) {
	out, err := execute(t, "", "geo", "encode", "--lat", "0", "--lon", "0", "--zoom", "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"2"}`, out)

	out, err = execute(t, "", "-o", "yaml", "geo", "decode", "2")
	require.NoError(t, err)

	var tile tileOutput
	require.NoError(t, yaml.Unmarshal([]byte(out), &tile))
	assert.Equal(t, 1, tile.Zoom)
	assert.InDelta(t, -180.0, tile.Box.West(), 1e-9)
	assert.InDelta(t, 0.0, tile.Box.North(), 1e-9)
	assert.Len(t, tile.Polygon, 5)
}

func TestGeoEncodeStrict(t *testing.T) {
	_, err := execute(t, "", "geo", "encode", "--lat", "95", "--lon", "0", "--strict")
	require.Error(t, err)

	_, err = execute(t, "", "geo", "encode", "--lat", "95", "--lon", "0")
	require.NoError(t, err)
}

func TestEventCommands(t *testing.T) {
	out, err := execute(t, "", "event", "encode", "--lat", "41.89", "--lon", "12.49", "--earliest", "-752", "--latest", "476")
	require.NoError(t, err)

	var encoded pathOutput
	require.NoError(t, json.Unmarshal([]byte(out), &encoded))
	require.True(t, event.IsEvent(encoded.Path))

	out, err = execute(t, "", "event", "decode", encoded.Path)
	require.NoError(t, err)
	var decoded event.Decoded
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Len(t, decoded.GeoPath, event.DefaultZoom)
	assert.Len(t, decoded.ChronoPath, 2*event.DefaultZoom)

	out, err = execute(t, "", "event", "reduce", encoded.Path, "--levels", "2")
	require.NoError(t, err)
	var reduced pathOutput
	require.NoError(t, json.Unmarshal([]byte(out), &reduced))
	assert.Equal(t, 2, event.Levels(reduced.Path))
	assert.True(t, strings.HasPrefix(encoded.Path, reduced.Path))
}

func TestISOCommands(t *testing.T) {
	out, err := execute(t, "", "iso", "to", "--year", "-43")
	require.NoError(t, err)
	assert.JSONEq(t, `{"year":-43,"iso":"-0042","label":"44 BCE"}`, out)

	out, err = execute(t, "", "iso", "from", "1066")
	require.NoError(t, err)
	assert.JSONEq(t, `{"year":1066,"iso":"1066","label":"1066 CE"}`, out)

	_, err = execute(t, "", "iso", "from", "year")
	require.Error(t, err)
}

func TestAggregateAndQueryIndex(t *testing.T) {
	indexFile := filepath.Join(t.TempDir(), "regions.gob")
	facets := `[{"path":"211111abc","count":5},{"path":"012","count":10},{"path":"013","count":7}]`

	out, err := execute(t, facets, "aggregate", "--depth", "3", "--save-index", indexFile)
	require.NoError(t, err)

	var result aggregate.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Regions, 2)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, int64(17), result.Total)

	out, err = execute(t, "", "regions", "box", "--index", indexFile,
		"--min-lat", "-90", "--min-lon", "-180", "--max-lat", "90", "--max-lon", "180")
	require.NoError(t, err)

	var regions []aggregate.Region
	require.NoError(t, json.Unmarshal([]byte(out), &regions))
	require.Len(t, regions, 2)
	assert.Equal(t, "012", regions[0].Path)

	out, err = execute(t, "", "regions", "nearest", "--index", indexFile, "--k", "1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &regions))
	assert.Len(t, regions, 1)
}

func TestAggregateModes(t *testing.T) {
	yamlFacets := "- path: 10k-0\n  count: 3\n- path: 10k-3\n  count: 4\n"
	out, err := execute(t, yamlFacets, "aggregate", "--mode", "chrono", "--depth", "1")
	require.NoError(t, err)

	var result aggregate.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Regions, 2)
	assert.Equal(t, int64(7), result.Total)

	_, err = execute(t, "[]", "aggregate", "--mode", "time")
	require.Error(t, err)
}

func TestIndexRecords(t *testing.T) {
	records := `[
		{"id":"rome","location":{"lat":41.89,"lon":12.49},"earliest":-752,"latest":476},
		{"id":"lost","earliest":-500,"latest":-300}
	]`
	out, err := execute(t, records, "index", "--workers", "2")
	require.NoError(t, err)

	var keys []batch.Keys
	require.NoError(t, json.Unmarshal([]byte(out), &keys))
	require.Len(t, keys, 2)
	assert.Equal(t, "rome", keys[0].ID)
	assert.Equal(t, "lost", keys[1].ID)
	assert.True(t, strings.HasPrefix(keys[1].GeoTile, "211111"))

	_, err = execute(t, `[{"id":"bad","location":{"lat":95,"lon":0},"earliest":1,"latest":2}]`, "index", "--strict")
	require.Error(t, err)
}

func TestUnknownFormat(t *testing.T) {
	_, err := execute(t, "", "-o", "xml", "iso", "to", "--year", "1")
	require.Error(t, err)
}
