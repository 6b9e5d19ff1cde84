// Package event builds space-time keys by interleaving a chrono path with a
// mercator quadtree path.
//
// An event path looks like
//
//	[<chrono prefix>]e-<group>-<group>-...
//
// where each group holds two chrono digits followed by one geo digit, so
// truncating the group list coarsens both axes at once. When one axis runs
// out of digits first it is padded with '0'. Decode reads the padded streams
// as they are, so a padded chrono axis decodes to a narrower bracket than
// the one encoded.
package event

import (
	"strings"

	"github.com/1F47E/go-geo-tiles/pkg/chrono"
	"github.com/1F47E/go-geo-tiles/pkg/errors"
	"github.com/1F47E/go-geo-tiles/pkg/mercator"
	"github.com/1F47E/go-geo-tiles/pkg/models"
)

const (
	// DefaultZoom is the geo depth of encoded events
	DefaultZoom = 20
	// Separator splits the chrono prefix from the interleaved groups
	Separator = "e-"
	// GroupSeparator joins groups
	GroupSeparator = "-"
	// ChronoDigitsPerGroup is the number of chrono digits in each group
	ChronoDigitsPerGroup = 2

	groupLen  = ChronoDigitsPerGroup + 1
	padDigit = '0'
)

// Decoded is an event path split back into its two axes
type Decoded struct {
	Prefix     string             `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	ChronoPath string             `json:"chrono_path" yaml:"chrono_path"`
	Earliest   float64            `json:"earliest" yaml:"earliest"`
	Latest     float64            `json:"latest" yaml:"latest"`
	GeoPath    string             `json:"geo_path" yaml:"geo_path"`
	Box        models.BoundingBox `json:"box" yaml:"box"`
}

// Tiler encodes and decodes event paths. Safe for concurrent use.
type Tiler struct {
	chrono   *chrono.Tiler
	mercator *mercator.GlobalMercator
	zoom     int
}

// New creates an event tiler; zoom is clamped to the mercator range and a
// nil chrono tiler means chrono.DefaultTiler
func New(c *chrono.Tiler, zoom int) *Tiler {
	if c == nil {
		c = chrono.DefaultTiler()
	}
	return &Tiler{
		chrono:   c,
		mercator: mercator.New(),
		zoom:     mercator.ClampZoom(zoom),
	}
}

// DefaultTiler uses the default chrono configuration at DefaultZoom
func DefaultTiler() *Tiler {
	return New(chrono.DefaultTiler(), DefaultZoom)
}

// Zoom returns the geo depth used by Encode
func (t *Tiler) Zoom() int { return t.zoom }

// Chrono returns the chrono tiler backing the event tiler
func (t *Tiler) Chrono() *chrono.Tiler { return t.chrono }

// Mercator returns the projection backing the event tiler
func (t *Tiler) Mercator() *mercator.GlobalMercator { return t.mercator }

// Encode builds the event path for a location and year interval.
// Coordinates are clamped; interval errors come from the chrono encoder.
func (t *Tiler) Encode(lat, lon, latest, earliest float64, chronoPrefix string) (string, error) {
	chronoPath, err := t.chrono.EncodePath(latest, earliest, chronoPrefix)
	if err != nil {
		return "", errors.Wrap(err, "encode event chrono axis")
	}
	prefix, _, digits := t.chrono.ParsePrefix(chronoPath)
	geoPath := t.mercator.LatLonToQuadTree(lat, lon, t.zoom)
	return Interleave(prefix, digits, geoPath), nil
}

// Decode splits path into its chrono and geo paths and decodes both
func (t *Tiler) Decode(path string) (Decoded, error) {
	prefix, groups, err := parse(path)
	if err != nil {
		return Decoded{}, err
	}
	chronoDigits, geoPath := demultiplex(groups)

	d := Decoded{
		Prefix:     prefix,
		ChronoPath: prefix + chronoDigits,
		GeoPath:    geoPath,
	}
	if d.Earliest, d.Latest, err = t.chrono.DecodePath(d.ChronoPath); err != nil {
		return Decoded{}, errors.Wrap(err, "decode event chrono axis")
	}
	if d.Box, err = t.mercator.QuadTreeToLatLon(geoPath); err != nil {
		return Decoded{}, errors.Wrap(err, "decode event geo axis")
	}
	return d, nil
}

// ReducePrecision keeps the first levels groups of path. levels at or above
// the group count returns path unchanged, 0 returns the bare root
// "<prefix>e-".
func (t *Tiler) ReducePrecision(path string, levels int) (string, error) {
	return ReducePrecision(path, levels)
}

// ReducePrecision is the tiler-independent form of Tiler.ReducePrecision
func ReducePrecision(path string, levels int) (string, error) {
	if levels < 0 {
		return "", errors.Wrapf(errors.ErrInvalidLevel, "levels %d", levels)
	}
	prefix, groups, err := parse(path)
	if err != nil {
		return "", err
	}
	if levels >= len(groups) {
		return path, nil
	}
	return prefix + Separator + strings.Join(groups[:levels], GroupSeparator), nil
}

// Levels returns the number of groups in a well-formed event path, 0 for
// anything else
func Levels(path string) int {
	_, groups, err := parse(path)
	if err != nil {
		return 0
	}
	return len(groups)
}

// Split returns the chrono path (prefix included) and the geo path of an
// event path without decoding either
func Split(path string) (chronoPath, geoPath string, err error) {
	prefix, groups, err := parse(path)
	if err != nil {
		return "", "", err
	}
	chronoDigits, geoPath := demultiplex(groups)
	return prefix + chronoDigits, geoPath, nil
}

// IsEvent reports whether path carries the event separator
func IsEvent(path string) bool {
	return strings.Contains(path, Separator)
}

// Interleave merges chrono digits and a geo path into an event path
func Interleave(prefix, chronoDigits, geoPath string) string {
	levels := (len(chronoDigits) + ChronoDigitsPerGroup - 1) / ChronoDigitsPerGroup
	if len(geoPath) > levels {
		levels = len(geoPath)
	}

	var b strings.Builder
	b.Grow(len(prefix) + len(Separator) + levels*(groupLen+1))
	b.WriteString(prefix)
	b.WriteString(Separator)
	for i := 0; i < levels; i++ {
		if i > 0 {
			b.WriteString(GroupSeparator)
		}
		for j := 0; j < ChronoDigitsPerGroup; j++ {
			b.WriteByte(digitAt(chronoDigits, i*ChronoDigitsPerGroup+j, padDigit))
		}
		b.WriteByte(digitAt(geoPath, i, padDigit))
	}
	return b.String()
}

func digitAt(s string, i int, pad byte) byte {
	if i < len(s) {
		return s[i]
	}
	return pad
}

func demultiplex(groups []string) (chronoDigits, geoPath string) {
	var c, g strings.Builder
	c.Grow(len(groups) * ChronoDigitsPerGroup)
	g.Grow(len(groups))
	for _, grp := range groups {
		c.WriteString(grp[:ChronoDigitsPerGroup])
		g.WriteByte(grp[ChronoDigitsPerGroup])
	}
	return c.String(), g.String()
}

// parse validates the structure of an event path and returns its chrono
// prefix and groups
func parse(path string) (prefix string, groups []string, err error) {
	idx := strings.LastIndex(path, Separator)
	if idx < 0 {
		return "", nil, errors.Wrapf(errors.NewMalformedPath(path, -1, 0), "missing %q separator", Separator)
	}
	prefix = path[:idx]
	bodyStart := idx + len(Separator)
	body := path[bodyStart:]
	if body == "" {
		return prefix, nil, nil
	}

	groups = strings.Split(body, GroupSeparator)
	pos := bodyStart
	for _, grp := range groups {
		if len(grp) != groupLen {
			char := rune('-')
			if grp != "" {
				char = rune(grp[0])
			}
			return "", nil, errors.Wrapf(errors.NewMalformedPath(path, pos, char),
				"group %q must have %d digits", grp, groupLen)
		}
		for i := 0; i < groupLen; i++ {
			if grp[i] < '0' || grp[i] > '3' {
				return "", nil, errors.NewMalformedPath(path, pos+i, rune(grp[i]))
			}
		}
		pos += len(grp) + len(GroupSeparator)
	}
	return prefix, groups, nil
}
