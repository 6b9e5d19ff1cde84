// Package chrono encodes year intervals as quaternary tile paths.
//
// A path starts from the root bracket [-PathMax, +PathMax] and narrows it one
// digit at a time. With h = (latest - earliest) / 2 for the current bracket:
//
//	0  earliest += h          (upper half)
//	3  latest   -= h          (lower half)
//	2  earliest += h/2,
//	   latest   -= h/2        (centred half)
//	1  identity
//
// Every digit except 1 halves the bracket. The encoder never emits 1, but
// decoders accept it so hand-written keys stay valid.
//
// A path may carry a "<magnitude><unit>-" prefix (unit k, m or g) that
// replaces PathMax for that path only, e.g. "10k-0032" is rooted at
// [-10000, 10000].
package chrono

import (
	"math"
	"strconv"
	"strings"

	"github.com/1F47E/go-geo-tiles/pkg/errors"
	"github.com/1F47E/go-geo-tiles/pkg/isoyear"
)

const (
	// DefaultPathMax is the default root half-width in years (10 million BP)
	DefaultPathMax = 10_000_000.0
	// DefaultMaxDepth is the longest path the encoder produces
	DefaultMaxDepth = 30
	// PrefixSeparator ends a magnitude prefix
	PrefixSeparator = "-"
)

var unitMultipliers = map[byte]float64{
	'k': 1e3,
	'm': 1e6,
	'g': 1e9,
}

// Config is the immutable configuration of a Tiler
type Config struct {
	PathMax  float64 `mapstructure:"path_max" yaml:"path_max"`
	MaxDepth int     `mapstructure:"max_depth" yaml:"max_depth"`
}

// DefaultConfig returns the stock 10M-year, 30-digit configuration
func DefaultConfig() Config {
	return Config{PathMax: DefaultPathMax, MaxDepth: DefaultMaxDepth}
}

// Tiler encodes and decodes chrono paths. It holds no mutable state and is
// safe for concurrent use.
type Tiler struct {
	cfg Config
}

// New creates a Tiler. Non-positive or non-finite settings fall back to the
// defaults.
func New(cfg Config) *Tiler {
	if cfg.PathMax <= 0 || math.IsNaN(cfg.PathMax) || math.IsInf(cfg.PathMax, 0) {
		cfg.PathMax = DefaultPathMax
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	return &Tiler{cfg: cfg}
}

// DefaultTiler returns a Tiler with DefaultConfig
func DefaultTiler() *Tiler {
	return New(DefaultConfig())
}

// Config returns the tiler configuration
func (t *Tiler) Config() Config {
	return t.cfg
}

// EncodePath returns the deepest path whose bracket contains
// [earliest, latest]. prefix is an optional magnitude prefix ("10k" or
// "10k-") which is kept verbatim at the head of the result.
func (t *Tiler) EncodePath(latest, earliest float64, prefix string) (string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, PrefixSeparator) {
		prefix += PrefixSeparator
	}
	pathMax := t.pathMaxFor(prefix)

	if err := t.validateInterval(latest, earliest, pathMax); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(prefix) + t.cfg.MaxDepth)
	b.WriteString(prefix)

	lo, hi := -pathMax, pathMax
	for depth := 0; depth < t.cfg.MaxDepth; depth++ {
		digit, ok := pickChild(lo, hi, earliest, latest)
		if !ok {
			break
		}
		lo, hi = Narrow(lo, hi, digit)
		b.WriteByte(digit)
	}
	return b.String(), nil
}

// DecodePath returns the bracket described by path. Digits past MaxDepth
// are validated but do not narrow the bracket further.
func (t *Tiler) DecodePath(path string) (earliest, latest float64, err error) {
	prefix, pathMax, body := t.ParsePrefix(path)

	lo, hi := -pathMax, pathMax
	for i := 0; i < len(body); i++ {
		d := body[i]
		if d < '0' || d > '3' {
			return 0, 0, errors.NewMalformedPath(path, len(prefix)+i, rune(d))
		}
		if i < t.cfg.MaxDepth {
			lo, hi = Narrow(lo, hi, d)
		}
	}
	return lo, hi, nil
}

// DecodeISO decodes path and formats both bounds as ISO 8601 years
func (t *Tiler) DecodeISO(path string) (earliest, latest string, err error) {
	lo, hi, err := t.DecodePath(path)
	if err != nil {
		return "", "", err
	}
	if earliest, err = isoyear.YearToISO(lo); err != nil {
		return "", "", err
	}
	if latest, err = isoyear.YearToISO(hi); err != nil {
		return "", "", err
	}
	return earliest, latest, nil
}

// EncodePathFromBCECE encodes an interval given in calendar years, where
// -1 is 1 BCE and there is no year 0
func (t *Tiler) EncodePathFromBCECE(latest, earliest float64, prefix string) (string, error) {
	return t.EncodePath(CalendarToAstronomical(latest), CalendarToAstronomical(earliest), prefix)
}

// DecodePathBCECE decodes path into calendar years (-1 is 1 BCE)
func (t *Tiler) DecodePathBCECE(path string) (earliest, latest float64, err error) {
	lo, hi, err := t.DecodePath(path)
	if err != nil {
		return 0, 0, err
	}
	return AstronomicalToCalendar(lo), AstronomicalToCalendar(hi), nil
}

// ParsePrefix splits path into its magnitude prefix (separator included),
// the root half-width that prefix selects and the digit body. A path
// without prefix uses the configured PathMax. An unknown unit counts as a
// multiplier of 1 and an unparsable magnitude falls back to PathMax.
func (t *Tiler) ParsePrefix(path string) (prefix string, pathMax float64, body string) {
	idx := strings.Index(path, PrefixSeparator)
	if idx < 0 {
		return "", t.cfg.PathMax, path
	}
	prefix, body = path[:idx+1], path[idx+1:]
	return prefix, t.magnitude(path[:idx]), body
}

// MinIntervalWidth is the bracket width after depth halvings of the
// configured root
func (t *Tiler) MinIntervalWidth(depth int) float64 {
	if depth < 0 {
		depth = 0
	}
	return math.Ldexp(2*t.cfg.PathMax, -depth)
}

// FormatPrefix renders pathMax as the shortest "<magnitude><unit>-" prefix
func FormatPrefix(pathMax float64) string {
	for _, u := range []byte{'g', 'm', 'k'} {
		mult := unitMultipliers[u]
		if pathMax >= mult && math.Mod(pathMax, mult) == 0 {
			return strconv.FormatFloat(pathMax/mult, 'f', -1, 64) + string(u) + PrefixSeparator
		}
	}
	return strconv.FormatFloat(pathMax, 'f', -1, 64) + PrefixSeparator
}

// Narrow applies one digit to the bracket [lo, hi]. Unknown digits leave
// the bracket unchanged, like the identity digit 1.
func Narrow(lo, hi float64, digit byte) (float64, float64) {
	h := (hi - lo) / 2
	switch digit {
	case '0':
		lo += h
	case '3':
		hi -= h
	case '2':
		lo += h / 2
		hi -= h / 2
	}
	return lo, hi
}

// CalendarToAstronomical maps calendar years (no year 0) to astronomical
// numbering
func CalendarToAstronomical(year float64) float64 {
	if year < 0 {
		return year + 1
	}
	return year
}

// AstronomicalToCalendar is the inverse of CalendarToAstronomical
func AstronomicalToCalendar(year float64) float64 {
	if year <= 0 {
		return year - 1
	}
	return year
}

func (t *Tiler) pathMaxFor(prefix string) float64 {
	if prefix == "" {
		return t.cfg.PathMax
	}
	return t.magnitude(strings.TrimSuffix(prefix, PrefixSeparator))
}

func (t *Tiler) magnitude(head string) float64 {
	if head == "" {
		return t.cfg.PathMax
	}
	mult := 1.0
	num := head
	if last := head[len(head)-1]; isLetter(last) {
		num = head[:len(head)-1]
		if m, ok := unitMultipliers[lower(last)]; ok {
			mult = m
		}
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return t.cfg.PathMax
	}
	return v * mult
}

func (t *Tiler) validateInterval(latest, earliest, pathMax float64) error {
	if math.IsNaN(latest) || math.IsNaN(earliest) || math.IsInf(latest, 0) || math.IsInf(earliest, 0) {
		return errors.Wrapf(errors.ErrInvalidInterval, "non-finite bound [%v, %v]", earliest, latest)
	}
	if earliest > latest {
		return errors.Wrapf(errors.ErrInvalidInterval, "earliest %v after latest %v", earliest, latest)
	}
	if earliest < -pathMax || latest > pathMax {
		return errors.Wrapf(errors.ErrOutOfRange, "interval [%v, %v] outside ±%v", earliest, latest, pathMax)
	}
	return nil
}

// pickChild returns the first child of [lo, hi], in 0, 3, 2 order, whose
// bracket contains [earliest, latest]
func pickChild(lo, hi, earliest, latest float64) (byte, bool) {
	for _, d := range []byte{'0', '3', '2'} {
		clo, chi := Narrow(lo, hi, d)
		if clo <= earliest && latest <= chi {
			return d, true
		}
	}
	return 0, false
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
