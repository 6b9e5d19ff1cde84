// Package isoyear converts astronomical year numbers (1 = 1 CE, 0 = 1 BCE,
// -1 = 2 BCE) to and from ISO 8601 year strings.
//
// The conversion keeps a long-standing quirk of the indexed data: year 0
// formats as "0001", colliding with year 1, while year -1 formats as "0000".
// Every other integer year survives a round trip unchanged.
package isoyear

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/1F47E/go-geo-tiles/pkg/errors"
)

// maxYear bounds the magnitude of years that format exactly
var maxYear = math.Ldexp(1, 63)

// YearToISO formats a year as an ISO 8601 year string. Fractional years are
// truncated toward zero before formatting; years beyond int64 range are
// rejected.
func YearToISO(year float64) (string, error) {
	if math.IsNaN(year) || math.IsInf(year, 0) {
		return "", errors.Wrapf(errors.ErrInvalidYear, "cannot format %v", year)
	}

	t := math.Trunc(year)
	if t >= maxYear || t <= -maxYear {
		return "", errors.Wrapf(errors.ErrInvalidYear, "year %v outside int64 range", year)
	}

	y := int64(t)
	switch {
	case y > 0:
		return fmt.Sprintf("%04d", y), nil
	case y == 0:
		return "0001", nil
	case y == -1:
		return "0000", nil
	default:
		return "-" + fmt.Sprintf("%04d", -y-1), nil
	}
}

// MustYearToISO is YearToISO for values known to be finite
func MustYearToISO(year float64) string {
	iso, err := YearToISO(year)
	if err != nil {
		panic(err)
	}
	return iso
}

// ISOToYear parses the year component of an ISO 8601 string ("1066",
// "-0499", "+0000", "1999-12-31T23:59:59") into an astronomical year.
func ISOToYear(iso string) (float64, error) {
	s := strings.TrimSpace(iso)
	if s == "" {
		return 0, errors.Wrap(errors.ErrInvalidYear, "empty ISO year")
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, errors.Wrapf(errors.ErrInvalidYear, "no year digits in %q", iso)
	}
	if end < len(s) && s[end] != '-' && s[end] != 'T' {
		return 0, errors.Wrapf(errors.ErrInvalidYear, "unexpected %q after year in %q", s[end], iso)
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrInvalidYear, "parse %q: %v", iso, err)
	}

	if negative {
		return -float64(n) - 1, nil
	}
	if n == 0 {
		return -1, nil
	}
	return float64(n), nil
}

// Label renders a year in calendar notation, e.g. "44 BCE" or "1066 CE"
func Label(year float64) string {
	t := math.Trunc(year)
	if t >= maxYear || t <= -maxYear {
		if t <= 0 {
			return strconv.FormatFloat(1-t, 'f', 0, 64) + " BCE"
		}
		return strconv.FormatFloat(t, 'f', 0, 64) + " CE"
	}
	y := int64(t)
	if y <= 0 {
		return fmt.Sprintf("%d BCE", 1-y)
	}
	return fmt.Sprintf("%d CE", y)
}
