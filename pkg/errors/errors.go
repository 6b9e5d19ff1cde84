// Package errors provides error handling for go-geo-tiles.
//
// This package re-exports github.com/cockroachdb/errors so callers get stack
// traces, wrapping and hints from a single import, and it defines the
// sentinel errors shared by the tiling packages.
//
// Usage:
//
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to decode tile")
//	}
//
//	if errors.Is(err, errors.ErrMalformedPath) {
//	    // reject the key
//	}
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

// Sentinel errors. Wrap them with Wrap/Wrapf to add context while keeping
// them matchable with Is.
var (
	// ErrMalformedPath indicates a tile path containing characters outside
	// the 0-3 alphabet, or an event tile with broken group structure
	ErrMalformedPath = New("malformed path")

	// ErrInvalidInterval indicates a time range that cannot be encoded
	// (non-finite bounds or earliest after latest)
	ErrInvalidInterval = New("invalid interval")

	// ErrOutOfRange indicates a year outside the root bracket of a chrono tile
	ErrOutOfRange = New("value out of range")

	// ErrCoordinateOutOfRange is returned by strict coordinate validation
	ErrCoordinateOutOfRange = New("coordinate out of range")

	// ErrInvalidLevel indicates a negative precision level
	ErrInvalidLevel = New("invalid level")

	// ErrInvalidYear indicates an unparsable or non-finite year
	ErrInvalidYear = New("invalid year")
)

// MalformedPathError reports the first offending character of a tile path.
type MalformedPathError struct {
	Path string
	Pos  int
	Char rune
}

// NewMalformedPath builds a MalformedPathError for the character at pos.
func NewMalformedPath(path string, pos int, char rune) *MalformedPathError {
	return &MalformedPathError{Path: path, Pos: pos, Char: char}
}

func (e *MalformedPathError) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("malformed path %q", e.Path)
	}
	return fmt.Sprintf("malformed path %q: invalid character %q at position %d", e.Path, e.Char, e.Pos)
}

// Unwrap exposes ErrMalformedPath so Is matches every MalformedPathError.
func (e *MalformedPathError) Unwrap() error {
	return ErrMalformedPath
}

// IsMalformedPath checks if an error is or wraps ErrMalformedPath
func IsMalformedPath(err error) bool {
	return err != nil && Is(err, ErrMalformedPath)
}

// IsInvalidInterval checks if an error is or wraps ErrInvalidInterval
func IsInvalidInterval(err error) bool {
	return err != nil && Is(err, ErrInvalidInterval)
}

// IsOutOfRange checks if an error is or wraps ErrOutOfRange or
// ErrCoordinateOutOfRange
func IsOutOfRange(err error) bool {
	return err != nil && IsAny(err, ErrOutOfRange, ErrCoordinateOutOfRange)
}
