package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestMalformedPathError(t *testing.T) {
	err := NewMalformedPath("01x2", 2, 'x')

	assert.Equal(t, `malformed path "01x2": invalid character 'x' at position 2`, err.Error())
	assert.True(t, IsMalformedPath(err))
	assert.True(t, Is(err, ErrMalformedPath))
	assert.False(t, IsInvalidInterval(err))
}

func TestMalformedPathErrorWrapped(t *testing.T) {
	wrapped := Wrap(NewMalformedPath("9", 0, '9'), "decode event tile")
	assert.True(t, IsMalformedPath(wrapped))

	var target *MalformedPathError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, 0, target.Pos)
	assert.Equal(t, '9', target.Char)

	stdWrapped := fmt.Errorf("outer: %w", NewMalformedPath("a", 0, 'a'))
	assert.True(t, IsMalformedPath(stdWrapped))
}

func TestMalformedPathNoPosition(t *testing.T) {
	err := NewMalformedPath("e-01", -1, 0)
	assert.Equal(t, `malformed path "e-01"`, err.Error())
}

func TestSentinelHelpers(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		interval bool
		outRange bool
	}{
		{"nil", nil, false, false},
		{"interval", Wrap(ErrInvalidInterval, "encode"), true, false},
		{"year range", Wrapf(ErrOutOfRange, "year %d", 5), false, true},
		{"coordinate", ErrCoordinateOutOfRange, false, true},
		{"unrelated", New("boom"), false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.interval, IsInvalidInterval(tc.err))
			assert.Equal(t, tc.outRange, IsOutOfRange(tc.err))
		})
	}
}

func TestWithHint(t *testing.T) {
	err := WithHint(ErrInvalidLevel, "levels must be >= 0")
	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "levels must be >= 0", hints[0])
	assert.True(t, Is(err, ErrInvalidLevel))
}
