package models

import "math"

// Location represents a geographic location with latitude and longitude
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Point represents a geo point with an ID and location.
// A nil Location marks an item without usable coordinates.
type Point struct {
	ID       string    `json:"id" yaml:"id"`
	Location *Location `json:"location,omitempty" yaml:"location,omitempty"`
}

// BoundingBox represents a rectangular area defined by two corners.
// BottomLeft holds (south, west) and TopRight holds (north, east).
type BoundingBox struct {
	BottomLeft Location `json:"bottom_left" yaml:"bottom_left"`
	TopRight   Location `json:"top_right" yaml:"top_right"`
}

// NewBoundingBox builds a box from the (south, west, north, east) convention
func NewBoundingBox(south, west, north, east float64) BoundingBox {
	return BoundingBox{
		BottomLeft: Location{Lat: south, Lon: west},
		TopRight:   Location{Lat: north, Lon: east},
	}
}

func (b BoundingBox) South() float64 { return b.BottomLeft.Lat }
func (b BoundingBox) West() float64  { return b.BottomLeft.Lon }
func (b BoundingBox) North() float64 { return b.TopRight.Lat }
func (b BoundingBox) East() float64  { return b.TopRight.Lon }

// Contains reports whether loc lies inside the box, edges included, with a
// tolerance for floating point noise from projection round trips
func (b BoundingBox) Contains(loc Location, tolerance float64) bool {
	return loc.Lat >= b.South()-tolerance && loc.Lat <= b.North()+tolerance &&
		loc.Lon >= b.West()-tolerance && loc.Lon <= b.East()+tolerance
}

// Intersects reports whether the two boxes overlap, edges included
func (b BoundingBox) Intersects(other BoundingBox) bool {
	return b.West() <= other.East() && b.East() >= other.West() &&
		b.South() <= other.North() && b.North() >= other.South()
}

// Union returns the smallest box covering both boxes
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	return NewBoundingBox(
		math.Min(b.South(), other.South()),
		math.Min(b.West(), other.West()),
		math.Max(b.North(), other.North()),
		math.Max(b.East(), other.East()),
	)
}

// Center returns the midpoint of the box
func (b BoundingBox) Center() Location {
	return Location{
		Lat: (b.South() + b.North()) / 2,
		Lon: (b.West() + b.East()) / 2,
	}
}

// Ring returns the box as a closed counter-clockwise ring of (lon, lat)
// pairs, the GeoJSON polygon convention
func (b BoundingBox) Ring() [][2]float64 {
	return [][2]float64{
		{b.West(), b.South()},
		{b.East(), b.South()},
		{b.East(), b.North()},
		{b.West(), b.North()},
		{b.West(), b.South()},
	}
}

// DateRange is a closed interval of astronomical years (BCE negative)
type DateRange struct {
	Earliest float64 `json:"earliest" yaml:"earliest"`
	Latest   float64 `json:"latest" yaml:"latest"`
}

// Extend widens the range to cover other
func (d DateRange) Extend(other DateRange) DateRange {
	return DateRange{
		Earliest: math.Min(d.Earliest, other.Earliest),
		Latest:   math.Max(d.Latest, other.Latest),
	}
}

// Span returns the length of the range in years
func (d DateRange) Span() float64 {
	return d.Latest - d.Earliest
}
