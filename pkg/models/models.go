package models

import "math"

// BoundingBox represents an axis-aligned rectangular extent
type BoundingBox struct {
	MinX float64 `json:"x_min"`
	MinY float64 `json:"y_min"`
	MaxX float64 `json:"x_max"`
	MaxY float64 `json:"y_max"`
}

// Tile represents one point cloud file in the inventory
type Tile struct {
	Filename string      `json:"filename"`
	Box      BoundingBox `json:"box"`
	Points   int64       `json:"points"`
}

// Ring returns the closed 5-vertex rectangle outline of the box, traced
// bottom-left, top-left, top-right, bottom-right and back to bottom-left.
// The first and last vertex are always identical. A zero-area box yields a
// valid degenerate ring.
func (b BoundingBox) Ring() [][2]float64 {
	return [][2]float64{
		{b.MinX, b.MinY},
		{b.MinX, b.MaxY},
		{b.MaxX, b.MaxY},
		{b.MaxX, b.MinY},
		{b.MinX, b.MinY},
	}
}

// IsValid reports whether all coordinates are finite and min <= max on both axes
func (b BoundingBox) IsValid() bool {
	for _, v := range []float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

// Contains reports whether the point lies inside the box, borders included
func (b BoundingBox) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Intersects reports whether the two boxes overlap, borders included
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.MinX <= o.MaxX && b.MaxX >= o.MinX &&
		b.MinY <= o.MaxY && b.MaxY >= o.MinY
}

// Union returns the smallest box covering both boxes
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// Width returns the extent of the box along the X axis
func (b BoundingBox) Width() float64 {
	return b.MaxX - b.MinX
}

// Height returns the extent of the box along the Y axis
func (b BoundingBox) Height() float64 {
	return b.MaxY - b.MinY
}

// Area returns the area of the box
func (b BoundingBox) Area() float64 {
	return b.Width() * b.Height()
}
