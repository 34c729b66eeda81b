package imaging

import (
	"fmt"
	"image"
	"math"
)

// Region is a rectangular window within an image.
//
// (X1, Y1) is the top-left corner (inclusive) and (X2, Y2) the bottom-right
// corner (exclusive).
type Region struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Rect converts the region to an image rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Validate checks that the region is non-empty and inside bounds.
func (r Region) Validate(bounds image.Rectangle) error {
	if r.X1 < bounds.Min.X || r.Y1 < bounds.Min.Y || r.X2 > bounds.Max.X || r.Y2 > bounds.Max.Y {
		return fmt.Errorf("crop region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			r.X1, r.Y1, r.X2, r.Y2, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}
	if r.X1 >= r.X2 || r.Y1 >= r.Y2 {
		return fmt.Errorf("invalid crop region: x1 must be < x2, y1 must be < y2")
	}
	return nil
}

// RegionAround returns the square window of the given radius centered on a
// row/column position, clipped to a width x height image.
func RegionAround(row, col float64, radius, width, height int) Region {
	cx := int(math.Round(col))
	cy := int(math.Round(row))
	return Region{
		X1: clamp(cx-radius, 0, width),
		Y1: clamp(cy-radius, 0, height),
		X2: clamp(cx+radius+1, 0, width),
		Y2: clamp(cy+radius+1, 0, height),
	}
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
