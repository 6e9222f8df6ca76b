package detect

import (
	"image"
	"math"
)

// BBox is an axis aligned bounding box in pixel units of the frame it was
// detected on.  Coordinates are top-left (X1, Y1) and bottom-right (X2, Y2)
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// NewBBox creates a BBox from the given corners, swapping them if necessary
// so X2 >= X1 and Y2 >= Y1
func NewBBox(x1, y1, x2, y2 float64) BBox {
	return BBox{X1: x1, Y1: y1, X2: x2, Y2: y2}.Normalize()
}

// Normalize returns the box with its corners ordered
func (b BBox) Normalize() BBox {
	if b.X2 < b.X1 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y2 < b.Y1 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b
}

// Width returns the width of the box
func (b BBox) Width() float64 {
	return b.X2 - b.X1
}

// Height returns the height of the box
func (b BBox) Height() float64 {
	return b.Y2 - b.Y1
}

// Center returns the center point of the box
func (b BBox) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Area returns the area of the box
func (b BBox) Area() float64 {
	return b.Width() * b.Height()
}

// Empty reports whether the box has zero area
func (b BBox) Empty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

// CenterDist2 returns the squared euclidean distance between the centers of
// two boxes
func (b BBox) CenterDist2(other BBox) float64 {
	ax, ay := b.Center()
	bx, by := other.Center()
	dx := ax - bx
	dy := ay - by
	return dx*dx + dy*dy
}

// Contains reports whether other lies fully inside the box
func (b BBox) Contains(other BBox) bool {
	return other.X1 >= b.X1 && other.Y1 >= b.Y1 &&
		other.X2 <= b.X2 && other.Y2 <= b.Y2
}

// Clamp restricts the box to the frame bounds [0,width]x[0,height]
func (b BBox) Clamp(width, height int) BBox {
	w := float64(width)
	h := float64(height)

	return BBox{
		X1: clamp(b.X1, 0, w),
		Y1: clamp(b.Y1, 0, h),
		X2: clamp(b.X2, 0, w),
		Y2: clamp(b.Y2, 0, h),
	}
}

// Blend returns the per coordinate exponential blend
// alpha*b + (1-alpha)*current
func (b BBox) Blend(current BBox, alpha float64) BBox {
	return BBox{
		X1: alpha*b.X1 + (1-alpha)*current.X1,
		Y1: alpha*b.Y1 + (1-alpha)*current.Y1,
		X2: alpha*b.X2 + (1-alpha)*current.X2,
		Y2: alpha*b.Y2 + (1-alpha)*current.Y2,
	}
}

// IoU calculates the Intersection over Union with another box
func (b BBox) IoU(other BBox) float64 {

	iw := math.Min(b.X2, other.X2) - math.Max(b.X1, other.X1)
	ih := math.Min(b.Y2, other.Y2) - math.Max(b.Y1, other.Y1)

	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := b.Area() + other.Area() - inter

	if union <= 0 {
		return 0
	}

	return inter / union
}

// Rect converts the box to an integer image.Rectangle, truncating the
// coordinates toward zero
func (b BBox) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

// Cover returns the smallest image.Rectangle containing every pixel the box
// touches, flooring the top left and ceiling the bottom right corner
func (b BBox) Cover() image.Rectangle {
	return image.Rect(int(math.Floor(b.X1)), int(math.Floor(b.Y1)),
		int(math.Ceil(b.X2)), int(math.Ceil(b.Y2)))
}

// FromRect creates a BBox from an image.Rectangle
func FromRect(r image.Rectangle) BBox {
	return BBox{
		X1: float64(r.Min.X),
		Y1: float64(r.Min.Y),
		X2: float64(r.Max.X),
		Y2: float64(r.Max.Y),
	}
}

func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
