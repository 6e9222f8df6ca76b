package mask

import "github.com/swdee/go-dashmask/detect"

// Inflate expands the box symmetrically by ratio*width horizontally and
// ratio*height vertically, then clamps it to the frame bounds
func Inflate(box detect.BBox, ratio float64, width, height int) detect.BBox {

	dw := box.Width() * ratio
	dh := box.Height() * ratio

	return detect.BBox{
		X1: box.X1 - dw,
		Y1: box.Y1 - dh,
		X2: box.X2 + dw,
		Y2: box.Y2 + dh,
	}.Clamp(width, height)
}

// EnsureMinSize grows the box around its center so both dimensions are at
// least minSize.  A grown box crossing a frame edge is shifted back inside
// so it keeps the minimum size, unless the frame itself is smaller in which
// case the box spans the whole frame dimension.  Boxes already large enough
// are returned unchanged
func EnsureMinSize(box detect.BBox, minSize float64, width, height int) detect.BBox {

	if box.Width() >= minSize && box.Height() >= minSize {
		return box
	}

	x1, x2 := growSpan(box.X1, box.X2, minSize, float64(width))
	y1, y2 := growSpan(box.Y1, box.Y2, minSize, float64(height))

	return detect.BBox{X1: x1, Y1: y1, X2: x2, Y2: y2}.Clamp(width, height)
}

// growSpan grows the span [lo,hi] about its center to at least size and
// shifts it to lie within [0,limit]
func growSpan(lo, hi, size, limit float64) (float64, float64) {

	if hi-lo >= size {
		return lo, hi
	}

	c := (lo + hi) / 2
	lo = c - size/2
	hi = c + size/2

	if lo < 0 {
		hi -= lo
		lo = 0
	}

	if hi > limit {
		lo -= hi - limit
		hi = limit
	}

	if lo < 0 {
		lo = 0
	}

	return lo, hi
}
