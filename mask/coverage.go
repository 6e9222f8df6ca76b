package mask

import (
	clipper "github.com/ctessum/go.clipper"
	"github.com/swdee/go-dashmask/detect"
)

// Coverage returns the fraction in [0,1] of a width x height frame that is
// obscured by the given boxes.  Overlapping boxes are merged with a polygon
// union so shared area is only counted once
func Coverage(boxes []detect.BBox, width, height int) float64 {

	if width <= 0 || height <= 0 || len(boxes) == 0 {
		return 0
	}

	c := clipper.NewClipper(0)

	added := false

	for _, b := range boxes {
		r := b.Clamp(width, height).Cover()

		if r.Empty() {
			continue
		}

		path := clipper.Path{
			&clipper.IntPoint{X: clipper.CInt(r.Min.X), Y: clipper.CInt(r.Min.Y)},
			&clipper.IntPoint{X: clipper.CInt(r.Max.X), Y: clipper.CInt(r.Min.Y)},
			&clipper.IntPoint{X: clipper.CInt(r.Max.X), Y: clipper.CInt(r.Max.Y)},
			&clipper.IntPoint{X: clipper.CInt(r.Min.X), Y: clipper.CInt(r.Max.Y)},
		}

		c.AddPath(path, clipper.PtSubject, true)
		added = true
	}

	if !added {
		return 0
	}

	solution, ok := c.Execute1(clipper.CtUnion, clipper.PftNonZero, clipper.PftNonZero)

	if !ok {
		return 0
	}

	// holes have the opposite orientation so summing signed areas subtracts
	// them from their outer polygon
	var area float64

	for _, path := range solution {
		area += pathArea(path)
	}

	if area < 0 {
		area = -area
	}

	frac := area / float64(width*height)

	if frac > 1 {
		frac = 1
	}

	return frac
}

// pathArea returns the signed area of a closed polygon using the shoelace
// formula
func pathArea(path clipper.Path) float64 {

	n := len(path)

	if n < 3 {
		return 0
	}

	var sum float64

	for i := 0; i < n; i++ {
		p := path[i]
		q := path[(i+1)%n]
		sum += float64(p.X)*float64(q.Y) - float64(q.X)*float64(p.Y)
	}

	return sum / 2
}

// RegionBoxes returns the boxes of the given regions
func RegionBoxes(regions []Region) []detect.BBox {

	boxes := make([]detect.BBox, len(regions))

	for i, r := range regions {
		boxes[i] = r.Box
	}

	return boxes
}

// MetadataBoxes returns the boxes of the given metadata records
func MetadataBoxes(meta []Metadata) []detect.BBox {

	boxes := make([]detect.BBox, len(meta))

	for i, m := range meta {
		boxes[i] = m.Box()
	}

	return boxes
}
