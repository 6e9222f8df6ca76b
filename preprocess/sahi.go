package preprocess

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/swdee/go-dashmask/detect"
	"gocv.io/x/gocv"
)

// SAHI defines the struct used for Slicing Aided Hyper Inference.  Far away
// faces and plates shrink to a few pixels when a 1080p frame is letterboxed
// to the detector input, slicing the frame into overlapping tiles keeps them
// large enough to be detected
type SAHI struct {
	// sliceWidth is the width of each image slice
	sliceWidth int
	// sliceHeight is the height of each image slice
	sliceHeight int
	// overlapWidth is a ratio from 0.0 to 1.0 to represent the number of pixels
	// to overlap each slice.  A value of 0.2 represents 20% of sliceWidth's pixels
	overlapWidth float64
	// overlapHeight is a ratio from 0.0 to 1.0 to represent the number of pixels
	// to overlap each slice.  A value of 0.2 represents 20% of sliceHeight's pixels
	overlapHeight float64
	// results stores the detections of each slice in frame coordinates
	results []detect.Detection
	// idGen provides the ID of each merged detection
	idGen *detect.IDGenerator
}

// Slice defines the struct used to store the coordinates for a slice of the
// source image
type Slice struct {
	// X is the coordinate of the slices left corner
	X int
	// Y is the coordinate of the slices top corner
	Y int
	// X2 is the coordinate of the slices right corner
	X2 int
	// Y2 is the coordinate of the slices bottom corner
	Y2 int
	// slice is the sliced image Mat
	slice gocv.Mat
	// resizer is an instance of the image resizer
	resizer *Resizer
	// destMat is the destination Mat after crop and resize of the slice
	destMat gocv.Mat
}

// NewSAHI returns a SAHI instance for slicing a frame into a series of tiles
// for detection.  The sliceWidth and sliceHeight should be the detector
// input dimensions
func NewSAHI(sliceWidth, sliceHeight int, overlapWidth, overlapHeight float64) *SAHI {
	return &SAHI{
		sliceWidth:    sliceWidth,
		sliceHeight:   sliceHeight,
		overlapWidth:  overlapWidth,
		overlapHeight: overlapHeight,
		idGen:         detect.NewIDGenerator(),
	}
}

// computePositions returns the start coordinates of each tile along one axis
// and the tile length.  The tiles are the fewest that cover srcLen with an
// overlap of at least sliceLen*overlapRatio, leftover pixels are spread
// evenly between them.  A tile never exceeds srcLen
func computePositions(srcLen, sliceLen int, overlapRatio float64) ([]int, int) {

	minOv := int(math.Ceil(float64(sliceLen) * overlapRatio))
	tileLen := sliceLen + minOv

	if tileLen >= srcLen {
		return []int{0}, srcLen
	}

	// stepping by sliceLen keeps the overlap at least minOv
	n := int(math.Ceil(float64(srcLen-tileLen)/float64(sliceLen))) + 1

	step := float64(srcLen-tileLen) / float64(n-1)
	positions := make([]int, n)

	for i := 0; i < n; i++ {
		p := int(math.Round(step * float64(i)))

		if p > srcLen-tileLen {
			p = srcLen - tileLen
		}

		positions[i] = p
	}

	return positions, tileLen
}

// Slice slices the given frame into a series of tiles.  Each Slice must be
// Freed after use
func (s *SAHI) Slice(src gocv.Mat) []Slice {

	srcH, srcW := src.Rows(), src.Cols()

	if srcW == 0 || srcH == 0 {
		return nil
	}

	xs, tileW := computePositions(srcW, s.sliceWidth, s.overlapWidth)
	ys, tileH := computePositions(srcH, s.sliceHeight, s.overlapHeight)

	slices := make([]Slice, 0, len(xs)*len(ys))

	for _, y := range ys {
		for _, x := range xs {
			rect := image.Rect(x, y, x+tileW, y+tileH)

			slices = append(slices, Slice{
				X:       x,
				Y:       y,
				X2:      x + tileW,
				Y2:      y + tileH,
				slice:   src.Region(rect),
				resizer: NewResizer(tileW, tileH, s.sliceWidth, s.sliceHeight),
				destMat: gocv.NewMat(),
			})
		}
	}

	return slices
}

// AddResult adds the detections of a slice given in detector input
// coordinates
func (s *SAHI) AddResult(slice Slice, dets []detect.Detection) {

	for _, d := range dets {
		box := slice.resizer.ScaleBox(d.Box)

		d.Box = detect.BBox{
			X1: box.X1 + float64(slice.X),
			Y1: box.Y1 + float64(slice.Y),
			X2: box.X2 + float64(slice.X),
			Y2: box.Y2 + float64(slice.Y),
		}

		s.results = append(s.results, d)
	}
}

// GetDetections returns the detections for the whole frame made up from the
// detections of all slices.  Duplicates of the same class found in
// overlapping tiles are merged.
//   - iouThreshold is the intersection-over-union above which two boxes are
//     duplicates
//   - smallBoxOverlapThresh is the fraction of the smaller box's area that
//     must be covered for it to be a duplicate, which occurs when an object
//     sits on the tile overlap boundary
func (s *SAHI) GetDetections(iouThreshold, smallBoxOverlapThresh float64) []detect.Detection {

	group := append([]detect.Detection(nil), s.results...)

	// Sort by descending confidence
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].Confidence > group[j].Confidence
	})

	merged := nmsCluster(group, iouThreshold, smallBoxOverlapThresh)

	for i := range merged {
		merged[i].ID = s.idGen.GetNext()
	}

	return merged
}

// FreeResults clears the stored detections, call after each frame
func (s *SAHI) FreeResults() {
	s.results = s.results[:0]
}

// intersectionArea returns the area of overlap between two boxes
func intersectionArea(a, b detect.BBox) float64 {

	x1 := math.Max(a.X1, b.X1)
	y1 := math.Max(a.Y1, b.Y1)
	x2 := math.Min(a.X2, b.X2)
	y2 := math.Min(a.Y2, b.Y2)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	return (x2 - x1) * (y2 - y1)
}

// nmsCluster picks one box per overlapping cluster of the same class,
// choosing the largest area (tie break on confidence) so the merged box
// covers every duplicate.  Detections must be sorted by descending
// confidence.  Clusters never span classes, a face overlapping a car must
// survive as a face
func nmsCluster(dets []detect.Detection, iouThreshold, smallBoxOverlapThresh float64) []detect.Detection {

	n := len(dets)
	suppressed := make([]bool, n)
	keep := make([]detect.Detection, 0, n)

	for i, base := range dets {
		if suppressed[i] {
			continue
		}

		cluster := []int{i}
		suppressed[i] = true

		for j := i + 1; j < n; j++ {
			if suppressed[j] {
				continue
			}

			other := dets[j]

			if other.Label() != base.Label() {
				continue
			}

			inCluster := base.Box.IoU(other.Box) > iouThreshold

			if !inCluster {
				areaOther := other.Box.Area()
				inCluster = areaOther > 0 &&
					intersectionArea(base.Box, other.Box)/areaOther > smallBoxOverlapThresh
			}

			if !inCluster {
				continue
			}

			suppressed[j] = true
			cluster = append(cluster, j)
		}

		best := dets[cluster[0]]
		bestArea := best.Box.Area()

		for _, idx := range cluster[1:] {
			c := dets[idx]
			a := c.Box.Area()

			if a > bestArea || (a == bestArea && c.Confidence > best.Confidence) {
				// the merged payload (plate crop) stays with the chosen box
				best = c
				bestArea = a
			}
		}

		keep = append(keep, best)

		// free the plate crops of the dropped duplicates
		for _, idx := range cluster {
			if dets[idx].Payload != best.Payload {
				detect.CloseDetections(dets[idx : idx+1])
			}
		}
	}

	return keep
}

// Mat returns the slices Mat after cropping and letterboxing to the detector
// input size
func (s *Slice) Mat() *gocv.Mat {
	s.resizer.LetterBoxResize(s.slice, &s.destMat, color.RGBA{R: 0, G: 0, B: 0, A: 255})
	return &s.destMat
}

// Resizer returns the slices letter box resize
func (s *Slice) Resizer() *Resizer {
	return s.resizer
}

// Free releases the slice from memory
func (s *Slice) Free() error {
	err := s.resizer.Close()
	err2 := s.slice.Close()
	err3 := s.destMat.Close()

	return errors.Join(err, err2, err3)
}
