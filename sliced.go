package dashmask

import (
	"fmt"
	"sync"

	"github.com/swdee/go-dashmask/detect"
	"github.com/swdee/go-dashmask/preprocess"
	"gocv.io/x/gocv"
)

// SlicedDetector runs a fixed input size detector over overlapping tiles of
// the frame and merges the results, trading detection latency for recall
// of small distant faces and plates
type SlicedDetector struct {
	model    detect.Detector
	sahi     *preprocess.SAHI
	iou      float64
	smallBox float64

	mu sync.Mutex
}

// NewSlicedDetector wraps model whose input is width x height pixels, tiles
// overlap by the given ratio
func NewSlicedDetector(model detect.Detector, width, height int, overlap float64) *SlicedDetector {
	return &SlicedDetector{
		model:    model,
		sahi:     preprocess.NewSAHI(width, height, overlap, overlap),
		iou:      0.45,
		smallBox: 0.7,
	}
}

// Detect slices img, runs the model on every tile and returns the merged
// detections in img coordinates
func (d *SlicedDetector) Detect(img gocv.Mat) ([]detect.Detection, error) {

	d.mu.Lock()
	defer d.mu.Unlock()

	slices := d.sahi.Slice(img)

	defer func() {
		for i := range slices {
			slices[i].Free()
		}
		d.sahi.FreeResults()
	}()

	for _, s := range slices {
		dets, err := d.model.Detect(*s.Mat())

		if err != nil {
			return nil, fmt.Errorf("error detecting on slice at %d,%d: %w", s.X, s.Y, err)
		}

		d.sahi.AddResult(s, dets)
	}

	return d.sahi.GetDetections(d.iou, d.smallBox), nil
}
