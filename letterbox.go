package dashmask

import (
	"fmt"
	"image/color"
	"sync"

	"github.com/swdee/go-dashmask/detect"
	"github.com/swdee/go-dashmask/preprocess"
	"gocv.io/x/gocv"
)

// LetterboxDetector adapts a detector that expects a fixed input size, such
// as a YOLO model, to full resolution camera frames.  Frames are letterboxed
// to the model input size and the returned boxes mapped back to frame
// coordinates
type LetterboxDetector struct {
	model  detect.Detector
	width  int
	height int
	pad    color.RGBA

	mu      sync.Mutex
	resizer *preprocess.Resizer
	input   gocv.Mat
}

// NewLetterboxDetector wraps model whose input is width x height pixels
func NewLetterboxDetector(model detect.Detector, width, height int) *LetterboxDetector {
	return &LetterboxDetector{
		model:  model,
		width:  width,
		height: height,
		pad:    color.RGBA{R: 114, G: 114, B: 114, A: 255},
		input:  gocv.NewMat(),
	}
}

// Detect letterboxes img, runs the model and returns detections in img
// coordinates
func (d *LetterboxDetector) Detect(img gocv.Mat) ([]detect.Detection, error) {

	d.mu.Lock()
	defer d.mu.Unlock()

	if img.Empty() {
		return nil, nil
	}

	// frame size can change when the camera is reopened
	if d.resizer == nil || !d.resizer.Matches(img.Cols(), img.Rows()) {
		if d.resizer != nil {
			d.resizer.Close()
		}
		d.resizer = preprocess.NewResizer(img.Cols(), img.Rows(), d.width, d.height)
	}

	d.resizer.LetterBoxResize(img, &d.input, d.pad)

	dets, err := d.model.Detect(d.input)

	if err != nil {
		return nil, fmt.Errorf("error running letterboxed model: %w", err)
	}

	for i := range dets {
		dets[i].Box = d.resizer.ScaleBox(dets[i].Box)
	}

	return dets, nil
}

// Close frees the resize buffers
func (d *LetterboxDetector) Close() error {

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.resizer != nil {
		d.resizer.Close()
		d.resizer = nil
	}

	return d.input.Close()
}
