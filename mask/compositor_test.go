package mask

import (
	"image"
	"testing"

	"github.com/swdee/go-dashmask/detect"
	"gocv.io/x/gocv"
)

// randomFrame returns a frame filled with random (non uniform) pixel values
func randomFrame(width, height int) gocv.Mat {
	img := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	gocv.RandU(&img, gocv.NewScalar(0, 0, 0, 0), gocv.NewScalar(255, 255, 255, 0))
	return img
}

// regionDiffers reports whether any pixel inside rect differs between a and b
func regionDiffers(a, b gocv.Mat, rect image.Rectangle) bool {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			va := a.GetVecbAt(y, x)
			vb := b.GetVecbAt(y, x)
			for c := range va {
				if va[c] != vb[c] {
					return true
				}
			}
		}
	}
	return false
}

// matsEqual reports whether every pixel of a and b is identical
func matsEqual(a, b gocv.Mat) bool {
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		return false
	}
	return !regionDiffers(a, b, image.Rect(0, 0, a.Cols(), a.Rows()))
}

func TestCompositorInflatesAndMasksRegion(t *testing.T) {

	frame := randomFrame(120, 120)
	defer frame.Close()

	orig := frame.Clone()
	defer orig.Close()

	cfg := Config{
		InflateRatio: 0.5,
		MinSize:      20,
		Strategy:     Pixelate,
		PixelBlock:   6,
	}

	comp := NewCompositor(cfg, nil)

	dets := []detect.Detection{{
		Class:      "person",
		ClassID:    0,
		Confidence: 0.95,
		Box:        detect.BBox{X1: 40, Y1: 40, X2: 60, Y2: 60},
	}}

	masked, meta := comp.Mask(frame, dets)
	defer masked.Close()

	if len(meta) != 1 {
		t.Fatalf("expected 1 metadata record, got %d", len(meta))
	}

	bb := meta[0].BBox

	if !(bb.X1 < 40 && bb.Y1 < 40 && bb.X2 > 60 && bb.Y2 > 60) {
		t.Errorf("metadata box not inflated: %+v", bb)
	}

	if bb != (BBoxJSON{30, 30, 70, 70}) {
		t.Errorf("expected box (30,30,70,70), got %+v", bb)
	}

	if meta[0].Class != "person" || meta[0].Confidence != 0.95 {
		t.Errorf("unexpected metadata %+v", meta[0])
	}

	rect := meta[0].Box().Rect()

	if !regionDiffers(orig, masked, rect) {
		t.Errorf("masked region is unchanged")
	}

	// pixels outside the region are untouched
	if regionDiffers(orig, masked, image.Rect(0, 0, 120, 30)) {
		t.Errorf("pixels outside the masked region were modified")
	}

	// source frame must never be mutated
	if !matsEqual(orig, frame) {
		t.Errorf("source frame was modified")
	}
}

func TestCompositorStrategies(t *testing.T) {

	for _, strategy := range []Strategy{Pixelate, Blur} {

		frame := randomFrame(200, 100)
		cfg := DefaultConfig()
		cfg.Strategy = strategy
		cfg.BlurKernel = 10

		comp := NewCompositor(cfg, detect.NewClassSet("face"))

		regions := []Region{{Class: "face", Confidence: 0.8,
			Box: detect.BBox{X1: 20, Y1: 10, X2: 90, Y2: 80}}}

		masked, meta := comp.Apply(frame, regions)

		if len(meta) != 1 {
			t.Errorf("%s: expected 1 record, got %d", strategy, len(meta))
		}

		if !regionDiffers(frame, masked, image.Rect(20, 10, 90, 80)) {
			t.Errorf("%s: region was not altered", strategy)
		}

		if masked.Rows() != frame.Rows() || masked.Cols() != frame.Cols() {
			t.Errorf("%s: masked frame changed dimensions", strategy)
		}

		masked.Close()
		frame.Close()
	}
}

func TestCompositorFiltersClasses(t *testing.T) {

	comp := NewCompositor(DefaultConfig(), nil)

	dets := []detect.Detection{
		{Class: "car", Confidence: 0.9, Box: detect.BBox{X1: 10, Y1: 10, X2: 50, Y2: 50}},
		{Class: "License_Plate", Confidence: 0.7, Box: detect.BBox{X1: 60, Y1: 60, X2: 80, Y2: 70}},
		{Class: "Face", Confidence: 0.6, Box: detect.BBox{X1: 5, Y1: 5, X2: 9, Y2: 9}},
	}

	regions := comp.Prepare(dets, 160, 120)

	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(regions))
	}

	if regions[0].Class != "license_plate" || regions[1].Class != "face" {
		t.Errorf("unexpected classes %q, %q", regions[0].Class, regions[1].Class)
	}

	// tiny face grown to the minimum size
	if regions[1].Box.Width() < 32 || regions[1].Box.Height() < 32 {
		t.Errorf("face region below min size: %+v", regions[1].Box)
	}
}

func TestCompositorDegenerateInputs(t *testing.T) {

	comp := NewCompositor(DefaultConfig(), nil)

	// empty frame
	empty := gocv.NewMat()
	defer empty.Close()

	masked, meta := comp.Mask(empty, []detect.Detection{{Class: "person",
		Box: detect.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}}})
	defer masked.Close()

	if len(meta) != 0 {
		t.Errorf("expected no metadata for empty frame, got %d", len(meta))
	}

	if regions := comp.Prepare([]detect.Detection{{Class: "person"}}, 0, 0); regions != nil {
		t.Errorf("expected no regions for zero sized frame")
	}

	// region outside the frame collapses to zero area and is skipped
	frame := randomFrame(64, 64)
	defer frame.Close()

	masked2, meta2 := comp.Apply(frame, []Region{
		{Class: "person", Box: detect.BBox{X1: 100, Y1: 100, X2: 140, Y2: 140}},
		{Class: "person", Box: detect.BBox{X1: 10, Y1: 10, X2: 10, Y2: 40}},
	})
	defer masked2.Close()

	if len(meta2) != 0 {
		t.Errorf("expected zero area regions to be skipped, got %d records", len(meta2))
	}

	if !matsEqual(frame, masked2) {
		t.Errorf("frame altered by degenerate regions")
	}
}

func TestCompositorMasksPartialEdgePixels(t *testing.T) {

	// black frame with a single white column at x=20
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 40, 40, gocv.MatTypeCV8UC3)
	defer frame.Close()

	col := frame.Region(image.Rect(20, 0, 21, 40))
	col.SetTo(gocv.NewScalar(255, 255, 255, 0))
	col.Close()

	cfg := Config{Strategy: Blur, BlurKernel: 5}
	comp := NewCompositor(cfg, nil)

	// the box ends half way across the white column
	masked, meta := comp.Apply(frame, []Region{{Class: "face", Confidence: 0.9,
		Box: detect.BBox{X1: 10, Y1: 5, X2: 20.5, Y2: 30}}})
	defer masked.Close()

	if len(meta) != 1 {
		t.Fatalf("expected 1 metadata record, got %d", len(meta))
	}

	if v := masked.GetVecbAt(15, 20); v[0] == 255 {
		t.Errorf("partially covered column was left unmasked")
	}

	// outside the box the column is untouched
	if v := masked.GetVecbAt(35, 20); v[0] != 255 {
		t.Errorf("pixel below the box was modified: %v", v)
	}
}
