package preprocess

import (
	"reflect"
	"testing"

	"github.com/swdee/go-dashmask/detect"
	"gocv.io/x/gocv"
)

func TestComputePositions(t *testing.T) {

	tests := []struct {
		srcLen    int
		sliceLen  int
		overlap   float64
		positions []int
		tileLen   int
	}{
		{1280, 640, 0, []int{0, 640}, 640},
		{1920, 640, 0.2, []int{0, 576, 1152}, 768},
		{640, 640, 0.2, []int{0}, 640},
		{320, 640, 0, []int{0}, 320},
	}

	for _, tc := range tests {
		pos, tile := computePositions(tc.srcLen, tc.sliceLen, tc.overlap)

		if !reflect.DeepEqual(pos, tc.positions) || tile != tc.tileLen {
			t.Errorf("src %d slice %d overlap %.1f: expected %v/%d, got %v/%d",
				tc.srcLen, tc.sliceLen, tc.overlap, tc.positions, tc.tileLen, pos, tile)
		}
	}
}

func TestSAHIMergesTileResults(t *testing.T) {

	img := gocv.NewMatWithSize(640, 1280, gocv.MatTypeCV8UC3)
	defer img.Close()

	sahi := NewSAHI(640, 640, 0, 0)
	slices := sahi.Slice(img)

	if len(slices) != 2 {
		t.Fatalf("expected 2 slices, got %d", len(slices))
	}

	for _, s := range slices {
		m := s.Mat()

		if m.Cols() != 640 || m.Rows() != 640 {
			t.Errorf("slice Mat size wrong, got %dx%d", m.Cols(), m.Rows())
		}

		sahi.AddResult(s, []detect.Detection{{
			Class:      "face",
			Confidence: 0.9,
			Box:        detect.NewBBox(100, 100, 200, 200),
		}})
	}

	dets := sahi.GetDetections(0.45, 0.7)

	if len(dets) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(dets))
	}

	// sorted by confidence, both equal so tile order is kept
	if dets[1].Box != detect.NewBBox(740, 100, 840, 200) {
		t.Errorf("second tile detection not mapped to frame coordinates, got %+v", dets[1].Box)
	}

	if dets[0].ID == dets[1].ID {
		t.Errorf("merged detections should have unique ids")
	}

	for i := range slices {
		if err := slices[i].Free(); err != nil {
			t.Errorf("Error freeing slice: %v", err)
		}
	}

	sahi.FreeResults()

	if len(sahi.GetDetections(0.45, 0.7)) != 0 {
		t.Errorf("expected no detections after FreeResults")
	}
}

func TestNMSClusterIsClassAware(t *testing.T) {

	dets := []detect.Detection{
		{Class: "car", Confidence: 0.95, Box: detect.NewBBox(0, 0, 100, 100)},
		{Class: "face", Confidence: 0.9, Box: detect.NewBBox(10, 10, 40, 40)},
		// duplicate of the face from the neighbouring tile, slightly larger
		{Class: "face", Confidence: 0.8, Box: detect.NewBBox(8, 8, 42, 42)},
		// small box mostly inside the car
		{Class: "car", Confidence: 0.5, Box: detect.NewBBox(50, 50, 105, 105)},
	}

	keep := nmsCluster(dets, 0.45, 0.7)

	if len(keep) != 2 {
		t.Fatalf("expected 2 detections, got %d: %+v", len(keep), keep)
	}

	if keep[0].Class != "car" || keep[0].Box != detect.NewBBox(0, 0, 100, 100) {
		t.Errorf("unexpected car result %+v", keep[0])
	}

	// the larger duplicate is kept so the mask covers both
	if keep[1].Class != "face" || keep[1].Box != detect.NewBBox(8, 8, 42, 42) {
		t.Errorf("unexpected face result %+v", keep[1])
	}
}
