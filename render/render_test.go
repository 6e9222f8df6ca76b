package render

import (
	"image"
	"testing"

	"github.com/swdee/go-dashmask/detect"
	"github.com/swdee/go-dashmask/mask"
	"github.com/swdee/go-dashmask/tracker"
	"gocv.io/x/gocv"
)

// blankFrame returns a black BGR frame
func blankFrame(width, height int) gocv.Mat {
	return gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
}

// isBlack reports whether the pixel at x,y is black
func isBlack(img gocv.Mat, x, y int) bool {
	v := img.GetVecbAt(y, x)
	return v[0] == 0 && v[1] == 0 && v[2] == 0
}

func TestRegionColor(t *testing.T) {

	tests := []struct {
		name     string
		meta     mask.Metadata
		expected [3]uint8
	}{
		{"persisted", mask.Metadata{Class: "face", TrackID: 3, Persisted: true}, [3]uint8{Gray.R, Gray.G, Gray.B}},
		{"tracked", mask.Metadata{Class: "face", TrackID: 21}, [3]uint8{trackColors[1].R, trackColors[1].G, trackColors[1].B}},
		{"untracked class", mask.Metadata{Class: "license_plate"}, [3]uint8{255, 178, 29}},
		{"unknown class", mask.Metadata{Class: "car"}, [3]uint8{White.R, White.G, White.B}},
	}

	for _, tc := range tests {
		got := regionColor(tc.meta)

		if [3]uint8{got.R, got.G, got.B} != tc.expected {
			t.Errorf("%s: expected color %v, got %v", tc.name, tc.expected, got)
		}
	}
}

func TestMaskOutlines(t *testing.T) {

	img := blankFrame(200, 120)
	defer img.Close()

	meta := []mask.Metadata{
		{Class: "face", Confidence: 0.9, TrackID: 1, BBox: mask.BBoxJSON{X1: 40, Y1: 50, X2: 80, Y2: 90}},
		// at the top edge so the label is moved inside the box
		{Class: "person", Confidence: 0.7, BBox: mask.BBoxJSON{X1: 120, Y1: 0, X2: 180, Y2: 100}},
	}

	MaskOutlines(&img, meta, DefaultFont(), 2)

	if isBlack(img, 40, 70) {
		t.Errorf("expected outline on left edge of first region")
	}

	if isBlack(img, 180, 60) {
		t.Errorf("expected outline on right edge of second region")
	}

	if !isBlack(img, 60, 70) {
		t.Errorf("region interior should not be painted")
	}

	if regionText(meta[0]) != "face #1 0.90" {
		t.Errorf("unexpected label %q", regionText(meta[0]))
	}
}

func TestFaceLandmarks(t *testing.T) {

	img := blankFrame(100, 100)
	defer img.Close()

	dets := []detect.Detection{
		{Class: "face", Payload: &detect.FacePayload{
			Landmarks: []detect.KeyPoint{{X: 30, Y: 30}, {X: 60, Y: 30}, {X: 45, Y: 50}},
		}},
		// plain object without landmarks is ignored
		{Class: "person"},
	}

	FaceLandmarks(&img, dets, 2)

	for _, kp := range []detect.KeyPoint{{X: 30, Y: 30}, {X: 60, Y: 30}, {X: 45, Y: 50}} {
		if isBlack(img, kp.X, kp.Y) {
			t.Errorf("expected landmark drawn at %v", kp)
		}
	}
}

func TestTrail(t *testing.T) {

	img := blankFrame(100, 100)
	defer img.Close()

	trail := tracker.NewTrail(10)

	for i := 0; i < 5; i++ {
		x := float64(10 + i*10)
		obj := tracker.NewObject(detect.NewBBox(x-5, 45, x+5, 55), "face", 0.9)
		obj.ID = 7
		trail.Add(obj)
	}

	meta := []mask.Metadata{{Class: "face", TrackID: 7}}

	Trail(&img, meta, trail, DefaultTrailStyle())

	if isBlack(img, 25, 50) {
		t.Errorf("expected trail line between points")
	}

	if isBlack(img, 50, 50) {
		t.Errorf("expected circle at latest point")
	}

	// nil trail is a no-op
	Trail(&img, meta, nil, DefaultTrailStyle())
}

func TestCaptioner(t *testing.T) {

	c, err := NewCaptioner(nil, 16)

	if err != nil {
		t.Fatalf("Error creating captioner: %v", err)
	}

	defer c.Close()

	c.Background = Yellow

	size := c.Size("REC 12:00:01")

	if size.X <= 2*c.Pad || size.Y <= 2*c.Pad {
		t.Fatalf("unexpected banner size %v", size)
	}

	img := blankFrame(320, 240)
	defer img.Close()

	if err := c.Draw(&img, "REC 12:00:01", image.Pt(10, 10)); err != nil {
		t.Fatalf("Error drawing caption: %v", err)
	}

	// banner corner is in the padding so holds the background color
	v := img.GetVecbAt(11, 11)

	if v[0] != Yellow.B || v[1] != Yellow.G || v[2] != Yellow.R {
		t.Errorf("expected banner background at corner, got %v", v)
	}

	// banner partly off the image is cropped
	if err := c.Draw(&img, "REC", image.Pt(310, 235)); err != nil {
		t.Errorf("Error drawing cropped caption: %v", err)
	}

	// banner fully off the image is skipped
	if err := c.Draw(&img, "REC", image.Pt(400, 400)); err != nil {
		t.Errorf("Error drawing offscreen caption: %v", err)
	}

	if _, err := NewCaptioner([]byte("not a font"), 16); err == nil {
		t.Errorf("expected error parsing invalid font data")
	}
}
