package tracker

import (
	"math"
	"testing"
	"time"

	"github.com/swdee/go-dashmask/detect"
	"github.com/swdee/go-dashmask/mask"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestTracker(persist time.Duration, alpha float64) (*MaskTracker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cfg := mask.DefaultConfig()
	cfg.Persist = persist
	cfg.SmoothAlpha = alpha
	return NewMaskTracker(cfg, WithClock(clock.Now)), clock
}

func obj(x1, y1, x2, y2 float64) Object {
	return NewObject(detect.BBox{X1: x1, Y1: y1, X2: x2, Y2: y2}, "face", 0.9)
}

func boxDist(a, b detect.BBox) float64 {
	return math.Abs(a.X1-b.X1) + math.Abs(a.Y1-b.Y1) +
		math.Abs(a.X2-b.X2) + math.Abs(a.Y2-b.Y2)
}

func TestMaskTrackerNewRegionUnsmoothed(t *testing.T) {

	mt, _ := newTestTracker(500*time.Millisecond, 0.6)

	out := mt.Update([]Object{obj(10, 10, 50, 50), obj(200, 200, 240, 260)})

	if len(out) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(out))
	}

	if out[0].Box != (detect.BBox{X1: 10, Y1: 10, X2: 50, Y2: 50}) {
		t.Errorf("new region should not be smoothed, got %+v", out[0].Box)
	}

	if out[0].ID == out[1].ID || out[0].ID == 0 {
		t.Errorf("expected distinct non zero track IDs, got %d and %d", out[0].ID, out[1].ID)
	}

	if out[0].Persisted || out[1].Persisted {
		t.Errorf("regions detected this update should not be marked persisted")
	}
}

func TestMaskTrackerSmoothing(t *testing.T) {

	mt, clock := newTestTracker(500*time.Millisecond, 0.6)

	first := mt.Update([]Object{obj(0, 0, 10, 10)})
	clock.Advance(100 * time.Millisecond)

	out := mt.Update([]Object{obj(10, 10, 20, 20)})

	if len(out) != 1 {
		t.Fatalf("expected 1 region, got %d", len(out))
	}

	want := detect.BBox{X1: 4, Y1: 4, X2: 14, Y2: 14}

	if boxDist(out[0].Box, want) > 1e-9 {
		t.Errorf("expected smoothed box %+v, got %+v", want, out[0].Box)
	}

	if out[0].ID != first[0].ID {
		t.Errorf("matched region should keep track ID %d, got %d", first[0].ID, out[0].ID)
	}
}

// TestMaskTrackerConvergence checks repeated identical detections converge
// monotonically toward the target
func TestMaskTrackerConvergence(t *testing.T) {

	for _, alpha := range []float64{0.1, 0.5, 0.6, 0.9} {

		mt, clock := newTestTracker(500*time.Millisecond, alpha)
		mt.Update([]Object{obj(0, 0, 40, 40)})

		target := detect.BBox{X1: 30, Y1: 20, X2: 70, Y2: 60}
		prevDist := math.Inf(1)

		for i := 0; i < 8; i++ {
			clock.Advance(100 * time.Millisecond)

			out := mt.Update([]Object{NewObject(target, "face", 0.9)})

			if len(out) != 1 {
				t.Fatalf("alpha %.1f tick %d: expected 1 region, got %d", alpha, i, len(out))
			}

			d := boxDist(out[0].Box, target)

			if d >= prevDist {
				t.Fatalf("alpha %.1f tick %d: distance %f did not decrease from %f",
					alpha, i, d, prevDist)
			}

			prevDist = d
		}
	}
}

func TestMaskTrackerPersistence(t *testing.T) {

	mt, clock := newTestTracker(500*time.Millisecond, 0.6)

	first := mt.Update([]Object{obj(10, 10, 50, 50)})

	// detection lost but still inside the persistence window
	clock.Advance(300 * time.Millisecond)
	out := mt.Update(nil)

	if len(out) != 1 {
		t.Fatalf("expected persisted region, got %d regions", len(out))
	}

	if !out[0].Persisted || out[0].ID != first[0].ID {
		t.Errorf("expected region %d marked persisted, got %+v", first[0].ID, out[0])
	}

	if out[0].Box != first[0].Box {
		t.Errorf("persisted region moved: %+v", out[0].Box)
	}

	// expiry is exclusive, at exactly now == expiry the region is gone
	clock.Advance(200 * time.Millisecond)

	if out := mt.Update(nil); len(out) != 0 {
		t.Errorf("expected region to expire, got %d regions", len(out))
	}

	if mt.Len() != 0 {
		t.Errorf("expected expired region to be dropped, %d tracked", mt.Len())
	}
}

func TestMaskTrackerRefreshExtendsExpiry(t *testing.T) {

	mt, clock := newTestTracker(500*time.Millisecond, 0.6)

	mt.Update([]Object{obj(10, 10, 50, 50)})

	clock.Advance(400 * time.Millisecond)
	mt.Update([]Object{obj(12, 12, 52, 52)})

	// original expiry has passed, refreshed expiry has not
	clock.Advance(400 * time.Millisecond)

	if out := mt.Update(nil); len(out) != 1 {
		t.Errorf("expected refreshed region to persist, got %d regions", len(out))
	}
}

func TestMaskTrackerZeroPersist(t *testing.T) {

	mt, clock := newTestTracker(0, 0.6)

	if out := mt.Update([]Object{obj(0, 0, 10, 10)}); len(out) != 1 {
		t.Fatalf("current detections must be emitted with zero persistence, got %d", len(out))
	}

	clock.Advance(time.Millisecond)

	if out := mt.Update(nil); len(out) != 0 {
		t.Errorf("expected no regions, got %d", len(out))
	}
}

func TestMaskTrackerNearestMatch(t *testing.T) {

	mt, clock := newTestTracker(time.Second, 0.5)

	start := mt.Update([]Object{obj(0, 0, 10, 10), obj(100, 100, 110, 110)})
	clock.Advance(100 * time.Millisecond)

	// only the far region is detected again, slightly moved
	out := mt.Update([]Object{obj(102, 102, 112, 112)})

	if len(out) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(out))
	}

	var moved, kept Object

	for _, o := range out {
		if o.ID == start[1].ID {
			moved = o
		} else {
			kept = o
		}
	}

	if moved.Persisted || moved.Box != (detect.BBox{X1: 101, Y1: 101, X2: 111, Y2: 111}) {
		t.Errorf("unexpected matched region %+v", moved)
	}

	if !kept.Persisted || kept.ID != start[0].ID {
		t.Errorf("unexpected persisted region %+v", kept)
	}
}

// TestMaskTrackerSharedMatch checks two inputs matching the same tracked box
// are both masked
func TestMaskTrackerSharedMatch(t *testing.T) {

	mt, clock := newTestTracker(time.Second, 0.5)

	mt.Update([]Object{obj(50, 50, 60, 60)})
	clock.Advance(100 * time.Millisecond)

	out := mt.Update([]Object{obj(40, 50, 50, 60), obj(60, 50, 70, 60)})

	if len(out) != 2 {
		t.Fatalf("expected both regions emitted, got %d", len(out))
	}

	if out[0].ID == out[1].ID {
		t.Errorf("expected distinct track IDs")
	}

	for _, o := range out {
		if o.Persisted {
			t.Errorf("region %d should not be persisted", o.ID)
		}
	}
}

func TestMaskTrackerReset(t *testing.T) {

	mt, _ := newTestTracker(time.Second, 0.5)

	mt.Update([]Object{obj(0, 0, 10, 10)})
	mt.Reset()

	if mt.Len() != 0 {
		t.Errorf("expected empty tracker after reset")
	}
}
