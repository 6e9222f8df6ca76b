package tracker

import (
	"math"
	"time"

	"github.com/swdee/go-dashmask/detect"
	"github.com/swdee/go-dashmask/mask"
)

// trackedBox is a masked region with the time at which it stops being
// emitted unless refreshed by a matching detection
type trackedBox struct {
	obj    Object
	expiry time.Time
}

// MaskTracker turns noisy independent per frame regions into temporally
// stable masks.  Regions are matched to the nearest previously tracked box,
// smoothed to suppress jitter, and kept for a persistence window after their
// last detection so a single missed detection does not unmask the region.
//
// A MaskTracker is not safe for concurrent Update calls, use one instance per
// camera stream and serialize updates.
type MaskTracker struct {
	// alpha is the exponential smoothing factor
	alpha float64
	// persist is the window a region stays emitted after its last refresh
	persist time.Duration
	// tracked are the currently tracked boxes
	tracked []trackedBox
	// idGen assigns track IDs
	idGen *detect.IDGenerator
	// now is the clock used by Update
	now func() time.Time
}

// Option configures a MaskTracker
type Option func(*MaskTracker)

// WithClock sets the clock used by Update, defaults to time.Now
func WithClock(now func() time.Time) Option {
	return func(mt *MaskTracker) {
		mt.now = now
	}
}

// WithIDGenerator shares a track ID generator between trackers
func WithIDGenerator(gen *detect.IDGenerator) Option {
	return func(mt *MaskTracker) {
		mt.idGen = gen
	}
}

// NewMaskTracker returns a tracker using the smoothing factor and persistence
// window of cfg
func NewMaskTracker(cfg mask.Config, opts ...Option) *MaskTracker {

	cfg = cfg.Normalize()

	mt := &MaskTracker{
		alpha:   cfg.SmoothAlpha,
		persist: cfg.Persist,
		idGen:   detect.NewIDGenerator(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(mt)
	}

	return mt
}

// Reset clears all tracked boxes
func (mt *MaskTracker) Reset() {
	mt.tracked = nil
}

// Len returns the number of boxes currently tracked, including ones that
// have expired but not yet been dropped by an update
func (mt *MaskTracker) Len() int {
	return len(mt.tracked)
}

// Update runs one tracking step at the current clock time
func (mt *MaskTracker) Update(objs []Object) []Object {
	return mt.UpdateAt(mt.now(), objs)
}

// UpdateAt runs one tracking step at time now with the regions to mask for
// the current frame and returns every region that must be masked.
//
// Steps:
//  1. tracked boxes with expiry at or before now are dropped
//  2. each input is matched to the surviving box with the nearest center
//     (greedy, first found wins ties)
//  3. a matched input is blended alpha*previous + (1-alpha)*current, an
//     unmatched input is used as is
//  4. each result is stored with expiry now+persist, replacing the box it
//     matched
//  5. all boxes refreshed this step plus all unexpired boxes are emitted
func (mt *MaskTracker) UpdateAt(now time.Time, objs []Object) []Object {

	// Step 1: expire
	alive := make([]trackedBox, 0, len(mt.tracked)+len(objs))

	for _, tb := range mt.tracked {
		if tb.expiry.After(now) {
			alive = append(alive, tb)
		}
	}

	// keep the pre update boxes so every input matches against the previous
	// state rather than a box refreshed earlier in this step
	prev := make([]detect.BBox, len(alive))

	for i, tb := range alive {
		prev[i] = tb.obj.Box
	}

	refreshed := make([]bool, len(alive), cap(alive))
	expiry := now.Add(mt.persist)

	for _, obj := range objs {

		// Step 2: match
		best := -1
		bestDist := math.Inf(1)

		for i, box := range prev {
			if d := box.CenterDist2(obj.Box); d < bestDist {
				bestDist = d
				best = i
			}
		}

		obj.Persisted = false

		if best < 0 {
			// new region, no history to blend with
			obj.ID = mt.idGen.GetNext()
			alive = append(alive, trackedBox{obj: obj, expiry: expiry})
			refreshed = append(refreshed, true)
			continue
		}

		// Step 3: smooth
		obj.Box = prev[best].Blend(obj.Box, mt.alpha)

		// Step 4: persist
		if !refreshed[best] {
			obj.ID = alive[best].obj.ID
			alive[best] = trackedBox{obj: obj, expiry: expiry}
			refreshed[best] = true
			continue
		}

		// a second input matched the same box, keep it as its own region so
		// it is still masked
		obj.ID = mt.idGen.GetNext()
		alive = append(alive, trackedBox{obj: obj, expiry: expiry})
		refreshed = append(refreshed, true)
	}

	mt.tracked = alive

	// Step 5: emit.  Every surviving box is unexpired and boxes refreshed
	// this step are emitted even with a zero persistence window
	out := make([]Object, 0, len(alive))

	for i, tb := range alive {
		obj := tb.obj
		obj.Persisted = !refreshed[i]
		out = append(out, obj)
	}

	return out
}
