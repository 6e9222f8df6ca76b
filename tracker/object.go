package tracker

import "github.com/swdee/go-dashmask/detect"

// Object represents a region to mask that is fed to and emitted by the
// MaskTracker
type Object struct {
	// Box is the region in frame coordinates
	Box detect.BBox
	// Label is the class label of the object detected
	Label string
	// Prob is the confidence/probability of the object detected
	Prob float32
	// ID is the track ID assigned by the MaskTracker.  It is ignored on input
	ID int64
	// Persisted is set on output when the object had no matching input this
	// update and is only emitted because it is inside its persistence window
	Persisted bool
}

// NewObject is a constructor function for the Object struct
func NewObject(box detect.BBox, label string, prob float32) Object {
	return Object{
		Box:   box,
		Label: label,
		Prob:  prob,
	}
}
