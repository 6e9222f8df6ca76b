package mask

import "github.com/swdee/go-dashmask/detect"

// Region is a box destined for masking together with the detection
// attributes recorded in the audit trail
type Region struct {
	// Class is the normalized class name
	Class string
	// Confidence is the detection score
	Confidence float32
	// Box is the inflated and clamped region in frame coordinates
	Box detect.BBox
	// TrackID is the ID of the tracked region, zero when tracking is disabled
	TrackID int64
	// Persisted is true when the region had no supporting detection this
	// tick and is kept masked by the persistence window
	Persisted bool
}

// BBoxJSON is the JSON form of a box in metadata records
type BBoxJSON struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Metadata describes a region that was masked on a frame, handed to the
// logging and alerting collaborators
type Metadata struct {
	Class      string   `json:"class"`
	Confidence float32  `json:"confidence"`
	BBox       BBoxJSON `json:"bbox"`
	TrackID    int64    `json:"track_id,omitempty"`
	Persisted  bool     `json:"persisted,omitempty"`
}

// Box returns the metadata box as a detect.BBox
func (m Metadata) Box() detect.BBox {
	return detect.BBox{X1: m.BBox.X1, Y1: m.BBox.Y1, X2: m.BBox.X2, Y2: m.BBox.Y2}
}

// newMetadata creates the audit record for a masked region
func newMetadata(r Region) Metadata {
	return Metadata{
		Class:      r.Class,
		Confidence: r.Confidence,
		BBox: BBoxJSON{
			X1: r.Box.X1,
			Y1: r.Box.Y1,
			X2: r.Box.X2,
			Y2: r.Box.Y2,
		},
		TrackID:   r.TrackID,
		Persisted: r.Persisted,
	}
}
