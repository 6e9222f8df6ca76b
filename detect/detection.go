package detect

import (
	"errors"
	"strings"

	"github.com/x448/float16"
	"gocv.io/x/gocv"
)

// ErrUnavailable is returned by a Detector when no inference backend is
// loaded
var ErrUnavailable = errors.New("detector backend unavailable")

// Kind identifies the modality specific payload attached to a Detection
type Kind int

const (
	// KindObject is a plain object detection without a payload
	KindObject Kind = iota
	// KindPlate is a license plate detection carrying the plate crop
	KindPlate
	// KindFace is a face detection carrying landmarks and an embedding
	KindFace
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindPlate:
		return "plate"
	case KindFace:
		return "face"
	default:
		return "object"
	}
}

// Payload is the sealed set of modality specific data that can be attached
// to a Detection.  Use a type switch over *PlatePayload and *FacePayload to
// handle each kind.
type Payload interface {
	Kind() Kind
	payload()
}

// KeyPoint is a single landmark location on the frame
type KeyPoint struct {
	X, Y int
}

// PlatePayload holds the cropped license plate image handed to OCR
type PlatePayload struct {
	// Crop is the plate region of the source frame.  The payload owns the
	// Mat and Close must be called once it is no longer needed
	Crop *gocv.Mat
}

// Kind returns KindPlate
func (p *PlatePayload) Kind() Kind { return KindPlate }

func (p *PlatePayload) payload() {}

// Close frees the plate crop
func (p *PlatePayload) Close() error {
	if p.Crop == nil {
		return nil
	}

	err := p.Crop.Close()
	p.Crop = nil

	return err
}

// FacePayload holds the face landmarks and identity embedding used by the
// face matching collaborator
type FacePayload struct {
	// Landmarks are the face keypoints, typically 5 (eyes, nose, mouth corners)
	Landmarks []KeyPoint
	// Embedding is the face identity feature vector
	Embedding []float32
}

// Kind returns KindFace
func (f *FacePayload) Kind() Kind { return KindFace }

func (f *FacePayload) payload() {}

// CompactEmbedding returns the embedding encoded as IEEE 754 half precision
// bits, halving its size for upload
func (f *FacePayload) CompactEmbedding() []uint16 {

	out := make([]uint16, len(f.Embedding))

	for i, v := range f.Embedding {
		out[i] = float16.Fromfloat32(v).Bits()
	}

	return out
}

// ExpandEmbedding decodes a half precision embedding produced by
// CompactEmbedding
func ExpandEmbedding(bits []uint16) []float32 {

	out := make([]float32, len(bits))

	for i, b := range bits {
		out[i] = float16.Frombits(b).Float32()
	}

	return out
}

// Detection is a single result produced by the detector collaborator.  It is
// treated as an immutable value by the masking subsystem
type Detection struct {
	// ID is a unique ID assigned to the detection
	ID int64
	// Class is the label of the detected object
	Class string
	// ClassID is the index of the label in the model label list
	ClassID int
	// Confidence is the detection score in the range [0,1]
	Confidence float32
	// Box is the bounding box in frame pixel coordinates
	Box BBox
	// Payload is the optional modality specific data, nil for plain objects
	Payload Payload
}

// Kind returns the kind of the detection derived from its payload
func (d Detection) Kind() Kind {
	if d.Payload == nil {
		return KindObject
	}
	return d.Payload.Kind()
}

// Label returns the normalized lower case class name
func (d Detection) Label() string {
	return NormalizeClass(d.Class)
}

// CloseDetections frees the payload resources held by dets
func CloseDetections(dets []Detection) {
	for _, d := range dets {
		if p, ok := d.Payload.(*PlatePayload); ok {
			p.Close()
		}
	}
}

// Detector is the inference collaborator.  Detect must not modify img and
// may return an empty result
type Detector interface {
	Detect(img gocv.Mat) ([]Detection, error)
}

// DetectorFunc adapts a function to the Detector interface
type DetectorFunc func(img gocv.Mat) ([]Detection, error)

// Detect calls f(img)
func (f DetectorFunc) Detect(img gocv.Mat) ([]Detection, error) {
	return f(img)
}

// NopDetector is used when no inference backend is loaded, it always
// reports no detections so masks already being tracked continue to decay
type NopDetector struct{}

// Detect returns no detections
func (NopDetector) Detect(gocv.Mat) ([]Detection, error) {
	return nil, nil
}

// NormalizeClass returns the canonical form of a class name used when
// comparing against class sets
func NormalizeClass(class string) string {
	return strings.ToLower(strings.TrimSpace(class))
}
