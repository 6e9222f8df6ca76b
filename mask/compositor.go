package mask

import (
	"github.com/swdee/go-dashmask/detect"
	"gocv.io/x/gocv"
)

// Compositor turns boxes to mask into an irreversibly altered copy of a frame
// plus an audit trail.  It holds no mutable state and is safe for concurrent
// use
type Compositor struct {
	cfg     Config
	classes detect.ClassSet
}

// NewCompositor returns a Compositor masking the given classes.  An empty
// class set uses detect.DefaultRedactClasses
func NewCompositor(cfg Config, classes detect.ClassSet) *Compositor {

	if len(classes) == 0 {
		classes = detect.DefaultRedactClasses()
	}

	return &Compositor{
		cfg:     cfg.Normalize(),
		classes: classes,
	}
}

// Config returns the normalized configuration in use
func (c *Compositor) Config() Config {
	return c.cfg
}

// Classes returns the class names that are masked
func (c *Compositor) Classes() detect.ClassSet {
	return c.classes
}

// Prepare filters the detections to the redact classes and converts each
// one into a region inflated, grown to the minimum size and clamped to a
// frame of the given dimensions.  Regions with zero area are dropped
func (c *Compositor) Prepare(dets []detect.Detection, width, height int) []Region {

	if width <= 0 || height <= 0 {
		return nil
	}

	regions := make([]Region, 0, len(dets))

	for _, det := range dets {

		if !c.classes.Has(det.Class) {
			continue
		}

		box := Inflate(det.Box.Normalize(), c.cfg.InflateRatio, width, height)
		box = EnsureMinSize(box, c.cfg.MinSize, width, height)

		if box.Empty() {
			continue
		}

		regions = append(regions, Region{
			Class:      det.Label(),
			Confidence: det.Confidence,
			Box:        box,
		})
	}

	return regions
}

// Apply masks every region on a private copy of img and returns the copy
// with one metadata record per masked region in input order.  The source
// img is never modified.  Regions that are empty once clamped to the frame
// are skipped without a record.  The caller must Close the returned Mat
func (c *Compositor) Apply(img gocv.Mat, regions []Region) (gocv.Mat, []Metadata) {

	masked := img.Clone()

	if masked.Empty() {
		return masked, nil
	}

	width := masked.Cols()
	height := masked.Rows()
	bounds := frameBounds(&masked)

	var meta []Metadata

	for _, r := range regions {

		r.Box = r.Box.Normalize().Clamp(width, height)
		// partially covered edge pixels are masked too
		rect := r.Box.Cover().Intersect(bounds)

		if r.Box.Empty() || rect.Empty() {
			continue
		}

		switch c.cfg.Strategy {
		case Blur:
			BlurRegion(&masked, rect, c.cfg.BlurKernel)
		default:
			PixelateRegion(&masked, rect, c.cfg.PixelBlock)
		}

		meta = append(meta, newMetadata(r))
	}

	return masked, meta
}

// Mask is a convenience for Prepare followed by Apply without temporal
// tracking
func (c *Compositor) Mask(img gocv.Mat, dets []detect.Detection) (gocv.Mat, []Metadata) {
	return c.Apply(img, c.Prepare(dets, img.Cols(), img.Rows()))
}
