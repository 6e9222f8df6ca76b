package preprocess

import (
	"image"
	"image/color"

	"github.com/swdee/go-dashmask/detect"
	"gocv.io/x/gocv"
)

// Resizer letterboxes camera frames to a detector input size and maps
// detector boxes back to frame coordinates
type Resizer struct {
	// srcWidth is the width of the camera frame
	srcWidth int
	// srcHeight is the height of the camera frame
	srcHeight int
	// destWidth is the width of the detector input
	destWidth int
	// destHeight is the height of the detector input
	destHeight int
	// tempMat is a Mat used during the resize process
	tempMat gocv.Mat
	// letterbox parameters used in scaling
	xPad  int
	yPad  int
	scale float32
	// resize dimensions
	resizeW int
	resizeH int
}

// NewResizer returns a resizer scaling srcWidth x srcHeight frames into a
// destWidth x destHeight detector input
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int) *Resizer {
	r := &Resizer{
		srcWidth:   srcWidth,
		srcHeight:  srcHeight,
		destWidth:  destWidth,
		destHeight: destHeight,
		tempMat:    gocv.NewMat(),
	}

	// precalculate scaling dimensions
	r.preCalc()

	return r
}

// Close frees memory allocated during resize process
func (r *Resizer) Close() error {
	return r.tempMat.Close()
}

// preCalc the scaling factors for source and destination Mats
func (r *Resizer) preCalc() {

	r.resizeW = r.destWidth
	r.resizeH = r.destHeight

	scaleW := float32(r.destWidth) / float32(r.srcWidth)
	scaleH := float32(r.destHeight) / float32(r.srcHeight)
	r.scale = scaleH

	if scaleW < scaleH {
		r.scale = scaleW
		r.resizeH = int(float32(r.srcHeight) * r.scale)
	} else {
		r.resizeW = int(float32(r.srcWidth) * r.scale)
	}

	r.yPad = (r.destHeight - r.resizeH) / 2 // padding height / 2
	r.xPad = (r.destWidth - r.resizeW) / 2  // padding width / 2
}

// LetterBoxResize resizes the frame to the detector input size whilst
// maintaining image aspect.  Color is that used for letter box padding.
func (r *Resizer) LetterBoxResize(src gocv.Mat, dest *gocv.Mat, color color.RGBA) {

	gocv.Resize(src, &r.tempMat, image.Pt(r.resizeW, r.resizeH),
		0, 0, gocv.InterpolationArea)

	gocv.CopyMakeBorder(r.tempMat, dest, r.yPad, r.destHeight-r.resizeH-r.yPad,
		r.xPad, r.destWidth-r.resizeW-r.xPad, gocv.BorderConstant, color)
}

// ScaleBox maps a box in detector input coordinates back to frame
// coordinates, removing the letterbox padding and clamping to the frame
func (r *Resizer) ScaleBox(b detect.BBox) detect.BBox {

	s := float64(r.scale)

	if s <= 0 {
		return detect.BBox{}
	}

	out := detect.NewBBox(
		(b.X1-float64(r.xPad))/s,
		(b.Y1-float64(r.yPad))/s,
		(b.X2-float64(r.xPad))/s,
		(b.Y2-float64(r.yPad))/s,
	)

	return out.Clamp(r.srcWidth, r.srcHeight)
}

// Matches reports whether the resizer was built for frames of the given size
func (r *Resizer) Matches(width, height int) bool {
	return r.srcWidth == width && r.srcHeight == height
}

// ScaleFactor returns the scale factor used in letterbox resize
func (r *Resizer) ScaleFactor() float32 {
	return r.scale
}

// XPad returns the x padding used in letterbox resize
func (r *Resizer) XPad() int {
	return r.xPad
}

// YPad returns the y padding used in letterbox resize
func (r *Resizer) YPad() int {
	return r.yPad
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}

// DestWidth returns the width of the detector input
func (r *Resizer) DestWidth() int {
	return r.destWidth
}

// DestHeight returns the height of the detector input
func (r *Resizer) DestHeight() int {
	return r.destHeight
}
