package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Captioner draws anti aliased TrueType text banners, used for the status
// line on the debug display where the Hershey fonts are hard to read at the
// 800x480 panel size
type Captioner struct {
	face font.Face
	// Color of the text
	Color color.RGBA
	// Background color of the banner
	Background color.RGBA
	// Pad is the padding in pixels around the text
	Pad int
}

// NewCaptioner returns a Captioner using the TTF font data at the given point
// size.  Nil fontData uses the Go Regular font
func NewCaptioner(fontData []byte, size float64) (*Captioner, error) {

	if fontData == nil {
		fontData = goregular.TTF
	}

	f, err := opentype.Parse(fontData)

	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create type face: %w", err)
	}

	return &Captioner{
		face:       face,
		Color:      White,
		Background: Black,
		Pad:        4,
	}, nil
}

// Close frees the font face
func (c *Captioner) Close() error {
	return c.face.Close()
}

// Size returns the size of the banner needed for text
func (c *Captioner) Size(text string) image.Point {

	metrics := c.face.Metrics()
	width := font.MeasureString(c.face, text).Ceil()
	height := (metrics.Ascent + metrics.Descent).Ceil()

	return image.Pt(width+2*c.Pad, height+2*c.Pad)
}

// Draw renders text on a banner with its top left corner at pt.  The banner
// is cropped to the image bounds
func (c *Captioner) Draw(img *gocv.Mat, text string, pt image.Point) error {

	size := c.Size(text)

	rgba := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(c.Background), image.Point{}, draw.Src)

	dr := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(c.Color),
		Face: c.face,
		Dot: fixed.Point26_6{
			X: fixed.I(c.Pad),
			Y: fixed.I(c.Pad) + c.face.Metrics().Ascent,
		},
	}
	dr.DrawString(text)

	banner, err := gocv.NewMatFromBytes(size.Y, size.X, gocv.MatTypeCV8UC4, rgba.Pix)

	if err != nil {
		return fmt.Errorf("error creating Mat from RGBA: %w", err)
	}

	defer banner.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()

	gocv.CvtColor(banner, &bgr, gocv.ColorRGBAToBGR)

	// crop banner to the part that lands on the image
	dst := image.Rectangle{Min: pt, Max: pt.Add(size)}.
		Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))

	if dst.Empty() {
		return nil
	}

	src := bgr.Region(dst.Sub(pt))
	defer src.Close()

	roi := img.Region(dst)
	defer roi.Close()

	src.CopyTo(&roi)

	return nil
}
