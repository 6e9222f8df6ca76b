package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-dashmask/mask"
	"gocv.io/x/gocv"
)

// boxLabel defines where a region label should be rendered on the image
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// regionColor picks the outline color of a masked region
func regionColor(m mask.Metadata) color.RGBA {

	if m.Persisted {
		return Gray
	}

	if m.TrackID > 0 {
		return TrackColor(m.TrackID)
	}

	return ClassColor(m.Class)
}

// regionText is the label drawn above a masked region
func regionText(m mask.Metadata) string {

	if m.TrackID > 0 {
		return fmt.Sprintf("%s #%d %.2f", m.Class, m.TrackID, m.Confidence)
	}

	return fmt.Sprintf("%s %.2f", m.Class, m.Confidence)
}

// MaskOutlines renders an outline and label around every masked region on
// the debug display.  Regions kept masked by persistence are drawn in Gray
func MaskOutlines(img *gocv.Mat, meta []mask.Metadata, font Font, lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(meta))

	for _, m := range meta {

		useClr := regionColor(m)

		rect := m.Box().Rect()
		gocv.Rectangle(img, rect, useClr, lineThickness)

		text := regionText(m)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		// Calculate the alignment of text label
		var centerX int

		switch font.Alignment {
		case Center:
			centerX = (rect.Min.X + rect.Max.X) / 2

		case Right:
			centerX = rect.Max.X - (textSize.X / 2) - font.RightPad + (lineThickness / 2)

		case Left:
			fallthrough
		default:
			centerX = rect.Min.X + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
		}

		top := rect.Min.Y

		// regions at the top edge of the frame get their label inside the box
		if top-textSize.Y-font.TopPad-font.BottomPad < 0 {
			top = rect.Min.Y + textSize.Y + font.TopPad + font.BottomPad
		}

		boxLabels = append(boxLabels, boxLabel{
			rect: image.Rect(centerX-textSize.X/2-font.LeftPad,
				top-textSize.Y-font.TopPad-font.BottomPad,
				centerX+textSize.X/2+font.RightPad, top),
			clr:     useClr,
			text:    text,
			textPos: image.Pt(centerX-textSize.X/2, top-font.BottomPad),
		})
	}

	// draw labels last so they are the top most layer and are not crossed by
	// the outline of a neighbouring region
	for _, box := range boxLabels {
		gocv.Rectangle(img, box.rect, box.clr, -1)

		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}
