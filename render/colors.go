package render

import (
	"image/color"

	"github.com/swdee/go-dashmask/detect"
)

var (
	// trackColors is a list of colors used to tell tracked regions apart
	trackColors = []color.RGBA{
		{R: 255, G: 56, B: 56, A: 255},   // #FF3838
		{R: 255, G: 112, B: 31, A: 255},  // #FF701F
		{R: 255, G: 178, B: 29, A: 255},  // #FFB21D
		{R: 207, G: 210, B: 49, A: 255},  // #CFD231
		{R: 72, G: 249, B: 10, A: 255},   // #48F90A
		{R: 26, G: 147, B: 52, A: 255},   // #1A9334
		{R: 0, G: 212, B: 187, A: 255},   // #00D4BB
		{R: 0, G: 194, B: 255, A: 255},   // #00C2FF
		{R: 52, G: 69, B: 147, A: 255},   // #344593
		{R: 100, G: 115, B: 255, A: 255}, // #6473FF
		{R: 0, G: 24, B: 236, A: 255},    // #0018EC
		{R: 132, G: 56, B: 255, A: 255},  // #8438FF
		{R: 82, G: 0, B: 133, A: 255},    // #520085
		{R: 255, G: 149, B: 200, A: 255}, // #FF95C8
		{R: 255, G: 55, B: 199, A: 255},  // #FF37C7
		{R: 255, G: 157, B: 151, A: 255}, // #FF9D97
		{R: 44, G: 153, B: 168, A: 255},  // #2C99A8
		{R: 61, G: 219, B: 134, A: 255},  // #3DDB86
		{R: 203, G: 56, B: 255, A: 255},  // #CB38FF
		{R: 146, G: 204, B: 23, A: 255},  // #92CC17
	}

	// classColors are the outline colors of untracked regions by class
	classColors = map[string]color.RGBA{
		detect.ClassFace:         {R: 51, G: 153, B: 255, A: 255},
		detect.ClassLicensePlate: {R: 255, G: 178, B: 29, A: 255},
		detect.ClassPerson:       {R: 255, G: 56, B: 56, A: 255},
		detect.ClassAnimal:       {R: 72, G: 249, B: 10, A: 255},
	}

	// faceLandmarkColors correspond to the five face landmark keypoints
	faceLandmarkColors = []color.RGBA{
		{R: 51, G: 153, B: 255, A: 255}, // left eye
		{R: 51, G: 153, B: 255, A: 255}, // right eye
		{R: 255, G: 0, B: 0, A: 255},    // nose
		{R: 0, G: 255, B: 0, A: 255},    // left mouth corner
		{R: 0, G: 255, B: 0, A: 255},    // right mouth corner
	}

	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 50, A: 255}
	Pink   = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	// Gray is used for regions kept masked by the persistence window
	Gray = color.RGBA{R: 160, G: 160, B: 160, A: 255}
)

// TrackColor returns the color for a track id
func TrackColor(id int64) color.RGBA {
	if id < 0 {
		id = -id
	}
	return trackColors[id%int64(len(trackColors))]
}

// ClassColor returns the outline color for a class, White for classes
// without an assigned color
func ClassColor(class string) color.RGBA {
	if clr, ok := classColors[detect.NormalizeClass(class)]; ok {
		return clr
	}
	return White
}
