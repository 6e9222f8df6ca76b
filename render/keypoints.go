package render

import (
	"image"

	"github.com/swdee/go-dashmask/detect"
	"gocv.io/x/gocv"
)

// FaceLandmarks renders the landmarks of every face detection.  Landmarks
// are drawn on the debug display only, they are never part of a masked frame
// handed to recording or upload
func FaceLandmarks(img *gocv.Mat, dets []detect.Detection, radius int) {

	for _, det := range dets {

		face, ok := det.Payload.(*detect.FacePayload)

		if !ok {
			continue
		}

		for j, kp := range face.Landmarks {
			clr := faceLandmarkColors[j%len(faceLandmarkColors)]
			gocv.Circle(img, image.Pt(kp.X, kp.Y), radius, clr, -1)
		}
	}
}
