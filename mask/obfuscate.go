package mask

import (
	"image"

	"gocv.io/x/gocv"
)

// frameBounds returns the pixel bounds of the Mat
func frameBounds(img *gocv.Mat) image.Rectangle {
	return image.Rect(0, 0, img.Cols(), img.Rows())
}

// PixelateRegion overwrites the rect region of img with a mosaic of blocks
// sized block pixels.  The region is downsampled with linear interpolation
// then upsampled with nearest neighbour so fine detail can not be recovered
func PixelateRegion(img *gocv.Mat, rect image.Rectangle, block int) {

	rect = rect.Intersect(frameBounds(img))

	if rect.Empty() {
		return
	}

	if block < 2 {
		block = 2
	}

	w := rect.Dx()
	h := rect.Dy()

	smallW := w / block
	if smallW < 1 {
		smallW = 1
	}

	smallH := h / block
	if smallH < 1 {
		smallH = 1
	}

	roi := img.Region(rect)
	defer roi.Close()

	small := gocv.NewMat()
	defer small.Close()

	gocv.Resize(roi, &small, image.Pt(smallW, smallH), 0, 0, gocv.InterpolationLinear)

	mosaic := gocv.NewMat()
	defer mosaic.Close()

	gocv.Resize(small, &mosaic, image.Pt(w, h), 0, 0, gocv.InterpolationNearestNeighbor)

	// roi shares memory with img so copying writes into the frame
	mosaic.CopyTo(&roi)
}

// BlurRegion overwrites the rect region of img with a gaussian blurred copy.
// Even kernel sizes are incremented to the next odd value
func BlurRegion(img *gocv.Mat, rect image.Rectangle, kernel int) {

	rect = rect.Intersect(frameBounds(img))

	if rect.Empty() {
		return
	}

	if kernel < 3 {
		kernel = 3
	}

	if kernel%2 == 0 {
		kernel++
	}

	roi := img.Region(rect)
	defer roi.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()

	gocv.GaussianBlur(roi, &blurred, image.Pt(kernel, kernel), 0, 0, gocv.BorderDefault)

	blurred.CopyTo(&roi)
}
