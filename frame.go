package dashmask

import (
	"time"

	"go.uber.org/atomic"
	"gocv.io/x/gocv"
)

// Frame is a captured video frame.  Frames are reference counted, every
// holder of a Frame calls Release when done with it and the pixel buffer is
// freed (or returned to its MatPool) when the last reference is released.
// Holders must treat Mat as read only, the Compositor masks a private copy.
type Frame struct {
	// Mat holds the frame pixels in BGR order
	Mat gocv.Mat
	// Timestamp is the capture time
	Timestamp time.Time
	// Seq is the monotonically increasing capture sequence number
	Seq uint64

	refs    atomic.Int32
	release func(gocv.Mat)
}

// NewFrame wraps mat in a Frame holding a single reference.  The Frame takes
// ownership of mat and closes it on the final Release
func NewFrame(mat gocv.Mat, ts time.Time, seq uint64) *Frame {
	return newFrame(mat, ts, seq, nil)
}

// newFrame creates a Frame whose Mat is handed to release on the final
// Release, a nil release closes the Mat
func newFrame(mat gocv.Mat, ts time.Time, seq uint64, release func(gocv.Mat)) *Frame {

	f := &Frame{
		Mat:       mat,
		Timestamp: ts,
		Seq:       seq,
		release:   release,
	}

	f.refs.Store(1)

	return f
}

// Retain adds a reference to the frame and returns it
func (f *Frame) Retain() *Frame {
	f.refs.Inc()
	return f
}

// Release drops a reference to the frame
func (f *Frame) Release() {

	if f == nil {
		return
	}

	if f.refs.Dec() != 0 {
		return
	}

	if f.release != nil {
		f.release(f.Mat)
		return
	}

	f.Mat.Close()
}

// Refs returns the current reference count
func (f *Frame) Refs() int {
	return int(f.refs.Load())
}

// Width returns the frame width in pixels
func (f *Frame) Width() int {
	return f.Mat.Cols()
}

// Height returns the frame height in pixels
func (f *Frame) Height() int {
	return f.Mat.Rows()
}

// ReleaseAll releases every frame in frames
func ReleaseAll(frames []*Frame) {
	for _, f := range frames {
		f.Release()
	}
}
