package dashmask

import (
	"math"
	"sync"
	"time"
)

// FrameBuffer is a fixed size ring of the most recently captured frames.  The
// capture loop is the single producer; the processing loop and clip export
// read the newest frame or a time window.  The lock is only held while the
// ring is mutated or copied, never while a consumer works on a frame.
type FrameBuffer struct {
	mu sync.Mutex
	// frames is the ring storage
	frames []*Frame
	// head is the index of the oldest frame
	head int
	// count is the number of buffered frames
	count int
	// now is the clock used to anchor Slice windows
	now func() time.Time
}

// BufferOption configures a FrameBuffer
type BufferOption func(*FrameBuffer)

// WithBufferClock sets the clock used by Slice, defaults to time.Now
func WithBufferClock(now func() time.Time) BufferOption {
	return func(b *FrameBuffer) {
		b.now = now
	}
}

// CapacityFor returns the number of frames needed to hold duration of video
// at fps frames per second, eg: 10s at 30fps is 300 frames
func CapacityFor(duration time.Duration, fps float64) int {

	n := int(math.Ceil(duration.Seconds() * fps))

	if n < 1 {
		n = 1
	}

	return n
}

// NewFrameBuffer returns a buffer holding at most capacity frames
func NewFrameBuffer(capacity int, opts ...BufferOption) *FrameBuffer {

	if capacity < 1 {
		capacity = 1
	}

	b := &FrameBuffer{
		frames: make([]*Frame, capacity),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Push appends a frame to the buffer, evicting the oldest frame when the
// buffer is full.  The buffer takes over the caller's reference to f
func (b *FrameBuffer) Push(f *Frame) {

	if f == nil {
		return
	}

	var evicted *Frame

	b.mu.Lock()

	if b.count == len(b.frames) {
		evicted = b.frames[b.head]
		b.frames[b.head] = f
		b.head = (b.head + 1) % len(b.frames)
	} else {
		b.frames[(b.head+b.count)%len(b.frames)] = f
		b.count++
	}

	b.mu.Unlock()

	// release outside the lock, the final release may free pixel memory
	evicted.Release()
}

// Latest returns the most recently pushed frame or nil if the buffer is
// empty.  The caller must Release the returned frame
func (b *FrameBuffer) Latest() *Frame {

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	return b.frames[(b.head+b.count-1)%len(b.frames)].Retain()
}

// Slice returns in capture order every buffered frame with a timestamp in
// [now-before, now+after].  It never waits for future frames, after only
// widens the window over frames that already exist.  The caller must Release
// the returned frames, see ReleaseAll
func (b *FrameBuffer) Slice(before, after time.Duration) []*Frame {

	now := b.now()
	start := now.Add(-before)
	end := now.Add(after)

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*Frame

	for i := 0; i < b.count; i++ {
		f := b.frames[(b.head+i)%len(b.frames)]

		if f.Timestamp.Before(start) || f.Timestamp.After(end) {
			continue
		}

		out = append(out, f.Retain())
	}

	return out
}

// Snapshot returns every buffered frame in capture order.  The caller must
// Release the returned frames
func (b *FrameBuffer) Snapshot() []*Frame {

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Frame, 0, b.count)

	for i := 0; i < b.count; i++ {
		out = append(out, b.frames[(b.head+i)%len(b.frames)].Retain())
	}

	return out
}

// Len returns the number of buffered frames
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Cap returns the maximum number of buffered frames
func (b *FrameBuffer) Cap() int {
	return len(b.frames)
}

// Reset drops all buffered frames
func (b *FrameBuffer) Reset() {

	b.mu.Lock()

	dropped := make([]*Frame, 0, b.count)

	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % len(b.frames)
		dropped = append(dropped, b.frames[idx])
		b.frames[idx] = nil
	}

	b.head = 0
	b.count = 0

	b.mu.Unlock()

	ReleaseAll(dropped)
}
