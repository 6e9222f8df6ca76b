package dashmask

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"gocv.io/x/gocv"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// releaseCounter counts Mats handed back on a frame's final release
type releaseCounter struct {
	n atomic.Int32
}

func (r *releaseCounter) release(m gocv.Mat) {
	r.n.Inc()
	m.Close()
}

func testFrame(seq uint64, ts time.Time, rc *releaseCounter) *Frame {
	mat := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)

	if rc == nil {
		return NewFrame(mat, ts, seq)
	}

	return newFrame(mat, ts, seq, rc.release)
}

func seqs(frames []*Frame) []uint64 {
	out := make([]uint64, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Seq)
	}
	return out
}

func TestCapacityFor(t *testing.T) {

	tests := []struct {
		d        time.Duration
		fps      float64
		expected int
	}{
		{10 * time.Second, 30, 300},
		{time.Second, 29.97, 30},
		{0, 30, 1},
		{500 * time.Millisecond, 0, 1},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, CapacityFor(tc.d, tc.fps), "duration %v fps %v", tc.d, tc.fps)
	}
}

func TestFrameBufferBound(t *testing.T) {

	rc := &releaseCounter{}
	buf := NewFrameBuffer(5)

	for i := 1; i <= 12; i++ {
		buf.Push(testFrame(uint64(i), epoch.Add(time.Duration(i)*time.Millisecond), rc))
	}

	assert.Equal(t, 5, buf.Len())
	assert.Equal(t, 5, buf.Cap())
	assert.EqualValues(t, 7, rc.n.Load(), "evicted frames should be released")

	snap := buf.Snapshot()
	assert.Equal(t, []uint64{8, 9, 10, 11, 12}, seqs(snap))
	ReleaseAll(snap)

	buf.Reset()
	assert.Equal(t, 0, buf.Len())
	assert.EqualValues(t, 12, rc.n.Load())
}

func TestFrameBufferLatest(t *testing.T) {

	buf := NewFrameBuffer(3)

	assert.Nil(t, buf.Latest())

	buf.Push(testFrame(1, epoch, nil))
	buf.Push(testFrame(2, epoch.Add(time.Millisecond), nil))

	f := buf.Latest()
	require.NotNil(t, f)
	assert.EqualValues(t, 2, f.Seq)
	assert.Equal(t, 2, f.Refs(), "buffer and caller should both hold a reference")

	f.Release()
	assert.Equal(t, 1, f.Refs())

	buf.Reset()
}

func TestFrameBufferHeldFrameOutlivesEviction(t *testing.T) {

	rc := &releaseCounter{}
	buf := NewFrameBuffer(1)

	buf.Push(testFrame(1, epoch, rc))
	held := buf.Latest()

	buf.Push(testFrame(2, epoch, rc))
	assert.EqualValues(t, 0, rc.n.Load(), "frame still held by a consumer")
	assert.Equal(t, 4, held.Width())

	held.Release()
	assert.EqualValues(t, 1, rc.n.Load())

	buf.Reset()
}

func TestFrameBufferSlice(t *testing.T) {

	now := epoch.Add(10 * time.Second)
	buf := NewFrameBuffer(300, WithBufferClock(func() time.Time { return now }))

	assert.Empty(t, buf.Slice(5*time.Second, 5*time.Second))

	// one frame per second from epoch+1s to epoch+10s
	for i := 1; i <= 10; i++ {
		buf.Push(testFrame(uint64(i), epoch.Add(time.Duration(i)*time.Second), nil))
	}

	tests := []struct {
		name     string
		before   time.Duration
		after    time.Duration
		expected []uint64
	}{
		{"last three seconds inclusive", 3 * time.Second, 0, []uint64{7, 8, 9, 10}},
		{"future window yields existing frames", 2 * time.Second, 5 * time.Second, []uint64{8, 9, 10}},
		{"whole buffer", time.Minute, time.Minute, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{"zero window", 0, 0, []uint64{10}},
	}

	for _, tc := range tests {
		got := buf.Slice(tc.before, tc.after)
		assert.Equal(t, tc.expected, seqs(got), tc.name)
		ReleaseAll(got)
	}

	now = epoch.Add(time.Minute)
	assert.Empty(t, buf.Slice(time.Second, time.Second), "window after every frame")

	buf.Reset()
}

func TestFrameBufferConcurrentAccess(t *testing.T) {

	rc := &releaseCounter{}
	buf := NewFrameBuffer(8)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			buf.Push(testFrame(uint64(i), epoch.Add(time.Duration(i)*time.Millisecond), rc))
		}
	}()

	go func() {
		defer wg.Done()
		var last uint64
		for i := 0; i < 200; i++ {
			f := buf.Latest()
			if f == nil {
				continue
			}
			assert.GreaterOrEqual(t, f.Seq, last, "latest frame went backwards")
			last = f.Seq
			f.Release()
		}
	}()

	wg.Wait()

	snap := buf.Snapshot()
	assert.Equal(t, []uint64{193, 194, 195, 196, 197, 198, 199, 200}, seqs(snap))
	ReleaseAll(snap)

	buf.Reset()
	assert.EqualValues(t, 200, rc.n.Load())
}
