package dashmask

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
	"gocv.io/x/gocv"
)

var (
	// ErrAlreadyStarted is returned when Start is called on a Capture that
	// has already been started
	ErrAlreadyStarted = errors.New("capture already started")
	// ErrStopTimeout is returned by Stop when the capture loop did not exit
	// within the timeout.  The frame source is left open in that case
	ErrStopTimeout = errors.New("capture loop did not stop within timeout")
)

// FrameSource is a blocking source of video frames, *gocv.VideoCapture
// satisfies this interface
type FrameSource interface {
	// Read the next frame into m, returns false on a failed read
	Read(m *gocv.Mat) bool
	// Close the source and release the device
	Close() error
}

// OpenDevice opens the camera device id and requests the given capture size
// and frame rate.  Zero values leave the device default
func OpenDevice(id int, width, height int, fps float64) (*gocv.VideoCapture, error) {

	cam, err := gocv.VideoCaptureDevice(id)

	if err != nil {
		return nil, fmt.Errorf("error opening capture device %d: %w", id, err)
	}

	if width > 0 {
		cam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}

	if height > 0 {
		cam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	if fps > 0 {
		cam.Set(gocv.VideoCaptureFPS, fps)
	}

	return cam, nil
}

// OpenFile opens a video file as a frame source
func OpenFile(path string) (*gocv.VideoCapture, error) {

	vid, err := gocv.VideoCaptureFile(path)

	if err != nil {
		return nil, fmt.Errorf("error opening video file %s: %w", path, err)
	}

	return vid, nil
}

// CaptureStats is a point in time copy of the capture counters
type CaptureStats struct {
	// Frames is the number of frames pushed to the buffer
	Frames uint64
	// Failures is the number of failed or empty reads
	Failures uint64
	// LastFrame is the capture time of the last pushed frame
	LastFrame time.Time
}

// CaptureOption configures a Capture
type CaptureOption func(*Capture)

// WithCaptureLogger sets the logger used by the capture loop
func WithCaptureLogger(l zerolog.Logger) CaptureOption {
	return func(c *Capture) {
		c.log = l
	}
}

// WithCaptureClock sets the clock used to timestamp frames
func WithCaptureClock(now func() time.Time) CaptureOption {
	return func(c *Capture) {
		c.now = now
	}
}

// WithMatPool reads frames into Mats taken from pool, released frames are
// returned to it
func WithMatPool(pool *MatPool) CaptureOption {
	return func(c *Capture) {
		c.pool = pool
	}
}

// WithCPUAffinity pins the capture loop to the cores in mask
func WithCPUAffinity(mask uintptr) CaptureOption {
	return func(c *Capture) {
		c.affinity = mask
	}
}

// WithMaxFailures ends the capture loop after n consecutive failed reads, eg:
// at the end of a video file.  Zero retries forever
func WithMaxFailures(n int) CaptureOption {
	return func(c *Capture) {
		c.maxFailures = n
	}
}

// WithFailureLogEvery logs every nth failed read at warn level, the others
// are logged at debug level
func WithFailureLogEvery(n int) CaptureOption {
	return func(c *Capture) {
		if n > 0 {
			c.logEvery = n
		}
	}
}

// Capture is the producer loop reading frames from a FrameSource at hardware
// rate and pushing them to a FrameBuffer
type Capture struct {
	source FrameSource
	buffer *FrameBuffer
	pool   *MatPool
	log    zerolog.Logger
	now    func() time.Time

	affinity    uintptr
	maxFailures int
	logEvery    int

	seq       atomic.Uint64
	frames    atomic.Uint64
	failures  atomic.Uint64
	lastFrame atomic.Time

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCapture returns a Capture reading from source into buffer
func NewCapture(source FrameSource, buffer *FrameBuffer, opts ...CaptureOption) *Capture {

	c := &Capture{
		source:   source,
		buffer:   buffer,
		log:      log.Logger.With().Str("component", "capture").Logger(),
		now:      time.Now,
		logEvery: 30,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start launches the capture loop.  The loop runs until ctx is cancelled,
// Stop is called or the maximum consecutive failures is reached.  A Capture
// can only be started once
func (c *Capture) Start(ctx context.Context) error {

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)

	go c.loop(ctx)

	return nil
}

// Done returns a channel closed when the capture loop has exited
func (c *Capture) Done() <-chan struct{} {
	return c.done
}

// Stop cancels the capture loop and waits up to timeout for it to exit.  If
// the loop exits the frame source is closed.  If it does not ErrStopTimeout
// is returned and the source is left open since the loop may still be
// blocked reading from it.  Stop can be called again to wait longer.  A
// Capture that was never started closes its source and can not be started
// afterwards
func (c *Capture) Stop(timeout time.Duration) error {

	c.mu.Lock()

	if !c.started {
		// never started, release the device and refuse a later Start
		c.started = true
		close(c.done)
		c.mu.Unlock()

		return c.closeSource()
	}

	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
		c.log.Warn().Dur("timeout", timeout).Msg("Capture loop did not stop, frame source left open")
		return ErrStopTimeout
	}

	return c.closeSource()
}

// closeSource closes the frame source once
func (c *Capture) closeSource() error {

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	if err := c.source.Close(); err != nil {
		return fmt.Errorf("error closing frame source: %w", err)
	}

	return nil
}

// Stats returns the capture counters
func (c *Capture) Stats() CaptureStats {
	return CaptureStats{
		Frames:    c.frames.Load(),
		Failures:  c.failures.Load(),
		LastFrame: c.lastFrame.Load(),
	}
}

// loop is the capture goroutine
func (c *Capture) loop(ctx context.Context) {

	defer close(c.done)

	if c.affinity != 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if err := SetCPUAffinity(c.affinity); err != nil {
			c.log.Warn().Err(err).Msg("Error pinning capture loop")
		}
	}

	c.log.Info().Msg("Capture loop started")

	consecutive := 0
	var last time.Time

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Uint64("frames", c.frames.Load()).Msg("Capture loop stopped")
			return
		default:
		}

		mat := c.getMat()

		if ok := c.source.Read(&mat); !ok || mat.Empty() {
			c.putMat(mat)

			consecutive++
			n := c.failures.Inc()

			if n%uint64(c.logEvery) == 1 || c.logEvery == 1 {
				c.log.Warn().Uint64("failures", n).Msg("Failed to read frame")
			} else {
				c.log.Debug().Uint64("failures", n).Msg("Failed to read frame")
			}

			if c.maxFailures > 0 && consecutive >= c.maxFailures {
				c.log.Error().Int("consecutive", consecutive).Msg("Too many failed reads, capture loop exiting")
				return
			}

			continue
		}

		consecutive = 0

		// frames leave the loop in non-decreasing timestamp order even if the
		// wall clock steps backwards
		ts := c.now()
		if ts.Before(last) {
			ts = last
		}
		last = ts

		c.buffer.Push(newFrame(mat, ts, c.seq.Inc(), c.release()))

		c.frames.Inc()
		c.lastFrame.Store(ts)
	}
}

// getMat returns a Mat to read the next frame into
func (c *Capture) getMat() gocv.Mat {

	if c.pool != nil {
		return c.pool.Get()
	}

	return gocv.NewMat()
}

// putMat disposes of a Mat that was not pushed to the buffer
func (c *Capture) putMat(m gocv.Mat) {

	if c.pool != nil {
		c.pool.Put(m)
		return
	}

	m.Close()
}

// release returns the function called on the final Release of a frame
func (c *Capture) release() func(gocv.Mat) {

	if c.pool != nil {
		return c.pool.Put
	}

	return nil
}
