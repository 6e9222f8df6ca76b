package dashmask

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/swdee/go-dashmask/detect"
	"github.com/swdee/go-dashmask/mask"
	"go.uber.org/atomic"
	"gocv.io/x/gocv"
)

// ErrTickInProgress is returned by Tick when the previous tick has not yet
// finished, the overlapping tick is skipped
var ErrTickInProgress = errors.New("processing tick already in progress")

// Result is the outcome of one processing tick handed to each Sink
type Result struct {
	// Seq is the sequence number of the processed frame
	Seq uint64
	// Timestamp is the capture time of the processed frame
	Timestamp time.Time
	// Masked is the masked frame.  It is closed once all sinks return, a
	// sink keeping the frame must Clone it
	Masked gocv.Mat
	// Metadata has one record per masked region
	Metadata []mask.Metadata
	// Detections are the raw detector results, valid during the sink call
	Detections []detect.Detection
	// Coverage is the fraction of the frame obscured
	Coverage float64
	// Latency is the time taken from reading the frame to masking it
	Latency time.Duration
}

// Sink receives the result of every processing tick, eg: display,
// recording, upload or alerting collaborators
type Sink func(Result)

// ProcessorStats is a point in time copy of the processor counters
type ProcessorStats struct {
	// Ticks is the number of frames processed
	Ticks uint64
	// Skipped is the number of ticks dropped because the previous tick was
	// still running
	Skipped uint64
	// Empty is the number of ticks with no new frame in the buffer
	Empty uint64
	// DetectorErrors is the number of failed detector calls
	DetectorErrors uint64
	// Regions is the total number of masked regions
	Regions uint64
	// Latency summarises recent tick durations
	Latency LatencyStats
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the processor logger
func WithProcessorLogger(l zerolog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.log = l
	}
}

// WithProcessorClock sets the clock used as "now" for the mask tracker
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.now = now
	}
}

// WithSink adds a sink receiving every result
func WithSink(s Sink) ProcessorOption {
	return func(p *Processor) {
		p.sinks = append(p.sinks, s)
	}
}

// WithLatencyWindow sets the number of ticks latency statistics are kept for
func WithLatencyWindow(n int) ProcessorOption {
	return func(p *Processor) {
		p.latency = newLatencyWindow(n)
	}
}

// Processor is the consumer loop.  Every tick it takes the latest frame from
// the FrameBuffer, runs the detector and masks the frame with its Session
type Processor struct {
	buffer   *FrameBuffer
	detector detect.Detector
	session  *Session
	interval time.Duration
	sinks    []Sink
	log      zerolog.Logger
	now      func() time.Time
	latency  *latencyWindow

	busy atomic.Bool
	// processed is set once a frame has been processed, lastSeq is only
	// meaningful after that
	processed atomic.Bool
	lastSeq   atomic.Uint64

	ticks     atomic.Uint64
	skipped   atomic.Uint64
	empty     atomic.Uint64
	detErrors atomic.Uint64
	regions   atomic.Uint64
}

// NewProcessor returns a Processor ticking every interval.  A nil detector
// is replaced with detect.NopDetector so masks already tracked keep decaying
func NewProcessor(buffer *FrameBuffer, detector detect.Detector, session *Session,
	interval time.Duration, opts ...ProcessorOption) *Processor {

	if detector == nil {
		detector = detect.NopDetector{}
	}

	p := &Processor{
		buffer:   buffer,
		detector: detector,
		session:  session,
		interval: interval,
		log:      log.Logger.With().Str("component", "processor").Logger(),
		now:      time.Now,
		latency:  newLatencyWindow(100),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run ticks until ctx is cancelled.  Ticks that fall behind the interval are
// dropped rather than queued
func (p *Processor) Run(ctx context.Context) error {

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info().Dur("interval", p.interval).Str("session", p.session.ID().String()).
		Msg("Processing loop started")

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Uint64("ticks", p.ticks.Load()).Msg("Processing loop stopped")
			return ctx.Err()

		case <-ticker.C:
			err := p.Tick(ctx)

			if err != nil && !errors.Is(err, context.Canceled) {
				p.log.Debug().Err(err).Msg("Tick skipped")
			}
		}
	}
}

// Tick processes the latest buffered frame.  It returns ErrTickInProgress
// without doing any work if another tick is running.  A buffer with no new
// frame since the last tick is a no-op
func (p *Processor) Tick(ctx context.Context) error {

	if !p.busy.CompareAndSwap(false, true) {
		p.skipped.Inc()
		return ErrTickInProgress
	}

	defer p.busy.Store(false)

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()

	frame := p.buffer.Latest()

	if frame == nil || (p.processed.Load() && frame.Seq == p.lastSeq.Load()) {
		frame.Release()
		p.empty.Inc()
		return nil
	}

	defer frame.Release()

	p.lastSeq.Store(frame.Seq)
	p.processed.Store(true)

	dets, err := p.detector.Detect(frame.Mat)

	if err != nil {
		// detector failure is no detections this tick, the tracker still
		// runs so persisted regions expire on time
		p.detErrors.Inc()
		p.log.Warn().Err(err).Uint64("seq", frame.Seq).Msg("Error detecting objects")
		dets = nil
	}

	defer detect.CloseDetections(dets)

	res := p.session.Mask(frame.Mat, dets, p.now())
	defer res.Masked.Close()

	latency := time.Since(start)
	p.latency.Add(latency)
	p.ticks.Inc()
	p.regions.Add(uint64(len(res.Metadata)))

	if len(res.Metadata) > 0 {
		p.log.Debug().Uint64("seq", frame.Seq).Int("regions", len(res.Metadata)).
			Float64("coverage", res.Coverage).Dur("latency", latency).Msg("Frame masked")
	}

	result := Result{
		Seq:        frame.Seq,
		Timestamp:  frame.Timestamp,
		Masked:     res.Masked,
		Metadata:   res.Metadata,
		Detections: dets,
		Coverage:   res.Coverage,
		Latency:    latency,
	}

	for _, sink := range p.sinks {
		sink(result)
	}

	return nil
}

// Session returns the masking session used by the processor
func (p *Processor) Session() *Session {
	return p.session
}

// Stats returns the processor counters
func (p *Processor) Stats() ProcessorStats {
	return ProcessorStats{
		Ticks:          p.ticks.Load(),
		Skipped:        p.skipped.Load(),
		Empty:          p.empty.Load(),
		DetectorErrors: p.detErrors.Load(),
		Regions:        p.regions.Load(),
		Latency:        p.latency.Stats(),
	}
}
