package dashmask

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/swdee/go-dashmask/detect"
	"github.com/swdee/go-dashmask/mask"
	"github.com/swdee/go-dashmask/tracker"
	"gocv.io/x/gocv"
)

// MaskResult is the output of masking a single frame
type MaskResult struct {
	// Masked is the masked copy of the frame, the caller must Close it
	Masked gocv.Mat
	// Metadata has one record per masked region
	Metadata []mask.Metadata
	// Regions are the regions handed to the compositor after tracking
	Regions []mask.Region
	// Coverage is the fraction of the frame area obscured
	Coverage float64
}

// Session bundles the compositor and mask tracker used for one camera
// stream.  Like the MaskTracker it wraps, a Session must not be used from
// more than one goroutine at a time
type Session struct {
	id         uuid.UUID
	compositor *mask.Compositor
	tracker    *tracker.MaskTracker
	trail      *tracker.Trail
	log        zerolog.Logger

	tracking   bool
	trailSize  int
	trackerOpt []tracker.Option
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithoutTracking masks exactly the regions detected in each frame with no
// smoothing or persistence
func WithoutTracking() SessionOption {
	return func(s *Session) {
		s.tracking = false
	}
}

// WithTrail keeps a history of the last size centers of every tracked region
func WithTrail(size int) SessionOption {
	return func(s *Session) {
		s.trailSize = size
	}
}

// WithTrackerOptions passes options through to the MaskTracker
func WithTrackerOptions(opts ...tracker.Option) SessionOption {
	return func(s *Session) {
		s.trackerOpt = append(s.trackerOpt, opts...)
	}
}

// WithSessionLogger sets the session logger
func WithSessionLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.log = l
	}
}

// NewSession returns a Session masking the given classes with cfg.  The
// configuration is fixed for the life of the session, create a new Session
// to change it
func NewSession(cfg mask.Config, classes detect.ClassSet, opts ...SessionOption) *Session {

	s := &Session{
		id:       uuid.New(),
		tracking: true,
		log:      log.Logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.compositor = mask.NewCompositor(cfg, classes)

	if s.tracking {
		s.tracker = tracker.NewMaskTracker(s.compositor.Config(), s.trackerOpt...)
	}

	if s.trailSize > 0 && s.tracker != nil {
		s.trail = tracker.NewTrail(s.trailSize)
	}

	s.log = s.log.With().Str("session", s.id.String()).Logger()

	s.log.Debug().Str("config", s.compositor.Config().String()).
		Strs("classes", s.compositor.Classes().List()).
		Bool("tracking", s.tracking).Msg("Masking session created")

	return s
}

// ID returns the unique session identifier
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Config returns the normalized masking configuration
func (s *Session) Config() mask.Config {
	return s.compositor.Config()
}

// Compositor returns the session compositor
func (s *Session) Compositor() *mask.Compositor {
	return s.compositor
}

// Trail returns the region trail history, nil unless WithTrail was given
func (s *Session) Trail() *tracker.Trail {
	return s.trail
}

// Tracking reports whether the session smooths and persists regions
func (s *Session) Tracking() bool {
	return s.tracker != nil
}

// Reset clears the tracked regions and trail history
func (s *Session) Reset() {

	if s.tracker != nil {
		s.tracker.Reset()
	}

	if s.trail != nil {
		s.trail.Reset()
	}
}

// Mask runs one masking tick: the detections are filtered and inflated,
// merged with the tracked regions as of now, and applied to a private copy
// of img.  The tracker is updated even when img is empty or there are no
// detections so persisted regions decay on schedule
func (s *Session) Mask(img gocv.Mat, dets []detect.Detection, now time.Time) MaskResult {

	width := img.Cols()
	height := img.Rows()

	regions := s.compositor.Prepare(dets, width, height)

	if s.tracker != nil {
		objs := s.tracker.UpdateAt(now, tracker.RegionsToObjects(regions))

		if s.trail != nil {
			for _, obj := range objs {
				s.trail.Add(obj)
			}
			s.trail.Prune(objs)
		}

		regions = tracker.ObjectsToRegions(objs)
	}

	masked, meta := s.compositor.Apply(img, regions)

	return MaskResult{
		Masked:   masked,
		Metadata: meta,
		Regions:  regions,
		Coverage: mask.Coverage(mask.MetadataBoxes(meta), width, height),
	}
}
