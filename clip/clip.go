package clip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	dashmask "github.com/swdee/go-dashmask"
	"github.com/swdee/go-dashmask/detect"
	"github.com/swdee/go-dashmask/mask"
	"gocv.io/x/gocv"
)

// ErrNoFrames is returned when the requested window holds no buffered frames
var ErrNoFrames = errors.New("no buffered frames in clip window")

// Codec is the FourCC of exported clips
const Codec = "MJPG"

// FrameRecord is the audit record of one exported frame
type FrameRecord struct {
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Regions   []mask.Metadata `json:"regions"`
	Coverage  float64         `json:"coverage"`
	// FaceEmbeddings are the half precision identity embeddings of the masked
	// faces, handed to the face matching collaborator with the clip
	FaceEmbeddings [][]uint16 `json:"face_embeddings,omitempty"`
}

// Result describes an exported clip
type Result struct {
	// ID is the unique clip identifier, also the file name stem
	ID uuid.UUID `json:"id"`
	// Path of the video file
	Path string `json:"path"`
	// MetadataPath of the JSON audit file
	MetadataPath string `json:"metadata_path"`
	// Frames is the number of frames written
	Frames int `json:"frames"`
	// Start and End are the capture times of the first and last frames
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// Regions is the total number of regions masked across the clip
	Regions int `json:"regions"`
}

// Option configures an Exporter
type Option func(*Exporter)

// WithLogger sets the exporter logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Exporter) {
		e.log = l
	}
}

// WithFPS sets the frame rate written to the clip container
func WithFPS(fps float64) Option {
	return func(e *Exporter) {
		if fps > 0 {
			e.fps = fps
		}
	}
}

// Exporter materializes incident clips from the frame buffer.  Buffered
// frames are raw, so every frame is run through the detector and masked
// again before it is written; no unmasked frame ever reaches disk.  The
// detector must be safe to use alongside the processing loop
type Exporter struct {
	buffer   *dashmask.FrameBuffer
	detector detect.Detector
	cfg      mask.Config
	classes  detect.ClassSet
	dir      string
	fps      float64
	log      zerolog.Logger

	// saveRecords writes the JSON audit file
	saveRecords func(path string, records []FrameRecord) error
}

// NewExporter returns an Exporter writing clips into dir
func NewExporter(buffer *dashmask.FrameBuffer, detector detect.Detector, cfg mask.Config,
	classes detect.ClassSet, dir string, opts ...Option) *Exporter {

	if detector == nil {
		detector = detect.NopDetector{}
	}

	e := &Exporter{
		buffer:   buffer,
		detector: detector,
		cfg:      cfg,
		classes:  classes,
		dir:      dir,
		fps:      30,
		log:      log.Logger.With().Str("component", "clip").Logger(),

		saveRecords: writeRecords,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Export writes the buffered frames captured between before and after
// relative to now as a masked clip.  The frames are masked by a fresh
// session whose clock is the frame capture time so persistence behaves as
// it did live.  Cancelling ctx aborts between frames and removes the
// partial clip
func (e *Exporter) Export(ctx context.Context, before, after time.Duration) (Result, error) {

	frames := e.buffer.Slice(before, after)
	defer dashmask.ReleaseAll(frames)

	if len(frames) == 0 {
		return Result{}, ErrNoFrames
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("error creating clip directory: %w", err)
	}

	res := Result{
		ID:    uuid.New(),
		Start: frames[0].Timestamp,
		End:   frames[len(frames)-1].Timestamp,
	}

	res.Path = filepath.Join(e.dir, res.ID.String()+".avi")
	res.MetadataPath = filepath.Join(e.dir, res.ID.String()+".json")

	width := frames[0].Width()
	height := frames[0].Height()

	writer, err := gocv.VideoWriterFile(res.Path, Codec, e.fps, width, height, true)

	if err != nil {
		return Result{}, fmt.Errorf("error opening clip writer: %w", err)
	}

	if !writer.IsOpened() {
		writer.Close()
		os.Remove(res.Path)
		return Result{}, fmt.Errorf("error opening clip writer for %s", res.Path)
	}

	clog := e.log.With().Str("clip", res.ID.String()).Logger()

	session := dashmask.NewSession(e.cfg, e.classes, dashmask.WithSessionLogger(clog))
	records := make([]FrameRecord, 0, len(frames))

	for _, f := range frames {

		if err := ctx.Err(); err != nil {
			writer.Close()
			os.Remove(res.Path)
			return Result{}, err
		}

		rec, err := e.writeFrame(writer, session, f, width, height)

		if err != nil {
			writer.Close()
			os.Remove(res.Path)
			return Result{}, err
		}

		res.Frames++
		res.Regions += len(rec.Regions)
		records = append(records, rec)
	}

	if err := writer.Close(); err != nil {
		os.Remove(res.Path)
		return Result{}, fmt.Errorf("error closing clip writer: %w", err)
	}

	if err := e.saveRecords(res.MetadataPath, records); err != nil {
		os.Remove(res.Path)
		os.Remove(res.MetadataPath)
		return Result{}, err
	}

	clog.Info().Int("frames", res.Frames).Int("regions", res.Regions).
		Time("start", res.Start).Time("end", res.End).Str("path", res.Path).
		Msg("Clip exported")

	return res, nil
}

// writeFrame masks a single buffered frame and appends it to the clip
func (e *Exporter) writeFrame(writer *gocv.VideoWriter, session *dashmask.Session,
	f *dashmask.Frame, width, height int) (FrameRecord, error) {

	dets, err := e.detector.Detect(f.Mat)

	if err != nil {
		e.log.Warn().Err(err).Uint64("seq", f.Seq).Msg("Error detecting objects for clip frame")
		dets = nil
	}

	defer detect.CloseDetections(dets)

	masked := session.Mask(f.Mat, dets, f.Timestamp)
	defer masked.Masked.Close()

	out := masked.Masked

	// the container holds one frame size, a camera reopened mid clip at a
	// different resolution is scaled to the first frame size
	if out.Cols() != width || out.Rows() != height {
		scaled := gocv.NewMat()
		defer scaled.Close()

		gocv.Resize(out, &scaled, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
		out = scaled
	}

	if err := writer.Write(out); err != nil {
		return FrameRecord{}, fmt.Errorf("error writing clip frame %d: %w", f.Seq, err)
	}

	return FrameRecord{
		Seq:            f.Seq,
		Timestamp:      f.Timestamp,
		Regions:        masked.Metadata,
		Coverage:       masked.Coverage,
		FaceEmbeddings: faceEmbeddings(dets, session.Compositor().Classes()),
	}, nil
}

// faceEmbeddings returns the compacted embeddings of the face detections
// whose class is masked
func faceEmbeddings(dets []detect.Detection, classes detect.ClassSet) [][]uint16 {

	var out [][]uint16

	for _, d := range dets {
		face, ok := d.Payload.(*detect.FacePayload)

		if !ok || len(face.Embedding) == 0 || !classes.Has(d.Class) {
			continue
		}

		out = append(out, face.CompactEmbedding())
	}

	return out
}

// writeRecords saves the clip audit records as JSON
func writeRecords(path string, records []FrameRecord) error {

	data, err := json.MarshalIndent(records, "", "  ")

	if err != nil {
		return fmt.Errorf("error encoding clip metadata: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing clip metadata: %w", err)
	}

	return nil
}

// ReadRecords loads the audit records of an exported clip
func ReadRecords(path string) ([]FrameRecord, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("error reading clip metadata: %w", err)
	}

	var records []FrameRecord

	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("error decoding clip metadata: %w", err)
	}

	return records, nil
}
