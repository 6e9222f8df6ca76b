package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	dashmask "github.com/swdee/go-dashmask"
	"github.com/swdee/go-dashmask/clip"
	"github.com/swdee/go-dashmask/config"
	"github.com/swdee/go-dashmask/detect"
	"github.com/swdee/go-dashmask/mask"
	"github.com/swdee/go-dashmask/render"
	"gocv.io/x/gocv"
)

// latestJPEG holds the most recent encoded display frame shared with all
// stream clients
type latestJPEG struct {
	mu  sync.RWMutex
	buf []byte
	seq uint64
}

func (l *latestJPEG) set(buf []byte, seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = buf
	l.seq = seq
}

func (l *latestJPEG) get() ([]byte, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.buf, l.seq
}

// Demo captures video, masks it and serves the masked frames as an MJPEG
// stream
type Demo struct {
	settings  *config.Settings
	log       zerolog.Logger
	buffer    *dashmask.FrameBuffer
	pool      *dashmask.MatPool
	capture   *dashmask.Capture
	processor *dashmask.Processor
	exporter  *clip.Exporter
	detector  detect.Detector
	closeDet  func() error
	captioner *render.Captioner
	latest    latestJPEG
}

// cascadeDetector returns a face detector using an OpenCV Haar cascade, or
// the NopDetector when no cascade file is given
func cascadeDetector(path string) (detect.Detector, func(), error) {

	if path == "" {
		return detect.NopDetector{}, func() {}, nil
	}

	classifier := gocv.NewCascadeClassifier()

	if !classifier.Load(path) {
		classifier.Close()
		return nil, nil, fmt.Errorf("error loading cascade file: %s", path)
	}

	idGen := detect.NewIDGenerator()
	gray := gocv.NewMat()

	det := detect.DetectorFunc(func(img gocv.Mat) ([]detect.Detection, error) {

		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
		rects := classifier.DetectMultiScale(gray)

		dets := make([]detect.Detection, 0, len(rects))

		for _, r := range rects {
			dets = append(dets, detect.Detection{
				ID:         idGen.GetNext(),
				Class:      detect.ClassFace,
				Confidence: 1,
				Box:        detect.FromRect(r),
				Payload:    &detect.FacePayload{},
			})
		}

		return dets, nil
	})

	closer := func() {
		gray.Close()
		classifier.Close()
	}

	return det, closer, nil
}

// NewDemo wires the capture, processing and export components
func NewDemo(settings *config.Settings, logger zerolog.Logger, model detect.Detector) (*Demo, error) {

	d := &Demo{
		settings: settings,
		log:      logger,
	}

	var (
		source dashmask.FrameSource
		err    error
	)

	if settings.Camera.File != "" {
		source, err = dashmask.OpenFile(settings.Camera.File)
	} else {
		source, err = dashmask.OpenDevice(settings.Camera.Device, settings.Camera.Width,
			settings.Camera.Height, settings.Camera.FPS)
	}

	if err != nil {
		return nil, err
	}

	d.buffer = dashmask.NewFrameBuffer(settings.BufferCapacity())
	d.pool = dashmask.NewMatPool(8)

	capOpts := []dashmask.CaptureOption{
		dashmask.WithCaptureLogger(logger.With().Str("component", "capture").Logger()),
		dashmask.WithMatPool(d.pool),
		dashmask.WithCPUAffinity(settings.CaptureCoreMask()),
	}

	if settings.Camera.File != "" {
		// end of file
		capOpts = append(capOpts, dashmask.WithMaxFailures(int(settings.Camera.FPS)))
	}

	d.capture = dashmask.NewCapture(source, d.buffer, capOpts...)

	labels, err := settings.Labels()

	if err != nil {
		source.Close()
		return nil, err
	}

	// models reporting only class ids are named before the redact filter
	model = detect.NewLabelDetector(model, labels)

	if settings.Detection.Sliced {
		d.detector = dashmask.NewSlicedDetector(model, settings.Detection.ModelWidth,
			settings.Detection.ModelHeight, settings.Detection.SliceOverlap)
		d.closeDet = func() error { return nil }
	} else {
		lb := dashmask.NewLetterboxDetector(model, settings.Detection.ModelWidth,
			settings.Detection.ModelHeight)
		d.detector = lb
		d.closeDet = lb.Close
	}

	sessOpts := []dashmask.SessionOption{
		dashmask.WithSessionLogger(logger),
		dashmask.WithTrail(int(settings.Detection.FPS) * 3),
	}

	if !settings.Masking.Tracking {
		sessOpts = append(sessOpts, dashmask.WithoutTracking())
	}

	session := dashmask.NewSession(settings.MaskConfig(), settings.RedactClasses(), sessOpts...)

	d.processor = dashmask.NewProcessor(d.buffer, d.detector, session,
		settings.DetectionInterval(),
		dashmask.WithProcessorLogger(logger.With().Str("component", "processor").Logger()),
		dashmask.WithSink(d.display),
		dashmask.WithSink(d.audit),
	)

	d.exporter = clip.NewExporter(d.buffer, d.detector, settings.MaskConfig(),
		settings.RedactClasses(), settings.Clips.Dir,
		clip.WithFPS(settings.Camera.FPS),
		clip.WithLogger(logger.With().Str("component", "clip").Logger()))

	d.captioner, err = render.NewCaptioner(nil, 16)

	if err != nil {
		return nil, err
	}

	return d, nil
}

// display is the processor sink producing the debug display frame
func (d *Demo) display(res dashmask.Result) {

	out := gocv.NewMat()
	defer out.Close()

	gocv.Resize(res.Masked, &out, image.Pt(d.settings.Display.Width, d.settings.Display.Height),
		0, 0, gocv.InterpolationArea)

	if d.settings.Display.Outlines {
		sx := float64(d.settings.Display.Width) / float64(res.Masked.Cols())
		sy := float64(d.settings.Display.Height) / float64(res.Masked.Rows())

		meta := make([]mask.Metadata, 0, len(res.Metadata))
		for _, m := range res.Metadata {
			m.BBox.X1 *= sx
			m.BBox.X2 *= sx
			m.BBox.Y1 *= sy
			m.BBox.Y2 *= sy
			meta = append(meta, m)
		}

		render.MaskOutlines(&out, meta, render.SmallFont(), 1)
	}

	stats := d.processor.Stats()

	caption := fmt.Sprintf("%s  masks %d  cover %.1f%%  p95 %s",
		res.Timestamp.Format("15:04:05"), len(res.Metadata), res.Coverage*100,
		stats.Latency.P95.Round(time.Millisecond))

	if err := d.captioner.Draw(&out, caption, image.Pt(0, 0)); err != nil {
		d.log.Warn().Err(err).Msg("Error drawing caption")
	}

	buf, err := gocv.IMEncode(".jpg", out)

	if err != nil {
		d.log.Warn().Err(err).Msg("Error encoding display frame")
		return
	}

	defer buf.Close()

	// GetBytes references C memory, keep a Go copy
	d.latest.set(append([]byte(nil), buf.GetBytes()...), res.Seq)
}

// audit is the processor sink logging what was masked
func (d *Demo) audit(res dashmask.Result) {

	if len(res.Metadata) == 0 {
		return
	}

	data, err := json.Marshal(res.Metadata)

	if err != nil {
		return
	}

	// detections of alert classes are forwarded at info level for the
	// alerting collaborator, the masked regions only at debug
	var alerts []string

	for _, det := range res.Detections {
		if detect.AlertClasses.Has(det.Class) {
			alerts = append(alerts, det.Label())
		}
	}

	if len(alerts) > 0 {
		d.log.Info().Uint64("seq", res.Seq).Strs("classes", alerts).
			RawJSON("regions", data).Msg("Alert classes detected")
		return
	}

	d.log.Debug().Uint64("seq", res.Seq).RawJSON("regions", data).Msg("Masked regions")
}

// Stream is the HTTP handler function used to stream masked video frames to
// browser
func (d *Demo) Stream(w http.ResponseWriter, r *http.Request) {

	d.log.Info().Str("remote", r.RemoteAddr).Msg("New client connection established")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	ticker := time.NewTicker(d.settings.DetectionInterval())
	defer ticker.Stop()

	var lastSeq uint64

	for {
		select {
		case <-r.Context().Done():
			d.log.Info().Str("remote", r.RemoteAddr).Msg("Client disconnected")
			return

		case <-ticker.C:
			buf, seq := d.latest.get()

			if buf == nil || seq == lastSeq {
				continue
			}

			lastSeq = seq

			w.Write([]byte("--frame\r\n"))
			w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
			w.Write(buf)
			w.Write([]byte("\r\n"))

			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

// Clip is the HTTP handler exporting an incident clip
func (d *Demo) Clip(w http.ResponseWriter, r *http.Request) {

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	before, after := d.settings.ClipWindow()

	// wait for the frames after the incident to be captured
	select {
	case <-time.After(after):
	case <-r.Context().Done():
		return
	}

	res, err := d.exporter.Export(r.Context(), before+after, 0)

	if errors.Is(err, clip.ErrNoFrames) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if err != nil {
		d.log.Error().Err(err).Msg("Error exporting clip")
		http.Error(w, "error exporting clip", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// Stats is the HTTP handler reporting pipeline statistics
func (d *Demo) Stats(w http.ResponseWriter, r *http.Request) {

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(struct {
		Capture   dashmask.CaptureStats   `json:"capture"`
		Processor dashmask.ProcessorStats `json:"processor"`
		Buffered  int                     `json:"buffered"`
	}{
		Capture:   d.capture.Stats(),
		Processor: d.processor.Stats(),
		Buffered:  d.buffer.Len(),
	})
}

// Run starts capture and processing until ctx is cancelled
func (d *Demo) Run(ctx context.Context) error {

	if err := d.capture.Start(ctx); err != nil {
		return err
	}

	err := d.processor.Run(ctx)

	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if stopErr := d.capture.Stop(2 * time.Second); stopErr != nil {
		d.log.Error().Err(stopErr).Msg("Error stopping capture")
	}

	return err
}

// Close frees the demo resources
func (d *Demo) Close() {
	d.buffer.Reset()
	d.pool.Close()
	d.closeDet()
	d.captioner.Close()
}

func main() {

	configFile := flag.String("c", "", "YAML configuration file")
	vidFile := flag.String("v", "", "Video file to use instead of the camera device")
	cascadeFile := flag.String("f", "", "OpenCV Haar cascade file used for face detection")
	addr := flag.String("a", "localhost:8080", "HTTP address to listen on")

	flag.Parse()

	settings, err := config.Load(*configFile)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if *vidFile != "" {
		settings.Camera.File = *vidFile
	}

	logger, err := settings.Logger(os.Stderr)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	model, closeModel, err := cascadeDetector(*cascadeFile)

	if err != nil {
		logger.Fatal().Err(err).Msg("Error creating detector")
	}

	defer closeModel()

	demo, err := NewDemo(settings, logger, model)

	if err != nil {
		logger.Fatal().Err(err).Msg("Error creating demo")
	}

	defer demo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", demo.Stream)
	mux.HandleFunc("/clip", demo.Clip)
	mux.HandleFunc("/stats", demo.Stats)

	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Info().Str("addr", *addr).Msg("Open browser and view video stream at /stream")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server error")
			stop()
		}
	}()

	if err := demo.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Error running demo")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	srv.Shutdown(shutdownCtx)
}
