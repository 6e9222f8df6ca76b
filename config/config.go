package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	dashmask "github.com/swdee/go-dashmask"
	"github.com/swdee/go-dashmask/detect"
	"github.com/swdee/go-dashmask/mask"
	"gopkg.in/yaml.v3"
)

// Settings is the complete dashcam configuration.  It is loaded once at
// startup and the derived values handed to each component constructor
type Settings struct {
	VehicleID string            `yaml:"vehicle_id"`
	DeviceID  string            `yaml:"device_id"`
	Camera    CameraSettings    `yaml:"camera"`
	Detection DetectionSettings `yaml:"detection"`
	Masking   MaskingSettings   `yaml:"masking"`
	Display   DisplaySettings   `yaml:"display"`
	Clips     ClipSettings      `yaml:"clips"`
	Log       LogSettings       `yaml:"log"`
}

// CameraSettings contains capture settings
type CameraSettings struct {
	Device int     `yaml:"device"`
	File   string  `yaml:"file"` // video file used instead of the device when set
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`
	// BufferSeconds is the rolling history kept for incident clips
	BufferSeconds float64 `yaml:"buffer_seconds"`
	// CPUPlatform pins the capture loop, eg: rk3588 or bcm2712
	CPUPlatform string `yaml:"cpu_platform"`
}

// DetectionSettings contains detector settings
type DetectionSettings struct {
	FPS        float64 `yaml:"fps"`
	ModelsPath string  `yaml:"models_path"`
	// LabelsFile is the model label list, relative paths are resolved
	// against ModelsPath.  Empty uses the built in dashcam labels
	LabelsFile  string `yaml:"labels_file"`
	ModelWidth  int    `yaml:"model_width"`
	ModelHeight int    `yaml:"model_height"`
	// Sliced runs the detector over overlapping tiles of the frame
	Sliced       bool    `yaml:"sliced"`
	SliceOverlap float64 `yaml:"slice_overlap"`
}

// MaskingSettings contains the privacy masking settings
type MaskingSettings struct {
	InflateRatio  float64  `yaml:"inflate_ratio"`
	MinSize       float64  `yaml:"min_size"`
	Type          string   `yaml:"type"` // pixelate or blur
	BlurKernel    int      `yaml:"blur_kernel"`
	MosaicSize    int      `yaml:"mosaic_size"`
	PersistMS     int      `yaml:"persist_ms"`
	SmoothAlpha   float64  `yaml:"smooth_alpha"`
	RedactClasses []string `yaml:"redact_classes"`
	Tracking      bool     `yaml:"tracking"`
}

// DisplaySettings contains the debug display settings
type DisplaySettings struct {
	Width    int  `yaml:"width"`
	Height   int  `yaml:"height"`
	Outlines bool `yaml:"outlines"`
}

// ClipSettings contains incident clip export settings
type ClipSettings struct {
	Dir           string  `yaml:"dir"`
	BeforeSeconds float64 `yaml:"before_seconds"`
	AfterSeconds  float64 `yaml:"after_seconds"`
}

// LogSettings contains logger settings
type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Default returns the default settings
func Default() *Settings {

	m := mask.DefaultConfig()

	return &Settings{
		VehicleID: "tesla-001",
		DeviceID:  "pi-001",
		Camera: CameraSettings{
			Width:         1920,
			Height:        1080,
			FPS:           30,
			BufferSeconds: 10,
		},
		Detection: DetectionSettings{
			FPS:          10,
			ModelsPath:   "/opt/dashcam/models",
			ModelWidth:   640,
			ModelHeight:  640,
			SliceOverlap: 0.2,
		},
		Masking: MaskingSettings{
			InflateRatio:  m.InflateRatio,
			MinSize:       m.MinSize,
			Type:          m.Strategy.String(),
			BlurKernel:    m.BlurKernel,
			MosaicSize:    m.PixelBlock,
			PersistMS:     int(m.Persist / time.Millisecond),
			SmoothAlpha:   m.SmoothAlpha,
			RedactClasses: detect.DefaultRedactClasses().List(),
			Tracking:      true,
		},
		Display: DisplaySettings{
			Width:  800,
			Height: 480,
		},
		Clips: ClipSettings{
			Dir:           "/data/pi_footage/clips",
			BeforeSeconds: 5,
			AfterSeconds:  5,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the settings from the defaults, the optional YAML file at path,
// the .env files and finally DASHCAM_* environment variables.  When no
// envFiles are given ".env" is loaded if it exists.  Variables already set in
// the environment take precedence over .env values
func Load(path string, envFiles ...string) (*Settings, error) {

	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)

		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}

	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return s, nil
}

// Validate checks the settings for values that cannot be corrected.
// Masking values are not checked here, mask.Config.Normalize corrects them
func (s *Settings) Validate() error {

	var errs []error

	if s.Camera.Width <= 0 || s.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera resolution must be positive, got %dx%d",
			s.Camera.Width, s.Camera.Height))
	}

	if s.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("camera fps must be positive, got %v", s.Camera.FPS))
	}

	if s.Camera.BufferSeconds <= 0 {
		errs = append(errs, fmt.Errorf("buffer seconds must be positive, got %v", s.Camera.BufferSeconds))
	}

	if s.Camera.CPUPlatform != "" {
		if _, err := dashmask.PlatformCoreMask(s.Camera.CPUPlatform, dashmask.SlowCores); err != nil {
			errs = append(errs, err)
		}
	}

	if s.Detection.FPS <= 0 {
		errs = append(errs, fmt.Errorf("detection fps must be positive, got %v", s.Detection.FPS))
	}

	if s.Detection.ModelWidth <= 0 || s.Detection.ModelHeight <= 0 {
		errs = append(errs, fmt.Errorf("model input size must be positive, got %dx%d",
			s.Detection.ModelWidth, s.Detection.ModelHeight))
	}

	if s.Detection.SliceOverlap < 0 || s.Detection.SliceOverlap >= 1 {
		errs = append(errs, fmt.Errorf("slice overlap must be in [0,1), got %v", s.Detection.SliceOverlap))
	}

	if s.Clips.BeforeSeconds < 0 || s.Clips.AfterSeconds < 0 {
		errs = append(errs, errors.New("clip window must not be negative"))
	}

	if _, err := parseLevel(s.Log.Level); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(s.Log.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format: %s", s.Log.Format))
	}

	return errors.Join(errs...)
}

// MaskConfig returns the masking configuration snapshot
func (s *Settings) MaskConfig() mask.Config {
	return mask.Config{
		InflateRatio: s.Masking.InflateRatio,
		MinSize:      s.Masking.MinSize,
		Strategy:     mask.ParseStrategy(s.Masking.Type),
		BlurKernel:   s.Masking.BlurKernel,
		PixelBlock:   s.Masking.MosaicSize,
		Persist:      time.Duration(s.Masking.PersistMS) * time.Millisecond,
		SmoothAlpha:  s.Masking.SmoothAlpha,
	}.Normalize()
}

// RedactClasses returns the set of class names to mask
func (s *Settings) RedactClasses() detect.ClassSet {
	return detect.NewClassSet(s.Masking.RedactClasses...)
}

// BufferCapacity returns the number of frames held by the frame buffer
func (s *Settings) BufferCapacity() int {
	return dashmask.CapacityFor(time.Duration(s.Camera.BufferSeconds*float64(time.Second)), s.Camera.FPS)
}

// DetectionInterval returns the processing tick interval
func (s *Settings) DetectionInterval() time.Duration {
	return time.Duration(float64(time.Second) / s.Detection.FPS)
}

// ClipWindow returns the clip window before and after the incident
func (s *Settings) ClipWindow() (time.Duration, time.Duration) {
	return time.Duration(s.Clips.BeforeSeconds * float64(time.Second)),
		time.Duration(s.Clips.AfterSeconds * float64(time.Second))
}

// Labels returns the detector label list used to name detections by class
// id
func (s *Settings) Labels() ([]string, error) {

	if s.Detection.LabelsFile == "" {
		return detect.DashcamLabels, nil
	}

	path := s.Detection.LabelsFile

	if !filepath.IsAbs(path) {
		path = filepath.Join(s.Detection.ModelsPath, path)
	}

	labels, err := detect.LoadLabels(path)

	if err != nil {
		return nil, fmt.Errorf("error loading labels: %w", err)
	}

	return labels, nil
}

// CaptureCoreMask returns the core mask for the capture loop, zero when no
// platform is configured
func (s *Settings) CaptureCoreMask() uintptr {

	if s.Camera.CPUPlatform == "" {
		return 0
	}

	cores, err := dashmask.PlatformCoreMask(s.Camera.CPUPlatform, dashmask.SlowCores)

	if err != nil {
		return 0
	}

	return cores
}
