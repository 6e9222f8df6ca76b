package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/swdee/go-dashmask/detect"
)

// EnvPrefix is the prefix of all environment overrides
const EnvPrefix = "DASHCAM_"

// LookupFunc looks up an environment variable, os.LookupEnv
type LookupFunc func(key string) (string, bool)

// envSetter applies the value of one environment variable
type envSetter func(s *Settings, val string) error

// envVars maps the variable name without prefix to its setter
var envVars = map[string]envSetter{
	"VEHICLE_ID": func(s *Settings, v string) error { s.VehicleID = v; return nil },
	"DEVICE_ID":  func(s *Settings, v string) error { s.DeviceID = v; return nil },

	"CAMERA_DEVICE": intVar(func(s *Settings) *int { return &s.Camera.Device }),
	"CAMERA_FILE":   func(s *Settings, v string) error { s.Camera.File = v; return nil },
	"CAMERA_RESOLUTION": func(s *Settings, v string) error {
		return parseResolution(v, &s.Camera.Width, &s.Camera.Height)
	},
	"CAMERA_FPS":     floatVar(func(s *Settings) *float64 { return &s.Camera.FPS }),
	"BUFFER_SECONDS": floatVar(func(s *Settings) *float64 { return &s.Camera.BufferSeconds }),
	"CPU_PLATFORM":   func(s *Settings, v string) error { s.Camera.CPUPlatform = v; return nil },

	"DETECTION_FPS":    floatVar(func(s *Settings) *float64 { return &s.Detection.FPS }),
	"MODELS_PATH":      func(s *Settings, v string) error { s.Detection.ModelsPath = v; return nil },
	"LABELS_FILE":      func(s *Settings, v string) error { s.Detection.LabelsFile = v; return nil },
	"DETECTION_SLICED": boolVar(func(s *Settings) *bool { return &s.Detection.Sliced }),
	"SLICE_OVERLAP":    floatVar(func(s *Settings) *float64 { return &s.Detection.SliceOverlap }),

	"MASK_INFLATE_RATIO": floatVar(func(s *Settings) *float64 { return &s.Masking.InflateRatio }),
	"MASK_MIN_SIZE":      floatVar(func(s *Settings) *float64 { return &s.Masking.MinSize }),
	"MASK_TYPE":          func(s *Settings, v string) error { s.Masking.Type = strings.ToLower(v); return nil },
	"MASK_BLUR_KERNEL":   intVar(func(s *Settings) *int { return &s.Masking.BlurKernel }),
	"MASK_MOSAIC_SIZE":   intVar(func(s *Settings) *int { return &s.Masking.MosaicSize }),
	"MASK_PERSIST_MS":    intVar(func(s *Settings) *int { return &s.Masking.PersistMS }),
	"MASK_SMOOTH_ALPHA":  floatVar(func(s *Settings) *float64 { return &s.Masking.SmoothAlpha }),
	"MASK_TRACKING":      boolVar(func(s *Settings) *bool { return &s.Masking.Tracking }),
	"REDACT_CLASSES": func(s *Settings, v string) error {
		s.Masking.RedactClasses = detect.ParseClassList(v).List()
		return nil
	},

	"DISPLAY_RESOLUTION": func(s *Settings, v string) error {
		return parseResolution(v, &s.Display.Width, &s.Display.Height)
	},
	"DISPLAY_OUTLINES": boolVar(func(s *Settings) *bool { return &s.Display.Outlines }),

	"CLIP_DIR":            func(s *Settings, v string) error { s.Clips.Dir = v; return nil },
	"CLIP_BEFORE_SECONDS": floatVar(func(s *Settings) *float64 { return &s.Clips.BeforeSeconds }),
	"CLIP_AFTER_SECONDS":  floatVar(func(s *Settings) *float64 { return &s.Clips.AfterSeconds }),

	"LOG_LEVEL":  func(s *Settings, v string) error { s.Log.Level = v; return nil },
	"LOG_FORMAT": func(s *Settings, v string) error { s.Log.Format = v; return nil },
}

func intVar(field func(*Settings) *int) envSetter {
	return func(s *Settings, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(s) = n
		return nil
	}
}

func floatVar(field func(*Settings) *float64) envSetter {
	return func(s *Settings, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*field(s) = f
		return nil
	}
}

func boolVar(field func(*Settings) *bool) envSetter {
	return func(s *Settings, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(s) = b
		return nil
	}
}

// parseResolution parses a resolution given as 1920x1080, 1920,1080 or
// [1920,1080]
func parseResolution(v string, width, height *int) error {

	v = strings.Trim(strings.TrimSpace(v), "[]()")

	parts := strings.FieldsFunc(v, func(r rune) bool {
		return r == 'x' || r == 'X' || r == ','
	})

	if len(parts) != 2 {
		return fmt.Errorf("invalid resolution %q", v)
	}

	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))

	if err != nil {
		return fmt.Errorf("invalid resolution width %q: %w", parts[0], err)
	}

	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))

	if err != nil {
		return fmt.Errorf("invalid resolution height %q: %w", parts[1], err)
	}

	*width = w
	*height = h

	return nil
}

// ApplyEnv overlays the DASHCAM_* variables found by lookup onto the
// settings
func (s *Settings) ApplyEnv(lookup LookupFunc) error {

	var errs []error

	for name, set := range envVars {
		key := EnvPrefix + name

		val, ok := lookup(key)

		if !ok {
			continue
		}

		if err := set(s, val); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}
