package mask

import (
	"fmt"
	"strings"
	"time"
)

// Strategy is the irreversible obfuscation applied to a masked region
type Strategy int

const (
	// Pixelate downsamples the region then upsamples it with nearest
	// neighbour interpolation
	Pixelate Strategy = iota
	// Blur applies a gaussian blur with an odd kernel
	Blur
)

// String returns the config name of the strategy
func (s Strategy) String() string {
	if s == Blur {
		return "blur"
	}
	return "pixelate"
}

// ParseStrategy converts a config string to a Strategy.  Unknown values fall
// back to Pixelate
func ParseStrategy(s string) Strategy {
	if strings.EqualFold(strings.TrimSpace(s), "blur") {
		return Blur
	}
	return Pixelate
}

// MarshalText implements encoding.TextMarshaler
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Strategy) UnmarshalText(text []byte) error {
	*s = ParseStrategy(string(text))
	return nil
}

// Config is the immutable configuration of a masking session.  Trackers
// derive their smoothing state from it so a change of Config requires a new
// tracker
type Config struct {
	// InflateRatio expands each box by this ratio of its width and height on
	// every side
	InflateRatio float64
	// MinSize is the minimum width and height in pixels of a masked region
	MinSize float64
	// Strategy is the obfuscation method
	Strategy Strategy
	// BlurKernel is the gaussian kernel size, forced odd
	BlurKernel int
	// PixelBlock is the size in pixels of a pixelation block
	PixelBlock int
	// Persist is how long a region stays masked after its last detection
	Persist time.Duration
	// SmoothAlpha is the exponential smoothing factor in (0,1), closer to 1
	// gives more inertia
	SmoothAlpha float64
}

// DefaultConfig returns the default masking configuration
func DefaultConfig() Config {
	return Config{
		InflateRatio: 0.4,
		MinSize:      32,
		Strategy:     Pixelate,
		BlurKernel:   51,
		PixelBlock:   12,
		Persist:      500 * time.Millisecond,
		SmoothAlpha:  0.6,
	}
}

// Normalize corrects inconsistent values instead of rejecting them.  Even
// blur kernels are incremented to the next odd value
func (c Config) Normalize() Config {

	def := DefaultConfig()

	if c.InflateRatio < 0 {
		c.InflateRatio = 0
	}

	if c.MinSize < 0 {
		c.MinSize = 0
	}

	if c.BlurKernel <= 0 {
		c.BlurKernel = def.BlurKernel
	}

	if c.BlurKernel < 3 {
		c.BlurKernel = 3
	}

	if c.BlurKernel%2 == 0 {
		c.BlurKernel++
	}

	if c.PixelBlock <= 0 {
		c.PixelBlock = def.PixelBlock
	}

	// a block of one pixel leaves the region untouched
	if c.PixelBlock < 2 {
		c.PixelBlock = 2
	}

	if c.Persist < 0 {
		c.Persist = 0
	}

	if c.SmoothAlpha <= 0 || c.SmoothAlpha >= 1 {
		c.SmoothAlpha = def.SmoothAlpha
	}

	return c
}

// String returns a summary of the config for logging
func (c Config) String() string {
	return fmt.Sprintf("inflate=%.2f min=%.0f strategy=%s kernel=%d block=%d persist=%s alpha=%.2f",
		c.InflateRatio, c.MinSize, c.Strategy, c.BlurKernel, c.PixelBlock,
		c.Persist, c.SmoothAlpha)
}
