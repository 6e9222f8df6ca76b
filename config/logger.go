package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// parseLevel parses a log level name, empty is info
func parseLevel(level string) (zerolog.Level, error) {

	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))

	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level: %s", level)
	}

	return lvl, nil
}

// Logger returns the logger described by the log settings writing to w.
// Every entry carries the vehicle and device ids
func (s *Settings) Logger(w io.Writer) (zerolog.Logger, error) {

	lvl, err := parseLevel(s.Log.Level)

	if err != nil {
		return zerolog.Nop(), err
	}

	if strings.ToLower(s.Log.Format) != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().
		Str("vehicle", s.VehicleID).Str("device", s.DeviceID).Logger(), nil
}
