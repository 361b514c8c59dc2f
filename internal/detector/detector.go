package detector

import (
	"time"

	"gocv.io/x/gocv"
)

// Provider defines the interface for gaze feature provider implementations.
type Provider interface {
	// Detect analyzes a video frame and returns the pupil ratio and eye openness.
	// A frame without a detectable pupil returns Features with HasRatio false, not an error.
	Detect(frame *gocv.Mat) (Features, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Config holds configuration options for gaze feature detection.
type Config struct {
	// Timeout bounds a single Detect call. A call that exceeds it is reported as a miss.
	Timeout time.Duration

	// StartTimeout bounds how long a freshly started helper may take to
	// answer its first frame. Frames arriving meanwhile are reported as misses.
	StartTimeout time.Duration

	// IdleShutdown stops the helper process after this long without frames.
	IdleShutdown time.Duration

	// ScriptPath overrides the gaze service script location.
	ScriptPath string

	// Interpreter runs the script. Empty means a venv python, then python3.
	Interpreter string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Timeout:      200 * time.Millisecond,
		StartTimeout: 15 * time.Second,
		IdleShutdown: 30 * time.Second,
	}
}
