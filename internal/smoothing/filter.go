// Package smoothing stabilizes the mapped gaze position from frame to frame.
package smoothing

import (
	"math"
	"time"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"

	"github.com/ayusman/gazetrack/internal/calibration"
)

const (
	// snapDistance is the residual, in pixels, below which the output jumps to the input.
	snapDistance = 1e-6
	// maxMisses bounds the consecutive miss counter.
	maxMisses = 1 << 20
)

// Config holds the smoothing weights.
type Config struct {
	// Alpha is the steady-state weight of each new position, in (0,1].
	Alpha float64
	// ResumeAlpha is the weight applied on the first good frame after a gap.
	ResumeAlpha float64
	// ResumeRampFrames eases the weight from ResumeAlpha back to Alpha over this
	// many frames after the first good one. Zero switches back immediately.
	ResumeRampFrames int
	// LostAfter is the number of consecutive misses after which tracking counts as lost.
	LostAfter int
}

// DefaultConfig returns the default smoothing configuration.
func DefaultConfig() Config {
	return Config{
		Alpha:            0.35,
		ResumeAlpha:      0.1,
		ResumeRampFrames: 5,
		LostAfter:        15,
	}
}

// Filter is an exponential smoothing filter over screen positions.
// It is not safe for concurrent use.
type Filter struct {
	config     Config
	value      calibration.Point
	seeded     bool
	misses     int
	ramp       *gween.Tween
	lastUpdate time.Time
}

// New creates a Filter with the given configuration.
func New(config Config) *Filter {
	if config.Alpha <= 0 || config.Alpha > 1 {
		config.Alpha = 1
	}
	if config.ResumeAlpha <= 0 || config.ResumeAlpha > 1 {
		config.ResumeAlpha = config.Alpha
	}
	return &Filter{config: config}
}

// Reset clears the filter state. The next Update seeds from its input.
func (f *Filter) Reset() {
	f.value = calibration.Point{}
	f.seeded = false
	f.misses = 0
	f.ramp = nil
	f.lastUpdate = time.Time{}
}

// Update feeds a new raw position and returns the smoothed position.
func (f *Filter) Update(p calibration.Point, ts time.Time) calibration.Point {
	f.lastUpdate = ts

	if !f.seeded {
		f.value = p
		f.seeded = true
		f.misses = 0
		return f.value
	}

	alpha := f.alpha()
	f.misses = 0

	f.value.X += alpha * (p.X - f.value.X)
	f.value.Y += alpha * (p.Y - f.value.Y)

	if math.Abs(p.X-f.value.X) < snapDistance && math.Abs(p.Y-f.value.Y) < snapDistance {
		f.value = p
	}

	return f.value
}

// alpha returns the weight for the current good frame and advances the resume ramp.
func (f *Filter) alpha() float64 {
	if f.misses > 0 {
		if f.config.ResumeRampFrames > 0 {
			f.ramp = gween.New(
				float32(f.config.ResumeAlpha),
				float32(f.config.Alpha),
				float32(f.config.ResumeRampFrames),
				ease.Linear,
			)
		}
		return f.config.ResumeAlpha
	}

	if f.ramp != nil {
		a, done := f.ramp.Update(1)
		if done {
			f.ramp = nil
		}
		return float64(a)
	}

	return f.config.Alpha
}

// Miss records a frame without a raw position. The last smoothed position is
// held unchanged; ok is false if the filter has never been seeded.
func (f *Filter) Miss() (p calibration.Point, ok bool) {
	if f.misses < maxMisses {
		f.misses++
	}
	return f.value, f.seeded
}

// Value returns the current smoothed position.
func (f *Filter) Value() (calibration.Point, bool) {
	return f.value, f.seeded
}

// Misses returns the number of consecutive frames without a raw position.
func (f *Filter) Misses() int {
	return f.misses
}

// TrackingLost reports whether the consecutive miss count reached the configured limit.
func (f *Filter) TrackingLost() bool {
	return f.config.LostAfter > 0 && f.misses >= f.config.LostAfter
}

// LastUpdate returns the timestamp of the last good frame.
func (f *Filter) LastUpdate() time.Time {
	return f.lastUpdate
}
