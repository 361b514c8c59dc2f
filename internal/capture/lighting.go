package capture

import (
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

const (
	// lightingBlurSize is the Gaussian kernel applied before averaging.
	lightingBlurSize = 21
	// baselineWeight is how fast the baseline follows gradual brightness drift.
	baselineWeight = 0.05
)

// LightingMonitor tracks mean scene brightness and reports abrupt shifts.
// Pupil detection needs a moment to re-adapt after such a shift.
type LightingMonitor struct {
	threshold   float64
	baseline    float64
	initialized bool
	mu          sync.Mutex
}

// NewLightingMonitor creates a monitor that reports a change when the mean
// brightness (0-255) moves more than threshold away from the baseline.
// A threshold of zero disables reporting.
func NewLightingMonitor(threshold float64) *LightingMonitor {
	return &LightingMonitor{threshold: threshold}
}

// Observe measures frame and reports whether lighting changed abruptly.
// After a reported change the baseline jumps to the new level; otherwise it
// follows slowly so gradual drift never triggers.
func (m *LightingMonitor) Observe(frame *gocv.Mat) (changed bool, brightness float64) {
	if frame == nil || frame.Empty() {
		return false, 0
	}
	brightness = meanBrightness(frame)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		m.baseline = brightness
		m.initialized = true
		return false, brightness
	}

	if m.threshold > 0 && math.Abs(brightness-m.baseline) > m.threshold {
		m.baseline = brightness
		return true, brightness
	}

	m.baseline += baselineWeight * (brightness - m.baseline)
	return false, brightness
}

// Baseline returns the current reference brightness.
func (m *LightingMonitor) Baseline() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseline
}

// Reset forgets the baseline; the next frame becomes the new reference.
func (m *LightingMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseline = 0
	m.initialized = false
}

// SetThreshold changes the reporting threshold. Negative values are ignored.
func (m *LightingMonitor) SetThreshold(threshold float64) {
	if threshold < 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

func meanBrightness(frame *gocv.Mat) float64 {
	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: lightingBlurSize, Y: lightingBlurSize}, 0, 0, gocv.BorderDefault)

	return blurred.Mean().Val1
}
