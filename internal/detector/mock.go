package detector

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockProvider is a test implementation of the Provider interface.
// It replays a scripted sequence of Features, one per Detect call.
type MockProvider struct {
	mu       sync.Mutex
	script   []Features
	index    int
	fallback Features
	err      error
	clock    func() time.Time
}

// NewMockProvider creates a new MockProvider instance.
func NewMockProvider() *MockProvider {
	return &MockProvider{clock: time.Now}
}

// SetFeatures sets the value returned once the script is exhausted.
func (m *MockProvider) SetFeatures(f Features) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = f
}

// Queue appends features to the playback script.
func (m *MockProvider) Queue(fs ...Features) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, fs...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetClock overrides the timestamp source used for features without a timestamp.
func (m *MockProvider) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// Remaining returns how many scripted features have not been played yet.
func (m *MockProvider) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script) - m.index
}

// Detect returns the next scripted features or the configured error.
func (m *MockProvider) Detect(frame *gocv.Mat) (Features, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return Features{}, m.err
	}

	f := m.fallback
	if m.index < len(m.script) {
		f = m.script[m.index]
		m.index++
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = m.clock()
	}
	return f, nil
}

// Close is a no-op for the mock provider.
func (m *MockProvider) Close() error {
	return nil
}

// Looking returns open-eyed features with the pupil at the given ratio.
func Looking(x, y float64, ts time.Time) Features {
	return Features{
		Ratio:     Ratio{X: x, Y: y},
		HasRatio:  true,
		Openness:  1,
		Timestamp: ts,
	}
}

// Blinking returns closed-eye features. No pupil is visible while the eyes are shut.
func Blinking(ts time.Time) Features {
	return Features{Openness: 0, Timestamp: ts}
}
