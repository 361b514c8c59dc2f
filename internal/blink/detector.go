// Package blink detects deliberate blinks in a per-frame eye openness stream.
package blink

import "time"

// State is the eye state tracked by the Detector.
type State int

const (
	// Open means the eyes are open.
	Open State = iota
	// Closing means openness dropped below the threshold but not for long enough to count.
	Closing
	// Closed means the eyes have been shut for at least the debounce window.
	Closed
	// Opening means openness recovered but not for long enough to count.
	Opening
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	default:
		return "unknown"
	}
}

// Config holds the blink detection thresholds.
type Config struct {
	ClosedThreshold float64       // openness below this reads as closed
	DebounceFrames  int           // consecutive frames needed to confirm a transition
	MinBlink        time.Duration // shorter closures are noise
	MaxBlink        time.Duration // longer closures are not blinks
}

// DefaultConfig returns the default blink configuration.
func DefaultConfig() Config {
	return Config{
		ClosedThreshold: 0.3,
		DebounceFrames:  2,
		MinBlink:        80 * time.Millisecond,
		MaxBlink:        600 * time.Millisecond,
	}
}

// Event is a deliberate blink.
type Event struct {
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of feeding one frame to the Detector.
type Result struct {
	State State
	// Event is set on the frame a deliberate blink ends.
	Event *Event
	// EyesClosed is set while a closure has lasted longer than MaxBlink,
	// and on the frame such a closure ends.
	EyesClosed bool
}

// Detector is a debounced open/closed state machine that emits an Event when
// a closure of acceptable duration ends. It is not safe for concurrent use.
type Detector struct {
	config      Config
	state       State
	count       int
	closedStart time.Time
}

// New creates a Detector with the given configuration.
func New(config Config) *Detector {
	if config.DebounceFrames < 1 {
		config.DebounceFrames = 1
	}
	return &Detector{config: config}
}

// Reset returns the detector to the Open state.
func (d *Detector) Reset() {
	d.state = Open
	d.count = 0
	d.closedStart = time.Time{}
}

// State returns the current state.
func (d *Detector) State() State {
	return d.state
}

// Update feeds one openness sample taken at ts.
func (d *Detector) Update(openness float64, ts time.Time) Result {
	closed := openness < d.config.ClosedThreshold
	res := Result{}

	switch d.state {
	case Open:
		if closed {
			d.beginClosing(ts)
		}

	case Closing:
		if closed {
			d.count++
			if d.count >= d.config.DebounceFrames {
				d.state = Closed
			}
		} else {
			d.state = Open
			d.count = 0
		}

	case Closed:
		if !closed {
			d.state = Opening
			d.count = 1
			res.Event, res.EyesClosed = d.classify(ts.Sub(d.closedStart))
			if d.count >= d.config.DebounceFrames {
				d.state = Open
				d.count = 0
			}
		}

	case Opening:
		if closed {
			d.beginClosing(ts)
		} else {
			d.count++
			if d.count >= d.config.DebounceFrames {
				d.state = Open
				d.count = 0
			}
		}
	}

	if d.state == Closed && ts.Sub(d.closedStart) > d.config.MaxBlink {
		res.EyesClosed = true
	}

	res.State = d.state
	return res
}

func (d *Detector) beginClosing(ts time.Time) {
	d.state = Closing
	d.count = 1
	d.closedStart = ts
	if d.count >= d.config.DebounceFrames {
		d.state = Closed
	}
}

// classify turns a finished closure into a blink event, noise, or a prolonged closure.
func (d *Detector) classify(duration time.Duration) (*Event, bool) {
	switch {
	case duration < d.config.MinBlink:
		return nil, false
	case duration > d.config.MaxBlink:
		return nil, true
	default:
		return &Event{Start: d.closedStart, Duration: duration}, false
	}
}
