// Package publish turns the per-frame session output into discrete events and
// a compact display message, and forwards both to an MQTT broker.
package publish

import (
	"time"

	"github.com/ayusman/gazetrack/internal/calibration"
	"github.com/ayusman/gazetrack/internal/session"
)

// Event types.
const (
	EventMode             = "mode"
	EventBlink            = "blink"
	EventHit              = "hit"
	EventComplete         = "complete"
	EventTrackingLost     = "tracking_lost"
	EventTrackingRestored = "tracking_restored"
	EventCalibrationError = "calibration_error"
)

// Event is a discrete change in the session worth announcing.
type Event struct {
	Type       string       `json:"type"`
	Timestamp  time.Time    `json:"timestamp"`
	Mode       string       `json:"mode,omitempty"`
	DurationMs int64        `json:"duration_ms,omitempty"`
	Hit        *session.Hit `json:"hit,omitempty"`
	Run        *session.Run `json:"run,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// Display is the cursor and target state a remote display needs each frame.
type Display struct {
	Mode        string             `json:"mode"`
	Timestamp   time.Time          `json:"timestamp"`
	Cursor      *calibration.Point `json:"cursor,omitempty"`
	Target      *session.Target    `json:"target,omitempty"`
	TargetIndex int                `json:"target_index"`
	TargetCount int                `json:"target_count"`
	Anchor      *calibration.Point `json:"anchor,omitempty"`
	EyesClosed  bool               `json:"eyes_closed"`
}

// DisplayOf extracts the display message from a frame.
func DisplayOf(out session.FrameOutput) Display {
	d := Display{
		Mode:        out.Mode.String(),
		Timestamp:   out.Timestamp,
		Cursor:      out.Cursor,
		TargetIndex: out.TargetIndex,
		TargetCount: out.TargetCount,
		EyesClosed:  out.EyesClosed,
	}
	if len(out.Targets) > 0 {
		t := out.Targets[0]
		d.Target = &t
	}
	if out.Anchor != nil {
		p := out.Anchor.Screen
		d.Anchor = &p
	}
	return d
}

// Differ compares consecutive frames and reports what changed. The zero value
// is ready to use; the first frame always yields a mode event.
type Differ struct {
	started  bool
	mode     session.Mode
	lost     bool
	calibErr string
}

// Next returns the events carried by out relative to the previous frame.
func (d *Differ) Next(out session.FrameOutput) []Event {
	var events []Event
	at := out.Timestamp

	if !d.started || out.Mode != d.mode {
		events = append(events, Event{Type: EventMode, Timestamp: at, Mode: out.Mode.String()})
		d.mode = out.Mode
		d.lost = false
		d.calibErr = ""
	}
	d.started = true

	if out.TrackingLost != d.lost {
		typ := EventTrackingRestored
		if out.TrackingLost {
			typ = EventTrackingLost
		}
		events = append(events, Event{Type: typ, Timestamp: at})
		d.lost = out.TrackingLost
	}

	if out.CalibrationError != d.calibErr {
		if out.CalibrationError != "" {
			events = append(events, Event{Type: EventCalibrationError, Timestamp: at, Error: out.CalibrationError})
		}
		d.calibErr = out.CalibrationError
	}

	if out.Blink != nil {
		events = append(events, Event{
			Type:       EventBlink,
			Timestamp:  at,
			DurationMs: out.Blink.Duration.Milliseconds(),
		})
	}
	if out.Hit != nil {
		events = append(events, Event{Type: EventHit, Timestamp: at, Hit: out.Hit})
	}
	if out.Run != nil {
		events = append(events, Event{Type: EventComplete, Timestamp: at, Run: out.Run})
	}

	return events
}
