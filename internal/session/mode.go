package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned when parsing a mode name that does not exist.
var ErrUnknownMode = errors.New("unknown mode")

// Mode is the top-level state of a session.
type Mode int

const (
	// Calibration collects calibration points for each anchor in turn.
	Calibration Mode = iota
	// Freestyle exposes the smoothed cursor and nothing else.
	Freestyle
	// TargetPractice runs the timed target sequence.
	TargetPractice
)

// String returns the mode name as used in config, HTTP and MQTT payloads.
func (m Mode) String() string {
	switch m {
	case Calibration:
		return "calibration"
	case Freestyle:
		return "freestyle"
	case TargetPractice:
		return "target_practice"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name. Dashes and case are ignored.
func ParseMode(s string) (Mode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "calibration", "calibrate":
		return Calibration, nil
	case "freestyle":
		return Freestyle, nil
	case "target_practice", "practice":
		return TargetPractice, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
