package calibration

import (
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/gazetrack/internal/detector"
)

var (
	// ErrDegenerateSample is returned when a sample is too close to an already recorded point.
	ErrDegenerateSample = errors.New("degenerate sample")
	// ErrInsufficientPoints is returned when finalizing with fewer than the minimum number of points.
	ErrInsufficientPoints = errors.New("insufficient calibration points")
	// ErrInsufficientVariance is returned when the recorded ratios do not spread enough on an axis.
	ErrInsufficientVariance = errors.New("insufficient ratio variance")
	// ErrNoActiveModel is returned when mapping before any calibration has been finalized.
	ErrNoActiveModel = errors.New("no active calibration model")
	// ErrNotSettled is returned when a point is confirmed before the settle delay has elapsed.
	ErrNotSettled = errors.New("anchor displayed too recently")
	// ErrUnexpectedAnchor is returned when recording a point for an anchor that is not displayed.
	ErrUnexpectedAnchor = errors.New("anchor is not the displayed anchor")
	// ErrAllAnchorsRecorded is returned when recording after every anchor already has a point.
	ErrAllAnchorsRecorded = errors.New("all anchors recorded")
)

// Config holds the calibration parameters.
type Config struct {
	Screen          Size
	Grid            int           // anchors per row and column
	Margin          float64       // anchor inset from the screen edge in pixels
	MinPoints       int           // minimum recorded points before Finalize
	MinAxisVariance float64       // minimum per-axis ratio variance
	NoiseThreshold  float64       // minimum per-axis ratio difference between points
	SettleDelay     time.Duration // dwell before an anchor accepts a point
}

// DefaultConfig returns a Config for a 1920x1080 screen with a 3x3 anchor grid.
func DefaultConfig() Config {
	return Config{
		Screen:          Size{Width: 1920, Height: 1080},
		Grid:            3,
		Margin:          50,
		MinPoints:       5,
		MinAxisVariance: 1e-5,
		NoiseThreshold:  0.005,
		SettleDelay:     500 * time.Millisecond,
	}
}

// Sample is a raw pupil ratio observed at a point in time.
type Sample struct {
	Ratio     detector.Ratio
	Timestamp time.Time
}

// Engine collects operator-confirmed calibration points and fits a Model.
// It is not safe for concurrent use.
type Engine struct {
	config      Config
	anchors     []Anchor
	points      []CalibrationPoint
	next        int
	displayedAt time.Time
	active      *Model
}

// NewEngine creates an Engine with the given configuration.
func NewEngine(config Config) *Engine {
	if config.Grid < 2 {
		config.Grid = 2
	}
	return &Engine{
		config:  config,
		anchors: Anchors(config.Screen, config.Grid, config.Margin),
	}
}

// Begin clears recorded points and returns the anchors to fixate in order.
// The first anchor counts as displayed at now; a zero now defers that until MarkDisplayed.
// The active model, if any, is kept until Discard or a successful Finalize.
func (e *Engine) Begin(now time.Time) []Anchor {
	e.points = e.points[:0]
	e.next = 0
	e.displayedAt = now

	out := make([]Anchor, len(e.anchors))
	copy(out, e.anchors)
	return out
}

// MarkDisplayed records when the current anchor became visible, if not yet known.
func (e *Engine) MarkDisplayed(now time.Time) {
	if e.displayedAt.IsZero() {
		e.displayedAt = now
	}
}

// Resettle restarts the settle delay for the current anchor.
func (e *Engine) Resettle(now time.Time) {
	e.displayedAt = now
}

// Current returns the anchor awaiting confirmation.
// It returns false once every anchor has a recorded point.
func (e *Engine) Current() (Anchor, bool) {
	if e.next >= len(e.anchors) {
		return Anchor{}, false
	}
	return e.anchors[e.next], true
}

// Progress returns the number of recorded points and the total anchor count.
func (e *Engine) Progress() (recorded, total int) {
	return len(e.points), len(e.anchors)
}

// Settled reports whether the current anchor has been displayed long enough at now.
func (e *Engine) Settled(now time.Time) bool {
	if e.displayedAt.IsZero() {
		return false
	}
	return now.Sub(e.displayedAt) >= e.config.SettleDelay
}

// RecordPoint pairs a sample with the displayed anchor.
func (e *Engine) RecordPoint(s Sample, a Anchor) error {
	current, ok := e.Current()
	if !ok {
		return ErrAllAnchorsRecorded
	}
	if a.Index != current.Index {
		return fmt.Errorf("%w: got %d, displaying %d", ErrUnexpectedAnchor, a.Index, current.Index)
	}
	if !e.Settled(s.Timestamp) {
		return ErrNotSettled
	}

	for _, p := range e.points {
		dx := s.Ratio.X - p.Ratio.X
		dy := s.Ratio.Y - p.Ratio.Y
		if abs(dx) <= e.config.NoiseThreshold && abs(dy) <= e.config.NoiseThreshold {
			return fmt.Errorf("%w: matches anchor %d", ErrDegenerateSample, p.Anchor)
		}
	}

	e.points = append(e.points, CalibrationPoint{
		Ratio:  s.Ratio,
		Screen: current.Screen,
		Anchor: current.Index,
	})
	e.next++
	e.displayedAt = s.Timestamp

	return nil
}

// Points returns a copy of the recorded points in recording order.
func (e *Engine) Points() []CalibrationPoint {
	out := make([]CalibrationPoint, len(e.points))
	copy(out, e.points)
	return out
}

// Finalize fits a Model from the recorded points and makes it the active model.
// On failure the previously active model is left in place.
func (e *Engine) Finalize() (*Model, error) {
	n := len(e.points)
	if n < e.config.MinPoints || n < 3 {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientPoints, n, max(e.config.MinPoints, 3))
	}

	varX, varY := ratioVariance(e.points)
	if varX < e.config.MinAxisVariance || varY < e.config.MinAxisVariance {
		return nil, fmt.Errorf("%w: x=%.2g y=%.2g, need %.2g", ErrInsufficientVariance, varX, varY, e.config.MinAxisVariance)
	}

	m := &Model{
		Points: e.Points(),
		screen: e.config.Screen,
	}
	m.Min, m.Max = ratioBounds(e.points)

	if e.gridComplete() {
		byAnchor := make([]CalibrationPoint, len(e.anchors))
		for _, p := range e.points {
			byAnchor[p.Anchor] = p
		}
		if tris, folded := fitGrid(byAnchor, e.config.Grid); len(tris) > 0 {
			m.Method = MethodGrid
			m.Folded = folded
			m.triangles = tris
		}
	}

	if m.Method == "" {
		ax, ay, ok := fitAffine(e.points)
		if !ok {
			return nil, fmt.Errorf("%w: ratios are collinear", ErrInsufficientVariance)
		}
		m.Method = MethodAffine
		m.affineX, m.affineY = ax, ay
	}

	e.active = m
	return m, nil
}

// Map converts a raw sample to a screen position using the active model.
func (e *Engine) Map(s Sample) (Point, error) {
	if e.active == nil {
		return Point{}, ErrNoActiveModel
	}
	return e.active.Map(s.Ratio), nil
}

// Model returns the active model, or nil.
func (e *Engine) Model() *Model {
	return e.active
}

// Discard drops the active model.
func (e *Engine) Discard() {
	e.active = nil
}

func (e *Engine) gridComplete() bool {
	if len(e.points) != len(e.anchors) {
		return false
	}
	seen := make([]bool, len(e.anchors))
	for _, p := range e.points {
		if p.Anchor < 0 || p.Anchor >= len(seen) || seen[p.Anchor] {
			return false
		}
		seen[p.Anchor] = true
	}
	return true
}

func ratioVariance(points []CalibrationPoint) (float64, float64) {
	n := float64(len(points))
	var mx, my float64
	for _, p := range points {
		mx += p.Ratio.X
		my += p.Ratio.Y
	}
	mx /= n
	my /= n

	var vx, vy float64
	for _, p := range points {
		vx += (p.Ratio.X - mx) * (p.Ratio.X - mx)
		vy += (p.Ratio.Y - my) * (p.Ratio.Y - my)
	}
	return vx / n, vy / n
}

func ratioBounds(points []CalibrationPoint) (lo, hi detector.Ratio) {
	lo, hi = points[0].Ratio, points[0].Ratio
	for _, p := range points[1:] {
		lo.X = min(lo.X, p.Ratio.X)
		lo.Y = min(lo.Y, p.Ratio.Y)
		hi.X = max(hi.X, p.Ratio.X)
		hi.Y = max(hi.Y, p.Ratio.Y)
	}
	return lo, hi
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
