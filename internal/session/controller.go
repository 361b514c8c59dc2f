// Package session runs the per-frame gaze control loop: calibration,
// freestyle cursor, and Target Practice.
package session

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/gazetrack/internal/blink"
	"github.com/ayusman/gazetrack/internal/calibration"
	"github.com/ayusman/gazetrack/internal/detector"
	"github.com/ayusman/gazetrack/internal/smoothing"
)

var (
	// ErrNotCalibrated is returned when entering a cursor mode without a finalized calibration.
	ErrNotCalibrated = errors.New("not calibrated")
	// ErrNotCalibrating is returned when confirming or finalizing outside calibration mode.
	ErrNotCalibrating = errors.New("not in calibration mode")
	// ErrNoSample is returned when confirming while the latest frame had no pupil ratio.
	ErrNoSample = errors.New("no gaze sample in the latest frame")
	// ErrTrackingLost is the status reported after too many consecutive frames without a sample.
	ErrTrackingLost = errors.New("tracking lost")
)

// Config holds the session configuration.
type Config struct {
	Calibration calibration.Config
	Smoothing   smoothing.Config
	Blink       blink.Config

	TargetCount  int
	TargetRadius float64
	TargetMargin float64
	// Seed fixes the target layout. Zero seeds from the clock.
	Seed uint64
	// AfterCalibration is the mode entered once calibration finalizes.
	AfterCalibration Mode
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Calibration:      calibration.DefaultConfig(),
		Smoothing:        smoothing.DefaultConfig(),
		Blink:            blink.DefaultConfig(),
		TargetCount:      20,
		TargetRadius:     50,
		TargetMargin:     50,
		AfterCalibration: TargetPractice,
	}
}

// FrameOutput is everything a renderer needs to draw one frame.
type FrameOutput struct {
	Mode       Mode      `json:"mode"`
	Timestamp  time.Time `json:"timestamp"`
	Calibrated bool      `json:"calibrated"`

	Cursor       *calibration.Point `json:"cursor,omitempty"`
	Misses       int                `json:"misses"`
	TrackingLost bool               `json:"tracking_lost"`

	BlinkState string       `json:"blink_state"`
	Blink      *blink.Event `json:"blink,omitempty"`
	EyesClosed bool         `json:"eyes_closed"`

	Anchor           *calibration.Anchor `json:"anchor,omitempty"`
	Settled          bool                `json:"settled"`
	Recorded         int                 `json:"recorded"`
	AnchorCount      int                 `json:"anchor_count"`
	CalibrationError string              `json:"calibration_error,omitempty"`

	Targets     []Target `json:"targets,omitempty"`
	TargetIndex int      `json:"target_index"`
	TargetCount int      `json:"target_count"`
	Hit         *Hit     `json:"hit,omitempty"`
	Complete    bool     `json:"complete"`
	Run         *Run     `json:"run,omitempty"`
}

// Err returns ErrTrackingLost while tracking is lost, otherwise nil.
func (o FrameOutput) Err() error {
	if o.TrackingLost {
		return ErrTrackingLost
	}
	return nil
}

type practice struct {
	targets     []Target
	next        int
	hits        []Hit
	startedAt   time.Time
	activeSince time.Time
	run         *Run
}

// Controller owns all mutable session state and advances it once per frame.
// It is not safe for concurrent use; callers serialize Tick and operator calls.
type Controller struct {
	config Config
	mode   Mode

	engine *calibration.Engine
	filter *smoothing.Filter
	blinks *blink.Detector
	rng    *rand.Rand

	sample    calibration.Sample
	hasSample bool
	now       time.Time
	calibErr  error

	practice *practice

	// OnComplete, if set, is called from Tick with each completed Target Practice run.
	OnComplete func(Run)
}

// New creates a Controller in calibration mode.
func New(config Config) *Controller {
	if config.TargetCount <= 0 {
		config.TargetCount = 20
	}
	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	c := &Controller{
		config: config,
		engine: calibration.NewEngine(config.Calibration),
		filter: smoothing.New(config.Smoothing),
		blinks: blink.New(config.Blink),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	c.engine.Begin(time.Time{})
	return c
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Calibrated reports whether a calibration model is active.
func (c *Controller) Calibrated() bool {
	return c.engine.Model() != nil
}

// Model returns the active calibration model, or nil.
func (c *Controller) Model() *calibration.Model {
	return c.engine.Model()
}

// SwitchMode enters mode at now. Entering Calibration discards the current model
// and any recorded points. Entering Freestyle or Target Practice requires a model.
// Every switch resets the smoothing filter and the blink detector, and re-entering
// Target Practice starts a fresh run.
func (c *Controller) SwitchMode(mode Mode, now time.Time) error {
	switch mode {
	case Calibration:
		c.engine.Discard()
		c.engine.Begin(now)
		c.calibErr = nil
		c.practice = nil
	case Freestyle:
		if !c.Calibrated() {
			return ErrNotCalibrated
		}
		c.practice = nil
	case TargetPractice:
		if !c.Calibrated() {
			return ErrNotCalibrated
		}
		targets := generateTargets(c.rng, c.config.Calibration.Screen, c.config.TargetCount,
			c.config.TargetRadius, c.config.TargetMargin)
		c.practice = &practice{
			targets:     targets,
			hits:        make([]Hit, 0, len(targets)),
			startedAt:   now,
			activeSince: now,
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}

	c.mode = mode
	c.filter.Reset()
	c.blinks.Reset()
	c.hasSample = false
	return nil
}

// Resettle restarts the calibration settle delay, e.g. after a lighting change.
func (c *Controller) Resettle(now time.Time) {
	if c.mode == Calibration {
		c.engine.Resettle(now)
	}
}

// Tick advances the session by one frame. Within a frame the position is mapped
// and smoothed, then the blink detector is updated, then the mode consumes both.
func (c *Controller) Tick(f detector.Features) FrameOutput {
	ts := f.Timestamp
	c.now = ts

	if c.mode == Calibration {
		c.engine.MarkDisplayed(ts)
	}

	var cursor calibration.Point
	var hasCursor bool
	if f.HasRatio {
		c.sample = calibration.Sample{Ratio: f.Ratio, Timestamp: ts}
		c.hasSample = true
		if p, err := c.engine.Map(c.sample); err == nil {
			cursor, hasCursor = c.filter.Update(p, ts), true
		}
	} else {
		c.hasSample = false
		cursor, hasCursor = c.filter.Miss()
	}

	res := c.blinks.Update(f.Openness, ts)

	out := FrameOutput{
		Mode:         c.mode,
		Timestamp:    ts,
		Calibrated:   c.Calibrated(),
		Misses:       c.filter.Misses(),
		TrackingLost: c.filter.TrackingLost(),
		BlinkState:   res.State.String(),
		Blink:        res.Event,
		EyesClosed:   res.EyesClosed,
	}
	if hasCursor && c.mode != Calibration {
		cur := cursor
		out.Cursor = &cur
	}

	switch c.mode {
	case Calibration:
		c.calibrationFrame(&out, ts)
	case TargetPractice:
		c.practiceFrame(&out, res.Event, cursor, hasCursor, ts)
	}

	return out
}

func (c *Controller) calibrationFrame(out *FrameOutput, ts time.Time) {
	out.Recorded, out.AnchorCount = c.engine.Progress()
	if a, ok := c.engine.Current(); ok {
		out.Anchor = &a
		out.Settled = c.engine.Settled(ts)
	}
	if c.calibErr != nil {
		out.CalibrationError = c.calibErr.Error()
	}
}

func (c *Controller) practiceFrame(out *FrameOutput, ev *blink.Event, cursor calibration.Point, hasCursor bool, ts time.Time) {
	p := c.practice
	if p == nil {
		return
	}
	if p.startedAt.IsZero() {
		p.startedAt = ts
		p.activeSince = ts
	}

	out.TargetCount = len(p.targets)

	if p.run == nil && ev != nil && hasCursor {
		target := p.targets[p.next]
		if target.Contains(cursor) {
			hit := Hit{
				Index:    p.next,
				Target:   target.Center,
				Gaze:     cursor,
				Accuracy: target.Center.Distance(cursor),
				Reaction: ts.Sub(p.activeSince),
				At:       ts,
			}
			p.hits = append(p.hits, hit)
			p.next++
			p.activeSince = ts
			out.Hit = &hit

			if p.next == len(p.targets) {
				run := &Run{
					ID:           uuid.NewString(),
					StartedAt:    p.startedAt,
					EndedAt:      ts,
					TargetCount:  len(p.targets),
					TargetRadius: c.config.TargetRadius,
					Hits:         append([]Hit(nil), p.hits...),
				}
				run.summarize()
				p.run = run
				out.Run = run
				if c.OnComplete != nil {
					c.OnComplete(*run)
				}
			}
		}
	}

	out.TargetIndex = p.next
	out.Complete = p.run != nil
	if p.next < len(p.targets) {
		out.Targets = append([]Target(nil), p.targets[p.next:]...)
	}
}

// Confirm records the latest frame's sample for the displayed anchor. Once every
// anchor has a point the calibration is finalized; if that fails, calibration
// restarts from the first anchor and the fit error is returned.
func (c *Controller) Confirm() error {
	if c.mode != Calibration {
		return ErrNotCalibrating
	}
	if !c.hasSample {
		return ErrNoSample
	}

	anchor, ok := c.engine.Current()
	if !ok {
		return c.Finalize()
	}
	if err := c.engine.RecordPoint(c.sample, anchor); err != nil {
		return err
	}
	c.calibErr = nil

	if _, more := c.engine.Current(); more {
		return nil
	}
	if err := c.Finalize(); err != nil {
		c.engine.Begin(c.now)
		return err
	}
	return nil
}

// Finalize fits the calibration from the points recorded so far. On success the
// controller enters the configured post-calibration mode. On failure the recorded
// points and any previous model are kept.
func (c *Controller) Finalize() error {
	if c.mode != Calibration {
		return ErrNotCalibrating
	}
	if _, err := c.engine.Finalize(); err != nil {
		c.calibErr = err
		return err
	}
	c.calibErr = nil

	next := c.config.AfterCalibration
	if next == Calibration {
		next = Freestyle
	}
	return c.SwitchMode(next, c.now)
}

// Targets returns the remaining targets of the current Target Practice run.
func (c *Controller) Targets() []Target {
	if c.practice == nil || c.practice.next >= len(c.practice.targets) {
		return nil
	}
	return append([]Target(nil), c.practice.targets[c.practice.next:]...)
}

// TargetIndex returns the index of the active target, equal to the target count once complete.
func (c *Controller) TargetIndex() int {
	if c.practice == nil {
		return 0
	}
	return c.practice.next
}

// LastRun returns the completed run of the current Target Practice session, if any.
func (c *Controller) LastRun() (Run, bool) {
	if c.practice == nil || c.practice.run == nil {
		return Run{}, false
	}
	return *c.practice.run, true
}

// Status is a compact view of the session for operator surfaces.
type Status struct {
	Mode        Mode `json:"mode"`
	Calibrated  bool `json:"calibrated"`
	Recorded    int  `json:"recorded"`
	AnchorCount int  `json:"anchor_count"`
	TargetIndex int  `json:"target_index"`
	TargetCount int  `json:"target_count"`
	Complete    bool `json:"complete"`
}

// Status returns the current session status.
func (c *Controller) Status() Status {
	st := Status{
		Mode:       c.mode,
		Calibrated: c.Calibrated(),
	}
	st.Recorded, st.AnchorCount = c.engine.Progress()
	if p := c.practice; p != nil {
		st.TargetIndex = p.next
		st.TargetCount = len(p.targets)
		st.Complete = p.run != nil
	}
	return st
}

// String renders the status as a one-line summary.
func (s Status) String() string {
	switch {
	case s.Mode == Calibration:
		return fmt.Sprintf("Calibrating %d/%d", s.Recorded, s.AnchorCount)
	case s.Mode == TargetPractice && s.Complete:
		return fmt.Sprintf("Practice complete (%d targets)", s.TargetCount)
	case s.Mode == TargetPractice:
		return fmt.Sprintf("Practice %d/%d", s.TargetIndex, s.TargetCount)
	default:
		return "Freestyle"
	}
}
