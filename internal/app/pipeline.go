package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ayusman/gazetrack/internal/capture"
	"github.com/ayusman/gazetrack/internal/detector"
	"github.com/ayusman/gazetrack/internal/publish"
	"github.com/ayusman/gazetrack/internal/session"
)

// operation is operator input applied on the loop goroutine.
type operation struct {
	apply func(now time.Time) error
	reply chan opResult
}

type opResult struct {
	status session.Status
	err    error
}

// displayMessage wraps a display update for WebSocket clients.
type displayMessage struct {
	Type string `json:"type"`
	publish.Display
}

// run is the frame loop. Each tick reads one frame, checks lighting, extracts
// gaze features and advances the session. Operator input is applied between
// frames.
func (a *App) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(a.config.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case op := <-a.ops:
			err := op.apply(a.clock())
			op.reply <- opResult{status: a.ctrl.Status(), err: err}
			a.reportStatus()
		case <-ticker.C:
			a.step()
		}
	}
}

// step processes a single frame.
func (a *App) step() {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		if !errors.Is(err, capture.ErrNoFrame) {
			log.Printf("Error reading frame: %v", err)
		}
		return
	}
	defer frame.Close()

	if changed, brightness := a.lighting.Observe(frame); changed {
		log.Printf("Lighting changed (mean %.0f), resettling calibration", brightness)
		a.ctrl.Resettle(a.clock())
	}

	features, err := a.provider.Detect(frame)
	if err != nil {
		log.Printf("Gaze detection error: %v", err)
		features = detector.Miss(a.clock())
	}

	out := a.ctrl.Tick(features)
	a.setLatest(frame)
	a.setSnapshot(out)
	a.emit(out)
	a.reportStatus()
}

// emit forwards the frame and its events to the hub and the publisher.
func (a *App) emit(out session.FrameOutput) {
	events := a.differ.Next(out)

	if a.config.Hub != nil {
		if err := a.config.Hub.Broadcast(displayMessage{Type: "display", Display: publish.DisplayOf(out)}); err != nil {
			log.Printf("Broadcast error: %v", err)
		}
		for _, e := range events {
			a.config.Hub.Broadcast(e)
		}
	}

	if a.config.Publisher != nil {
		a.config.Publisher.Frame(out, events)
	}

	for _, e := range events {
		if a.config.Hooks != nil {
			a.config.Hooks.Dispatch(e)
		}
		switch e.Type {
		case publish.EventMode:
			log.Printf("Mode: %s", e.Mode)
		case publish.EventTrackingLost:
			log.Println("Tracking lost")
		case publish.EventCalibrationError:
			log.Printf("Calibration failed: %s", e.Error)
		}
	}
}

func (a *App) reportStatus() {
	if a.config.OnStatus == nil {
		return
	}
	status := a.ctrl.Status()
	if a.hasStatus && status == a.lastStatus {
		return
	}
	a.lastStatus, a.hasStatus = status, true
	a.config.OnStatus(status)
}

// do runs apply on the loop goroutine and waits for the result.
func (a *App) do(ctx context.Context, apply func(now time.Time) error) (session.Status, error) {
	a.mu.RLock()
	done := a.done
	a.mu.RUnlock()
	if done == nil {
		return session.Status{}, ErrNotRunning
	}

	op := operation{apply: apply, reply: make(chan opResult, 1)}
	select {
	case a.ops <- op:
	case <-done:
		return session.Status{}, ErrNotRunning
	case <-ctx.Done():
		return session.Status{}, ctx.Err()
	}

	select {
	case res := <-op.reply:
		return res.status, res.err
	case <-ctx.Done():
		return session.Status{}, ctx.Err()
	}
}

// SwitchMode changes the session mode.
func (a *App) SwitchMode(ctx context.Context, mode session.Mode) (session.Status, error) {
	return a.do(ctx, func(now time.Time) error {
		return a.ctrl.SwitchMode(mode, now)
	})
}

// Confirm records the current gaze sample for the displayed calibration anchor.
func (a *App) Confirm(ctx context.Context) (session.Status, error) {
	return a.do(ctx, func(time.Time) error {
		return a.ctrl.Confirm()
	})
}

// Finalize fits the calibration from the points recorded so far.
func (a *App) Finalize(ctx context.Context) (session.Status, error) {
	return a.do(ctx, func(time.Time) error {
		return a.ctrl.Finalize()
	})
}

// Status returns the current session status.
func (a *App) Status(ctx context.Context) (session.Status, error) {
	return a.do(ctx, func(time.Time) error { return nil })
}
