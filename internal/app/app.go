// Package app wires the camera, the gaze provider and the session controller
// into a single frame loop and serializes operator input into it.
package app

import (
	"errors"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/gazetrack/internal/capture"
	"github.com/ayusman/gazetrack/internal/detector"
	"github.com/ayusman/gazetrack/internal/publish"
	"github.com/ayusman/gazetrack/internal/session"
	"github.com/ayusman/gazetrack/internal/store"
)

// ErrNotRunning is returned by operator calls while the frame loop is stopped.
var ErrNotRunning = errors.New("session loop is not running")

// Broadcaster fans messages out to live clients.
type Broadcaster interface {
	Broadcast(v any) error
}

// FramePublisher forwards per-frame output to an external consumer.
type FramePublisher interface {
	Frame(out session.FrameOutput, events []publish.Event)
	Close()
}

// EventSink receives discrete session events.
type EventSink interface {
	Dispatch(e publish.Event)
}

// Config holds configuration options for the application.
type Config struct {
	Session session.Config

	// Camera defaults to the local device CameraID.
	Camera   capture.Camera
	CameraID int
	FPS      int

	// Provider defaults to the gaze service, falling back to a mock provider
	// when the service is not installed.
	Provider detector.Provider
	Detector detector.Config

	LightingThreshold float64

	Store     *store.Store
	Hub       Broadcaster
	Publisher FramePublisher
	Hooks     EventSink

	// OnStatus is called from the frame loop whenever the session status changes.
	OnStatus func(session.Status)
}

// App owns the frame loop. The session controller is only touched from the
// loop goroutine; other goroutines reach it through the ops channel.
type App struct {
	config   Config
	camera   capture.Camera
	provider detector.Provider
	lighting *capture.LightingMonitor
	ctrl     *session.Controller
	differ   publish.Differ
	ops      chan operation
	clock    func() time.Time

	mu          sync.RWMutex
	stopCh      chan struct{}
	done        chan struct{}
	snapshot    session.FrameOutput
	hasSnapshot bool
	latest      gocv.Mat
	hasLatest   bool
	lastStatus  session.Status
	hasStatus   bool
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.FPS <= 0 {
		config.FPS = capture.DefaultFPS
	}

	a := &App{
		config:   config,
		camera:   config.Camera,
		provider: config.Provider,
		lighting: capture.NewLightingMonitor(config.LightingThreshold),
		ctrl:     session.New(config.Session),
		ops:      make(chan operation),
		clock:    time.Now,
	}

	if a.camera == nil {
		a.camera = capture.NewCamera(config.CameraID)
	}

	if a.provider == nil {
		if svc, err := detector.NewGazeServiceProvider(config.Detector); err == nil {
			a.provider = svc
			log.Println("Using gaze service for pupil detection")
		} else {
			log.Printf("Gaze service not available (%v), using mock provider", err)
			a.provider = detector.NewMockProvider()
		}
	}

	a.ctrl.OnComplete = a.saveRun
	return a
}

// Start opens the camera and begins the frame loop.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(a.config.FPS)

	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.run(a.stopCh, a.done)

	log.Printf("Frame loop started at %d fps", a.config.FPS)
	return nil
}

// Stop halts the frame loop and releases the camera and provider.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, done := a.stopCh, a.done
	a.stopCh, a.done = nil, nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}

	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
	if err := a.provider.Close(); err != nil {
		log.Printf("Error closing provider: %v", err)
	}
	if a.config.Publisher != nil {
		a.config.Publisher.Close()
	}

	a.mu.Lock()
	if a.hasLatest {
		a.latest.Close()
		a.hasLatest = false
	}
	a.mu.Unlock()

	log.Println("Frame loop stopped")
}

// Running reports whether the frame loop is active.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// Snapshot returns the output of the most recent frame.
func (a *App) Snapshot() (session.FrameOutput, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot, a.hasSnapshot
}

// LatestFrame returns a copy of the most recent camera frame.
func (a *App) LatestFrame() (gocv.Mat, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.hasLatest {
		return gocv.Mat{}, false
	}
	return a.latest.Clone(), true
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Provider returns the gaze feature provider.
func (a *App) Provider() detector.Provider {
	return a.provider
}

func (a *App) setLatest(frame *gocv.Mat) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hasLatest {
		a.latest.Close()
	}
	a.latest = frame.Clone()
	a.hasLatest = true
}

func (a *App) setSnapshot(out session.FrameOutput) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot = out
	a.hasSnapshot = true
}

// saveRun persists a completed Target Practice run.
func (a *App) saveRun(run session.Run) {
	if a.config.Store == nil {
		return
	}

	rec, hits := toStoreRun(run)
	if err := a.config.Store.Runs().Create(rec, hits); err != nil {
		log.Printf("Failed to save run %s: %v", run.ID, err)
		return
	}
	log.Printf("Saved run %s: %d targets, mean accuracy %.1fpx, mean reaction %s",
		run.ID, run.TargetCount, run.MeanAccuracy, run.MeanReaction.Round(time.Millisecond))
}

func toStoreRun(run session.Run) (*store.Run, []store.Hit) {
	rec := &store.Run{
		ID:             run.ID,
		StartedAt:      run.StartedAt,
		EndedAt:        run.EndedAt,
		TargetCount:    run.TargetCount,
		TargetRadius:   run.TargetRadius,
		MeanAccuracy:   run.MeanAccuracy,
		MeanReactionMs: run.MeanReaction.Milliseconds(),
	}

	hits := make([]store.Hit, len(run.Hits))
	for i, h := range run.Hits {
		hits[i] = store.Hit{
			TargetIndex: h.Index,
			TargetX:     h.Target.X,
			TargetY:     h.Target.Y,
			GazeX:       h.Gaze.X,
			GazeY:       h.Gaze.Y,
			Accuracy:    h.Accuracy,
			ReactionMs:  h.Reaction.Milliseconds(),
			HitAt:       h.At,
		}
	}
	return rec, hits
}
