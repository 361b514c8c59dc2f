// Package tray provides the system tray menu for switching session modes and
// confirming calibration points.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/gazetrack/internal/session"
)

// Tray represents the system tray application.
type Tray struct {
	onMode    func(mode session.Mode)
	onConfirm func()
	onResults func()
	onQuit    func()
	status    session.Status
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuStatus    *systray.MenuItem
	menuConfirm   *systray.MenuItem
	menuFreestyle *systray.MenuItem
	menuPractice  *systray.MenuItem
}

// New creates a new Tray instance.
func New() *Tray {
	return &Tray{}
}

// OnMode sets the callback invoked when a mode menu item is clicked.
func (t *Tray) OnMode(fn func(mode session.Mode)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMode = fn
}

// OnConfirm sets the callback invoked when "Confirm point" is clicked.
func (t *Tray) OnConfirm(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConfirm = fn
}

// OnResults sets the callback invoked when "Open Results..." is clicked.
func (t *Tray) OnResults(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onResults = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the tray event loop.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Gaze")
	systray.SetTooltip("Gaze cursor")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem(t.status.String(), "Session status")
	t.menuStatus.Disable()
	systray.AddSeparator()

	menuCalibrate := systray.AddMenuItem("Calibrate", "Start a new calibration")
	t.menuConfirm = systray.AddMenuItem("Confirm point", "Record the gaze for the displayed anchor")
	t.menuFreestyle = systray.AddMenuItem("Freestyle", "Show the gaze cursor")
	t.menuPractice = systray.AddMenuItem("Target Practice", "Start a target practice run")
	systray.AddSeparator()

	menuResults := systray.AddMenuItem("Open Results...", "Open practice results in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit")
	t.applyStatus()
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-menuCalibrate.ClickedCh:
				t.handleMode(session.Calibration)
			case <-t.menuConfirm.ClickedCh:
				t.handle(func() func() { return t.onConfirm })
			case <-t.menuFreestyle.ClickedCh:
				t.handleMode(session.Freestyle)
			case <-t.menuPractice.ClickedCh:
				t.handleMode(session.TargetPractice)
			case <-menuResults.ClickedCh:
				t.handle(func() func() { return t.onResults })
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) handleMode(mode session.Mode) {
	t.mu.RLock()
	callback := t.onMode
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(mode)
	}
}

func (t *Tray) handle(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.handle(func() func() { return t.onQuit })
	systray.Quit()
}

// SetStatus updates the status line and enables the items valid for it.
func (t *Tray) SetStatus(status session.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	t.applyStatus()
}

// Status returns the last status passed to SetStatus.
func (t *Tray) Status() session.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// applyStatus must be called with mu held.
func (t *Tray) applyStatus() {
	if t.menuStatus == nil {
		return
	}
	t.menuStatus.SetTitle(t.status.String())

	if t.status.Mode == session.Calibration {
		t.menuConfirm.Enable()
	} else {
		t.menuConfirm.Disable()
	}
	if t.status.Calibrated {
		t.menuFreestyle.Enable()
		t.menuPractice.Enable()
	} else {
		t.menuFreestyle.Disable()
		t.menuPractice.Disable()
	}
}
