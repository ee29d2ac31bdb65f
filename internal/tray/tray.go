// Package tray provides a system tray menu for switching the fingerglow
// camera source.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Source names reported to the OnSelect callback.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Tray represents the system tray application.
type Tray struct {
	onSelect func(source string)
	onOpen   func()
	onQuit   func()
	selected string
	status   string
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuLocal  *systray.MenuItem
	menuRemote *systray.MenuItem
	menuStatus *systray.MenuItem
}

// New creates a new Tray with the local camera selected.
func New() *Tray {
	return &Tray{selected: SourceLocal}
}

// OnSelect sets the callback called when a source menu item is clicked.
func (t *Tray) OnSelect(fn func(source string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSelect = fn
}

// OnOpen sets the callback called when the viewer menu item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
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

// Quit stops the tray loop.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("fingerglow")
	systray.SetTooltip("fingerglow hand tracking")

	t.mu.Lock()
	t.menuLocal = systray.AddMenuItem("Local camera", "Track the camera attached to this machine")
	t.menuRemote = systray.AddMenuItem("Remote camera", "Pair a phone camera over WebRTC")
	systray.AddSeparator()
	t.menuStatus = systray.AddMenuItem(statusTitle(t.status), "Source status")
	t.menuStatus.Disable()
	t.updateChecks()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Viewer...", "Open the viewer in the browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit fingerglow")

	go func() {
		for {
			select {
			case <-t.menuLocal.ClickedCh:
				t.handleSelect(SourceLocal)
			case <-t.menuRemote.ClickedCh:
				t.handleSelect(SourceRemote)
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// updateChecks marks the selected source. Callers hold t.mu.
func (t *Tray) updateChecks() {
	if t.menuLocal == nil {
		return
	}
	if t.selected == SourceRemote {
		t.menuLocal.Uncheck()
		t.menuRemote.Check()
	} else {
		t.menuRemote.Uncheck()
		t.menuLocal.Check()
	}
}

func (t *Tray) handleSelect(source string) {
	t.mu.Lock()
	t.selected = source
	t.updateChecks()
	callback := t.onSelect
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(source)
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetSource marks source as selected without calling OnSelect. Use it to
// mirror switches made from the browser.
func (t *Tray) SetSource(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.selected = source
	t.updateChecks()
}

// SetStatus updates the status line.
func (t *Tray) SetStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(status))
	}
}

// Selected returns the selected source.
func (t *Tray) Selected() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selected
}

// Status returns the status line text.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return statusTitle(t.status)
}

func statusTitle(status string) string {
	if status == "" {
		return "Status: idle"
	}
	return "Status: " + status
}
