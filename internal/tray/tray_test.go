package tray

import "testing"

func TestTray_Defaults(t *testing.T) {
	tr := New()

	if got := tr.Selected(); got != SourceLocal {
		t.Errorf("expected %q selected, got %q", SourceLocal, got)
	}
	if got := tr.Status(); got != "Status: idle" {
		t.Errorf("expected idle status, got %q", got)
	}
}

func TestTray_HandleSelectCallsCallback(t *testing.T) {
	tr := New()
	var got []string
	tr.OnSelect(func(source string) { got = append(got, source) })

	tr.handleSelect(SourceRemote)
	tr.handleSelect(SourceLocal)

	if len(got) != 2 || got[0] != SourceRemote || got[1] != SourceLocal {
		t.Errorf("unexpected callbacks %v", got)
	}
	if tr.Selected() != SourceLocal {
		t.Errorf("expected %q selected, got %q", SourceLocal, tr.Selected())
	}
}

func TestTray_SetSourceDoesNotCallback(t *testing.T) {
	tr := New()
	called := false
	tr.OnSelect(func(string) { called = true })

	tr.SetSource(SourceRemote)

	if called {
		t.Error("SetSource must not call OnSelect")
	}
	if tr.Selected() != SourceRemote {
		t.Errorf("expected %q selected, got %q", SourceRemote, tr.Selected())
	}
}

func TestTray_SetStatusBeforeRun(t *testing.T) {
	tr := New()
	tr.SetStatus("Waiting for peer")

	if got := tr.Status(); got != "Status: Waiting for peer" {
		t.Errorf("unexpected status %q", got)
	}
}

func TestTray_HandleOpen(t *testing.T) {
	tr := New()
	tr.handleOpen()

	opened := false
	tr.OnOpen(func() { opened = true })
	tr.handleOpen()

	if !opened {
		t.Error("expected OnOpen callback")
	}
}
