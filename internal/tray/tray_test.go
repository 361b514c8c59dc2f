package tray

import (
	"testing"

	"github.com/ayusman/gazetrack/internal/session"
)

func TestTray_CallbacksBeforeReady(t *testing.T) {
	tr := New()

	var got []session.Mode
	tr.OnMode(func(m session.Mode) { got = append(got, m) })
	confirms := 0
	tr.OnConfirm(func() { confirms++ })

	tr.handleMode(session.TargetPractice)
	tr.handle(func() func() { return tr.onConfirm })

	if len(got) != 1 || got[0] != session.TargetPractice {
		t.Errorf("mode callbacks = %v", got)
	}
	if confirms != 1 {
		t.Errorf("confirm callbacks = %d, want 1", confirms)
	}
}

func TestTray_SetStatusWithoutMenu(t *testing.T) {
	tr := New()
	st := session.Status{Mode: session.Calibration, Recorded: 2, AnchorCount: 9}

	tr.SetStatus(st)

	if tr.Status() != st {
		t.Errorf("Status() = %+v, want %+v", tr.Status(), st)
	}
}
