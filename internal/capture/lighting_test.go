package capture

import (
	"math"
	"testing"

	"gocv.io/x/gocv"
)

func uniformFrame(level float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(level, level, level, 0), 120, 160, gocv.MatTypeCV8UC3)
}

func observe(t *testing.T, m *LightingMonitor, level float64) bool {
	t.Helper()
	frame := uniformFrame(level)
	defer frame.Close()

	changed, brightness := m.Observe(&frame)
	if math.Abs(brightness-level) > 1 {
		t.Fatalf("brightness = %.2f, want %.0f", brightness, level)
	}
	return changed
}

func TestLightingMonitor_AbruptChange(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	m := NewLightingMonitor(25)

	if observe(t, m, 100) {
		t.Error("first frame should only set the baseline")
	}
	if observe(t, m, 102) {
		t.Error("small change reported as a lighting shift")
	}
	if !observe(t, m, 170) {
		t.Error("jump of 70 not reported")
	}
	if observe(t, m, 170) {
		t.Error("baseline should move to the new level after a reported change")
	}
	if !observe(t, m, 60) {
		t.Error("drop of 110 not reported")
	}
}

func TestLightingMonitor_GradualDriftIgnored(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	m := NewLightingMonitor(25)
	for level := 80.0; level <= 140; level++ {
		if observe(t, m, level) {
			t.Fatalf("gradual drift reported as a shift at level %.0f (baseline %.1f)", level, m.Baseline())
		}
	}
}

func TestLightingMonitor_DisabledAndReset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	m := NewLightingMonitor(0)
	observe(t, m, 20)
	if observe(t, m, 230) {
		t.Error("zero threshold should disable reporting")
	}

	m.SetThreshold(10)
	m.Reset()
	if observe(t, m, 200) {
		t.Error("first frame after Reset should only set the baseline")
	}
	if m.Baseline() < 199 || m.Baseline() > 201 {
		t.Errorf("Baseline() = %.1f, want ~200", m.Baseline())
	}
}

func TestLightingMonitor_EmptyFrame(t *testing.T) {
	m := NewLightingMonitor(10)
	if changed, b := m.Observe(nil); changed || b != 0 {
		t.Errorf("Observe(nil) = %v, %v", changed, b)
	}
}
