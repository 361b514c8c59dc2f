package detector

import (
	"errors"
	"math"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

const epsilon = 1e-9

func TestFuse(t *testing.T) {
	ts := time.Unix(100, 0)

	tests := []struct {
		name         string
		left, right  EyeReading
		wantHasRatio bool
		wantRatio    Ratio
		wantOpenness float64
	}{
		{
			name:         "both eyes averaged",
			left:         EyeReading{Ratio: Ratio{X: 0.4, Y: 0.5}, Found: true, Openness: 1},
			right:        EyeReading{Ratio: Ratio{X: 0.6, Y: 0.7}, Found: true, Openness: 0.8},
			wantHasRatio: true,
			wantRatio:    Ratio{X: 0.5, Y: 0.6},
			wantOpenness: 0.9,
		},
		{
			name:         "single eye used as is",
			left:         EyeReading{Found: false, Openness: 0.2},
			right:        EyeReading{Ratio: Ratio{X: 0.3, Y: 0.4}, Found: true, Openness: 1},
			wantHasRatio: true,
			wantRatio:    Ratio{X: 0.3, Y: 0.4},
			wantOpenness: 0.6,
		},
		{
			name:         "no pupils is a miss",
			left:         EyeReading{Openness: 0},
			right:        EyeReading{Openness: 0},
			wantHasRatio: false,
			wantOpenness: 0,
		},
		{
			name:         "openness clamped",
			left:         EyeReading{Ratio: Ratio{X: 0.5, Y: 0.5}, Found: true, Openness: 1.7},
			right:        EyeReading{Ratio: Ratio{X: 0.5, Y: 0.5}, Found: true, Openness: -0.3},
			wantHasRatio: true,
			wantRatio:    Ratio{X: 0.5, Y: 0.5},
			wantOpenness: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Fuse(tt.left, tt.right, ts)

			if f.HasRatio != tt.wantHasRatio {
				t.Fatalf("HasRatio = %v, want %v", f.HasRatio, tt.wantHasRatio)
			}
			if math.Abs(f.Ratio.X-tt.wantRatio.X) > epsilon || math.Abs(f.Ratio.Y-tt.wantRatio.Y) > epsilon {
				t.Errorf("Ratio = %+v, want %+v", f.Ratio, tt.wantRatio)
			}
			if math.Abs(f.Openness-tt.wantOpenness) > epsilon {
				t.Errorf("Openness = %f, want %f", f.Openness, tt.wantOpenness)
			}
			if !f.Timestamp.Equal(ts) {
				t.Errorf("Timestamp = %v, want %v", f.Timestamp, ts)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	ts := time.Unix(5, 0)

	t.Run("both eyes", func(t *testing.T) {
		line := `{"left":{"ratio":{"x":0.2,"y":0.4},"found":true,"openness":1},"right":{"ratio":{"x":0.4,"y":0.6},"found":true,"openness":1}}`
		f, err := parseResponse([]byte(line), ts)
		if err != nil {
			t.Fatalf("parseResponse() error = %v", err)
		}
		if !f.HasRatio {
			t.Fatal("expected a ratio")
		}
		if math.Abs(f.Ratio.X-0.3) > epsilon || math.Abs(f.Ratio.Y-0.5) > epsilon {
			t.Errorf("Ratio = %+v, want {0.3 0.5}", f.Ratio)
		}
	})

	t.Run("null eyes", func(t *testing.T) {
		f, err := parseResponse([]byte(`{"left":null,"right":null}`), ts)
		if err != nil {
			t.Fatalf("parseResponse() error = %v", err)
		}
		if f.HasRatio {
			t.Error("expected a miss")
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := parseResponse([]byte(`{not json`), ts); err == nil {
			t.Error("expected error for malformed response")
		}
	})
}

func TestMockProvider(t *testing.T) {
	base := time.Unix(10, 0)
	m := NewMockProvider()
	m.Queue(Looking(0.5, 0.5, base), Blinking(base.Add(time.Second)))
	m.SetFeatures(Looking(0.1, 0.1, time.Time{}))
	m.SetClock(func() time.Time { return base.Add(time.Hour) })

	frame := gocv.NewMat()
	defer frame.Close()

	f, err := m.Detect(&frame)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if !f.HasRatio || f.Ratio.X != 0.5 {
		t.Errorf("first frame = %+v, want looking at 0.5", f)
	}

	f, _ = m.Detect(&frame)
	if f.HasRatio || f.Openness != 0 {
		t.Errorf("second frame = %+v, want blink", f)
	}

	if m.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", m.Remaining())
	}

	f, _ = m.Detect(&frame)
	if f.Ratio.X != 0.1 {
		t.Errorf("fallback frame = %+v, want ratio 0.1", f)
	}
	if !f.Timestamp.Equal(base.Add(time.Hour)) {
		t.Errorf("fallback timestamp = %v, want clock time", f.Timestamp)
	}

	wantErr := errors.New("camera unplugged")
	m.SetError(wantErr)
	if _, err := m.Detect(&frame); !errors.Is(err, wantErr) {
		t.Errorf("Detect() error = %v, want %v", err, wantErr)
	}
}

func TestNewGazeServiceProvider_MissingScript(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := NewGazeServiceProvider(Config{}); err == nil {
		t.Error("expected error when the gaze service script cannot be found")
	}
}
