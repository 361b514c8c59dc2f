package session

import (
	"math/rand/v2"
	"testing"

	"github.com/ayusman/gazetrack/internal/calibration"
)

func TestGenerateTargets(t *testing.T) {
	screens := []calibration.Size{
		{Width: 1920, Height: 1080},
		{Width: 1280, Height: 800},
		{Width: 1080, Height: 1920},
	}

	for _, screen := range screens {
		for seed := uint64(1); seed <= 25; seed++ {
			rng := rand.New(rand.NewPCG(seed, seed))
			targets := generateTargets(rng, screen, 20, 50, 50)

			if len(targets) != 20 {
				t.Fatalf("%vx%v seed %d: got %d targets, want 20", screen.Width, screen.Height, seed, len(targets))
			}

			for i, tg := range targets {
				if tg.Index != i || tg.Radius != 50 {
					t.Errorf("target %d: index %d radius %v", i, tg.Index, tg.Radius)
				}
				c := tg.Center
				if c.X < 50 || c.X > screen.Width-50 || c.Y < 50 || c.Y > screen.Height-50 {
					t.Errorf("%vx%v seed %d: target %d at %+v outside margin", screen.Width, screen.Height, seed, i, c)
				}
				if i > 0 {
					if d := c.Distance(targets[i-1].Center); d < 100 {
						t.Errorf("%vx%v seed %d: targets %d and %d only %.1f apart", screen.Width, screen.Height, seed, i-1, i, d)
					}
				}
			}
		}
	}
}

func TestGenerateTargets_Deterministic(t *testing.T) {
	screen := calibration.Size{Width: 1920, Height: 1080}
	a := generateTargets(rand.New(rand.NewPCG(7, 7)), screen, 20, 50, 50)
	b := generateTargets(rand.New(rand.NewPCG(7, 7)), screen, 20, 50, 50)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("target %d differs for the same seed: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestTargetContains(t *testing.T) {
	tg := Target{Center: calibration.Point{X: 100, Y: 100}, Radius: 50}

	tests := []struct {
		p    calibration.Point
		want bool
	}{
		{calibration.Point{X: 100, Y: 100}, true},
		{calibration.Point{X: 150, Y: 100}, true},
		{calibration.Point{X: 130, Y: 140}, true},
		{calibration.Point{X: 151, Y: 100}, false},
		{calibration.Point{X: 140, Y: 140}, false},
	}

	for _, tt := range tests {
		if got := tg.Contains(tt.p); got != tt.want {
			t.Errorf("Contains(%+v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}
