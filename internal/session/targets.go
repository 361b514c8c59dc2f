package session

import (
	"math"
	"math/rand/v2"

	"github.com/ayusman/gazetrack/internal/calibration"
)

// jitterAttempts bounds the retries for a target that lands too close to its predecessor.
const jitterAttempts = 8

// Target is a circle the user must look at and blink on.
type Target struct {
	Index  int               `json:"index"`
	Center calibration.Point `json:"center"`
	Radius float64           `json:"radius"`
}

// Contains reports whether p lies within the target radius.
func (t Target) Contains(p calibration.Point) bool {
	return t.Center.Distance(p) <= t.Radius
}

// generateTargets spreads count targets over the screen. The usable area, inset
// by margin, is split into a grid of roughly square cells; cells are visited in
// random order and each target is jittered inside its cell. Consecutive targets
// are kept at least two radii apart whenever the cell size allows it.
func generateTargets(rng *rand.Rand, screen calibration.Size, count int, radius, margin float64) []Target {
	if count <= 0 {
		return nil
	}

	width := math.Max(screen.Width-2*margin, 1)
	height := math.Max(screen.Height-2*margin, 1)

	cols := int(math.Ceil(math.Sqrt(float64(count) * width / height)))
	cols = max(cols, 1)
	rows := (count + cols - 1) / cols
	cellW := width / float64(cols)
	cellH := height / float64(rows)

	cells := rng.Perm(rows * cols)[:count]

	targets := make([]Target, 0, count)
	for i, cell := range cells {
		row, col := cell/cols, cell%cols
		center := calibration.Point{
			X: margin + (float64(col)+0.5)*cellW,
			Y: margin + (float64(row)+0.5)*cellH,
		}

		spreadX := math.Max(cellW/2-radius, 0)
		spreadY := math.Max(cellH/2-radius, 0)

		p := center
		for attempt := 0; attempt < jitterAttempts; attempt++ {
			candidate := calibration.Point{
				X: center.X + (rng.Float64()*2-1)*spreadX,
				Y: center.Y + (rng.Float64()*2-1)*spreadY,
			}
			if i == 0 || candidate.Distance(targets[i-1].Center) >= 2*radius {
				p = candidate
				break
			}
		}

		targets = append(targets, Target{
			Index:  i,
			Center: screen.Clamp(p),
			Radius: radius,
		})
	}

	return targets
}
