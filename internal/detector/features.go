// Package detector provides the gaze feature interfaces and types consumed by the tracking core.
package detector

import "time"

// Ratio is a pupil position expressed as a fraction of the detected eye region.
// Values are roughly in [0,1] but may exceed those bounds transiently.
type Ratio struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Features is the per-frame output of a gaze feature provider.
type Features struct {
	Ratio     Ratio     `json:"ratio"`
	HasRatio  bool      `json:"has_ratio"` // false when no pupil was found this frame
	Openness  float64   `json:"openness"`  // 0 = closed, 1 = fully open
	Timestamp time.Time `json:"timestamp"`
}

// Miss returns a Features value with no ratio, used when the provider yields nothing.
// A miss reports the eyes as closed because no pupil could be seen.
func Miss(ts time.Time) Features {
	return Features{Timestamp: ts}
}

// EyeReading is the measurement of a single eye.
type EyeReading struct {
	Ratio    Ratio   `json:"ratio"`
	Found    bool    `json:"found"`
	Openness float64 `json:"openness"`
}

// Fuse combines left and right eye readings into a single Features value.
// The ratio is the mean of the eyes whose pupil was found; openness is
// averaged over both eyes so a one-eyed wink does not read as closed.
func Fuse(left, right EyeReading, ts time.Time) Features {
	f := Features{
		Openness:  (clamp01(left.Openness) + clamp01(right.Openness)) / 2,
		Timestamp: ts,
	}

	var n float64
	for _, eye := range []EyeReading{left, right} {
		if !eye.Found {
			continue
		}
		f.Ratio.X += eye.Ratio.X
		f.Ratio.Y += eye.Ratio.Y
		n++
	}

	if n > 0 {
		f.Ratio.X /= n
		f.Ratio.Y /= n
		f.HasRatio = true
	}

	return f
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
