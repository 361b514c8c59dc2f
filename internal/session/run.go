package session

import (
	"time"

	"github.com/ayusman/gazetrack/internal/calibration"
)

// Hit is a target confirmed by a blink while the cursor was inside it.
type Hit struct {
	Index    int               `json:"index"`
	Target   calibration.Point `json:"target"`
	Gaze     calibration.Point `json:"gaze"`
	Accuracy float64           `json:"accuracy"` // distance from the target center, px
	Reaction time.Duration     `json:"reaction"` // time since the target became active
	At       time.Time         `json:"at"`
}

// Run summarizes a completed Target Practice session.
type Run struct {
	ID           string        `json:"id"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	TargetCount  int           `json:"target_count"`
	TargetRadius float64       `json:"target_radius"`
	Hits         []Hit         `json:"hits"`
	MeanAccuracy float64       `json:"mean_accuracy"`
	MeanReaction time.Duration `json:"mean_reaction"`
}

// Duration returns the wall time from the first target to the last hit.
func (r Run) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// summarize fills the mean accuracy and reaction time from the hits.
func (r *Run) summarize() {
	if len(r.Hits) == 0 {
		return
	}
	var accuracy float64
	var reaction time.Duration
	for _, h := range r.Hits {
		accuracy += h.Accuracy
		reaction += h.Reaction
	}
	r.MeanAccuracy = accuracy / float64(len(r.Hits))
	r.MeanReaction = reaction / time.Duration(len(r.Hits))
}
