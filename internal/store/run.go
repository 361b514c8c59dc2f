package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Run is a completed Target Practice session.
type Run struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	TargetCount    int       `json:"target_count"`
	TargetRadius   float64   `json:"target_radius"`
	MeanAccuracy   float64   `json:"mean_accuracy"`
	MeanReactionMs int64     `json:"mean_reaction_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// Hit is one target hit within a run.
type Hit struct {
	RunID       string    `json:"run_id"`
	TargetIndex int       `json:"target_index"`
	TargetX     float64   `json:"target_x"`
	TargetY     float64   `json:"target_y"`
	GazeX       float64   `json:"gaze_x"`
	GazeY       float64   `json:"gaze_y"`
	Accuracy    float64   `json:"accuracy"`
	ReactionMs  int64     `json:"reaction_ms"`
	HitAt       time.Time `json:"hit_at"`
}

// RunRepository provides operations for practice runs and their hits.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Create inserts a run and its hits in a single transaction.
func (r *RunRepository) Create(run *Run, hits []Hit) error {
	if run.ID == "" {
		return fmt.Errorf("run id is empty")
	}
	run.CreatedAt = time.Now()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, started_at, ended_at, target_count, target_radius, mean_accuracy, mean_reaction_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.EndedAt, run.TargetCount, run.TargetRadius,
		run.MeanAccuracy, run.MeanReactionMs, run.CreatedAt,
	)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO hits (run_id, target_index, target_x, target_y, gaze_x, gaze_y, accuracy, reaction_ms, hit_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range hits {
		h := &hits[i]
		h.RunID = run.ID
		if _, err := stmt.Exec(h.RunID, h.TargetIndex, h.TargetX, h.TargetY, h.GazeX, h.GazeY,
			h.Accuracy, h.ReactionMs, h.HitAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	run := &Run{}

	err := r.db.QueryRow(
		`SELECT id, started_at, ended_at, target_count, target_radius, mean_accuracy, mean_reaction_ms, created_at
		 FROM runs WHERE id = ?`,
		id,
	).Scan(&run.ID, &run.StartedAt, &run.EndedAt, &run.TargetCount, &run.TargetRadius,
		&run.MeanAccuracy, &run.MeanReactionMs, &run.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return run, nil
}

// List retrieves runs, most recent first. A limit of zero or less returns all runs.
func (r *RunRepository) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, target_count, target_radius, mean_accuracy, mean_reaction_ms, created_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(&run.ID, &run.StartedAt, &run.EndedAt, &run.TargetCount, &run.TargetRadius,
			&run.MeanAccuracy, &run.MeanReactionMs, &run.CreatedAt)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// Hits retrieves the hits of a run in target order.
func (r *RunRepository) Hits(runID string) ([]Hit, error) {
	rows, err := r.db.Query(
		`SELECT run_id, target_index, target_x, target_y, gaze_x, gaze_y, accuracy, reaction_ms, hit_at
		 FROM hits WHERE run_id = ? ORDER BY target_index`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.RunID, &h.TargetIndex, &h.TargetX, &h.TargetY, &h.GazeX, &h.GazeY,
			&h.Accuracy, &h.ReactionMs, &h.HitAt); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return hits, nil
}

// Delete removes a run and its hits by ID.
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
