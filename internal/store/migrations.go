package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Runs table - one row per completed Target Practice session
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL,
			target_count INTEGER NOT NULL,
			target_radius REAL NOT NULL,
			mean_accuracy REAL NOT NULL DEFAULT 0,
			mean_reaction_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Hits table - one row per target hit within a run
		`CREATE TABLE IF NOT EXISTS hits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			target_index INTEGER NOT NULL,
			target_x REAL NOT NULL,
			target_y REAL NOT NULL,
			gaze_x REAL NOT NULL,
			gaze_y REAL NOT NULL,
			accuracy REAL NOT NULL,
			reaction_ms INTEGER NOT NULL,
			hit_at DATETIME NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_hits_run_id ON hits(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
