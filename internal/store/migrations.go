package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Batches table - one row per run request
		`CREATE TABLE IF NOT EXISTS batches (
			id TEXT PRIMARY KEY,
			target TEXT NOT NULL,
			params TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Runs table - one row per plugin launch
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
			plugin TEXT NOT NULL,
			argv TEXT NOT NULL DEFAULT '[]',
			proxy TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL,
			exit_code INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_batch_id ON runs(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_plugin ON runs(plugin)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
