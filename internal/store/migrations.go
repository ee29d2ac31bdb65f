package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Settings table - application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Pairing sessions table - one row per pairing attempt, never reused
		`CREATE TABLE IF NOT EXISTS pairing_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			peer_id TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL CHECK(role IN ('host', 'sender')),
			state TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		`CREATE INDEX IF NOT EXISTS idx_pairing_sessions_peer_id ON pairing_sessions(peer_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
