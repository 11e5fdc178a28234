package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Reference samples - labeled feature vectors the classifier compares against
		`CREATE TABLE IF NOT EXISTS reference_samples (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL CHECK(trim(label) <> ''),
			features TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Calibration samples - scene observations collected per profile key
		`CREATE TABLE IF NOT EXISTS calibration_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			profile_key TEXT NOT NULL,
			brightness REAL NOT NULL,
			contrast REAL NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Calibration profiles - one row per computed version, never updated
		`CREATE TABLE IF NOT EXISTS calibration_profiles (
			id TEXT PRIMARY KEY,
			profile_key TEXT NOT NULL,
			version INTEGER NOT NULL,
			lighting_min REAL NOT NULL,
			lighting_max REAL NOT NULL,
			lighting_min_contrast REAL NOT NULL,
			vote_min_confidence REAL NOT NULL,
			vote_required_hits INTEGER NOT NULL,
			sample_count INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL,
			UNIQUE(profile_key, version),
			CHECK(lighting_min < lighting_max)
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_reference_samples_label ON reference_samples(label)`,
		`CREATE INDEX IF NOT EXISTS idx_calibration_samples_profile_key ON calibration_samples(profile_key)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
