package store

import (
	"database/sql"
	"time"

	"github.com/ayusman/mudra/internal/calibration"
)

// CalibrationSampleRepository stores scene observations per profile key.
type CalibrationSampleRepository struct {
	db *sql.DB
}

// CalibrationSamples returns the calibration sample repository for this store.
func (s *Store) CalibrationSamples() *CalibrationSampleRepository {
	return &CalibrationSampleRepository{db: s.db}
}

// Add records samples for key in a single transaction.
func (r *CalibrationSampleRepository) Add(key string, samples ...calibration.Sample) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO calibration_samples (profile_key, brightness, contrast, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, s := range samples {
		if _, err := stmt.Exec(key, s.Brightness, s.Contrast, s.Confidence, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// List returns the samples recorded for key, oldest first.
func (r *CalibrationSampleRepository) List(key string) ([]calibration.Sample, error) {
	rows, err := r.db.Query(
		`SELECT brightness, contrast, confidence
		 FROM calibration_samples
		 WHERE profile_key = ?
		 ORDER BY id`,
		key,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []calibration.Sample
	for rows.Next() {
		var s calibration.Sample
		if err := rows.Scan(&s.Brightness, &s.Contrast, &s.Confidence); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// Count returns the number of samples recorded for key.
func (r *CalibrationSampleRepository) Count(key string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM calibration_samples WHERE profile_key = ?`, key).Scan(&n)
	return n, err
}

// DeleteByKey removes all samples for key.
func (r *CalibrationSampleRepository) DeleteByKey(key string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM calibration_samples WHERE profile_key = ?`, key)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
