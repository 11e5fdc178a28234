package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/calibration"
)

// ProfileRepository keeps every computed calibration profile as a versioned
// record. Rows are never updated.
type ProfileRepository struct {
	db *sql.DB
}

// Profiles returns the calibration profile repository for this store.
func (s *Store) Profiles() *ProfileRepository {
	return &ProfileRepository{db: s.db}
}

// Save stores p as the next version for key and returns it with Version set.
func (r *ProfileRepository) Save(key string, p calibration.Profile) (calibration.Profile, error) {
	if err := p.Validate(); err != nil {
		return calibration.Profile{}, fmt.Errorf("save profile %s: %w", key, err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return calibration.Profile{}, err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(version), 0) + 1 FROM calibration_profiles WHERE profile_key = ?`, key,
	).Scan(&version); err != nil {
		return calibration.Profile{}, err
	}

	p.Version = version
	_, err = tx.Exec(
		`INSERT INTO calibration_profiles (id, profile_key, version, lighting_min, lighting_max,
			lighting_min_contrast, vote_min_confidence, vote_required_hits, sample_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), key, p.Version, p.LightingMin, p.LightingMax,
		p.LightingMinContrast, p.VoteMinConfidence, p.VoteRequiredHits, p.SampleCount, p.UpdatedAt,
	)
	if err != nil {
		return calibration.Profile{}, err
	}

	if err := tx.Commit(); err != nil {
		return calibration.Profile{}, err
	}
	return p, nil
}

const profileColumns = `lighting_min, lighting_max, lighting_min_contrast, vote_min_confidence,
	vote_required_hits, sample_count, updated_at, version`

func scanProfile(row scanner) (calibration.Profile, error) {
	var p calibration.Profile
	err := row.Scan(&p.LightingMin, &p.LightingMax, &p.LightingMinContrast, &p.VoteMinConfidence,
		&p.VoteRequiredHits, &p.SampleCount, &p.UpdatedAt, &p.Version)
	return p, err
}

// Latest returns the highest version stored for key.
func (r *ProfileRepository) Latest(key string) (calibration.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(
		`SELECT `+profileColumns+` FROM calibration_profiles
		 WHERE profile_key = ? ORDER BY version DESC LIMIT 1`,
		key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return calibration.Profile{}, ErrNotFound
	}
	return p, err
}

// LatestOrDefault returns the latest profile for key, or the default profile
// when none has been saved yet.
func (r *ProfileRepository) LatestOrDefault(key string) (calibration.Profile, error) {
	p, err := r.Latest(key)
	if errors.Is(err, ErrNotFound) {
		return calibration.DefaultProfile(), nil
	}
	return p, err
}

// History returns every version stored for key, newest first.
func (r *ProfileRepository) History(key string) ([]calibration.Profile, error) {
	rows, err := r.db.Query(
		`SELECT `+profileColumns+` FROM calibration_profiles
		 WHERE profile_key = ? ORDER BY version DESC`,
		key,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []calibration.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return profiles, nil
}
