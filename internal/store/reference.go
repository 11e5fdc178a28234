package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/sign"
)

// ErrEmptyLabel is returned when a reference sample has a blank label.
var ErrEmptyLabel = errors.New("reference label is empty")

// Reference is a labeled feature vector stored for the classifier.
type Reference struct {
	ID        string             `json:"id"`
	Label     string             `json:"label"`
	Features  sign.FeatureVector `json:"features"`
	CreatedAt time.Time          `json:"created_at"`
}

// ReferenceRepository provides CRUD operations for reference samples.
type ReferenceRepository struct {
	db *sql.DB
}

// References returns the reference sample repository for this store.
func (s *Store) References() *ReferenceRepository {
	return &ReferenceRepository{db: s.db}
}

// Create inserts a reference sample. An empty ID is filled with a new UUID.
func (r *ReferenceRepository) Create(ref *Reference) error {
	return r.insert(r.db, ref)
}

// CreateBatch inserts all samples in one transaction. Nothing is stored if
// any sample is rejected.
func (r *ReferenceRepository) CreateBatch(refs []*Reference) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, ref := range refs {
		if err := r.insert(tx, ref); err != nil {
			return fmt.Errorf("reference %d: %w", i, err)
		}
	}

	return tx.Commit()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (r *ReferenceRepository) insert(db execer, ref *Reference) error {
	ref.Label = strings.TrimSpace(ref.Label)
	if ref.Label == "" {
		return ErrEmptyLabel
	}
	if ref.ID == "" {
		ref.ID = uuid.New().String()
	}
	ref.Features = ref.Features.Sanitize()
	ref.CreatedAt = time.Now()

	features, err := json.Marshal(ref.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}

	_, err = db.Exec(
		`INSERT INTO reference_samples (id, label, features, created_at) VALUES (?, ?, ?, ?)`,
		ref.ID, ref.Label, string(features), ref.CreatedAt,
	)
	return err
}

// GetByID retrieves a reference sample by its ID.
func (r *ReferenceRepository) GetByID(id string) (*Reference, error) {
	row := r.db.QueryRow(
		`SELECT id, label, features, created_at FROM reference_samples WHERE id = ?`, id,
	)
	ref, err := scanReference(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ref, err
}

// List returns all reference samples in insertion order.
func (r *ReferenceRepository) List() ([]*Reference, error) {
	return r.query(`SELECT id, label, features, created_at FROM reference_samples ORDER BY rowid`)
}

// ListByLabel returns the reference samples carrying label.
func (r *ReferenceRepository) ListByLabel(label string) ([]*Reference, error) {
	return r.query(
		`SELECT id, label, features, created_at FROM reference_samples WHERE label = ? ORDER BY rowid`,
		strings.TrimSpace(label),
	)
}

func (r *ReferenceRepository) query(q string, args ...any) ([]*Reference, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []*Reference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return refs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReference(row scanner) (*Reference, error) {
	ref := &Reference{}
	var features string
	if err := row.Scan(&ref.ID, &ref.Label, &features, &ref.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(features), &ref.Features); err != nil {
		return nil, fmt.Errorf("decode features of %s: %w", ref.ID, err)
	}
	return ref, nil
}

// Samples returns the whole reference set in the classifier's input form.
func (r *ReferenceRepository) Samples() ([]sign.ReferenceSample, error) {
	refs, err := r.List()
	if err != nil {
		return nil, err
	}

	samples := make([]sign.ReferenceSample, len(refs))
	for i, ref := range refs {
		samples[i] = sign.ReferenceSample{Features: ref.Features, Label: ref.Label}
	}
	return samples, nil
}

// Count returns the number of stored reference samples.
func (r *ReferenceRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM reference_samples`).Scan(&n)
	return n, err
}

// Labels returns each stored label with its sample count.
func (r *ReferenceRepository) Labels() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT label, COUNT(*) FROM reference_samples GROUP BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	labels := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		labels[label] = n
	}
	return labels, rows.Err()
}

// Delete removes a reference sample by its ID.
func (r *ReferenceRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM reference_samples WHERE id = ?`, id)
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

// DeleteByLabel removes every sample with label and returns how many were removed.
func (r *ReferenceRepository) DeleteByLabel(label string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM reference_samples WHERE label = ?`, strings.TrimSpace(label))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
