package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/calibration"
	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/sign"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Manager owns the open sessions and the shared classifier.
type Manager struct {
	vote    sign.VoteConfig
	metrics *metrics.Metrics

	classifier atomic.Pointer[sign.Classifier]

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. m may be nil.
func NewManager(vote sign.VoteConfig, m *metrics.Metrics) *Manager {
	return &Manager{
		vote:     vote,
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// Classifier returns the current classifier, or nil before one is set.
func (m *Manager) Classifier() *sign.Classifier {
	return m.classifier.Load()
}

// SetClassifier swaps in a new classifier. Frames already being processed
// finish with the previous one.
func (m *Manager) SetClassifier(c *sign.Classifier) {
	m.classifier.Store(c)
	if m.metrics != nil && c != nil {
		m.metrics.ReferenceSamples.Store(int64(c.Len()))
	}
}

// ReferenceSource supplies the reference set a classifier is built from.
type ReferenceSource interface {
	Samples() ([]sign.ReferenceSample, error)
}

// LoadReferences builds a classifier from src and swaps it in. On error the
// current classifier stays in place.
func (m *Manager) LoadReferences(src ReferenceSource, k int, threshold float64) (int, error) {
	refs, err := src.Samples()
	if err != nil {
		return 0, fmt.Errorf("load reference samples: %w", err)
	}
	c, err := sign.NewClassifier(refs, k, threshold)
	if err != nil {
		return 0, fmt.Errorf("build classifier: %w", err)
	}
	m.SetClassifier(c)
	monitoring.Logf("Loaded %d reference samples (%d labels)", c.Len(), len(c.Labels()))
	return c.Len(), nil
}

// VoteConfig returns the pipeline vote settings new sessions start with.
func (m *Manager) VoteConfig() sign.VoteConfig {
	return m.vote
}

// Create opens a session following the profile stored under profileKey.
func (m *Manager) Create(profileKey string, profile calibration.Profile) *Session {
	s := New(uuid.New().String(), profileKey, profile, m.vote, m)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionOpened()
	}
	monitoring.Logf("Session %s opened (profile %s)", s.ID(), profileKey)
	return s
}

// Pin exempts the session with id from Sweep. The local camera pipeline
// pins its session because it may sit disabled for a long time.
func (m *Manager) Pin(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pinned = true
	s.mu.Unlock()
	return nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete closes the session with id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	if m.metrics != nil {
		m.metrics.SessionClosed()
	}
	monitoring.Logf("Session %s closed", id)
	return nil
}

// List returns a snapshot of every session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, len(sessions))
	for i, s := range sessions {
		infos[i] = s.Info()
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Process runs a frame through the session with id and records metrics.
func (m *Manager) Process(id string, f Frame) (Output, error) {
	s, err := m.Get(id)
	if err != nil {
		return Output{}, err
	}
	return m.ProcessSession(s, f), nil
}

// ProcessSession runs a frame through s and records metrics.
func (m *Manager) ProcessSession(s *Session, f Frame) Output {
	start := time.Now()
	out := s.Process(f)

	if m.metrics != nil {
		m.metrics.ObserveFrame(out.Raw.Outcome.String(), string(out.Lighting.Status), out.Stable.Phase.String(), time.Since(start))
		if out.Changed {
			entered := "idle"
			if out.Stable.IsSign() {
				entered = "sign"
			}
			m.metrics.StableTransition(entered)
		}
	}
	if out.Changed {
		monitoring.Logf("Session %s stable sign: %s (%.2f)", s.ID(), out.Stable.Label, out.Stable.Confidence)
	}
	return out
}

// SetProfile supersedes the profile of every session following key.
func (m *Manager) SetProfile(key string, p calibration.Profile) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.sessions {
		if s.ProfileKey() == key {
			s.SetProfile(p)
			n++
		}
	}
	return n
}

// Sweep closes sessions that have not processed a frame for maxIdle and
// returns how many were closed.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.idleSince(cutoff) {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		if m.metrics != nil {
			m.metrics.SessionClosed()
		}
		monitoring.Logf("Session %s expired", id)
	}
	return len(expired)
}
