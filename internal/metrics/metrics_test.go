package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveFrame(t *testing.T) {
	m := New()
	m.ObserveFrame("match", "good", "stable", 2*time.Millisecond)
	m.ObserveFrame("idle", "low_light", "grace", time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, "mudra_frames_processed_total 2")
	assert.Contains(t, body, `mudra_classifier_outcomes_total{outcome="match"} 1`)
	assert.Contains(t, body, `mudra_lighting_status_total{status="low_light"} 1`)
	assert.Contains(t, body, `mudra_stabilizer_phase_total{phase="grace"} 1`)
	assert.Contains(t, body, "mudra_frame_process_seconds_count 2")
}

func TestSessionGauge(t *testing.T) {
	m := New()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, int64(1), m.ActiveSessions.Load())
	body := scrape(t, m)
	assert.Contains(t, body, "mudra_active_sessions 1")
	assert.Contains(t, body, "mudra_sessions_opened_total 2")
}

func TestStableTransitionAndReferences(t *testing.T) {
	m := New()
	m.StableTransition("sign")
	m.StableTransition("idle")
	m.StableTransition("sign")
	m.ReferenceSamples.Store(12)

	body := scrape(t, m)
	assert.Contains(t, body, `mudra_stable_transitions_total{entered="sign"} 2`)
	assert.Contains(t, body, `mudra_stable_transitions_total{entered="idle"} 1`)
	assert.Contains(t, body, "mudra_reference_samples 12")
}

func TestRegistryGather(t *testing.T) {
	m := New()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["mudra_active_sessions"])
	assert.True(t, names["mudra_frames_processed_total"])
}
