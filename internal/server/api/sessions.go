package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/calibration"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

// SessionHandler handles recognition sessions. Each session owns one
// stabilizer and follows one calibration profile key.
type SessionHandler struct {
	store      *store.Store
	sessions   *session.Manager
	profileKey string
}

// NewSessionHandler creates a new SessionHandler. profileKey is used for
// sessions created without one.
func NewSessionHandler(s *store.Store, sessions *session.Manager, profileKey string) *SessionHandler {
	return &SessionHandler{store: s, sessions: sessions, profileKey: profileKey}
}

// ServeHTTP routes /api/sessions and /api/sessions/{id}[/action].
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/sessions")

	switch len(parts) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string][]session.Info{"sessions": h.sessions.List()})
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return

	case 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, parts[0])
		case http.MethodDelete:
			h.delete(w, r, parts[0])
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return

	case 2:
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s, err := h.sessions.Get(parts[0])
		if err != nil {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		switch parts[1] {
		case "frames":
			h.frame(w, r, s)
		case "observe":
			h.observe(w, r, s)
		case "recording":
			h.recording(w, r, s)
		case "samples":
			h.flush(w, r, s)
		case "reset":
			s.Reset()
			writeJSON(w, http.StatusOK, s.Info())
		default:
			writeError(w, http.StatusNotFound, "Not found")
		}
		return
	}

	writeError(w, http.StatusNotFound, "Not found")
}

type createSessionRequest struct {
	ProfileKey string `json:"profile_key"`
}

type recordingRequest struct {
	On bool `json:"on"`
}

type observeResponse struct {
	Sample calibration.Sample `json:"sample"`
}

type flushResponse struct {
	ProfileKey string `json:"profile_key"`
	Saved      int    `json:"saved"`
	Count      int    `json:"count"`
}

// create handles POST /api/sessions. An empty body uses the default
// profile key.
func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	key := strings.TrimSpace(req.ProfileKey)
	if key == "" {
		key = h.profileKey
	}

	profile, err := h.store.Profiles().LatestOrDefault(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load profile")
		return
	}

	s := h.sessions.Create(key, profile)
	writeJSON(w, http.StatusCreated, s.Info())
}

// get handles GET /api/sessions/{id}.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	s, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

// delete handles DELETE /api/sessions/{id}.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.sessions.Delete(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// frame handles POST /api/sessions/{id}/frames.
func (h *SessionHandler) frame(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req FrameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	f, err := req.Frame(time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := h.sessions.ProcessSession(s, f)
	writeJSON(w, http.StatusOK, NewOutputResponse(out))
}

// observe handles POST /api/sessions/{id}/observe and buffers the scene of
// the last frame as a calibration sample.
func (h *SessionHandler) observe(w http.ResponseWriter, r *http.Request, s *session.Session) {
	sample, ok := s.Observe()
	if !ok {
		writeError(w, http.StatusConflict, "No frame processed yet")
		return
	}
	writeJSON(w, http.StatusOK, observeResponse{Sample: sample})
}

// recording handles POST /api/sessions/{id}/recording.
func (h *SessionHandler) recording(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req recordingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.SetRecording(req.On)
	writeJSON(w, http.StatusOK, s.Info())
}

// flush handles POST /api/sessions/{id}/samples and moves the buffered
// calibration samples into the store under the session's profile key.
func (h *SessionHandler) flush(w http.ResponseWriter, r *http.Request, s *session.Session) {
	samples := s.TakeSamples()
	if len(samples) > 0 {
		if err := h.store.CalibrationSamples().Add(s.ProfileKey(), samples...); err != nil {
			s.RestoreSamples(samples)
			writeError(w, http.StatusInternalServerError, "Failed to save samples")
			return
		}
	}

	count, err := h.store.CalibrationSamples().Count(s.ProfileKey())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count samples")
		return
	}
	writeJSON(w, http.StatusOK, flushResponse{ProfileKey: s.ProfileKey(), Saved: len(samples), Count: count})
}
