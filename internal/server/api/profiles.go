package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/calibration"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

// ProfileHandler handles calibration samples and profiles keyed by a
// profile key.
type ProfileHandler struct {
	store      *store.Store
	sessions   *session.Manager
	windowSize int
}

// NewProfileHandler creates a new ProfileHandler. windowSize is the vote
// window the computed profiles are clamped to.
func NewProfileHandler(s *store.Store, sessions *session.Manager, windowSize int) *ProfileHandler {
	return &ProfileHandler{store: s, sessions: sessions, windowSize: windowSize}
}

// ServeHTTP routes /api/profiles/{key}, /api/profiles/{key}/history,
// /api/profiles/{key}/samples and /api/profiles/{key}/calibrate.
func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/profiles")
	if len(parts) == 0 || len(parts) > 2 {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	key := strings.TrimSpace(parts[0])
	if key == "" {
		writeError(w, http.StatusBadRequest, "Profile key is required")
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.get(w, r, key)
	case "history":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.history(w, r, key)
	case "samples":
		switch r.Method {
		case http.MethodGet:
			h.listSamples(w, r, key)
		case http.MethodPost:
			h.addSamples(w, r, key)
		case http.MethodDelete:
			h.clearSamples(w, r, key)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "calibrate":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.calibrate(w, r, key)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type profileResponse struct {
	Key        string              `json:"key"`
	Calibrated bool                `json:"calibrated"`
	Profile    calibration.Profile `json:"profile"`
}

type historyResponse struct {
	Key      string                `json:"key"`
	Profiles []calibration.Profile `json:"profiles"`
}

type samplesRequest struct {
	Samples []calibration.Sample `json:"samples"`
}

type samplesResponse struct {
	Key     string               `json:"key"`
	Count   int                  `json:"count"`
	Samples []calibration.Sample `json:"samples,omitempty"`
}

type calibrateResponse struct {
	Key      string              `json:"key"`
	Profile  calibration.Profile `json:"profile"`
	Sessions int                 `json:"sessions"`
}

// get handles GET /api/profiles/{key}. An uncalibrated key reports the
// default profile.
func (h *ProfileHandler) get(w http.ResponseWriter, r *http.Request, key string) {
	p, err := h.store.Profiles().Latest(key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusOK, profileResponse{Key: key, Profile: calibration.DefaultProfile()})
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to get profile")
	default:
		writeJSON(w, http.StatusOK, profileResponse{Key: key, Calibrated: true, Profile: p})
	}
}

// history handles GET /api/profiles/{key}/history.
func (h *ProfileHandler) history(w http.ResponseWriter, r *http.Request, key string) {
	profiles, err := h.store.Profiles().History(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}
	if profiles == nil {
		profiles = []calibration.Profile{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Key: key, Profiles: profiles})
}

// listSamples handles GET /api/profiles/{key}/samples.
func (h *ProfileHandler) listSamples(w http.ResponseWriter, r *http.Request, key string) {
	samples, err := h.store.CalibrationSamples().List(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}
	if samples == nil {
		samples = []calibration.Sample{}
	}
	writeJSON(w, http.StatusOK, samplesResponse{Key: key, Count: len(samples), Samples: samples})
}

// addSamples handles POST /api/profiles/{key}/samples.
func (h *ProfileHandler) addSamples(w http.ResponseWriter, r *http.Request, key string) {
	var req samplesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "At least one sample is required")
		return
	}

	if err := h.store.CalibrationSamples().Add(key, req.Samples...); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save samples")
		return
	}

	count, err := h.store.CalibrationSamples().Count(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count samples")
		return
	}
	writeJSON(w, http.StatusCreated, samplesResponse{Key: key, Count: count})
}

// clearSamples handles DELETE /api/profiles/{key}/samples.
func (h *ProfileHandler) clearSamples(w http.ResponseWriter, r *http.Request, key string) {
	if _, err := h.store.CalibrationSamples().DeleteByKey(key); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete samples")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// calibrate handles POST /api/profiles/{key}/calibrate. The new profile is
// saved as the next version and pushed to every open session on the key.
func (h *ProfileHandler) calibrate(w http.ResponseWriter, r *http.Request, key string) {
	samples, err := h.store.CalibrationSamples().List(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}

	p, err := calibration.Calibrate(samples, h.windowSize)
	if err != nil {
		if errors.Is(err, calibration.ErrInvalidWindow) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to calibrate")
		return
	}

	p, err = h.store.Profiles().Save(key, p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save profile")
		return
	}

	n := 0
	if h.sessions != nil {
		n = h.sessions.SetProfile(key, p)
	}
	monitoring.Logf("Calibrated profile %s v%d from %d samples", key, p.Version, p.SampleCount)

	writeJSON(w, http.StatusCreated, calibrateResponse{Key: key, Profile: p, Sessions: n})
}
