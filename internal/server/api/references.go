package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/sign"
	"github.com/ayusman/mudra/internal/store"
)

// ReferenceHandler handles HTTP requests for reference samples. Every change
// to the reference set calls reload so the classifier is rebuilt.
type ReferenceHandler struct {
	store  *store.Store
	reload func() error
}

// NewReferenceHandler creates a new ReferenceHandler. reload may be nil.
func NewReferenceHandler(s *store.Store, reload func() error) *ReferenceHandler {
	return &ReferenceHandler{store: s, reload: reload}
}

// ServeHTTP routes /api/references, /api/references/{id},
// /api/references/import and /api/references/export.
func (h *ReferenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/references")

	switch {
	case len(parts) == 0:
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		case http.MethodDelete:
			h.deleteLabel(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	case len(parts) == 1 && parts[0] == "import":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.importCSV(w, r)

	case len(parts) == 1 && parts[0] == "export":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.exportCSV(w, r)

	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, parts[0])
		case http.MethodDelete:
			h.delete(w, r, parts[0])
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// Request and response types

// createReferenceRequest carries either a ready feature vector or the raw
// landmarks of up to two hands.
type createReferenceRequest struct {
	Label    string                   `json:"label"`
	Features []float64                `json:"features"`
	Hands    []landmark.HandLandmarks `json:"hands"`
}

type referenceResponse struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Features  []float64 `json:"features"`
	CreatedAt string    `json:"created_at"`
}

type listReferencesResponse struct {
	References []referenceResponse `json:"references"`
	Labels     map[string]int      `json:"labels"`
}

type importResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

type deleteLabelResponse struct {
	Deleted int64 `json:"deleted"`
}

func toReferenceResponse(ref *store.Reference) referenceResponse {
	return referenceResponse{
		ID:        ref.ID,
		Label:     ref.Label,
		Features:  ref.Features,
		CreatedAt: formatTime(ref.CreatedAt),
	}
}

// list handles GET /api/references, optionally filtered by ?label=.
func (h *ReferenceHandler) list(w http.ResponseWriter, r *http.Request) {
	var (
		refs []*store.Reference
		err  error
	)
	if label := r.URL.Query().Get("label"); label != "" {
		refs, err = h.store.References().ListByLabel(label)
	} else {
		refs, err = h.store.References().List()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list references")
		return
	}

	labels, err := h.store.References().Labels()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list labels")
		return
	}

	response := listReferencesResponse{
		References: make([]referenceResponse, 0, len(refs)),
		Labels:     labels,
	}
	for _, ref := range refs {
		response.References = append(response.References, toReferenceResponse(ref))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/references/{id}.
func (h *ReferenceHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	ref, err := h.store.References().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Reference not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get reference")
		return
	}

	writeJSON(w, http.StatusOK, toReferenceResponse(ref))
}

// create handles POST /api/references.
func (h *ReferenceHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createReferenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Label) == "" {
		writeError(w, http.StatusBadRequest, "Label is required")
		return
	}

	var features sign.FeatureVector
	switch {
	case len(req.Hands) > 0:
		if len(req.Hands) > sign.MaxHands {
			writeError(w, http.StatusBadRequest, "At most two hands are supported")
			return
		}
		features = sign.EncodeHands(req.Hands)
	case len(req.Features) > 0:
		if n := len(req.Features); n != sign.HandFeatures && n != sign.FeatureLength {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Features must have %d or %d values", sign.HandFeatures, sign.FeatureLength))
			return
		}
		features = sign.FeatureVector(req.Features).Resize()
	default:
		writeError(w, http.StatusBadRequest, "Features or hands are required")
		return
	}

	ref := &store.Reference{Label: req.Label, Features: features}
	if err := h.store.References().Create(ref); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create reference")
		return
	}
	h.changed()

	writeJSON(w, http.StatusCreated, toReferenceResponse(ref))
}

// delete handles DELETE /api/references/{id}.
func (h *ReferenceHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.References().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Reference not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete reference")
		return
	}
	h.changed()

	w.WriteHeader(http.StatusNoContent)
}

// deleteLabel handles DELETE /api/references?label= and removes every
// sample of one label.
func (h *ReferenceHandler) deleteLabel(w http.ResponseWriter, r *http.Request) {
	label := strings.TrimSpace(r.URL.Query().Get("label"))
	if label == "" {
		writeError(w, http.StatusBadRequest, "Label is required")
		return
	}

	n, err := h.store.References().DeleteByLabel(label)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete references")
		return
	}
	if n > 0 {
		h.changed()
	}

	writeJSON(w, http.StatusOK, deleteLabelResponse{Deleted: n})
}

// importCSV handles POST /api/references/import with a CSV body of
// label,v0..v125 rows.
func (h *ReferenceHandler) importCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	samples, skipped, err := sign.ReadReferenceCSV(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid CSV")
		return
	}

	refs := make([]*store.Reference, len(samples))
	for i, s := range samples {
		refs[i] = &store.Reference{Label: s.Label, Features: s.Features}
	}
	if err := h.store.References().CreateBatch(refs); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to import references")
		return
	}
	if len(refs) > 0 {
		h.changed()
	}

	monitoring.Logf("Imported %d reference samples (%d skipped)", len(refs), skipped)
	writeJSON(w, http.StatusCreated, importResponse{Imported: len(refs), Skipped: skipped})
}

// exportCSV handles GET /api/references/export.
func (h *ReferenceHandler) exportCSV(w http.ResponseWriter, r *http.Request) {
	samples, err := h.store.References().Samples()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export references")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="references.csv"`)
	if err := sign.WriteReferenceCSV(w, samples); err != nil {
		monitoring.Logf("Failed to write reference export: %v", err)
	}
}

func (h *ReferenceHandler) changed() {
	if h.reload == nil {
		return
	}
	if err := h.reload(); err != nil {
		monitoring.Logf("Failed to reload classifier: %v", err)
	}
}
