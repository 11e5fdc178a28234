package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/sign"
	"github.com/ayusman/mudra/internal/store"
)

type reloadCounter struct{ calls int }

func (r *reloadCounter) reload() error {
	r.calls++
	return nil
}

func TestReferenceHandler_CreateFromHands(t *testing.T) {
	s := newTestStore(t)
	counter := &reloadCounter{}
	handler := NewReferenceHandler(s, counter.reload)

	rec := serve(t, handler, http.MethodPost, "/api/references", map[string]any{
		"label": " ram ",
		"hands": []landmark.HandLandmarks{landmark.RamLandmarks()},
	})
	expectStatus(t, rec, http.StatusCreated)

	var got referenceResponse
	decode(t, rec, &got)
	if got.ID == "" {
		t.Error("expected an id")
	}
	if got.Label != "ram" {
		t.Errorf("expected label ram, got %q", got.Label)
	}
	if len(got.Features) != sign.FeatureLength {
		t.Errorf("expected %d features, got %d", sign.FeatureLength, len(got.Features))
	}
	if counter.calls != 1 {
		t.Errorf("expected 1 reload, got %d", counter.calls)
	}
}

func TestReferenceHandler_CreateValidation(t *testing.T) {
	s := newTestStore(t)
	counter := &reloadCounter{}
	handler := NewReferenceHandler(s, counter.reload)

	ram := landmark.RamLandmarks()
	tests := []struct {
		name string
		body any
	}{
		{name: "invalid json", body: "{"},
		{name: "blank label", body: map[string]any{"label": " ", "features": []float64{1}}},
		{name: "no features", body: map[string]any{"label": "ram"}},
		{name: "three hands", body: map[string]any{"label": "ram", "hands": []landmark.HandLandmarks{ram, ram, ram}}},
		{name: "single feature", body: map[string]any{"label": "junk", "features": []float64{0}}},
		{name: "odd feature count", body: map[string]any{"label": "junk", "features": make([]float64, sign.HandFeatures+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, handler, http.MethodPost, "/api/references", tt.body)
			expectStatus(t, rec, http.StatusBadRequest)
		})
	}

	if counter.calls != 0 {
		t.Errorf("rejected requests must not reload, got %d", counter.calls)
	}
}

func TestReferenceHandler_CreateOneHandFeaturesIsPadded(t *testing.T) {
	s := newTestStore(t)
	handler := NewReferenceHandler(s, nil)

	oneHand := sign.Normalize(landmark.RamLandmarks().Points[:])
	rec := serve(t, handler, http.MethodPost, "/api/references", map[string]any{
		"label":    "ram",
		"features": []float64(oneHand),
	})
	expectStatus(t, rec, http.StatusCreated)

	var got referenceResponse
	decode(t, rec, &got)
	if len(got.Features) != sign.FeatureLength {
		t.Fatalf("expected %d features, got %d", sign.FeatureLength, len(got.Features))
	}
	for i, v := range got.Features[sign.HandFeatures:] {
		if v != 0 {
			t.Fatalf("second hand slot should be zero, index %d = %v", i, v)
		}
	}
}

func TestReferenceHandler_ListAndFilter(t *testing.T) {
	s := newTestStore(t)
	handler := NewReferenceHandler(s, nil)

	for _, label := range []string{"ram", "fist", "ram"} {
		if err := s.References().Create(&store.Reference{Label: label, Features: sign.FeatureVector{1, 2}}); err != nil {
			t.Fatalf("failed to create reference: %v", err)
		}
	}

	rec := serve(t, handler, http.MethodGet, "/api/references", nil)
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var all listReferencesResponse
	decode(t, rec, &all)
	if len(all.References) != 3 {
		t.Errorf("expected 3 references, got %d", len(all.References))
	}
	if all.Labels["ram"] != 2 || all.Labels["fist"] != 1 {
		t.Errorf("unexpected label counts: %v", all.Labels)
	}

	rec = serve(t, handler, http.MethodGet, "/api/references?label=fist", nil)
	expectStatus(t, rec, http.StatusOK)
	var filtered listReferencesResponse
	decode(t, rec, &filtered)
	if len(filtered.References) != 1 || filtered.References[0].Label != "fist" {
		t.Errorf("expected only fist, got %+v", filtered.References)
	}
}

func TestReferenceHandler_GetAndDelete(t *testing.T) {
	s := newTestStore(t)
	counter := &reloadCounter{}
	handler := NewReferenceHandler(s, counter.reload)

	ref := &store.Reference{Label: "ram", Features: sign.FeatureVector{0.5}}
	if err := s.References().Create(ref); err != nil {
		t.Fatalf("failed to create reference: %v", err)
	}

	rec := serve(t, handler, http.MethodGet, "/api/references/"+ref.ID, nil)
	expectStatus(t, rec, http.StatusOK)

	rec = serve(t, handler, http.MethodGet, "/api/references/missing", nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = serve(t, handler, http.MethodDelete, "/api/references/"+ref.ID, nil)
	expectStatus(t, rec, http.StatusNoContent)

	rec = serve(t, handler, http.MethodDelete, "/api/references/"+ref.ID, nil)
	expectStatus(t, rec, http.StatusNotFound)

	if counter.calls != 1 {
		t.Errorf("expected 1 reload, got %d", counter.calls)
	}

	rec = serve(t, handler, http.MethodPut, "/api/references/"+ref.ID, nil)
	expectStatus(t, rec, http.StatusMethodNotAllowed)
}

func TestReferenceHandler_DeleteByLabel(t *testing.T) {
	s := newTestStore(t)
	handler := NewReferenceHandler(s, nil)

	for _, label := range []string{"ram", "ram", "fist"} {
		if err := s.References().Create(&store.Reference{Label: label, Features: sign.FeatureVector{1}}); err != nil {
			t.Fatalf("failed to create reference: %v", err)
		}
	}

	rec := serve(t, handler, http.MethodDelete, "/api/references", nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = serve(t, handler, http.MethodDelete, "/api/references?label=ram", nil)
	expectStatus(t, rec, http.StatusOK)

	var got deleteLabelResponse
	decode(t, rec, &got)
	if got.Deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", got.Deleted)
	}

	n, err := s.References().Count()
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 remaining reference, got %d", n)
	}
}

func TestReferenceHandler_ImportExport(t *testing.T) {
	s := newTestStore(t)
	counter := &reloadCounter{}
	handler := NewReferenceHandler(s, counter.reload)

	csv := strings.Join([]string{
		"label,h0_x0,h0_y0",
		"ram,0.1,0.2",
		",0.3,0.4",
		"fist,0.5,oops",
	}, "\n")

	rec := serve(t, handler, http.MethodPost, "/api/references/import", csv)
	expectStatus(t, rec, http.StatusCreated)

	var imported importResponse
	decode(t, rec, &imported)
	if imported.Imported != 2 || imported.Skipped != 1 {
		t.Errorf("expected 2 imported and 1 skipped, got %+v", imported)
	}
	if counter.calls != 1 {
		t.Errorf("expected 1 reload, got %d", counter.calls)
	}

	rec = serve(t, handler, http.MethodGet, "/api/references/export", nil)
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected Content-Type text/csv, got %s", ct)
	}

	samples, skipped, err := sign.ReadReferenceCSV(rec.Body)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if skipped != 0 || len(samples) != 2 {
		t.Fatalf("expected 2 exported rows, got %d (skipped %d)", len(samples), skipped)
	}
	if samples[0].Label != "ram" || samples[0].Features[1] != 0.2 {
		t.Errorf("unexpected first row: %s %v", samples[0].Label, samples[0].Features[:2])
	}
	if samples[1].Features[1] != 0 {
		t.Errorf("unparseable values are imported as 0, got %v", samples[1].Features[1])
	}
}

func TestReferenceHandler_LogsThroughMonitoring(t *testing.T) {
	var lines []string
	original := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...any) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.Logf = original })

	handler := NewReferenceHandler(newTestStore(t), func() error { return errors.New("no classifier") })
	rec := serve(t, handler, http.MethodPost, "/api/references/import", "label,h0_x0\nram,0.1\n")
	expectStatus(t, rec, http.StatusCreated)

	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "Imported 1 reference samples") {
		t.Errorf("expected the import to be logged, got %q", joined)
	}
	if !strings.Contains(joined, "no classifier") {
		t.Errorf("expected the reload failure to be logged, got %q", joined)
	}
}

func TestReferenceHandler_ImportMalformed(t *testing.T) {
	s := newTestStore(t)
	handler := NewReferenceHandler(s, nil)

	rec := serve(t, handler, http.MethodPost, "/api/references/import", "ram,\"unterminated\n")
	expectStatus(t, rec, http.StatusBadRequest)

	rec = serve(t, handler, http.MethodGet, "/api/references/import", nil)
	expectStatus(t, rec, http.StatusMethodNotAllowed)
}
