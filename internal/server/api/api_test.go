package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/sign"
	"github.com/ayusman/mudra/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// newTestManager returns a manager whose classifier knows "ram" and "fist".
func newTestManager(t *testing.T) *session.Manager {
	t.Helper()

	c, err := sign.NewClassifier([]sign.ReferenceSample{
		{Label: "ram", Features: sign.EncodeHands([]landmark.HandLandmarks{landmark.RamLandmarks()})},
		{Label: "fist", Features: sign.EncodeHands([]landmark.HandLandmarks{landmark.FistLandmarks()})},
	}, 1, 1.5)
	if err != nil {
		t.Fatalf("failed to build classifier: %v", err)
	}

	m := session.NewManager(sign.DefaultVoteConfig(), nil)
	m.SetClassifier(c)
	return m
}

// serve sends one request through h. body is JSON-encoded unless it is
// already a string.
func serve(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{path: "/api/sessions", want: nil},
		{path: "/api/sessions/", want: nil},
		{path: "/api/sessions/abc", want: []string{"abc"}},
		{path: "/api/sessions/abc/frames/", want: []string{"abc", "frames"}},
	}
	for _, tt := range tests {
		got := splitPath(tt.path, "/api/sessions")
		if len(got) != len(tt.want) {
			t.Errorf("splitPath(%q) = %v, want %v", tt.path, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		}
	}
}
