package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/lighting"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/sign"
)

func TestHub_Publish(t *testing.T) {
	hub := NewHub()
	ts := httptest.NewServer(hub)
	defer ts.Close()

	// Publishing with no clients is a no-op.
	hub.Publish(session.Output{})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(session.Output{
		Raw:              sign.UnknownResult(),
		Lighting:         lighting.Stats{Mean: 120, Contrast: 40, Status: lighting.StatusGood},
		DetectionAllowed: true,
		Stable:           sign.Stable{Label: "ram", Confidence: 0.9, Hits: 3, Phase: sign.PhaseStable},
		Changed:          true,
		TimeMs:           42,
	})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var out api.OutputResponse
	if err := json.Unmarshal(msg, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.Stable.Label != "ram" || out.Stable.Phase != sign.PhaseStable || !out.Changed || out.TimeMs != 42 {
		t.Errorf("unexpected output %+v", out)
	}
	if out.Raw.Distance != nil || out.Raw.Outcome != "unknown" {
		t.Errorf("unexpected raw result %+v", out.Raw)
	}

	conn.Close()
	deadline = time.Now().Add(time.Second)
	for hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_PublishSkipsBlockedClient(t *testing.T) {
	hub := NewHub()
	stuck := &hubClient{send: make(chan []byte, 1)}
	hub.clients[stuck] = struct{}{}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(session.Output{TimeMs: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish waited on a client that is not draining")
	}
	if len(stuck.send) != 1 {
		t.Errorf("expected the first output to stay queued, got %d", len(stuck.send))
	}
}

func TestServer_HealthReportsLiveClients(t *testing.T) {
	hub := NewHub()
	hub.clients[&hubClient{send: make(chan []byte, 1)}] = struct{}{}
	s := New(Config{Live: hub})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["live_clients"] != float64(1) {
		t.Errorf("expected 1 live client, got %v", response["live_clients"])
	}
}
