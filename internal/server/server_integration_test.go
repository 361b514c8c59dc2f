package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/gazetrack/internal/session"
	"github.com/ayusman/gazetrack/internal/store"
	"github.com/gorilla/websocket"
)

func TestAPI_RunWorkflow(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	run := &store.Run{ID: "run-1", StartedAt: started, EndedAt: started.Add(time.Minute), TargetCount: 1, TargetRadius: 50}
	if err := s.Runs().Create(run, []store.Hit{{TargetIndex: 0, HitAt: started.Add(time.Second)}}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	srv := New(Config{Store: s})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. List runs
	resp, err := client.Get(ts.URL + "/api/runs")
	if err != nil {
		t.Fatalf("GET /api/runs error = %v", err)
	}
	var listed struct {
		Runs []struct {
			ID string `json:"id"`
		} `json:"runs"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()
	if len(listed.Runs) != 1 || listed.Runs[0].ID != "run-1" {
		t.Fatalf("listed = %+v", listed)
	}

	// 2. Get single run with hits
	resp, _ = client.Get(ts.URL + "/api/runs/run-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/runs/run-1 status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var detail struct {
		Hits []store.Hit `json:"hits"`
	}
	json.NewDecoder(resp.Body).Decode(&detail)
	resp.Body.Close()
	if len(detail.Hits) != 1 {
		t.Errorf("len(hits) = %d, want 1", len(detail.Hits))
	}

	// 3. Delete run
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/runs/run-1", nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	// 4. Verify deleted
	resp, _ = client.Get(ts.URL + "/api/runs/run-1")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_SessionControl(t *testing.T) {
	op := &stubOperator{out: session.FrameOutput{Mode: session.TargetPractice, Calibrated: true}}
	ts := httptest.NewServer(New(Config{Operator: op}))
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/api/session/mode", "application/json", bytes.NewBufferString(`{"mode":"freestyle"}`))
	if err != nil {
		t.Fatalf("POST /api/session/mode error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if op.out.Mode != session.Freestyle {
		t.Errorf("mode = %s, want freestyle", op.out.Mode)
	}

	resp, _ = ts.Client().Post(ts.URL+"/api/session/confirm", "application/json", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("confirm outside calibration: status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	ts := httptest.NewServer(New(Config{Hub: hub}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/display"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := hub.Broadcast(map[string]any{"type": "blink", "duration_ms": 150}); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", msg, err)
	}
	if got["type"] != "blink" || got["duration_ms"] != 150.0 {
		t.Errorf("message = %v", got)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_DropsWhenFull(t *testing.T) {
	hub := NewHub()
	c := &client{send: make(chan []byte, 1)}
	hub.clients[c] = struct{}{}

	hub.Broadcast("a")
	hub.Broadcast("b")
	hub.Broadcast("c")

	if got := hub.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
	if msg := <-c.send; string(msg) != `"a"` {
		t.Errorf("first queued message = %s", msg)
	}
}
