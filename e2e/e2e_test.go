package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/gazetrack/internal/app"
	"github.com/ayusman/gazetrack/internal/calibration"
	"github.com/ayusman/gazetrack/internal/capture"
	"github.com/ayusman/gazetrack/internal/detector"
	"github.com/ayusman/gazetrack/internal/server"
	"github.com/ayusman/gazetrack/internal/session"
	"github.com/ayusman/gazetrack/internal/store"
	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"
)

// viewer is a simulated user: it looks at whatever the session displays and
// blinks on a fixed rhythm once targets appear.
type viewer struct {
	app    *app.App
	frames int
}

func (v *viewer) ratio(p calibration.Point) (float64, float64) {
	return 0.25 + 0.5*p.X/1920, 0.3 + 0.4*p.Y/1080
}

func (v *viewer) Detect(*gocv.Mat) (detector.Features, error) {
	now := time.Now()
	out, ok := v.app.Snapshot()
	if !ok {
		return detector.Looking(0.5, 0.5, now), nil
	}

	var look calibration.Point
	switch {
	case out.Mode == session.Calibration && out.Anchor != nil:
		look = out.Anchor.Screen
	case out.Mode == session.TargetPractice && len(out.Targets) > 0:
		v.frames++
		if v.frames%28 >= 20 {
			return detector.Blinking(now), nil
		}
		look = out.Targets[0].Center
	default:
		return detector.Looking(0.5, 0.5, now), nil
	}
	x, y := v.ratio(look)
	return detector.Looking(x, y, now), nil
}

func (v *viewer) Close() error { return nil }

func post(t *testing.T, client *http.Client, url, body string) (*http.Response, session.Status) {
	t.Helper()
	resp, err := client.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer resp.Body.Close()

	var st session.Status
	if resp.StatusCode == http.StatusOK {
		json.NewDecoder(resp.Body).Decode(&st)
	}
	return resp, st
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cfg := session.DefaultConfig()
	cfg.Calibration.SettleDelay = 50 * time.Millisecond
	cfg.TargetCount = 4
	cfg.Seed = 11

	hub := server.NewHub()
	v := &viewer{}
	application := app.New(app.Config{
		Session:  cfg,
		Camera:   capture.NewMockCamera([]*gocv.Mat{&frame}, true),
		FPS:      50,
		Provider: v,
		Store:    s,
		Hub:      hub,
	})
	v.app = application

	if err := application.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer application.Stop()

	ts := httptest.NewServer(server.New(server.Config{
		Store:    s,
		Operator: application,
		Frames:   application,
		Hub:      hub,
	}))
	defer ts.Close()
	client := ts.Client()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/display", nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	defer ws.Close()

	completed := make(chan struct{})
	go func() {
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var e struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(msg, &e) == nil && e.Type == "complete" {
				close(completed)
				return
			}
		}
	}()

	deadline := time.Now().Add(60 * time.Second)

	t.Run("PracticeRequiresCalibration", func(t *testing.T) {
		resp, _ := post(t, client, ts.URL+"/api/session/mode", `{"mode":"target_practice"}`)
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
		}
	})

	t.Run("Calibrate", func(t *testing.T) {
		for {
			if time.Now().After(deadline) {
				t.Fatal("calibration did not finish in time")
			}
			resp, st := post(t, client, ts.URL+"/api/session/confirm", "")
			switch resp.StatusCode {
			case http.StatusOK:
				if st.Mode == session.TargetPractice {
					if !st.Calibrated {
						t.Fatalf("status = %+v, want calibrated", st)
					}
					return
				}
			case http.StatusConflict:
				time.Sleep(10 * time.Millisecond)
			default:
				t.Fatalf("confirm status = %d", resp.StatusCode)
			}
		}
	})

	t.Run("Practice", func(t *testing.T) {
		for {
			if time.Now().After(deadline) {
				t.Fatal("practice did not finish in time")
			}
			resp, err := client.Get(ts.URL + "/api/session")
			if err != nil {
				t.Fatalf("GET /api/session error = %v", err)
			}
			var out struct {
				Complete bool `json:"complete"`
			}
			json.NewDecoder(resp.Body).Decode(&out)
			resp.Body.Close()
			if out.Complete {
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
	})

	t.Run("CompleteEventBroadcast", func(t *testing.T) {
		select {
		case <-completed:
		case <-time.After(10 * time.Second):
			t.Fatal("no complete event received")
		}
	})

	t.Run("RunPersisted", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/runs")
		if err != nil {
			t.Fatalf("GET /api/runs error = %v", err)
		}
		defer resp.Body.Close()

		var listed struct {
			Runs []struct {
				ID          string `json:"id"`
				TargetCount int    `json:"target_count"`
			} `json:"runs"`
		}
		json.NewDecoder(resp.Body).Decode(&listed)
		if len(listed.Runs) != 1 || listed.Runs[0].TargetCount != 4 {
			t.Fatalf("runs = %+v", listed.Runs)
		}

		resp2, err := client.Get(ts.URL + "/api/runs/" + listed.Runs[0].ID)
		if err != nil {
			t.Fatalf("GET run error = %v", err)
		}
		defer resp2.Body.Close()
		var detail struct {
			Hits []store.Hit `json:"hits"`
		}
		json.NewDecoder(resp2.Body).Decode(&detail)
		if len(detail.Hits) != 4 {
			t.Errorf("hits = %d, want 4", len(detail.Hits))
		}
	})
}
