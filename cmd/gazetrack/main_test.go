package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/gazetrack/internal/config"
	"github.com/ayusman/gazetrack/internal/store"
)

func TestRenderRuns(t *testing.T) {
	started := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	out := renderRuns([]*store.Run{{
		ID:             "3f1c9a2e-0000-4000-8000-000000000001",
		StartedAt:      started,
		EndedAt:        started.Add(42 * time.Second),
		TargetCount:    20,
		MeanAccuracy:   18.4,
		MeanReactionMs: 1350,
	}})

	for _, want := range []string{"Target practice runs", "TARGETS", "3f1c9a2e-0000-4000-8000-000000000001", "42s", "18.4px", "1350ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRuns_Empty(t *testing.T) {
	if out := renderRuns(nil); !strings.Contains(out, "No runs yet") {
		t.Errorf("empty output = %q", out)
	}
}

func TestApplyFlags(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--fps", "60", "--targets", "5"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg := config.Defaults()
	cfg.Server.Addr = ":9999"
	applyFlags(cmd, &cfg)

	if cfg.Camera.FPS != 60 || cfg.Practice.TargetCount != 5 {
		t.Errorf("flags not applied: fps=%d targets=%d", cfg.Camera.FPS, cfg.Practice.TargetCount)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("unset flag overrode file value: addr=%q", cfg.Server.Addr)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig() error = %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != config.Defaults() {
		t.Errorf("template does not load back to defaults")
	}

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "# gazetrack configuration") {
		t.Errorf("template header missing: %q", data)
	}
}

func TestResultsURL(t *testing.T) {
	if got := resultsURL(":8080"); got != "http://localhost:8080/" {
		t.Errorf("resultsURL(:8080) = %q", got)
	}
	if got := resultsURL("127.0.0.1:9000"); got != "http://127.0.0.1:9000/" {
		t.Errorf("resultsURL(127.0.0.1:9000) = %q", got)
	}
}
