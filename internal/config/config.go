// Package config loads the gazetrack TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ayusman/gazetrack/internal/blink"
	"github.com/ayusman/gazetrack/internal/calibration"
	"github.com/ayusman/gazetrack/internal/detector"
	"github.com/ayusman/gazetrack/internal/session"
	"github.com/ayusman/gazetrack/internal/smoothing"
)

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("invalid config")

// Config is the full gazetrack configuration.
type Config struct {
	Screen      ScreenConfig      `toml:"screen"`
	Camera      CameraConfig      `toml:"camera"`
	Calibration CalibrationConfig `toml:"calibration"`
	Smoothing   SmoothingConfig   `toml:"smoothing"`
	Blink       BlinkConfig       `toml:"blink"`
	Practice    PracticeConfig    `toml:"practice"`
	Server      ServerConfig      `toml:"server"`
	MQTT        MQTTConfig        `toml:"mqtt"`
	Store       StoreConfig       `toml:"store"`
	Hooks       HooksConfig       `toml:"hooks"`
}

// ScreenConfig is the drawable area the cursor is mapped onto.
type ScreenConfig struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// CameraConfig selects the capture device and the gaze provider timing.
type CameraConfig struct {
	Device                 int     `toml:"device"`
	FPS                    int     `toml:"fps"`
	ProviderTimeoutMs      int     `toml:"provider_timeout_ms"`
	ProviderStartTimeoutMs int     `toml:"provider_start_timeout_ms"`
	ServiceScript          string  `toml:"service_script"`
	ServiceInterpreter     string  `toml:"service_interpreter"`
	LightingThreshold      float64 `toml:"lighting_threshold"`
}

// CalibrationConfig maps calibration settings.
type CalibrationConfig struct {
	Grid                 int     `toml:"grid"`
	Margin               float64 `toml:"margin"`
	MinCalibrationPoints int     `toml:"min_calibration_points"`
	MinAxisVariance      float64 `toml:"min_axis_variance"`
	NoiseThreshold       float64 `toml:"noise_threshold"`
	SettleDelayMs        int     `toml:"settle_delay_ms"`
}

// SmoothingConfig maps smoothing settings.
type SmoothingConfig struct {
	Alpha            float64 `toml:"alpha"`
	ResumeAlpha      float64 `toml:"resume_alpha"`
	ResumeRampFrames int     `toml:"resume_ramp_frames"`
	LostAfterFrames  int     `toml:"lost_after_frames"`
}

// BlinkConfig maps blink detection settings.
type BlinkConfig struct {
	ClosedThreshold float64 `toml:"closed_threshold"`
	DebounceFrames  int     `toml:"debounce_frames"`
	MinBlinkMs      int     `toml:"min_blink_ms"`
	MaxBlinkMs      int     `toml:"max_blink_ms"`
}

// PracticeConfig maps Target Practice settings.
type PracticeConfig struct {
	TargetCount  int     `toml:"target_count"`
	TargetRadius float64 `toml:"target_radius"`
	TargetMargin float64 `toml:"target_margin"`
	Seed         uint64  `toml:"seed"`
}

// ServerConfig maps HTTP server settings.
type ServerConfig struct {
	Addr      string `toml:"addr"`
	StaticDir string `toml:"static_dir"`
}

// MQTTConfig maps the optional MQTT publisher settings. An empty broker disables it.
type MQTTConfig struct {
	Broker             string `toml:"broker"`
	ClientID           string `toml:"client_id"`
	TopicPrefix        string `toml:"topic_prefix"`
	PublishEveryFrames int    `toml:"publish_every_frames"`
}

// StoreConfig maps the results database settings.
type StoreConfig struct {
	Path string `toml:"path"`
}

// HooksConfig maps the event hook settings.
type HooksConfig struct {
	Dir       string `toml:"dir"`
	TimeoutMs int    `toml:"timeout_ms"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	cal := calibration.DefaultConfig()
	sm := smoothing.DefaultConfig()
	bl := blink.DefaultConfig()
	sess := session.DefaultConfig()
	det := detector.DefaultConfig()

	return Config{
		Screen: ScreenConfig{Width: int(cal.Screen.Width), Height: int(cal.Screen.Height)},
		Camera: CameraConfig{
			Device:                 0,
			FPS:                    30,
			ProviderTimeoutMs:      int(det.Timeout / time.Millisecond),
			ProviderStartTimeoutMs: int(det.StartTimeout / time.Millisecond),
			LightingThreshold:      25,
		},
		Calibration: CalibrationConfig{
			Grid:                 cal.Grid,
			Margin:               cal.Margin,
			MinCalibrationPoints: cal.MinPoints,
			MinAxisVariance:      cal.MinAxisVariance,
			NoiseThreshold:       cal.NoiseThreshold,
			SettleDelayMs:        int(cal.SettleDelay / time.Millisecond),
		},
		Smoothing: SmoothingConfig{
			Alpha:            sm.Alpha,
			ResumeAlpha:      sm.ResumeAlpha,
			ResumeRampFrames: sm.ResumeRampFrames,
			LostAfterFrames:  sm.LostAfter,
		},
		Blink: BlinkConfig{
			ClosedThreshold: bl.ClosedThreshold,
			DebounceFrames:  bl.DebounceFrames,
			MinBlinkMs:      int(bl.MinBlink / time.Millisecond),
			MaxBlinkMs:      int(bl.MaxBlink / time.Millisecond),
		},
		Practice: PracticeConfig{
			TargetCount:  sess.TargetCount,
			TargetRadius: sess.TargetRadius,
			TargetMargin: sess.TargetMargin,
		},
		Server: ServerConfig{Addr: ":8080"},
		MQTT: MQTTConfig{
			ClientID:           "gazetrack",
			TopicPrefix:        "gazetrack",
			PublishEveryFrames: 3,
		},
		Hooks: HooksConfig{TimeoutMs: 5000},
	}
}

// Load reads a TOML config from path on top of Defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to stat config: %w", err)
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Defaults(), fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Defaults(), fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}
	return cfg, nil
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	checks := []struct {
		ok  bool
		msg string
	}{
		{c.Screen.Width > 0 && c.Screen.Height > 0, "screen size must be positive"},
		{c.Camera.FPS > 0, "camera.fps must be positive"},
		{c.Camera.ProviderTimeoutMs > 0, "camera.provider_timeout_ms must be positive"},
		{c.Camera.ProviderStartTimeoutMs >= c.Camera.ProviderTimeoutMs, "camera.provider_start_timeout_ms must not be below provider_timeout_ms"},
		{c.Camera.LightingThreshold >= 0, "camera.lighting_threshold must not be negative"},
		{c.Calibration.Grid >= 2, "calibration.grid must be at least 2"},
		{c.Calibration.Margin >= 0, "calibration.margin must not be negative"},
		{c.Calibration.MinCalibrationPoints >= 3, "calibration.min_calibration_points must be at least 3"},
		{c.Calibration.MinCalibrationPoints <= c.Calibration.Grid*c.Calibration.Grid,
			"calibration.min_calibration_points exceeds the anchor count"},
		{c.Calibration.MinAxisVariance >= 0, "calibration.min_axis_variance must not be negative"},
		{c.Calibration.NoiseThreshold >= 0, "calibration.noise_threshold must not be negative"},
		{c.Calibration.SettleDelayMs >= 0, "calibration.settle_delay_ms must not be negative"},
		{c.Smoothing.Alpha > 0 && c.Smoothing.Alpha <= 1, "smoothing.alpha must be in (0,1]"},
		{c.Smoothing.ResumeAlpha > 0 && c.Smoothing.ResumeAlpha <= 1, "smoothing.resume_alpha must be in (0,1]"},
		{c.Smoothing.ResumeRampFrames >= 0, "smoothing.resume_ramp_frames must not be negative"},
		{c.Smoothing.LostAfterFrames > 0, "smoothing.lost_after_frames must be positive"},
		{c.Blink.ClosedThreshold > 0 && c.Blink.ClosedThreshold < 1, "blink.closed_threshold must be in (0,1)"},
		{c.Blink.DebounceFrames >= 1, "blink.debounce_frames must be at least 1"},
		{c.Blink.MinBlinkMs >= 0, "blink.min_blink_ms must not be negative"},
		{c.Blink.MaxBlinkMs > c.Blink.MinBlinkMs, "blink.max_blink_ms must exceed min_blink_ms"},
		{c.Practice.TargetCount > 0, "practice.target_count must be positive"},
		{c.Practice.TargetRadius > 0, "practice.target_radius must be positive"},
		{c.Practice.TargetMargin >= 0, "practice.target_margin must not be negative"},
		{c.MQTT.PublishEveryFrames >= 1, "mqtt.publish_every_frames must be at least 1"},
		{c.Hooks.TimeoutMs > 0, "hooks.timeout_ms must be positive"},
	}
	for _, check := range checks {
		if !check.ok {
			return fmt.Errorf("%w: %s", ErrInvalid, check.msg)
		}
	}
	return nil
}

// ScreenSize returns the screen as a calibration size.
func (c Config) ScreenSize() calibration.Size {
	return calibration.Size{Width: float64(c.Screen.Width), Height: float64(c.Screen.Height)}
}

// SessionConfig builds the session controller configuration.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		Calibration: calibration.Config{
			Screen:          c.ScreenSize(),
			Grid:            c.Calibration.Grid,
			Margin:          c.Calibration.Margin,
			MinPoints:       c.Calibration.MinCalibrationPoints,
			MinAxisVariance: c.Calibration.MinAxisVariance,
			NoiseThreshold:  c.Calibration.NoiseThreshold,
			SettleDelay:     ms(c.Calibration.SettleDelayMs),
		},
		Smoothing: smoothing.Config{
			Alpha:            c.Smoothing.Alpha,
			ResumeAlpha:      c.Smoothing.ResumeAlpha,
			ResumeRampFrames: c.Smoothing.ResumeRampFrames,
			LostAfter:        c.Smoothing.LostAfterFrames,
		},
		Blink: blink.Config{
			ClosedThreshold: c.Blink.ClosedThreshold,
			DebounceFrames:  c.Blink.DebounceFrames,
			MinBlink:        ms(c.Blink.MinBlinkMs),
			MaxBlink:        ms(c.Blink.MaxBlinkMs),
		},
		TargetCount:      c.Practice.TargetCount,
		TargetRadius:     c.Practice.TargetRadius,
		TargetMargin:     c.Practice.TargetMargin,
		Seed:             c.Practice.Seed,
		AfterCalibration: session.TargetPractice,
	}
}

// DetectorConfig builds the gaze provider configuration.
func (c Config) DetectorConfig() detector.Config {
	det := detector.DefaultConfig()
	det.Timeout = ms(c.Camera.ProviderTimeoutMs)
	det.StartTimeout = ms(c.Camera.ProviderStartTimeoutMs)
	det.ScriptPath = c.Camera.ServiceScript
	det.Interpreter = c.Camera.ServiceInterpreter
	return det
}

// DBPath returns the results database path, defaulting to the XDG data dir.
func (c Config) DBPath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return DefaultDBPath()
}

// HooksDir returns the event hook directory, defaulting to the XDG config dir.
func (c Config) HooksDir() string {
	if c.Hooks.Dir != "" {
		return c.Hooks.Dir
	}
	return DefaultHooksDir()
}

// HookTimeout returns the per-run hook time limit.
func (c Config) HookTimeout() time.Duration {
	return ms(c.Hooks.TimeoutMs)
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
