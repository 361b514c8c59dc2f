// Package main provides the CLI entrypoint for gazetrack.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/gazetrack/internal/app"
	"github.com/ayusman/gazetrack/internal/config"
	"github.com/ayusman/gazetrack/internal/hook"
	"github.com/ayusman/gazetrack/internal/publish"
	"github.com/ayusman/gazetrack/internal/server"
	"github.com/ayusman/gazetrack/internal/session"
	"github.com/ayusman/gazetrack/internal/store"
	"github.com/ayusman/gazetrack/internal/tray"
)

const operatorTimeout = 2 * time.Second

var (
	configPath string

	runCamera       int
	runFPS          int
	runAddr         string
	runStaticDir    string
	runBroker       string
	runTargetCount  int
	runTargetRadius float64
	runSeed         uint64
	runNoTray       bool

	resultsLimit int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "gazetrack",
		Short:        "Webcam gaze cursor with blink selection",
		SilenceUsage: true,
		RunE:         runTrackerCmd,
	}

	defaults := config.Defaults()
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file path")

	rootCmd.Flags().IntVar(&runCamera, "camera", defaults.Camera.Device, "camera device id")
	rootCmd.Flags().IntVar(&runFPS, "fps", defaults.Camera.FPS, "capture frame rate")
	rootCmd.Flags().StringVar(&runAddr, "addr", defaults.Server.Addr, "HTTP listen address")
	rootCmd.Flags().StringVar(&runStaticDir, "static-dir", "", "directory of the web display")
	rootCmd.Flags().StringVar(&runBroker, "mqtt-broker", "", "MQTT broker URL (empty disables publishing)")
	rootCmd.Flags().IntVar(&runTargetCount, "targets", defaults.Practice.TargetCount, "targets per practice run")
	rootCmd.Flags().Float64Var(&runTargetRadius, "target-radius", defaults.Practice.TargetRadius, "target radius in pixels")
	rootCmd.Flags().Uint64Var(&runSeed, "seed", 0, "target placement seed (0 picks one per run)")
	rootCmd.Flags().BoolVar(&runNoTray, "no-tray", false, "run without the system tray menu")

	rootCmd.AddCommand(newResultsCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// applyFlags overrides file values with the flags given on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("camera") {
		cfg.Camera.Device = runCamera
	}
	if flags.Changed("fps") {
		cfg.Camera.FPS = runFPS
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = runAddr
	}
	if flags.Changed("static-dir") {
		cfg.Server.StaticDir = runStaticDir
	}
	if flags.Changed("mqtt-broker") {
		cfg.MQTT.Broker = runBroker
	}
	if flags.Changed("targets") {
		cfg.Practice.TargetCount = runTargetCount
	}
	if flags.Changed("target-radius") {
		cfg.Practice.TargetRadius = runTargetRadius
	}
	if flags.Changed("seed") {
		cfg.Practice.Seed = runSeed
	}
}

func runTrackerCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := server.NewHub()

	appCfg := app.Config{
		Session:           cfg.SessionConfig(),
		CameraID:          cfg.Camera.Device,
		FPS:               cfg.Camera.FPS,
		Detector:          cfg.DetectorConfig(),
		LightingThreshold: cfg.Camera.LightingThreshold,
		Store:             st,
		Hub:               hub,
	}

	if cfg.MQTT.Broker != "" {
		pub, err := publish.Connect(publish.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Every:       cfg.MQTT.PublishEveryFrames,
		})
		if err != nil {
			log.Printf("MQTT publishing disabled: %v", err)
		} else {
			appCfg.Publisher = pub
			log.Printf("Publishing to %s under %s/", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
		}
	}

	hooks := hook.NewManager(cfg.HooksDir())
	if err := hooks.Discover(); err != nil {
		log.Printf("Failed to scan hooks in %s: %v", hooks.Dir(), err)
	}
	if n := len(hooks.List()); n > 0 {
		dispatcher := hook.NewDispatcher(hooks, hook.NewExecutor(cfg.HookTimeout()))
		defer dispatcher.Close()
		appCfg.Hooks = dispatcher
		log.Printf("Loaded %d hooks from %s", n, hooks.Dir())
	}

	var tr *tray.Tray
	if !runNoTray {
		tr = tray.New()
		appCfg.OnStatus = tr.SetStatus
	}

	a := app.New(appCfg)
	if err := a.Start(); err != nil {
		return fmt.Errorf("failed to start camera: %w", err)
	}
	defer a.Stop()

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		log.Printf("Serving static files from: %s", staticDir)
	} else {
		log.Printf("No web display found; pass --static-dir to serve one. /api/display is still available")
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: server.New(server.Config{
			StaticDir: staticDir,
			Store:     st,
			Operator:  a,
			Frames:    a,
			Hub:       hub,
		}),
	}
	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server failed: %v", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), operatorTimeout)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if tr == nil {
		<-ctx.Done()
		return nil
	}

	wireTray(tr, a, resultsURL(cfg.Server.Addr))
	tr.OnQuit(stop)
	go func() {
		<-ctx.Done()
		tr.Quit()
	}()
	tr.Run()
	return nil
}

// wireTray routes menu clicks into the session loop.
func wireTray(tr *tray.Tray, a *app.App, url string) {
	tr.OnMode(func(mode session.Mode) {
		ctx, cancel := context.WithTimeout(context.Background(), operatorTimeout)
		defer cancel()
		if _, err := a.SwitchMode(ctx, mode); err != nil {
			log.Printf("Cannot switch to %s: %v", mode, err)
		}
	})
	tr.OnConfirm(func() {
		ctx, cancel := context.WithTimeout(context.Background(), operatorTimeout)
		defer cancel()
		if _, err := a.Confirm(ctx); err != nil {
			log.Printf("Confirm failed: %v", err)
		}
	})
	tr.OnResults(func() {
		if err := openBrowser(url); err != nil {
			log.Printf("Failed to open browser: %v", err)
		}
	})
}

func openStore(cfg config.Config) (*store.Store, error) {
	dbPath := cfg.DBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func resultsURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	name := "xdg-open"
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	}
	return exec.Command(name, url).Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and the XDG data dir.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(config.XDGDataHome(), "gazetrack", "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := writeDefaultConfig(path); err != nil {
			return err
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func writeDefaultConfig(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if _, err := fmt.Fprintln(f, "# gazetrack configuration. CLI flags override config values."); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := config.Write(f, config.Defaults()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	return f.Close()
}
