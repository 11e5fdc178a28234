package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	fmt.Println("Mudra - Hand Sign Recognition")

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	m := metrics.New()
	sessions := session.NewManager(cfg.VoteConfig(), m)

	reload := func() error {
		_, err := sessions.LoadReferences(st.References(), cfg.Classifier.K, cfg.Classifier.Threshold)
		return err
	}
	if err := reload(); err != nil {
		monitoring.Logf("Failed to load references: %v", err)
	}

	webDir := cfg.StaticDir
	if webDir == "" {
		webDir = findWebDir(cfg.DataDir)
	}
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvCfg := server.Config{
		StaticDir:  webDir,
		Store:      st,
		Sessions:   sessions,
		Metrics:    m,
		ProfileKey: cfg.ProfileKey,
		WindowSize: cfg.Vote.WindowSize,
		Reload:     reload,
	}

	var local *app.App
	if cfg.Native {
		local, err = app.New(app.Config{
			Store:      st,
			Sessions:   sessions,
			Camera:     capture.Config{DeviceID: cfg.CameraID, FPS: cfg.FPS},
			Detector:   detector.DefaultConfig(),
			ProfileKey: cfg.ProfileKey,
		})
		if err != nil {
			return fmt.Errorf("initialize camera pipeline: %w", err)
		}

		hub := server.NewHub()
		local.OnOutput(hub.Publish)
		srvCfg.Preview = local
		srvCfg.PreviewFPS = cfg.FPS
		srvCfg.Live = hub

		if err := local.Start(); err != nil {
			return fmt.Errorf("start camera pipeline: %w", err)
		}
		defer local.Stop()
	}

	go sweepSessions(ctx, sessions, cfg.SessionIdle)

	srv := server.New(srvCfg)
	fmt.Printf("Starting server on %s\n", cfg.Listen)

	if !cfg.Tray || local == nil {
		return srv.Run(ctx, cfg.Listen)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, cfg.Listen)
		stop()
	}()

	t := tray.New(local.IsEnabled())
	t.OnToggle(local.SetEnabled)
	t.OnSettings(func() { openBrowser(settingsURL(cfg.Listen)) })
	t.OnQuit(stop)
	local.OnStable(func(label string, _ float64) { t.SetSign(label) })

	// The tray owns the main thread until Quit.
	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()

	stop()
	return <-errCh
}

// sweepSessions closes idle remote sessions until ctx is cancelled.
func sweepSessions(ctx context.Context, sessions *session.Manager, maxIdle time.Duration) {
	ticker := time.NewTicker(maxIdle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Sweep(maxIdle)
		}
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
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

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}

func settingsURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		listen = "localhost" + listen
	}
	return "http://" + listen + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		monitoring.Logf("Failed to open browser: %v", err)
	}
}
