// Package app runs the local camera pipeline: frames are read on a ticker,
// hands are detected and every frame is fed to one recognition session.
package app

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

// EnabledSetting is the settings key holding the detection toggle.
const EnabledSetting = "detection_enabled"

// Config holds configuration options for the application.
type Config struct {
	Store    *store.Store
	Sessions *session.Manager
	Camera   capture.Config
	Detector detector.Config
	// ProfileKey selects the calibration profile of the local session.
	ProfileKey string
}

// App reads the local camera and reports stable signs.
type App struct {
	config   Config
	camera   capture.Camera
	detector detector.Detector
	session  *session.Session
	enabled  bool
	mu       sync.RWMutex
	stopCh   chan struct{}
	doneCh   chan struct{}

	latest    atomic.Pointer[[]byte]
	listeners []func(session.Output)
	onStable  func(label string, confidence float64)
}

// New creates a new App instance and opens its session on the manager.
func New(config Config) (*App, error) {
	if config.ProfileKey == "" {
		config.ProfileKey = "default"
	}

	profile, err := config.Store.Profiles().LatestOrDefault(config.ProfileKey)
	if err != nil {
		return nil, err
	}

	s := config.Sessions.Create(config.ProfileKey, profile)
	if err := config.Sessions.Pin(s.ID()); err != nil {
		return nil, err
	}

	a := &App{
		config:  config,
		camera:  capture.NewCamera(config.Camera),
		session: s,
		enabled: config.Store.Settings().Bool(EnabledSetting, true),
	}

	// Try MediaPipe first, fall back to mock detector
	if mp, err := detector.NewMediaPipeDetector(config.Detector); err == nil {
		a.detector = mp
		monitoring.Logf("Using MediaPipe hand detection")
	} else {
		monitoring.Logf("MediaPipe not available (%v), using mock detector", err)
		a.detector = detector.NewMockDetector()
	}

	return a, nil
}

// SetEnabled enables or disables detection and persists the choice.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()

	if err := a.config.Store.Settings().SetBool(EnabledSetting, enabled); err != nil {
		monitoring.Logf("Failed to save detection setting: %v", err)
	}
	if !enabled {
		a.session.Reset()
	}
}

// IsEnabled returns whether detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetDetector sets the hand detector implementation to use.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
}

// SetCamera replaces the camera. It must be called before Start.
func (a *App) SetCamera(c capture.Camera) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera = c
}

// OnOutput registers fn to receive every frame's output.
func (a *App) OnOutput(fn func(session.Output)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// OnStable sets the callback invoked when the stable sign changes. The
// label is empty once no sign is held.
func (a *App) OnStable(fn func(label string, confidence float64)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onStable = fn
}

// Start begins the detection pipeline.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	fps := a.config.Camera.FPS
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	a.camera.SetFPS(fps)

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.doneCh, time.Second/time.Duration(fps))

	monitoring.Logf("Detection pipeline started")
	return nil
}

// Stop halts the detection pipeline and releases resources.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if err := a.camera.Close(); err != nil {
		monitoring.Logf("Error closing camera: %v", err)
	}

	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			monitoring.Logf("Error closing detector: %v", err)
		}
	}

	monitoring.Logf("Detection pipeline stopped")
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.camera
}

// Detector returns the hand detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// Session returns the local recognition session.
func (a *App) Session() *session.Session {
	return a.session
}

// LatestJPEG returns the last captured frame as JPEG, or nil.
func (a *App) LatestJPEG() []byte {
	if buf := a.latest.Load(); buf != nil {
		return *buf
	}
	return nil
}
