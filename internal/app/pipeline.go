package app

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/session"
)

// runPipeline is the main detection loop that processes frames from the camera.
func (a *App) runPipeline(stopCh <-chan struct{}, doneCh chan<- struct{}, interval time.Duration) {
	defer close(doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			// Skip processing if detection is disabled
			if !a.IsEnabled() {
				continue
			}

			frame, err := a.Camera().ReadFrame()
			if err != nil {
				monitoring.Logf("Error reading frame: %v", err)
				continue
			}

			a.ProcessFrame(frame, now)
			frame.Close()
		}
	}
}

// ProcessFrame runs one camera frame through detection and the local
// session. The frame is not closed.
func (a *App) ProcessFrame(frame *gocv.Mat, now time.Time) session.Output {
	if jpeg, err := capture.EncodeJPEG(frame); err == nil {
		a.latest.Store(&jpeg)
	}

	f := session.Frame{TimeMs: now.UnixMilli()}

	pixels, width, height, err := capture.FramePixels(frame)
	if err != nil {
		monitoring.Logf("Error converting frame: %v", err)
	} else {
		f.Pixels, f.Width, f.Height = pixels, width, height
	}

	if d := a.Detector(); d != nil {
		hands, err := d.Detect(frame)
		if err != nil {
			monitoring.Logf("Error detecting hands: %v", err)
		}
		f.Hands = a.config.Detector.Limit(hands)
	}

	out := a.config.Sessions.ProcessSession(a.session, f)

	a.mu.RLock()
	listeners := a.listeners
	onStable := a.onStable
	a.mu.RUnlock()

	for _, fn := range listeners {
		fn(out)
	}
	if out.Changed && onStable != nil {
		if out.Stable.IsSign() {
			onStable(out.Stable.Label, out.Stable.Confidence)
		} else {
			onStable("", 0)
		}
	}
	return out
}
