// Package detector provides hand landmark sources over camera frames.
package detector

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/landmark"
)

// Detector defines the interface for hand landmark sources.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]landmark.HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// IdleShutdown stops the landmark service after this long without frames.
	IdleShutdown time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		IdleShutdown:    30 * time.Second,
	}
}

// Limit drops hands beyond MaxHands and hands scored below MinConfidence.
// Order is preserved so hand slots stay stable across frames.
func (c Config) Limit(hands []landmark.HandLandmarks) []landmark.HandLandmarks {
	out := make([]landmark.HandLandmarks, 0, len(hands))
	for _, h := range hands {
		if h.Score > 0 && h.Score < c.MinConfidence {
			continue
		}
		if c.MaxHands > 0 && len(out) >= c.MaxHands {
			break
		}
		out = append(out, h)
	}
	return out
}
