// Package calibration derives lighting and vote thresholds from a batch of
// recorded scene samples.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/ayusman/mudra/internal/lighting"
	"github.com/ayusman/mudra/internal/sign"
)

// DefaultRequiredHits is the required-hit count before clamping to the window.
const DefaultRequiredHits = 3

// MinWindowSize is the smallest vote window a profile can be computed for.
const MinWindowSize = 2

// ConfidencePercentile selects the confidence sample the vote floor is based on.
const ConfidencePercentile = 0.30

// ErrInvalidWindow is returned when the vote window cannot hold the minimum hit count.
var ErrInvalidWindow = errors.New("invalid vote window size")

// Sample is one recorded observation. Confidence is optional; values <= 0
// are ignored.
type Sample struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Profile holds the thresholds consumed by the lighting gate and the
// stabilizer. A profile is replaced on recalibration, never edited.
type Profile struct {
	LightingMin         float64   `json:"lighting_min"`
	LightingMax         float64   `json:"lighting_max"`
	LightingMinContrast float64   `json:"lighting_min_contrast"`
	VoteMinConfidence   float64   `json:"vote_min_confidence"`
	VoteRequiredHits    int       `json:"vote_required_hits"`
	SampleCount         int       `json:"sample_count"`
	UpdatedAt           time.Time `json:"updated_at"`
	Version             int       `json:"version"`
}

// DefaultProfile returns the thresholds used before any calibration.
func DefaultProfile() Profile {
	return Profile{
		LightingMin:         45,
		LightingMax:         210,
		LightingMinContrast: 18,
		VoteMinConfidence:   0.55,
		VoteRequiredHits:    DefaultRequiredHits,
	}
}

// LightingThresholds returns the gate bounds of the profile.
func (p Profile) LightingThresholds() lighting.Thresholds {
	return lighting.Thresholds{
		Min:         p.LightingMin,
		Max:         p.LightingMax,
		MinContrast: p.LightingMinContrast,
	}
}

// VoteConfig overlays the profile's acceptance rule on base. Window size,
// TTL, grace and decay stay pipeline settings.
func (p Profile) VoteConfig(base sign.VoteConfig) sign.VoteConfig {
	base.MinConfidence = p.VoteMinConfidence
	base.RequiredHits = p.VoteRequiredHits
	return base
}

// Validate checks the profile invariants.
func (p Profile) Validate() error {
	if !(p.LightingMin < p.LightingMax) {
		return fmt.Errorf("lighting min %.2f must be below max %.2f", p.LightingMin, p.LightingMax)
	}
	if p.VoteRequiredHits < 1 {
		return fmt.Errorf("required hits must be positive, got %d", p.VoteRequiredHits)
	}
	if p.VoteMinConfidence < 0 || p.VoteMinConfidence > 1 {
		return fmt.Errorf("vote min confidence %.2f out of range", p.VoteMinConfidence)
	}
	return nil
}

// Calibrate computes a profile stamped with the current time.
func Calibrate(samples []Sample, windowSize int) (Profile, error) {
	return CalibrateAt(samples, windowSize, time.Now())
}

// CalibrateAt computes a profile from samples for a vote window of
// windowSize. Samples with a non-finite brightness or contrast are skipped;
// if none remain the default profile is returned. The input is not modified.
func CalibrateAt(samples []Sample, windowSize int, now time.Time) (Profile, error) {
	if windowSize < MinWindowSize {
		return Profile{}, fmt.Errorf("calibrate with window %d: %w", windowSize, ErrInvalidWindow)
	}

	brightness := make([]float64, 0, len(samples))
	contrast := make([]float64, 0, len(samples))
	var confidence []float64
	for _, s := range samples {
		if !finite(s.Brightness) || !finite(s.Contrast) {
			continue
		}
		brightness = append(brightness, s.Brightness)
		contrast = append(contrast, s.Contrast)
		if s.Confidence > 0 && finite(s.Confidence) {
			confidence = append(confidence, s.Confidence)
		}
	}

	p := DefaultProfile()
	p.UpdatedAt = now
	if len(brightness) == 0 {
		return p, nil
	}

	slices.Sort(brightness)
	slices.Sort(contrast)
	brightnessMedian := brightness[len(brightness)/2]
	contrastMedian := contrast[len(contrast)/2]

	p.LightingMin = clamp(0.55*brightnessMedian, 25, 120)
	p.LightingMax = clamp(1.45*brightnessMedian, 120, 245)
	p.LightingMinContrast = clamp(0.65*contrastMedian, 10, 80)
	if len(confidence) > 0 {
		slices.Sort(confidence)
		idx := int(math.Floor(ConfidencePercentile * float64(len(confidence)-1)))
		p.VoteMinConfidence = clamp(0.9*confidence[idx], 0.25, 0.9)
	}
	p.VoteRequiredHits = min(max(DefaultRequiredHits, MinWindowSize), windowSize)
	p.SampleCount = len(brightness)
	return p, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
