// Package lighting scores camera frames for brightness and contrast so the
// recognizer only votes on usable scenes.
package lighting

import (
	"gonum.org/v1/gonum/stat"
)

// Status is the scene quality verdict.
type Status string

const (
	StatusGood        Status = "good"
	StatusLowLight    Status = "low_light"
	StatusOverexposed Status = "overexposed"
	StatusLowContrast Status = "low_contrast"
)

// BT.709 luma weights.
const (
	lumaR = 0.2126
	lumaG = 0.7152
	lumaB = 0.0722
)

// Sampling keeps roughly SampleSpan points per axis, never denser than MinStride.
const (
	SampleSpan = 90
	MinStride  = 4
)

// Thresholds are the lighting bounds taken from a calibration profile.
type Thresholds struct {
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	MinContrast float64 `json:"min_contrast"`
}

// Stats is the result of evaluating one frame.
type Stats struct {
	Mean     float64 `json:"mean"`
	Contrast float64 `json:"contrast"`
	Status   Status  `json:"status"`
}

// Good reports whether the scene passed every check.
func (s Stats) Good() bool {
	return s.Status == StatusGood
}

// Stride returns the sampling step for a width x height frame.
func Stride(width, height int) int {
	return max(MinStride, max(width, height)/SampleSpan)
}

// Evaluate samples an RGBA buffer (4 bytes per pixel, row-major) on a
// stride grid and classifies its mean luma and population standard
// deviation. An empty frame reports low light. Pixels beyond the end of a
// short buffer are not sampled.
func Evaluate(pixels []byte, width, height int, th Thresholds) Stats {
	if width <= 0 || height <= 0 || len(pixels) < 4 {
		return Stats{Status: StatusLowLight}
	}

	stride := Stride(width, height)
	luma := make([]float64, 0, (width/stride+1)*(height/stride+1))
	for y := 0; y < height; y += stride {
		for x := 0; x < width; x += stride {
			i := (y*width + x) * 4
			if i+2 >= len(pixels) {
				break
			}
			luma = append(luma, lumaR*float64(pixels[i])+lumaG*float64(pixels[i+1])+lumaB*float64(pixels[i+2]))
		}
	}
	if len(luma) == 0 {
		return Stats{Status: StatusLowLight}
	}

	mean, contrast := stat.PopMeanStdDev(luma, nil)
	return Stats{Mean: mean, Contrast: contrast, Status: Classify(mean, contrast, th)}
}

// Classify applies the status priority: low light, overexposed, low contrast.
func Classify(mean, contrast float64, th Thresholds) Status {
	switch {
	case mean < th.Min:
		return StatusLowLight
	case mean > th.Max:
		return StatusOverexposed
	case contrast < th.MinContrast:
		return StatusLowContrast
	default:
		return StatusGood
	}
}
