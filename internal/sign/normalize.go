// Package sign turns hand landmarks into stable sign classifications:
// feature normalization, nearest-neighbor classification and temporal
// vote stabilization.
package sign

import (
	"github.com/ayusman/mudra/internal/landmark"
)

// MaxHands is the number of hand slots in an encoded feature vector.
const MaxHands = 2

// HandFeatures is the length of one normalized hand.
const HandFeatures = landmark.NumLandmarks * 3

// FeatureLength is the length of a two-hand feature vector.
const FeatureLength = HandFeatures * MaxHands

// FeatureVector is a flat, normalized landmark encoding.
type FeatureVector []float64

// Normalize maps one hand's landmarks to a translation and scale invariant
// vector of 63 values: each coordinate minus the wrist, divided by the
// wrist-to-middle-MCP distance. An empty input yields an empty vector.
// Partial hands are zero-padded; points past the 21st are ignored.
func Normalize(points []landmark.Point3D) FeatureVector {
	if len(points) == 0 {
		return FeatureVector{}
	}

	wrist := points[landmark.Wrist]
	scale := 1.0
	if len(points) > landmark.MiddleMCP {
		scale = landmark.HandScale(wrist, points[landmark.MiddleMCP])
	}

	out := make(FeatureVector, HandFeatures)
	for i, p := range points {
		if i >= landmark.NumLandmarks {
			break
		}
		out[i*3] = (p.X - wrist.X) / scale
		out[i*3+1] = (p.Y - wrist.Y) / scale
		out[i*3+2] = (p.Z - wrist.Z) / scale
	}
	return out
}

// EncodeHands concatenates up to MaxHands normalized hands in detection
// order. Absent hands occupy a zero-filled slot so the vector length is
// always FeatureLength.
func EncodeHands(hands []landmark.HandLandmarks) FeatureVector {
	out := make(FeatureVector, FeatureLength)
	for slot := 0; slot < MaxHands && slot < len(hands); slot++ {
		copy(out[slot*HandFeatures:], Normalize(hands[slot].Points[:]))
	}
	return out
}
