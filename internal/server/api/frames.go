package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/lighting"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/sign"
)

// ErrInvalidFrame is returned when a frame request cannot be turned into a
// pipeline frame.
var ErrInvalidFrame = errors.New("invalid frame")

// FrameRequest is one frame sent by a client, over HTTP or the session
// websocket. Image is an encoded JPEG or PNG; Pixels is a raw RGBA buffer of
// Width x Height. Without either, Scene carries client-measured lighting.
type FrameRequest struct {
	TimeMs *int64                   `json:"time_ms,omitempty"`
	Hands  []landmark.HandLandmarks `json:"hands"`
	Scene  *session.Scene           `json:"scene,omitempty"`
	Image  []byte                   `json:"image,omitempty"`
	Pixels []byte                   `json:"pixels,omitempty"`
	Width  int                      `json:"width,omitempty"`
	Height int                      `json:"height,omitempty"`
}

// Frame converts the request. A missing time_ms is taken from now.
func (req FrameRequest) Frame(now time.Time) (session.Frame, error) {
	if len(req.Hands) > sign.MaxHands {
		return session.Frame{}, fmt.Errorf("%d hands: %w", len(req.Hands), ErrInvalidFrame)
	}

	f := session.Frame{
		Hands:  req.Hands,
		Scene:  req.Scene,
		TimeMs: now.UnixMilli(),
	}
	if req.TimeMs != nil {
		f.TimeMs = *req.TimeMs
	}

	switch {
	case len(req.Image) > 0:
		pixels, w, h, err := capture.DecodePixels(req.Image)
		if err != nil {
			return session.Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		f.Pixels, f.Width, f.Height = pixels, w, h
	case len(req.Pixels) > 0:
		if req.Width <= 0 || req.Height <= 0 {
			return session.Frame{}, fmt.Errorf("pixels without dimensions: %w", ErrInvalidFrame)
		}
		f.Pixels, f.Width, f.Height = req.Pixels, req.Width, req.Height
	}
	return f, nil
}

// RawResponse is the per-frame classifier result.
type RawResponse struct {
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	Distance   *float64 `json:"distance"`
	Outcome    string   `json:"outcome"`
}

// OutputResponse is the pipeline output for one frame.
type OutputResponse struct {
	Raw              RawResponse    `json:"raw"`
	Lighting         lighting.Stats `json:"lighting"`
	DetectionAllowed bool           `json:"detection_allowed"`
	Stable           sign.Stable    `json:"stable"`
	Changed          bool           `json:"changed"`
	TimeMs           int64          `json:"time_ms"`
}

// NewOutputResponse converts a session output to its wire form.
func NewOutputResponse(out session.Output) OutputResponse {
	return OutputResponse{
		Raw: RawResponse{
			Label:      out.Raw.Label,
			Confidence: out.Raw.Confidence,
			Distance:   out.Raw.JSONDistance(),
			Outcome:    out.Raw.Outcome.String(),
		},
		Lighting:         out.Lighting,
		DetectionAllowed: out.DetectionAllowed,
		Stable:           out.Stable,
		Changed:          out.Changed,
		TimeMs:           out.TimeMs,
	}
}
