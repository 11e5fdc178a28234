// Package session runs the per-subject recognition pipeline: landmarks are
// normalized and classified, the frame is scored by the lighting gate and the
// stabilizer turns both into a stable sign.
package session

import (
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/calibration"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/lighting"
	"github.com/ayusman/mudra/internal/sign"
)

// MaxRecordedSamples caps the calibration samples buffered by one session.
const MaxRecordedSamples = 10000

// Frame is one observation fed to a session. Pixels is an RGBA buffer; when
// it is empty, Scene may carry lighting statistics measured by the client.
type Frame struct {
	Hands  []landmark.HandLandmarks
	Pixels []byte
	Width  int
	Height int
	Scene  *Scene
	TimeMs int64
}

// Scene is a client-side brightness measurement.
type Scene struct {
	Mean     float64 `json:"mean"`
	Contrast float64 `json:"contrast"`
}

// Output is the pipeline result for one frame.
type Output struct {
	Raw              sign.Result
	Lighting         lighting.Stats
	DetectionAllowed bool
	Stable           sign.Stable
	// Changed is set when the stable label differs from the previous frame's.
	Changed bool
	TimeMs  int64
}

// Classifiers supplies the classifier current at the time of a frame.
type Classifiers interface {
	Classifier() *sign.Classifier
}

// Info is a snapshot of a session for listing.
type Info struct {
	ID         string              `json:"id"`
	ProfileKey string              `json:"profile_key"`
	Profile    calibration.Profile `json:"profile"`
	Stable     sign.StableState    `json:"stable"`
	Frames     int                 `json:"frames"`
	Recording  bool                `json:"recording"`
	Recorded   int                 `json:"recorded"`
	Pinned     bool                `json:"pinned"`
	CreatedAt  time.Time           `json:"created_at"`
	LastSeen   time.Time           `json:"last_seen"`
}

// Session owns one stabilizer. Process calls are serialized.
type Session struct {
	id         string
	profileKey string
	vote       sign.VoteConfig
	source     Classifiers

	mu         sync.Mutex
	profile    calibration.Profile
	stabilizer *sign.Stabilizer
	lastLabel  string
	last       *calibration.Sample
	recording  bool
	pinned     bool
	samples    []calibration.Sample
	frames     int
	createdAt  time.Time
	lastSeen   time.Time
}

// New creates a session using profile for its thresholds and vote as the
// pipeline vote settings.
func New(id, profileKey string, profile calibration.Profile, vote sign.VoteConfig, source Classifiers) *Session {
	now := time.Now()
	return &Session{
		id:         id,
		profileKey: profileKey,
		vote:       vote,
		source:     source,
		profile:    profile,
		stabilizer: sign.NewStabilizer(),
		lastLabel:  sign.IdleLabel,
		createdAt:  now,
		lastSeen:   now,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// ProfileKey returns the calibration profile key the session follows.
func (s *Session) ProfileKey() string {
	return s.profileKey
}

// Process runs one frame through the pipeline.
func (s *Session) Process(f Frame) Output {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.evaluateScene(f)

	raw := sign.UnknownResult()
	if len(f.Hands) > 0 {
		if c := s.classifier(); c != nil {
			raw = c.Classify(sign.EncodeHands(f.Hands))
		}
	}

	allowed := stats.Good() && len(f.Hands) > 0
	stable := s.stabilizer.Update(sign.Vote{
		Label:            raw.Label,
		Confidence:       raw.Confidence,
		TimeMs:           f.TimeMs,
		DetectionAllowed: allowed,
	}, s.profile.VoteConfig(s.vote))

	out := Output{
		Raw:              raw,
		Lighting:         stats,
		DetectionAllowed: allowed,
		Stable:           stable,
		Changed:          stable.Label != s.lastLabel,
		TimeMs:           f.TimeMs,
	}
	s.lastLabel = stable.Label

	sample := calibration.Sample{Brightness: stats.Mean, Contrast: stats.Contrast}
	if raw.Outcome == sign.OutcomeMatch {
		sample.Confidence = raw.Confidence
	}
	s.last = &sample
	if s.recording {
		s.record(sample)
	}

	s.frames++
	s.lastSeen = time.Now()
	return out
}

func (s *Session) classifier() *sign.Classifier {
	if s.source == nil {
		return nil
	}
	return s.source.Classifier()
}

func (s *Session) evaluateScene(f Frame) lighting.Stats {
	th := s.profile.LightingThresholds()
	if len(f.Pixels) == 0 && f.Scene != nil {
		return lighting.Stats{
			Mean:     f.Scene.Mean,
			Contrast: f.Scene.Contrast,
			Status:   lighting.Classify(f.Scene.Mean, f.Scene.Contrast, th),
		}
	}
	return lighting.Evaluate(f.Pixels, f.Width, f.Height, th)
}

func (s *Session) record(sample calibration.Sample) {
	if len(s.samples) >= MaxRecordedSamples {
		return
	}
	s.samples = append(s.samples, sample)
}

// Observe records the scene of the last processed frame as a calibration
// sample. It reports false when no frame has been processed yet.
func (s *Session) Observe() (calibration.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return calibration.Sample{}, false
	}
	s.record(*s.last)
	return *s.last, true
}

// SetRecording toggles recording a calibration sample on every frame.
func (s *Session) SetRecording(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = on
}

// TakeSamples returns the recorded calibration samples and clears the buffer.
func (s *Session) TakeSamples() []calibration.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := s.samples
	s.samples = nil
	return samples
}

// RestoreSamples puts samples taken by TakeSamples back ahead of any
// recorded since, keeping the buffer cap.
func (s *Session) RestoreSamples(samples []calibration.Sample) {
	if len(samples) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]calibration.Sample, 0, len(samples)+len(s.samples))
	merged = append(merged, samples...)
	merged = append(merged, s.samples...)
	if len(merged) > MaxRecordedSamples {
		merged = merged[:MaxRecordedSamples]
	}
	s.samples = merged
}

// SetProfile supersedes the calibration profile used for later frames.
func (s *Session) SetProfile(p calibration.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}

// Profile returns the active calibration profile.
func (s *Session) Profile() calibration.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Reset clears the vote window and the committed sign.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stabilizer.Reset()
	s.lastLabel = sign.IdleLabel
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.id,
		ProfileKey: s.profileKey,
		Profile:    s.profile,
		Stable:     s.stabilizer.State(),
		Frames:     s.frames,
		Recording:  s.recording,
		Recorded:   len(s.samples),
		Pinned:     s.pinned,
		CreatedAt:  s.createdAt,
		LastSeen:   s.lastSeen,
	}
}

// idleSince reports whether an unpinned session has seen no frame since cutoff.
func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.pinned && s.lastSeen.Before(cutoff)
}
