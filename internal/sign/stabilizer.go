package sign

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// IdleLabel is the stable label reported when no sign is committed.
const IdleLabel = "idle"

// FrameMs is the frame unit used for occlusion decay (30 fps).
const FrameMs = 1000.0 / 30.0

// Decay bounds applied to VoteConfig.DecayPerFrame.
const (
	MinDecay = 0.5
	MaxDecay = 0.99
)

// Phase describes which branch of the stabilizer produced an output.
type Phase int

const (
	// PhaseIdle means nothing is committed and nothing is being reused.
	PhaseIdle Phase = iota
	// PhaseAccumulating means valid votes exist but consensus is not reached yet.
	PhaseAccumulating
	// PhaseStable means the window reached consensus on this frame.
	PhaseStable
	// PhaseGrace means the last stable label is re-emitted through an occlusion.
	PhaseGrace
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseAccumulating:
		return "accumulating"
	case PhaseStable:
		return "stable"
	case PhaseGrace:
		return "grace"
	default:
		return "idle"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{PhaseIdle, PhaseAccumulating, PhaseStable, PhaseGrace} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// VoteConfig controls the vote window and the acceptance rule.
type VoteConfig struct {
	WindowSize    int
	TTL           time.Duration
	RequiredHits  int
	MinConfidence float64
	Grace         time.Duration
	DecayPerFrame float64
}

// DefaultVoteConfig returns the pipeline defaults.
func DefaultVoteConfig() VoteConfig {
	return VoteConfig{
		WindowSize:    5,
		TTL:           600 * time.Millisecond,
		RequiredHits:  3,
		MinConfidence: 0.55,
		Grace:         240 * time.Millisecond,
		DecayPerFrame: 0.90,
	}
}

func (c VoteConfig) normalized() VoteConfig {
	if c.WindowSize < 1 {
		c.WindowSize = 1
	}
	if c.RequiredHits < 1 {
		c.RequiredHits = 1
	}
	if c.DecayPerFrame == 0 {
		c.DecayPerFrame = DefaultVoteConfig().DecayPerFrame
	}
	c.DecayPerFrame = math.Min(math.Max(c.DecayPerFrame, MinDecay), MaxDecay)
	return c
}

// Vote is one frame's raw classification fed to the stabilizer.
type Vote struct {
	Label            string
	Confidence       float64
	TimeMs           int64
	DetectionAllowed bool
}

// VoteEntry is one accepted vote held in the window.
type VoteEntry struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	TimeMs     int64   `json:"time_ms"`
}

// StableState is the last committed sign.
type StableState struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	TimeMs     int64   `json:"time_ms"`
}

// Stable is the stabilizer output for one frame.
type Stable struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Hits       int     `json:"hits"`
	Phase      Phase   `json:"phase"`
}

// IsSign reports whether the output carries a real sign label.
func (s Stable) IsSign() bool {
	return s.Phase == PhaseStable || s.Phase == PhaseGrace
}

// NormalizeLabel trims and lowercases a raw label.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// IsIdleLabel reports whether a normalized label means "no sign".
func IsIdleLabel(label string) bool {
	return label == "" || label == IdleLabel || label == "unknown"
}

// Stabilizer debounces raw per-frame labels into a stable label using a
// time-bounded majority vote with occlusion grace. One Stabilizer belongs to
// one tracked session and must not be updated concurrently.
type Stabilizer struct {
	window []VoteEntry
	state  StableState
}

// NewStabilizer returns a stabilizer in the idle state with an empty window.
func NewStabilizer() *Stabilizer {
	return &Stabilizer{}
}

// Window returns a copy of the current vote window, oldest first.
func (s *Stabilizer) Window() []VoteEntry {
	out := make([]VoteEntry, len(s.window))
	copy(out, s.window)
	return out
}

// State returns the last committed sign.
func (s *Stabilizer) State() StableState {
	return s.state
}

// Reset clears the window and the committed sign.
func (s *Stabilizer) Reset() {
	s.window = s.window[:0]
	s.state = StableState{}
}

type tally struct {
	label string
	hits  int
	sum   float64
}

func (t tally) avg() float64 {
	if t.hits == 0 {
		return 0
	}
	return t.sum / float64(t.hits)
}

// Update folds one vote into the window and returns the stable output.
// All time comes from v.TimeMs; the stabilizer never reads a clock.
func (s *Stabilizer) Update(v Vote, cfg VoteConfig) Stable {
	cfg = cfg.normalized()
	now := v.TimeMs

	s.evict(now, cfg.TTL.Milliseconds())

	label := NormalizeLabel(v.Label)
	invalid := !v.DetectionAllowed || IsIdleLabel(label)

	if !invalid {
		s.window = append(s.window, VoteEntry{Label: label, Confidence: v.Confidence, TimeMs: now})
		if over := len(s.window) - cfg.WindowSize; over > 0 {
			s.window = append(s.window[:0], s.window[over:]...)
		}
	}

	if len(s.window) == 0 {
		return s.reuse(now, cfg, 0)
	}

	tallies := s.tally()
	best := tallies[0]
	for _, t := range tallies[1:] {
		if t.hits > best.hits || (t.hits == best.hits && t.avg() > best.avg()) {
			best = t
		}
	}

	avg := best.avg()
	consensus := best.hits >= cfg.RequiredHits && avg >= cfg.MinConfidence
	if consensus || best.hits == cfg.WindowSize {
		s.state = StableState{Label: best.label, Confidence: avg, TimeMs: now}
		return Stable{Label: best.label, Confidence: avg, Hits: best.hits, Phase: PhaseStable}
	}

	if invalid {
		hits := 0
		for _, t := range tallies {
			if t.label == s.state.Label {
				hits = t.hits
			}
		}
		return s.reuse(now, cfg, hits)
	}

	return Stable{Label: IdleLabel, Confidence: avg, Hits: best.hits, Phase: PhaseAccumulating}
}

// evict drops entries older than ttl milliseconds.
func (s *Stabilizer) evict(now, ttl int64) {
	kept := s.window[:0]
	for _, e := range s.window {
		if now-e.TimeMs <= ttl {
			kept = append(kept, e)
		}
	}
	s.window = kept
}

// tally groups the window by label in first-seen order.
func (s *Stabilizer) tally() []tally {
	var out []tally
	index := make(map[string]int)
	for _, e := range s.window {
		i, ok := index[e.Label]
		if !ok {
			i = len(out)
			index[e.Label] = i
			out = append(out, tally{label: e.Label})
		}
		out[i].hits++
		out[i].sum += e.Confidence
	}
	return out
}

// reuse re-emits the committed sign with geometric decay while inside the
// grace period, and idle otherwise.
func (s *Stabilizer) reuse(now int64, cfg VoteConfig, hits int) Stable {
	st := s.state
	if IsIdleLabel(st.Label) {
		return Stable{Label: IdleLabel, Phase: PhaseIdle}
	}

	elapsed := now - st.TimeMs
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > cfg.Grace.Milliseconds() {
		return Stable{Label: IdleLabel, Phase: PhaseIdle}
	}

	conf := st.Confidence * math.Pow(cfg.DecayPerFrame, float64(elapsed)/FrameMs)
	return Stable{Label: st.Label, Confidence: conf, Hits: hits, Phase: PhaseGrace}
}
