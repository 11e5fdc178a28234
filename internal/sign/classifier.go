package sign

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Labels reported when the classifier does not commit to a reference label.
const (
	LabelUnknown = "Unknown"
	LabelIdle    = "Idle"
)

var (
	// ErrInvalidK is returned when the neighbour count is below 1.
	ErrInvalidK = errors.New("neighbour count must be at least 1")
	// ErrInvalidThreshold is returned when the distance threshold is not positive.
	ErrInvalidThreshold = errors.New("distance threshold must be positive")
)

// Outcome tags how a Result was produced.
type Outcome int

const (
	// OutcomeUnknown means there was nothing to compare: no features or no references.
	OutcomeUnknown Outcome = iota
	// OutcomeIdle means the nearest reference was beyond the threshold.
	OutcomeIdle
	// OutcomeMatch means a reference label was chosen.
	OutcomeMatch
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeMatch:
		return "match"
	default:
		return "unknown"
	}
}

// ReferenceSample is one labeled exemplar.
type ReferenceSample struct {
	Features FeatureVector `json:"features"`
	Label    string        `json:"label"`
}

// Result is the outcome of classifying one feature vector.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"-"`
	Outcome    Outcome `json:"-"`
}

// JSONDistance returns the distance, or nil when it is not finite.
func (r Result) JSONDistance() *float64 {
	if math.IsInf(r.Distance, 0) || math.IsNaN(r.Distance) {
		return nil
	}
	d := r.Distance
	return &d
}

// UnknownResult is returned when there is nothing to compare against.
func UnknownResult() Result {
	return Result{Label: LabelUnknown, Distance: math.Inf(1), Outcome: OutcomeUnknown}
}

// Classifier labels feature vectors by k-nearest-neighbor vote over an
// immutable reference set. It is safe for concurrent use.
type Classifier struct {
	refs      []ReferenceSample
	k         int
	threshold float64
}

// NewClassifier copies refs into a new Classifier. Rows with a blank label
// are skipped, non-finite feature values become 0 and every row is resized
// to FeatureLength.
func NewClassifier(refs []ReferenceSample, k int, threshold float64) (*Classifier, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if !(threshold > 0) || math.IsInf(threshold, 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}

	c := &Classifier{
		refs:      make([]ReferenceSample, 0, len(refs)),
		k:         k,
		threshold: threshold,
	}
	for _, r := range refs {
		label := strings.TrimSpace(r.Label)
		if label == "" {
			continue
		}
		c.refs = append(c.refs, ReferenceSample{
			Features: r.Features.Resize(),
			Label:    label,
		})
	}
	return c, nil
}

// Len returns the number of accepted reference rows.
func (c *Classifier) Len() int {
	return len(c.refs)
}

// K returns the neighbour count.
func (c *Classifier) K() int {
	return c.k
}

// Threshold returns the maximum accepted nearest distance.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Labels returns the distinct reference labels in first-seen order.
func (c *Classifier) Labels() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, r := range c.refs {
		if !seen[r.Label] {
			seen[r.Label] = true
			labels = append(labels, r.Label)
		}
	}
	return labels
}

type neighbor struct {
	index    int
	distance float64
}

type labelVote struct {
	label string
	count int
	sum   float64
}

// Classify returns the label of the k nearest references.
func (c *Classifier) Classify(features FeatureVector) Result {
	if len(features) == 0 || len(c.refs) == 0 {
		return UnknownResult()
	}

	features = features.Sanitize()
	neighbors := make([]neighbor, len(c.refs))
	for i, r := range c.refs {
		neighbors[i] = neighbor{index: i, distance: distance(features, r.Features)}
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].distance < neighbors[j].distance
	})
	if len(neighbors) > c.k {
		neighbors = neighbors[:c.k]
	}

	minDist := neighbors[0].distance
	if minDist > c.threshold {
		return Result{Label: LabelIdle, Distance: minDist, Outcome: OutcomeIdle}
	}

	// Votes keep first-seen order, so the nearest label wins a full tie.
	var votes []*labelVote
	byLabel := make(map[string]*labelVote)
	for _, n := range neighbors {
		label := c.refs[n.index].Label
		v, ok := byLabel[label]
		if !ok {
			v = &labelVote{label: label}
			byLabel[label] = v
			votes = append(votes, v)
		}
		v.count++
		v.sum += n.distance
	}

	best := votes[0]
	for _, v := range votes[1:] {
		if v.count > best.count {
			best = v
			continue
		}
		if v.count == best.count && v.sum/float64(v.count) < best.sum/float64(best.count) {
			best = v
		}
	}

	return Result{
		Label:      best.label,
		Confidence: clamp01(1 - minDist/c.threshold),
		Distance:   minDist,
		Outcome:    OutcomeMatch,
	}
}

// distance is the Euclidean distance over the shorter of the two vectors.
func distance(a, b FeatureVector) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	return floats.Distance(a[:n], b[:n], 2)
}

// Sanitize returns a copy with NaN and infinite values replaced by 0.
func (fv FeatureVector) Sanitize() FeatureVector {
	out := make(FeatureVector, len(fv))
	for i, v := range fv {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i] = v
		}
	}
	return out
}

// Resize returns a sanitized copy zero-padded or cut to FeatureLength.
func (fv FeatureVector) Resize() FeatureVector {
	out := make(FeatureVector, FeatureLength)
	copy(out, fv.Sanitize())
	return out
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
