// Package optimizer is the client for the remote prompt optimization service.
// The service owns the optimization algorithm entirely; this package owns
// transport, error classification, and normalization of the loosely
// structured responses into types the rest of the CLI can trust.
package optimizer

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// FocusDimension names one scoring criterion the service can be told to
// prioritize. The set is fixed; see AllFocusDimensions.
type FocusDimension string

const (
	FocusClarity       FocusDimension = "clarity"
	FocusSpecificity   FocusDimension = "specificity"
	FocusCompleteness  FocusDimension = "completeness"
	FocusEffectiveness FocusDimension = "effectiveness"
	FocusRobustness    FocusDimension = "robustness"
)

// AllFocusDimensions lists every criterion in display order.
var AllFocusDimensions = []FocusDimension{
	FocusClarity,
	FocusSpecificity,
	FocusCompleteness,
	FocusEffectiveness,
	FocusRobustness,
}

// ParseFocusDimension normalizes a user-supplied dimension name.
func ParseFocusDimension(v string) (FocusDimension, error) {
	d := FocusDimension(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range AllFocusDimensions {
		if d == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown focus dimension %q (valid: %s)", v, JoinFocusDimensions(AllFocusDimensions))
}

// JoinFocusDimensions renders a dimension list for help and error text.
func JoinFocusDimensions(dims []FocusDimension) string {
	names := make([]string, len(dims))
	for i, d := range dims {
		names[i] = string(d)
	}
	return strings.Join(names, ", ")
}

// OptimizationRequest is one optimization submission. Immutable once sent.
type OptimizationRequest struct {
	Text           string           `json:"text"`
	Context        string           `json:"context,omitempty"`
	TargetAudience string           `json:"targetAudience,omitempty"`
	Focus          []FocusDimension `json:"focus,omitempty"`
	Constraints    string           `json:"constraints,omitempty"`
}

// Validate rejects requests the service would be called with pointlessly.
// An empty or whitespace-only text never leaves the process.
func (r OptimizationRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	for _, d := range r.Focus {
		if _, err := ParseFocusDimension(string(d)); err != nil {
			return &ValidationError{Field: "focus", Reason: err.Error()}
		}
	}
	return nil
}

// CriterionScore is one criterion's judgment. Score is always within [0, 10]
// after normalization, and the slices are never nil.
type CriterionScore struct {
	Score       float64  `json:"score"`
	Explanation string   `json:"explanation"`
	Issues      []string `json:"issues"`
	Strengths   []string `json:"strengths"`
}

// ScoreSet holds the fixed criteria plus the overall aggregate.
type ScoreSet struct {
	Clarity       CriterionScore `json:"clarity"`
	Specificity   CriterionScore `json:"specificity"`
	Completeness  CriterionScore `json:"completeness"`
	Effectiveness CriterionScore `json:"effectiveness"`
	Robustness    CriterionScore `json:"robustness"`
	Overall       float64        `json:"overall"`
}

// Criterion pairs a dimension with its score for ordered iteration.
type Criterion struct {
	Dimension FocusDimension
	CriterionScore
}

// Criteria returns the five criteria in display order.
func (s ScoreSet) Criteria() []Criterion {
	return []Criterion{
		{FocusClarity, s.Clarity},
		{FocusSpecificity, s.Specificity},
		{FocusCompleteness, s.Completeness},
		{FocusEffectiveness, s.Effectiveness},
		{FocusRobustness, s.Robustness},
	}
}

// ScorePair is the original/optimized score comparison.
type ScorePair struct {
	Original  ScoreSet `json:"original"`
	Optimized ScoreSet `json:"optimized"`
}

// OptimizationResult is the normalized service response. Every field is
// present after normalization; absent wire fields become zero values, never
// nils that blow up presentation code.
type OptimizationResult struct {
	OriginalText    string    `json:"originalText"`
	OptimizedText   string    `json:"optimizedText"`
	Scores          ScorePair `json:"scores"`
	Analysis        string    `json:"analysis"`
	Feedback        []string  `json:"feedback"`
	Recommendations []string  `json:"recommendations"`
	UsageNotes      string    `json:"usageNotes"`
}

// ImprovementDelta is the overall score gain the optimization produced.
func (r *OptimizationResult) ImprovementDelta() float64 {
	return round1(r.Scores.Optimized.Overall - r.Scores.Original.Overall)
}

// Improved reports whether the optimized text scored strictly higher.
func (r *OptimizationResult) Improved() bool {
	return r.ImprovementDelta() > 0
}

// Specialization describes one optimizer specialization advertised by the
// service. Listing them doubles as the connectivity probe.
type Specialization struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// BatchItem is one prompt in a batch submission.
type BatchItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// BatchRequest optimizes several prompts in one call.
type BatchRequest struct {
	Items   []BatchItem      `json:"prompts"`
	Context string           `json:"context,omitempty"`
	Focus   []FocusDimension `json:"focus,omitempty"`
}

// Validate rejects empty batches and batches with nothing to send.
func (r BatchRequest) Validate() error {
	if len(r.Items) == 0 {
		return &ValidationError{Field: "prompts", Reason: "must not be empty"}
	}
	for _, it := range r.Items {
		if strings.TrimSpace(it.Text) == "" {
			return &ValidationError{Field: "prompts", Reason: fmt.Sprintf("item %q has empty text", it.ID)}
		}
	}
	return nil
}

// BatchEntry is one prompt's outcome within a batch. Err is non-empty when
// the service failed that item without failing the whole call.
type BatchEntry struct {
	ID     string              `json:"id"`
	Err    string              `json:"error,omitempty"`
	Result *OptimizationResult `json:"result,omitempty"`
}

// BatchResult is the normalized batch response.
type BatchResult struct {
	Entries []BatchEntry `json:"results"`
}

// DiscoverRequest asks the service to draft a prompt for a task description.
type DiscoverRequest struct {
	Task    string `json:"task"`
	Context string `json:"context,omitempty"`
}

// Validate mirrors the single-prompt rule: no empty task leaves the process.
func (r DiscoverRequest) Validate() error {
	if strings.TrimSpace(r.Task) == "" {
		return &ValidationError{Field: "task", Reason: "must not be empty"}
	}
	return nil
}

// DiscoverResult is the normalized discovery response.
type DiscoverResult struct {
	Prompt    string `json:"prompt"`
	Rationale string `json:"rationale"`
}

// ---- wire shapes and normalization ----
//
// The service's responses are treated as loosely structured: any field may be
// missing and scores may land outside [0, 10]. Normalization happens exactly
// once, here, so nothing downstream needs optional-field handling.

type criterionWire struct {
	Score       *float64 `json:"score"`
	Explanation string   `json:"explanation"`
	Issues      []string `json:"issues"`
	Strengths   []string `json:"strengths"`
}

type scoreSetWire struct {
	Clarity       *criterionWire `json:"clarity"`
	Specificity   *criterionWire `json:"specificity"`
	Completeness  *criterionWire `json:"completeness"`
	Effectiveness *criterionWire `json:"effectiveness"`
	Robustness    *criterionWire `json:"robustness"`
	Overall       *float64       `json:"overall"`
}

type scorePairWire struct {
	Original  *scoreSetWire `json:"original"`
	Optimized *scoreSetWire `json:"optimized"`
}

type optimizeResponseWire struct {
	OriginalText    string         `json:"originalText"`
	OptimizedText   string         `json:"optimizedText"`
	Scores          *scorePairWire `json:"scores"`
	Analysis        string         `json:"analysis"`
	Feedback        []string       `json:"feedback"`
	Recommendations []string       `json:"recommendations"`
	UsageNotes      string         `json:"usageNotes"`
}

type batchEntryWire struct {
	ID    string `json:"id"`
	Error string `json:"error"`
	optimizeResponseWire
}

type batchResponseWire struct {
	Results []batchEntryWire `json:"results"`
}

type discoverResponseWire struct {
	Prompt    string `json:"prompt"`
	Rationale string `json:"rationale"`
}

// specializations arrive either as a bare array or wrapped in an object.
type specializationsWire struct {
	Specializations []Specialization `json:"specializations"`
}

func decodeSpecializations(body []byte) ([]Specialization, error) {
	var list []Specialization
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped specializationsWire
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode specializations: %w", err)
	}
	return wrapped.Specializations, nil
}

func normalizeCriterion(w *criterionWire) CriterionScore {
	if w == nil {
		return CriterionScore{Issues: []string{}, Strengths: []string{}}
	}
	c := CriterionScore{
		Explanation: w.Explanation,
		Issues:      w.Issues,
		Strengths:   w.Strengths,
	}
	if w.Score != nil {
		c.Score = clampScore(*w.Score)
	}
	if c.Issues == nil {
		c.Issues = []string{}
	}
	if c.Strengths == nil {
		c.Strengths = []string{}
	}
	return c
}

func normalizeScoreSet(w *scoreSetWire) ScoreSet {
	if w == nil {
		w = &scoreSetWire{}
	}
	s := ScoreSet{
		Clarity:       normalizeCriterion(w.Clarity),
		Specificity:   normalizeCriterion(w.Specificity),
		Completeness:  normalizeCriterion(w.Completeness),
		Effectiveness: normalizeCriterion(w.Effectiveness),
		Robustness:    normalizeCriterion(w.Robustness),
	}
	if w.Overall != nil {
		s.Overall = clampScore(*w.Overall)
		return s
	}
	// No aggregate from the service: average whatever criteria it did send.
	var sum float64
	var n int
	for _, wc := range []*criterionWire{w.Clarity, w.Specificity, w.Completeness, w.Effectiveness, w.Robustness} {
		if wc != nil && wc.Score != nil {
			sum += clampScore(*wc.Score)
			n++
		}
	}
	if n > 0 {
		s.Overall = round1(sum / float64(n))
	}
	return s
}

func normalizeResult(w *optimizeResponseWire, fallbackOriginal string) *OptimizationResult {
	if w == nil {
		w = &optimizeResponseWire{}
	}
	r := &OptimizationResult{
		OriginalText:    w.OriginalText,
		OptimizedText:   w.OptimizedText,
		Analysis:        w.Analysis,
		Feedback:        w.Feedback,
		Recommendations: w.Recommendations,
		UsageNotes:      w.UsageNotes,
	}
	if r.OriginalText == "" {
		r.OriginalText = fallbackOriginal
	}
	if r.OptimizedText == "" {
		r.OptimizedText = r.OriginalText
	}
	if r.Feedback == nil {
		r.Feedback = []string{}
	}
	if r.Recommendations == nil {
		r.Recommendations = []string{}
	}
	if w.Scores != nil {
		r.Scores.Original = normalizeScoreSet(w.Scores.Original)
		r.Scores.Optimized = normalizeScoreSet(w.Scores.Optimized)
	} else {
		r.Scores.Original = normalizeScoreSet(nil)
		r.Scores.Optimized = normalizeScoreSet(nil)
	}
	return r
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(10, math.Max(0, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
