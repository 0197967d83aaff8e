// Package resolver decides which candidate product a natural-language
// reference such as "the black one" or "the second chair" points at, and how
// sure it is.
package resolver

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/akashsateesha/Clickless-IKEA/internal/engine"
)

const (
	// TieEpsilon is how close two scores must be to count as a tie.
	TieEpsilon = 0.01
	// TieCap is the highest confidence a tied resolution may report.
	TieCap = 0.69
	// FallbackCap is the highest confidence the keyword matcher may report.
	FallbackCap = 0.60
	// DefaultTimeout bounds a semantic matcher call.
	DefaultTimeout = 5 * time.Second
)

// Source names the strategy that produced a Result.
type Source string

const (
	SourceSemantic Source = "semantic"
	SourceKeyword  Source = "keyword"
	SourceNone     Source = "none"
)

// Score is one candidate's match score, indexing into the candidate slice.
type Score struct {
	Index int
	Score float64
}

// Matcher scores candidates against a reference. Scores outside [0,1] are
// clamped; candidates absent from the returned slice scored zero.
type Matcher interface {
	Match(ctx context.Context, reference string, candidates []Candidate, history []engine.Message) ([]Score, string, error)
}

// Result is the outcome of one resolution. It is never persisted.
type Result struct {
	Matches    []Candidate `json:"matches"`
	Confidence float64     `json:"confidence"`
	Reasoning  string      `json:"reasoning,omitempty"`
	Ambiguous  bool        `json:"ambiguous"`
	Source     Source      `json:"source"`
}

// Best returns the highest-scoring match.
func (r Result) Best() (Candidate, bool) {
	if len(r.Matches) == 0 {
		return Candidate{}, false
	}
	return r.Matches[0], true
}

// Tier returns the routing tier for the result's confidence.
func (r Result) Tier() Tier {
	return TierFor(r.Confidence)
}

// Resolver resolves references with a semantic matcher and falls back to
// deterministic keyword overlap when the matcher is missing or fails.
type Resolver struct {
	matcher Matcher
	timeout time.Duration
}

// New creates a Resolver. matcher may be nil, in which case only the keyword
// strategy is used. A zero timeout uses DefaultTimeout.
func New(matcher Matcher, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{matcher: matcher, timeout: timeout}
}

// Resolve maps reference onto candidates.
func (r *Resolver) Resolve(ctx context.Context, reference string, candidates []Candidate, history []engine.Message) Result {
	if len(candidates) == 0 {
		return Result{Confidence: 0, Ambiguous: true, Source: SourceNone, Reasoning: "nothing to choose from"}
	}

	if r.matcher != nil {
		mctx, cancel := context.WithTimeout(ctx, r.timeout)
		scores, reasoning, err := r.matcher.Match(mctx, reference, candidates, history)
		cancel()
		if err == nil {
			return finalize(candidates, scores, reasoning, SourceSemantic, 1)
		}
		slog.Warn("semantic matcher failed, using keyword fallback", "error", err)
	}

	scores, reasoning := keywordScores(reference, candidates)
	return finalize(candidates, scores, reasoning, SourceKeyword, FallbackCap)
}

// finalize orders scores, applies the tie rule and caps the confidence at
// limit. Ordering uses the uncapped scores.
func finalize(candidates []Candidate, scores []Score, reasoning string, src Source, limit float64) Result {
	valid := make([]Score, 0, len(scores))
	seen := make(map[int]bool, len(scores))
	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(candidates) || seen[s.Index] {
			continue
		}
		seen[s.Index] = true
		s.Score = min(max(s.Score, 0), 1)
		if s.Score > 0 {
			valid = append(valid, s)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Score != valid[j].Score {
			return valid[i].Score > valid[j].Score
		}
		return valid[i].Index < valid[j].Index
	})

	res := Result{Reasoning: reasoning, Source: src}
	if len(valid) == 0 {
		res.Ambiguous = true
		return res
	}

	res.Matches = make([]Candidate, len(valid))
	for i, s := range valid {
		res.Matches[i] = candidates[s.Index]
	}
	res.Confidence = min(valid[0].Score, limit)
	if len(valid) > 1 && valid[0].Score-valid[1].Score <= TieEpsilon+1e-9 {
		res.Ambiguous = true
		res.Confidence = min(res.Confidence, TieCap)
	}
	return res
}
