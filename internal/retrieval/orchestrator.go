// Package retrieval turns a constraint set and free text into a short,
// ranked list of products that satisfy every hard constraint.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/akashsateesha/Clickless-IKEA/internal/catalog"
	"github.com/akashsateesha/Clickless-IKEA/internal/constraint"
)

const (
	// DefaultTopK is the number of products shown per search.
	DefaultTopK = 5
	// DefaultTimeout bounds a single index query.
	DefaultTimeout = 5 * time.Second
	// poolFactor sizes the similarity pool relative to topK so that hard
	// filtering still leaves enough candidates.
	poolFactor = 4
)

// SearchIndex is the similarity search capability. catalog.Index satisfies it.
type SearchIndex interface {
	Query(ctx context.Context, text string, k int) ([]catalog.Product, error)
}

// Orchestrator queries the index, filters on hard constraints and re-ranks.
type Orchestrator struct {
	index   SearchIndex
	topK    int
	timeout time.Duration
}

// NewOrchestrator creates an Orchestrator. Zero topK or timeout use the defaults.
func NewOrchestrator(index SearchIndex, topK int, timeout time.Duration) *Orchestrator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Orchestrator{index: index, topK: topK, timeout: timeout}
}

// TopK returns the maximum number of products Search returns.
func (o *Orchestrator) TopK() int { return o.topK }

// Search returns at most TopK products satisfying set, best first. No
// survivors yields an empty slice and a nil error; an index failure is
// returned to the caller.
func (o *Orchestrator) Search(ctx context.Context, set constraint.Set, freeText string) ([]catalog.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	query := BuildQuery(set, freeText)
	pool, err := o.index.Query(ctx, query, o.topK*poolFactor)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	type ranked struct {
		p     catalog.Product
		score float64
	}
	var survivors []ranked
	for rank, p := range pool {
		ok, ratio := Evaluate(p, set)
		if !ok {
			continue
		}
		sim := 1 - float64(rank)/float64(len(pool))
		survivors = append(survivors, ranked{p: p, score: 0.5*sim + 0.5*ratio})
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.p.Price != b.p.Price {
			return a.p.Price < b.p.Price
		}
		return a.p.ID < b.p.ID
	})

	if len(survivors) > o.topK {
		survivors = survivors[:o.topK]
	}
	out := make([]catalog.Product, len(survivors))
	for i, r := range survivors {
		out[i] = r.p
	}

	if len(out) == 0 {
		slog.Info("search matched no products", "query", query, "pool", len(pool))
	} else {
		slog.Debug("search complete", "query", query, "pool", len(pool), "results", len(out))
	}
	return out, nil
}

// BuildQuery combines the shopper's words with the constraint terms.
func BuildQuery(set constraint.Set, freeText string) string {
	parts := []string{strings.TrimSpace(freeText)}
	lower := strings.ToLower(freeText)
	for _, term := range set.Terms() {
		if !strings.Contains(lower, term) {
			parts = append(parts, term)
		}
	}
	q := strings.TrimSpace(strings.Join(parts, " "))
	if q == "" {
		q = "furniture"
	}
	return q
}

// Evaluate reports whether p satisfies every hard constraint in set (price
// bounds, color, category, availability) and the fraction of constraint
// terms p matches, features included.
func Evaluate(p catalog.Product, set constraint.Set) (bool, float64) {
	if !p.Available {
		return false, 0
	}

	lo, hasLo, hi, hasHi := set.Bounds()
	if hasLo && p.Price < lo {
		return false, 0
	}
	if hasHi && p.Price > hi {
		return false, 0
	}

	identity := strings.ToLower(p.Category + " " + p.Name)
	colorText := strings.ToLower(p.Color + " " + p.Name)
	featureText := strings.ToLower(strings.Join(p.Features, " ") + " " + p.Name + " " + p.Description)

	var total, matched int
	if hasLo {
		total++
		matched++
	}
	if hasHi {
		total++
		matched++
	}
	if cats := set.Values(constraint.Category); len(cats) > 0 {
		if !anyVocab(identity, cats, constraint.CategoryWords) {
			return false, 0
		}
		total++
		matched++
	}
	if colors := set.Values(constraint.Color); len(colors) > 0 {
		if !anyVocab(colorText, colors, constraint.ColorWords) {
			return false, 0
		}
		total++
		matched++
	}
	for _, f := range set.Values(constraint.Feature) {
		total++
		if constraint.ContainsAny(featureText, constraint.FeatureWords(f)) {
			matched++
		}
	}

	if total == 0 {
		return true, 1
	}
	return true, float64(matched) / float64(total)
}

func anyVocab(text string, values []string, words func(string) []string) bool {
	for _, v := range values {
		if constraint.ContainsAny(text, words(v)) {
			return true
		}
	}
	return false
}
