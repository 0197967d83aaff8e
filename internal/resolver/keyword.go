package resolver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/akashsateesha/Clickless-IKEA/internal/constraint"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "one": true, "ones": true, "to": true, "my": true,
	"cart": true, "basket": true, "add": true, "put": true, "remove": true, "delete": true,
	"take": true, "out": true, "please": true, "it": true, "this": true, "that": true,
	"i": true, "want": true, "like": true, "would": true, "from": true, "of": true,
	"in": true, "with": true, "and": true, "get": true, "me": true, "buy": true,
	"can": true, "you": true, "let": true, "lets": true, "s": true, "go": true, "for": true,
	"item": true, "product": true, "thing": true, "some": true, "is": true, "be": true,
}

var ordinalWords = map[string]int{
	"first": 0, "1st": 0,
	"second": 1, "2nd": 1,
	"third": 2, "3rd": 2,
	"fourth": 3, "4th": 3,
	"fifth": 4, "5th": 4,
	"sixth": 5, "6th": 5,
}

var (
	numberedRe = regexp.MustCompile(`(?:#|\bnumber\s+|\bno\.\s*|\boption\s+)(\d+)\b`)
	tokenRe    = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

// keywordScores scores candidates by how many content words of reference
// they contain. Positional references ("the second one", "#3", "the last
// one") select a single candidate outright.
func keywordScores(reference string, candidates []Candidate) ([]Score, string) {
	ref := strings.ToLower(reference)

	if idx, ok := ordinal(ref, len(candidates)); ok {
		return []Score{{Index: idx, Score: 1}}, fmt.Sprintf("positional reference to option %d", idx+1)
	}

	var terms []string
	for _, tok := range tokenRe.FindAllString(ref, -1) {
		if stopwords[tok] {
			continue
		}
		if _, err := strconv.Atoi(tok); err == nil {
			continue
		}
		terms = append(terms, tok)
	}
	if len(terms) == 0 {
		return nil, "no descriptive words in reference"
	}

	var scores []Score
	for i, c := range candidates {
		text := strings.ToLower(strings.Join(append([]string{c.Name, c.Category, c.Color}, c.Features...), " "))
		matched := 0
		for _, term := range terms {
			if termMatches(text, term) {
				matched++
			}
		}
		if matched > 0 {
			scores = append(scores, Score{Index: i, Score: float64(matched) / float64(len(terms))})
		}
	}
	return scores, fmt.Sprintf("keyword overlap on %q", strings.Join(terms, " "))
}

// termMatches checks the term itself and, for colors and features, every
// synonym of its canonical form.
func termMatches(text, term string) bool {
	if constraint.ContainsTerm(text, term) {
		return true
	}
	if c := constraint.CanonicalColor(term); c != "" && constraint.ContainsAny(text, constraint.ColorWords(c)) {
		return true
	}
	if f := constraint.CanonicalFeature(term); f != "" && constraint.ContainsAny(text, constraint.FeatureWords(f)) {
		return true
	}
	return false
}

func ordinal(ref string, n int) (int, bool) {
	if m := numberedRe.FindStringSubmatch(ref); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v >= 1 && v <= n {
			return v - 1, true
		}
	}
	for _, tok := range tokenRe.FindAllString(ref, -1) {
		if tok == "last" && n > 0 {
			return n - 1, true
		}
		if idx, ok := ordinalWords[tok]; ok && idx < n {
			return idx, true
		}
	}
	return 0, false
}
