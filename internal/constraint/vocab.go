package constraint

import (
	"regexp"
	"strings"
)

type synonyms struct {
	canonical string
	words     []string
}

var colorVocab = []synonyms{
	{"white", []string{"white", "ivory", "cream", "off-white", "off white"}},
	{"black", []string{"black", "dark", "charcoal"}},
	{"gray", []string{"gray", "grey", "silver"}},
	{"beige", []string{"beige", "tan", "sand", "natural"}},
	{"brown", []string{"brown", "wood", "walnut", "oak"}},
	{"blue", []string{"blue", "navy", "azure"}},
	{"red", []string{"red", "burgundy", "crimson", "orange"}},
	{"green", []string{"green", "olive", "forest"}},
}

var featureVocab = []synonyms{
	{"armrests", []string{"armrests", "armrest", "arm rests", "arm rest", "with arms"}},
	{"adjustable", []string{"adjustable", "adjust", "height adjustable"}},
	{"wheels", []string{"wheels", "wheel", "casters", "castors", "rolling", "swivel"}},
	{"ergonomic", []string{"ergonomic", "lumbar", "back support"}},
	{"cushioned", []string{"cushioned", "cushion", "padded", "soft", "upholstered"}},
	{"reclining", []string{"reclining", "recline", "lean back", "tilt"}},
	{"foldable", []string{"foldable", "folding", "fold"}},
	{"stackable", []string{"stackable", "stacking"}},
}

// categoryVocab lists specific product types before generic ones so that
// "office chair" wins over "chair".
var categoryVocab = []synonyms{
	{"office chair", []string{"office chair", "desk chair", "computer chair", "gaming chair"}},
	{"dining chair", []string{"dining chair", "kitchen chair"}},
	{"outdoor chair", []string{"outdoor chair", "garden chair", "patio chair"}},
	{"armchair", []string{"armchair", "lounge chair", "accent chair"}},
	{"chair", []string{"chair", "seat", "armchair"}},
	{"desk", []string{"desk"}},
	{"table", []string{"table"}},
	{"sofa", []string{"sofa", "couch", "settee"}},
	{"bed", []string{"bed"}},
	{"lamp", []string{"lamp"}},
	{"bookcase", []string{"bookcase", "bookshelf", "shelf", "shelving"}},
	{"wardrobe", []string{"wardrobe", "closet"}},
	{"dresser", []string{"dresser", "chest of drawers"}},
	{"stool", []string{"stool"}},
	{"bench", []string{"bench"}},
	{"cabinet", []string{"cabinet", "sideboard"}},
}

type compiledVocab struct {
	canonical string
	re        *regexp.Regexp
}

func compile(vocab []synonyms) []compiledVocab {
	out := make([]compiledVocab, len(vocab))
	for i, v := range vocab {
		alts := make([]string, len(v.words))
		for j, w := range v.words {
			alts[j] = regexp.QuoteMeta(w)
		}
		out[i] = compiledVocab{
			canonical: v.canonical,
			re:        regexp.MustCompile(`\b(?:` + strings.Join(alts, "|") + `)(?:e?s)?\b`),
		}
	}
	return out
}

var (
	colorRes    = compile(colorVocab)
	featureRes  = compile(featureVocab)
	categoryRes = compile(categoryVocab)
)

func canonical(vocab []synonyms, v string) string {
	for _, s := range vocab {
		for _, w := range s.words {
			if v == w || v == w+"s" || v == w+"es" {
				return s.canonical
			}
		}
	}
	return v
}

// CanonicalColor maps a color word to its base color ("grey" -> "gray").
// Unknown words are returned unchanged.
func CanonicalColor(v string) string { return canonical(colorVocab, v) }

// CanonicalFeature maps a feature phrase to its tag ("arm rest" -> "armrests").
func CanonicalFeature(v string) string { return canonical(featureVocab, v) }

// CanonicalCategory maps a product type to its canonical name ("couch" -> "sofa").
func CanonicalCategory(v string) string { return canonical(categoryVocab, v) }

// ColorWords returns the words that indicate the base color c.
func ColorWords(c string) []string { return wordsFor(colorVocab, c) }

// FeatureWords returns the phrases that indicate feature f.
func FeatureWords(f string) []string { return wordsFor(featureVocab, f) }

// CategoryWords returns the phrases that indicate category c.
func CategoryWords(c string) []string { return wordsFor(categoryVocab, c) }

func wordsFor(vocab []synonyms, c string) []string {
	for _, s := range vocab {
		if s.canonical == c {
			return s.words
		}
	}
	return []string{c}
}

func scan(res []compiledVocab, text string) (found []string, rest string) {
	rest = text
	for _, v := range res {
		if v.re.MatchString(rest) {
			found = append(found, v.canonical)
			rest = v.re.ReplaceAllString(rest, " ")
		}
	}
	return found, rest
}

// ContainsTerm reports whether text contains term as a whole word or phrase,
// allowing a plural "s" or "es" suffix. Both arguments must be lowercase.
func ContainsTerm(text, term string) bool {
	if term == "" {
		return false
	}
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], term)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(term)
		if (start == 0 || !isWordByte(text[start-1])) && wordEnds(text, end) {
			return true
		}
		i = start + 1
	}
	return false
}

func wordEnds(text string, end int) bool {
	for _, suffix := range []string{"", "s", "es"} {
		e := end + len(suffix)
		if e > len(text) || text[end:e] != suffix {
			continue
		}
		if e == len(text) || !isWordByte(text[e]) {
			return true
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= 0x80
}

// ContainsAny reports whether text contains any of terms per ContainsTerm.
func ContainsAny(text string, terms []string) bool {
	for _, t := range terms {
		if ContainsTerm(text, t) {
			return true
		}
	}
	return false
}
