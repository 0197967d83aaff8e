package constraint

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// number accepts plain amounts and thousands separators ("1200", "1,200.50").
const number = `(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`

const amountPattern = `\$?\s*` + number

var (
	betweenRe = regexp.MustCompile(`\bbetween\s+` + amountPattern + `\s*(?:and|to|-)\s*` + amountPattern)
	rangeRe   = regexp.MustCompile(`\$\s*` + number + `\s*(?:-|to)\s*` + amountPattern)
	aroundRe  = regexp.MustCompile(`\b(?:around|about|approximately|roughly)\s+` + amountPattern)
	maxRe     = regexp.MustCompile(`\b(?:under|below|less than|cheaper than|no more than|up to|at most|max(?:imum)?|budget(?: of| is)?)\s*(?:of\s+)?` + amountPattern)
	minRe     = regexp.MustCompile(`\b(?:over|above|more than|at least|min(?:imum)?|from)\s+` + amountPattern)
)

// ParsePreferences extracts price bounds, colors, features and product
// categories from free text using fixed patterns and synonym tables.
// It never fails; text without recognisable preferences yields nil.
func ParsePreferences(text string) []Constraint {
	lower := strings.ToLower(text)
	var out []Constraint
	out = append(out, parsePrice(lower)...)

	cats, _ := scan(categoryRes, lower)
	if len(cats) > 0 {
		out = append(out, Categories(cats...))
	}
	colors, _ := scan(colorRes, lower)
	if len(colors) > 0 {
		out = append(out, Colors(colors...))
	}
	features, _ := scan(featureRes, lower)
	if len(features) > 0 {
		out = append(out, Features(features...))
	}
	return out
}

func parsePrice(text string) []Constraint {
	if m := betweenRe.FindStringSubmatch(text); m != nil {
		return []Constraint{Min(amount(m[1])), Max(amount(m[2]))}
	}
	if m := rangeRe.FindStringSubmatch(text); m != nil {
		return []Constraint{Min(amount(m[1])), Max(amount(m[2]))}
	}
	if m := aroundRe.FindStringSubmatch(text); m != nil {
		target := amount(m[1])
		return []Constraint{Min(math.Floor(target * 0.8)), Max(math.Floor(target * 1.2))}
	}

	var out []Constraint
	if m := minRe.FindStringSubmatch(text); m != nil {
		out = append(out, Min(amount(m[1])))
	}
	if m := maxRe.FindStringSubmatch(text); m != nil {
		out = append(out, Max(amount(m[1])))
	}
	return out
}

func amount(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}
