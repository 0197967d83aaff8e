package constraint

// Dimension names a piece of information a search is missing.
type Dimension string

const (
	DimType  Dimension = "type"
	DimPrice Dimension = "price"
	DimColor Dimension = "color"
)

// Missing reports which of type, price and color are absent from s.
func Missing(s Set) []Dimension {
	var out []Dimension
	if !s.Has(Category) {
		out = append(out, DimType)
	}
	if !s.Has(PriceMin) && !s.Has(PriceMax) {
		out = append(out, DimPrice)
	}
	if !s.Has(Color) {
		out = append(out, DimColor)
	}
	return out
}

// IsVague reports whether s is too sparse to search with: no price bound, no
// color and no feature. A bare product type is still vague.
func IsVague(s Set) bool {
	return !s.Has(PriceMin) && !s.Has(PriceMax) && !s.Has(Color) && !s.Has(Feature)
}

// Decision is the outcome of applying a turn's constraints. When Clarify is
// true, Set is the tentative set to hold as pending and Missing lists what to
// ask for; otherwise Set is the set to search with.
type Decision struct {
	Set     Set
	Clarify bool
	Missing []Dimension
}

// Apply merges the pending constraints from an earlier vague turn and the
// incoming constraints of this turn on top of the session's current set.
// clarified is true when the previous turn already asked for details; a
// second vague turn in a row searches with what it has.
func Apply(current, pending Set, clarified bool, incoming []Constraint) Decision {
	merged := current.Merge(pending...).Merge(incoming...)
	if IsVague(merged) && !clarified {
		return Decision{Set: merged, Clarify: true, Missing: Missing(merged)}
	}
	return Decision{Set: merged}
}
