// Package constraint models the search constraints a shopper accumulates over a
// conversation and the pure rules for merging them turn by turn.
package constraint

import (
	"slices"
	"strings"
)

// Kind identifies the dimension a Constraint restricts.
type Kind string

const (
	PriceMax Kind = "price_max"
	PriceMin Kind = "price_min"
	Color    Kind = "color"
	Feature  Kind = "feature"
	Category Kind = "category"
)

// kindOrder fixes the canonical order of constraints inside a Set.
var kindOrder = []Kind{Category, PriceMin, PriceMax, Color, Feature}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return slices.Contains(kindOrder, k)
}

// IsPrice reports whether k is a price bound.
func (k Kind) IsPrice() bool {
	return k == PriceMin || k == PriceMax
}

// Constraint restricts one dimension of a product search. Price bounds use
// Amount; color, feature and category use Values.
type Constraint struct {
	Kind   Kind     `json:"kind"`
	Amount float64  `json:"amount,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Max returns a price upper bound.
func Max(amount float64) Constraint { return Constraint{Kind: PriceMax, Amount: amount} }

// Min returns a price lower bound.
func Min(amount float64) Constraint { return Constraint{Kind: PriceMin, Amount: amount} }

// Colors returns a color constraint matched any-of.
func Colors(values ...string) Constraint { return Constraint{Kind: Color, Values: values} }

// Features returns a feature constraint.
func Features(values ...string) Constraint { return Constraint{Kind: Feature, Values: values} }

// Categories returns a category constraint matched any-of.
func Categories(values ...string) Constraint { return Constraint{Kind: Category, Values: values} }

// normalize lowercases and deduplicates values and reports whether the
// constraint still carries information.
func (c Constraint) normalize() (Constraint, bool) {
	if !c.Kind.Valid() {
		return Constraint{}, false
	}
	if c.Kind.IsPrice() {
		if c.Amount < 0 || (c.Kind == PriceMax && c.Amount == 0) {
			return Constraint{}, false
		}
		return Constraint{Kind: c.Kind, Amount: c.Amount}, true
	}

	var vals []string
	for _, v := range c.Values {
		v = strings.ToLower(strings.TrimSpace(v))
		switch c.Kind {
		case Color:
			v = CanonicalColor(v)
		case Feature:
			v = CanonicalFeature(v)
		case Category:
			v = CanonicalCategory(v)
		}
		if v == "" || slices.Contains(vals, v) {
			continue
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return Constraint{}, false
	}
	return Constraint{Kind: c.Kind, Values: vals}, true
}

// Set holds at most one Constraint per Kind, in canonical kind order.
// A Set is a value: Merge never modifies its receiver.
type Set []Constraint

// Get returns the constraint of the given kind.
func (s Set) Get(k Kind) (Constraint, bool) {
	for _, c := range s {
		if c.Kind == k {
			return c, true
		}
	}
	return Constraint{}, false
}

// Has reports whether s holds a constraint of kind k.
func (s Set) Has(k Kind) bool {
	_, ok := s.Get(k)
	return ok
}

// Values returns the terms carried by the constraint of kind k, or nil.
func (s Set) Values(k Kind) []string {
	c, _ := s.Get(k)
	return c.Values
}

// Bounds returns the price bounds; a zero ok flag means the bound is unset.
func (s Set) Bounds() (lo float64, hasLo bool, hi float64, hasHi bool) {
	if c, ok := s.Get(PriceMin); ok {
		lo, hasLo = c.Amount, true
	}
	if c, ok := s.Get(PriceMax); ok {
		hi, hasHi = c.Amount, true
	}
	return
}

// Terms returns every textual term in the set, used to enrich a search query.
func (s Set) Terms() []string {
	var out []string
	for _, c := range s {
		out = append(out, c.Values...)
	}
	return out
}

// Equal reports whether two sets hold the same constraints.
func (s Set) Equal(o Set) bool {
	return slices.EqualFunc(s, o, func(a, b Constraint) bool {
		return a.Kind == b.Kind && a.Amount == b.Amount && slices.Equal(a.Values, b.Values)
	})
}

// Clone returns a deep copy of s.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for i, c := range s {
		out[i] = Constraint{Kind: c.Kind, Amount: c.Amount, Values: slices.Clone(c.Values)}
	}
	return out
}

// Merge returns s with incoming applied in order. A constraint replaces any
// existing constraint of the same kind; different kinds accumulate. If the
// result would have a lower price bound above the upper bound, the older bound
// is discarded, or both are swapped when they arrived together.
func (s Set) Merge(incoming ...Constraint) Set {
	byKind := make(map[Kind]Constraint, len(kindOrder))
	for _, c := range s {
		byKind[c.Kind] = c
	}

	fresh := make(map[Kind]bool)
	for _, c := range incoming {
		n, ok := c.normalize()
		if !ok {
			continue
		}
		byKind[n.Kind] = n
		fresh[n.Kind] = true
	}

	lo, hasLo := byKind[PriceMin]
	hi, hasHi := byKind[PriceMax]
	if hasLo && hasHi && lo.Amount > hi.Amount {
		switch {
		case fresh[PriceMin] && fresh[PriceMax]:
			byKind[PriceMin] = Min(hi.Amount)
			byKind[PriceMax] = Max(lo.Amount)
		case fresh[PriceMin]:
			delete(byKind, PriceMax)
		default:
			delete(byKind, PriceMin)
		}
	}

	out := make(Set, 0, len(byKind))
	for _, k := range kindOrder {
		if c, ok := byKind[k]; ok {
			out = append(out, c)
		}
	}
	return out
}
