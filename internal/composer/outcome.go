// Package composer renders the terminal outcome of a turn into a structured
// reply a UI can draw without re-deriving tiers or ambiguity.
package composer

import (
	"github.com/akashsateesha/Clickless-IKEA/internal/cart"
	"github.com/akashsateesha/Clickless-IKEA/internal/catalog"
	"github.com/akashsateesha/Clickless-IKEA/internal/constraint"
	"github.com/akashsateesha/Clickless-IKEA/internal/resolver"
)

// Outcome is the closed set of turn results the composer understands.
type Outcome interface {
	outcome()
}

// Op is a cart operation.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
	OpView   Op = "view"
)

// ProductList is a successful search.
type ProductList struct {
	Products    []catalog.Product
	Constraints constraint.Set
}

// NoResults is a search that produced nothing, either because no product met
// the constraints or because the index failed.
type NoResults struct {
	Constraints constraint.Set
	Failed      bool
}

// Confirmation asks the shopper to confirm a single best match.
type Confirmation struct {
	Op         Op
	Match      resolver.Candidate
	Confidence float64
	Reasoning  string
}

// ClarifyStyle selects how a clarification is presented.
type ClarifyStyle string

const (
	// StyleChips asks for missing search details with quick-reply chips.
	StyleChips ClarifyStyle = "chips"
	// StyleOptions lists candidate products for a free-text answer.
	StyleOptions ClarifyStyle = "options"
	// StyleCartLines lists the current cart lines as a selectable list.
	StyleCartLines ClarifyStyle = "cart_lines"
)

// Clarification asks the shopper for more information.
type Clarification struct {
	Style      ClarifyStyle
	Reference  string
	Missing    []constraint.Dimension
	Options    []resolver.Candidate
	Lines      []cart.Line
	Confidence float64
	Ambiguous  bool
}

// CartOperation is the result of a cart actuation or of a cart operation
// that could not be attempted.
type CartOperation struct {
	Op         Op
	Success    bool
	Message    string
	Product    *resolver.Candidate
	Lines      []cart.Line
	MediaRef   string
	Confidence float64
}

// CartTotal is the locally computed cart summary.
type CartTotal struct {
	Totals  cart.Totals
	Lines   []cart.Line
	TaxRate float64
}

// FreeForm is a conversational reply.
type FreeForm struct {
	Text string
}

func (ProductList) outcome()   {}
func (NoResults) outcome()     {}
func (Confirmation) outcome()  {}
func (Clarification) outcome() {}
func (CartOperation) outcome() {}
func (CartTotal) outcome()     {}
func (FreeForm) outcome()      {}
