package resolver

import (
	"fmt"
	"strings"

	"github.com/akashsateesha/Clickless-IKEA/internal/cart"
	"github.com/akashsateesha/Clickless-IKEA/internal/catalog"
)

// Candidate is something a shopper can refer to: a shown product or a cart line.
type Candidate struct {
	ID       string
	Name     string
	Category string
	Color    string
	Features []string
	Price    float64
}

// FromProducts converts the last shown products into candidates.
func FromProducts(ps []catalog.Product) []Candidate {
	out := make([]Candidate, len(ps))
	for i, p := range ps {
		out[i] = Candidate{ID: p.ID, Name: p.Name, Category: p.Category, Color: p.Color, Features: p.Features, Price: p.Price}
	}
	return out
}

// FromLines converts cart lines into candidates.
func FromLines(lines []cart.Line) []Candidate {
	out := make([]Candidate, len(lines))
	for i, l := range lines {
		out[i] = Candidate{ID: l.ProductID, Name: l.Name, Price: float64(l.UnitPrice) / 100}
	}
	return out
}

func (c Candidate) describe() string {
	parts := []string{c.Name}
	if c.Category != "" {
		parts = append(parts, c.Category)
	}
	if c.Color != "" {
		parts = append(parts, "color: "+c.Color)
	}
	if c.Price > 0 {
		parts = append(parts, fmt.Sprintf("$%.2f", c.Price))
	}
	if len(c.Features) > 0 {
		parts = append(parts, "features: "+strings.Join(c.Features, ", "))
	}
	return strings.Join(parts, " | ")
}
