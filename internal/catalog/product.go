// Package catalog stores scraped storefront products with their embeddings
// and answers similarity queries over them.
package catalog

import (
	"fmt"
	"strings"
)

// Product is one storefront item as delivered by the scraper. Records are
// immutable once retrieved.
type Product struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Price        float64  `json:"price" yaml:"price"`
	Currency     string   `json:"currency,omitempty" yaml:"currency,omitempty"`
	Category     string   `json:"category,omitempty" yaml:"category,omitempty"`
	Features     []string `json:"features,omitempty" yaml:"features,omitempty"`
	Color        string   `json:"color,omitempty" yaml:"color,omitempty"`
	Available    bool     `json:"available" yaml:"available"`
	URL          string   `json:"url,omitempty" yaml:"url,omitempty"`
	ImageURL     string   `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	EmbeddingRef string   `json:"embedding_ref,omitempty" yaml:"-"`
}

// DocumentText renders the text that is embedded for a product.
func (p Product) DocumentText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Product: %s\n", p.Name)
	if p.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", p.Category)
	}
	fmt.Fprintf(&sb, "Price: $%.2f\n", p.Price)
	if p.Color != "" {
		fmt.Fprintf(&sb, "Color: %s\n", p.Color)
	}
	if p.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", p.Description)
	}
	if len(p.Features) > 0 {
		fmt.Fprintf(&sb, "Features: %s\n", strings.Join(p.Features, ", "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Summary is a one-line description used in prompts.
func (p Product) Summary() string {
	parts := []string{p.Name}
	if p.Category != "" {
		parts = append(parts, p.Category)
	}
	if p.Color != "" {
		parts = append(parts, p.Color)
	}
	parts = append(parts, fmt.Sprintf("$%.2f", p.Price))
	if len(p.Features) > 0 {
		parts = append(parts, strings.Join(p.Features, ", "))
	}
	return strings.Join(parts, " | ")
}

// Scored pairs a product with its similarity to a query.
type Scored struct {
	Product
	Score float32
}
