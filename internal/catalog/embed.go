package catalog

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/akashsateesha/Clickless-IKEA/internal/engine"
)

// embedConcurrency caps in-flight embedding requests during an import.
const embedConcurrency = 4

// ProductEmbedder turns products and shopper queries into vectors in the same
// space, using one embedding model.
type ProductEmbedder struct {
	engine engine.Engine
	model  string
}

// NewProductEmbedder returns a ProductEmbedder that embeds with model.
func NewProductEmbedder(e engine.Engine, model string) *ProductEmbedder {
	return &ProductEmbedder{engine: e, model: model}
}

// EmbedQuery embeds a free-text search query.
func (pe *ProductEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := pe.engine.Embed(ctx, pe.model, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding query: model %s returned an empty vector", pe.model)
	}
	return vec, nil
}

// EmbedProducts embeds each product's DocumentText. The result is parallel to
// products and every vector has the same dimension, or an error names the
// product that broke it.
func (pe *ProductEmbedder) EmbedProducts(ctx context.Context, products []Product) ([][]float32, error) {
	if len(products) == 0 {
		return nil, nil
	}
	vecs := make([][]float32, len(products))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, p := range products {
		g.Go(func() error {
			vec, err := pe.engine.Embed(gctx, pe.model, p.DocumentText())
			if err != nil {
				return fmt.Errorf("embedding product %s: %w", p.ID, err)
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("embedding product %s: got %d dimensions, want %d", products[i].ID, len(v), dim)
		}
	}
	return vecs, nil
}
