package catalog

import (
	"context"
	"fmt"
)

// Index answers free-text similarity queries over the stored catalog.
type Index struct {
	store    *SQLiteStore
	embedder *ProductEmbedder
}

// NewIndex creates an Index over store, embedding queries with embedder.
func NewIndex(store *SQLiteStore, embedder *ProductEmbedder) *Index {
	return &Index{store: store, embedder: embedder}
}

// Query returns up to k products ranked by similarity to text, best first.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]Product, error) {
	vec, err := ix.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	scored, err := ix.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("searching catalog: %w", err)
	}
	out := make([]Product, len(scored))
	for i, s := range scored {
		out[i] = s.Product
	}
	return out, nil
}
