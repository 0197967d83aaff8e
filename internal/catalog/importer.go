package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// scrapedProduct is the record layout written by the storefront scraper.
// Both JSON and YAML files decode through yaml.v3.
type scrapedProduct struct {
	ID          string   `yaml:"id"`
	ProductID   string   `yaml:"product_id"`
	Name        string   `yaml:"name"`
	Price       float64  `yaml:"price"`
	Currency    string   `yaml:"currency"`
	Category    string   `yaml:"category"`
	Subcategory string   `yaml:"subcategory"`
	Color       string   `yaml:"color"`
	Features    []string `yaml:"features"`
	Available   *bool    `yaml:"available"`
	URL         string   `yaml:"url"`
	ProductURL  string   `yaml:"product_url"`
	ImageURL    string   `yaml:"image_url"`
	Images      []string `yaml:"images"`
	Description string   `yaml:"description"`
	Specs       struct {
		Color string `yaml:"color"`
	} `yaml:"specifications"`
}

func (s scrapedProduct) product() Product {
	p := Product{
		ID:          firstNonEmpty(s.ID, s.ProductID),
		Name:        strings.TrimSpace(s.Name),
		Price:       s.Price,
		Currency:    s.Currency,
		Category:    firstNonEmpty(s.Subcategory, s.Category),
		Color:       firstNonEmpty(s.Color, s.Specs.Color),
		Features:    s.Features,
		Available:   s.Available == nil || *s.Available,
		URL:         firstNonEmpty(s.URL, s.ProductURL),
		ImageURL:    s.ImageURL,
		Description: strings.TrimSpace(s.Description),
	}
	if p.ImageURL == "" && len(s.Images) > 0 {
		p.ImageURL = s.Images[0]
	}
	return p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Decode reads a catalog file: either a top-level list of products or an
// object with a "products" list. Records without an ID or name are skipped.
func Decode(r io.Reader) ([]Product, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var list []scrapedProduct
	if err := yaml.Unmarshal(data, &list); err != nil {
		var wrapped struct {
			Products []scrapedProduct `yaml:"products"`
		}
		if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decoding catalog: %w", err2)
		}
		list = wrapped.Products
	}

	out := make([]Product, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		p := s.product()
		if p.ID == "" || p.Name == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out, nil
}

// LoadFile decodes the catalog file at path.
func LoadFile(path string) ([]Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Importer embeds products and writes them to the store in batches.
type Importer struct {
	store     *SQLiteStore
	embedder  *ProductEmbedder
	batchSize int
}

// NewImporter creates an Importer writing batches of batchSize products.
func NewImporter(store *SQLiteStore, embedder *ProductEmbedder, batchSize int) *Importer {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Importer{store: store, embedder: embedder, batchSize: batchSize}
}

// Import embeds and upserts products, returning how many were written.
func (im *Importer) Import(ctx context.Context, products []Product) (int, error) {
	written := 0
	for start := 0; start < len(products); start += im.batchSize {
		end := min(start+im.batchSize, len(products))
		batch := products[start:end]

		vecs, err := im.embedder.EmbedProducts(ctx, batch)
		if err != nil {
			return written, fmt.Errorf("embedding batch at %d: %w", start, err)
		}
		if err := im.store.Upsert(ctx, batch, vecs); err != nil {
			return written, err
		}
		written += len(batch)
		slog.Debug("catalog batch imported", "from", start, "count", len(batch))
	}
	return written, nil
}
