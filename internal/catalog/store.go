package catalog

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when no product has the given ID.
var ErrNotFound = errors.New("product not found")

// SQLiteStore keeps products and their embeddings in the products table and
// answers queries with a brute-force cosine scan. Catalogs are a few thousand
// rows, well within what a full scan handles per turn.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB. The products table must already
// exist (created by storage migrations).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const productColumns = `id, name, price, currency, category, color, features, available, url, image_url, description`

// Upsert inserts or replaces products together with their embeddings.
// vectors[i] belongs to products[i].
func (s *SQLiteStore) Upsert(ctx context.Context, products []Product, vectors [][]float32) error {
	if len(products) != len(vectors) {
		return fmt.Errorf("upserting products: %d products but %d vectors", len(products), len(vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (`+productColumns+`, document, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, price = excluded.price, currency = excluded.currency,
			category = excluded.category, color = excluded.color, features = excluded.features,
			available = excluded.available, url = excluded.url, image_url = excluded.image_url,
			description = excluded.description, document = excluded.document,
			embedding = excluded.embedding, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i, p := range products {
		features, err := json.Marshal(p.Features)
		if err != nil {
			return fmt.Errorf("encoding features for %s: %w", p.ID, err)
		}
		currency := p.Currency
		if currency == "" {
			currency = "USD"
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Name, p.Price, currency, p.Category, p.Color, string(features), p.Available,
			p.URL, p.ImageURL, p.Description, p.DocumentText(), encodeFloat32s(vectors[i]), now,
		); err != nil {
			return fmt.Errorf("upserting product %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// idScore holds only the ID and score during the scan phase of Search.
type idScore struct {
	ID    string
	Score float32
}

// Search returns the topK products most similar to vector, best first.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, topK int) ([]Scored, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	// Phase 1: scan only id + embedding.
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM products`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	var buf []float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: load full records for the winners.
	ids := make([]string, 0, h.Len())
	scores := make(map[string]float32, h.Len())
	for _, item := range *h {
		ids = append(ids, item.ID)
		scores[item.ID] = item.Score
	}
	products, err := s.Get(ctx, ids...)
	if err != nil {
		return nil, err
	}

	results := make([]Scored, len(products))
	for i, p := range products {
		results[i] = Scored{Product: p, Score: scores[p.ID]}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// Get loads products by ID. Unknown IDs are skipped; with a single ID that
// is unknown, ErrNotFound is returned.
func (s *SQLiteStore) Get(ctx context.Context, ids ...string) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	products, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(ids) == 1 && len(products) == 0 {
		return nil, ErrNotFound
	}
	return products, nil
}

// List returns every product ordered by ID.
func (s *SQLiteStore) List(ctx context.Context) ([]Product, error) {
	return s.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
}

// Count returns the number of stored products.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n)
	return n, err
}

// Delete removes a product.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting product %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		var features string
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Currency, &p.Category, &p.Color, &features,
			&p.Available, &p.URL, &p.ImageURL, &p.Description); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
			return nil, fmt.Errorf("decoding features for %s: %w", p.ID, err)
		}
		p.EmbeddingRef = "products/" + p.ID
		out = append(out, p)
	}
	return out, rows.Err()
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto decodes little-endian bytes into buf, growing it when needed.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * |b|). Vectors of different length score 0.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if bNormSq == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * math.Sqrt(bNormSq)))
}

// idScoreHeap is a min-heap of idScore ordered by Score.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
