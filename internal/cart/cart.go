// Package cart holds the session's view of the storefront cart and the
// contract for the component that actually mutates it.
package cart

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Line is one product in the cart. UnitPrice is in cents.
type Line struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price_cents"`
}

// Item describes a product to add to the cart.
type Item struct {
	ProductID string
	Name      string
	URL       string
	Price     float64
}

// Result reports the outcome of one actuation.
type Result struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Snapshot []Line `json:"snapshot,omitempty"`
	MediaRef string `json:"media_ref,omitempty"`
}

// Actuator performs cart mutations on the storefront. cartID names the cart
// to act on; the agent passes the session id. Each call is attempted once;
// callers never retry a failed actuation.
type Actuator interface {
	Add(ctx context.Context, cartID string, item Item) (Result, error)
	Remove(ctx context.Context, cartID string, line Line) (Result, error)
	View(ctx context.Context, cartID string) (Result, error)
}

// Forgetter is implemented by actuators that hold per-cart state which can
// be released once the cart's session ends.
type Forgetter interface {
	Forget(cartID string)
}

// ToCents converts a price to integer cents, rounding half away from zero.
func ToCents(price float64) int64 {
	return int64(math.Round(price * 100))
}

// Totals is a computed cart summary in cents.
type Totals struct {
	Subtotal int64 `json:"subtotal_cents"`
	Tax      int64 `json:"tax_cents"`
	Total    int64 `json:"total_cents"`
	Items    int   `json:"items"`
}

// Compute sums the lines and applies taxBasisPoints (800 = 8%) to the
// subtotal, rounding the tax half-up to the cent.
func Compute(lines []Line, taxBasisPoints int64) Totals {
	var t Totals
	for _, l := range lines {
		t.Subtotal += l.UnitPrice * int64(l.Quantity)
		t.Items += l.Quantity
	}
	t.Tax = (t.Subtotal*taxBasisPoints + 5000) / 10000
	t.Total = t.Subtotal + t.Tax
	return t
}

// RateToBasisPoints converts a fractional tax rate such as 0.08 to 800.
// Precision finer than a basis point is rounded away; config validation
// rejects such rates.
func RateToBasisPoints(rate float64) int64 {
	return int64(math.Round(rate * 10000))
}

// FormatCents renders cents as a dollar amount, e.g. 15012 -> "$150.12".
func FormatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s$%d.%02d", sign, c/100, c%100)
}

// Clone returns a copy of lines.
func Clone(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

// Find returns the index of the line for productID, or -1.
func Find(lines []Line, productID string) int {
	for i, l := range lines {
		if strings.EqualFold(l.ProductID, productID) {
			return i
		}
	}
	return -1
}
