package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/akashsateesha/Clickless-IKEA/internal/cart"
)

var _ cart.Actuator = (*Actuator)(nil)

const (
	DefaultCartURL = "https://www.ikea.com/us/en/shoppingcart/"

	selectorWait = 2 * time.Second
	confirmWait  = 5 * time.Second
	removeLabel  = "Remove "
	removeButton = "button[aria-label*='Remove']"
)

var addSelectors = []string{
	"button[aria-label='Add to bag']",
	".pip-btn--emphasised",
	"//span[contains(text(), 'Add to bag')]/ancestor::button",
}

// Config configures the storefront actuator.
type Config struct {
	CartURL string
	// MediaDir receives a screenshot per actuation. Empty disables capture.
	MediaDir string
	// Settle is how long to let the cart page render before reading it.
	Settle time.Duration
}

// Actuator adds and removes products in the storefront's web cart. The
// storefront holds one cart, so actuations are serialized. It mirrors the
// lines it has put in the cart so snapshots keep their prices.
type Actuator struct {
	driver Driver
	cfg    Config
	now    func() time.Time

	mu    sync.Mutex
	lines []cart.Line
}

// NewActuator creates an Actuator.
func NewActuator(driver Driver, cfg Config) *Actuator {
	if cfg.CartURL == "" {
		cfg.CartURL = DefaultCartURL
	}
	if cfg.Settle == 0 {
		cfg.Settle = 3 * time.Second
	}
	return &Actuator{driver: driver, cfg: cfg, now: time.Now}
}

// Add opens the product page and clicks "Add to bag". The browser profile
// holds a single storefront cart, so cartID is ignored here and in Remove
// and View.
func (a *Actuator) Add(ctx context.Context, _ string, item cart.Item) (cart.Result, error) {
	if item.URL == "" {
		return cart.Result{Message: fmt.Sprintf("%s has no product page", item.Name)}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	page, err := a.driver.Open(ctx)
	if err != nil {
		return cart.Result{}, fmt.Errorf("opening browser page: %w", err)
	}
	defer page.Close()

	slog.Info("adding to storefront cart", "product_id", item.ProductID, "url", item.URL)
	if err := page.Navigate(item.URL); err != nil {
		return cart.Result{}, err
	}
	sel, err := page.ClickAny(addSelectors, selectorWait)
	if err != nil {
		slog.Warn("add to bag button not found", "product_id", item.ProductID, "error", err)
		return cart.Result{Message: "couldn't find the Add to bag button", MediaRef: a.capture(page, "add_cart_failed")}, nil
	}
	slog.Debug("clicked add to bag", "selector", sel)

	if !page.HasText("Added to bag", confirmWait) {
		if err := sleep(ctx, a.cfg.Settle); err != nil {
			return cart.Result{}, err
		}
	}

	if i := cart.Find(a.lines, item.ProductID); i >= 0 {
		a.lines[i].Quantity++
	} else {
		a.lines = append(a.lines, cart.Line{
			ProductID: item.ProductID,
			Name:      item.Name,
			URL:       item.URL,
			Quantity:  1,
			UnitPrice: cart.ToCents(item.Price),
		})
	}
	return cart.Result{
		Success:  true,
		Message:  fmt.Sprintf("Added %s to your cart.", item.Name),
		Snapshot: cart.Clone(a.lines),
		MediaRef: a.capture(page, "add_cart"),
	}, nil
}

// Remove opens the cart page and clicks the line's remove button.
func (a *Actuator) Remove(ctx context.Context, _ string, line cart.Line) (cart.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	page, err := a.openCart(ctx)
	if err != nil {
		return cart.Result{}, err
	}
	defer page.Close()

	clicked, err := page.ClickMatching(removeButton, "aria-label", coreName(line.Name))
	if err != nil {
		return cart.Result{}, err
	}
	if !clicked {
		return cart.Result{
			Message:  fmt.Sprintf("couldn't find the remove button for %s", line.Name),
			MediaRef: a.capture(page, "remove_cart_failed"),
		}, nil
	}
	if err := sleep(ctx, a.cfg.Settle/2); err != nil {
		return cart.Result{}, err
	}

	if i := cart.Find(a.lines, line.ProductID); i >= 0 {
		a.lines = append(a.lines[:i], a.lines[i+1:]...)
	}
	return cart.Result{
		Success:  true,
		Message:  fmt.Sprintf("Removed %s from your cart.", line.Name),
		Snapshot: cart.Clone(a.lines),
		MediaRef: a.capture(page, "remove_cart"),
	}, nil
}

// View reads the cart page. Lines the actuator did not add appear with the
// name shown on the page and no price.
func (a *Actuator) View(ctx context.Context, _ string) (cart.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	page, err := a.openCart(ctx)
	if err != nil {
		return cart.Result{}, err
	}
	defer page.Close()

	labels, err := page.Attributes(removeButton, "aria-label")
	if err != nil {
		return cart.Result{}, err
	}
	a.lines = reconcile(a.lines, namesFromLabels(labels))
	return cart.Result{
		Success:  true,
		Message:  fmt.Sprintf("Found %d item(s) in your cart.", len(a.lines)),
		Snapshot: cart.Clone(a.lines),
		MediaRef: a.capture(page, "view_cart"),
	}, nil
}

func (a *Actuator) openCart(ctx context.Context) (Page, error) {
	page, err := a.driver.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening browser page: %w", err)
	}
	if err := page.Navigate(a.cfg.CartURL); err != nil {
		_ = page.Close()
		return nil, err
	}
	if err := sleep(ctx, a.cfg.Settle); err != nil {
		_ = page.Close()
		return nil, err
	}
	return page, nil
}

// capture saves a screenshot and returns its file name, or "" on failure.
func (a *Actuator) capture(page Page, prefix string) string {
	if a.cfg.MediaDir == "" {
		return ""
	}
	img, err := page.Screenshot()
	if err != nil {
		slog.Warn("screenshot failed", "error", err)
		return ""
	}
	if err := os.MkdirAll(a.cfg.MediaDir, 0o755); err != nil {
		slog.Warn("creating media dir", "error", err)
		return ""
	}
	name := fmt.Sprintf("%s_%s.png", prefix, a.now().UTC().Format("20060102_150405.000"))
	if err := os.WriteFile(filepath.Join(a.cfg.MediaDir, name), img, 0o644); err != nil {
		slog.Warn("writing screenshot", "error", err)
		return ""
	}
	return name
}

// namesFromLabels turns "Remove MARKUS, Office chair" into "MARKUS".
func namesFromLabels(labels []string) []string {
	var out []string
	for _, l := range labels {
		rest, ok := strings.CutPrefix(l, removeLabel)
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(rest, ",")
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// reconcile keeps known lines still on the page and adds unknown names.
func reconcile(known []cart.Line, names []string) []cart.Line {
	out := make([]cart.Line, 0, len(names))
	used := make([]bool, len(known))
	for _, n := range names {
		found := false
		for i, l := range known {
			if !used[i] && strings.EqualFold(coreName(l.Name), coreName(n)) {
				out = append(out, l)
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			out = append(out, cart.Line{ProductID: "storefront:" + strings.ToLower(n), Name: n, Quantity: 1})
		}
	}
	return out
}

// coreName is the product's first word, e.g. "MARKUS" for "MARKUS Office chair".
func coreName(name string) string {
	name, _, _ = strings.Cut(name, ",")
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return name
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("cart page interrupted"), ctx.Err())
	}
}
