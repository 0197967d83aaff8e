package cart

import (
	"context"
	"fmt"
	"sync"
)

var _ Actuator = (*LocalActuator)(nil)

// LocalActuator keeps one cart per cart id in process memory. It stands in
// for the storefront during development and in the chat REPL.
type LocalActuator struct {
	mu    sync.Mutex
	carts map[string][]Line
}

// NewLocalActuator returns an actuator with no carts.
func NewLocalActuator() *LocalActuator {
	return &LocalActuator{carts: make(map[string][]Line)}
}

func (a *LocalActuator) Add(ctx context.Context, cartID string, item Item) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if item.ProductID == "" {
		return Result{}, fmt.Errorf("adding to cart: product id is empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	lines := a.carts[cartID]
	if i := Find(lines, item.ProductID); i >= 0 {
		lines[i].Quantity++
	} else {
		lines = append(lines, Line{
			ProductID: item.ProductID,
			Name:      item.Name,
			URL:       item.URL,
			Quantity:  1,
			UnitPrice: ToCents(item.Price),
		})
	}
	a.carts[cartID] = lines
	return Result{
		Success:  true,
		Message:  fmt.Sprintf("Added %s to your cart.", item.Name),
		Snapshot: Clone(lines),
	}, nil
}

func (a *LocalActuator) Remove(ctx context.Context, cartID string, line Line) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	lines := a.carts[cartID]
	i := Find(lines, line.ProductID)
	if i < 0 {
		return Result{Success: false, Message: fmt.Sprintf("%s is not in your cart.", line.Name), Snapshot: Clone(lines)}, nil
	}
	lines = append(lines[:i], lines[i+1:]...)
	a.carts[cartID] = lines
	return Result{
		Success:  true,
		Message:  fmt.Sprintf("Removed %s from your cart.", line.Name),
		Snapshot: Clone(lines),
	}, nil
}

func (a *LocalActuator) View(ctx context.Context, cartID string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	lines := a.carts[cartID]
	msg := "Your cart is empty."
	if len(lines) > 0 {
		msg = fmt.Sprintf("Your cart has %d item(s).", len(lines))
	}
	return Result{Success: true, Message: msg, Snapshot: Clone(lines)}, nil
}

// Forget drops the cart. Ending a session calls it so abandoned carts do not
// accumulate.
func (a *LocalActuator) Forget(cartID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.carts, cartID)
}
