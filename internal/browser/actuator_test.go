package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/akashsateesha/Clickless-IKEA/internal/cart"
)

type fakePage struct {
	d *fakeDriver
}

func (p *fakePage) Navigate(url string) error {
	p.d.visited = append(p.d.visited, url)
	return p.d.navErr
}

func (p *fakePage) ClickAny(selectors []string, _ time.Duration) (string, error) {
	if !p.d.hasAddButton {
		return "", errors.New("no match")
	}
	return selectors[0], nil
}

func (p *fakePage) HasText(string, time.Duration) bool { return true }

func (p *fakePage) Attributes(string, string) ([]string, error) {
	return p.d.labels, nil
}

func (p *fakePage) ClickMatching(_, _, substr string) (bool, error) {
	for i, l := range p.d.labels {
		if strings.Contains(strings.ToUpper(l), strings.ToUpper(substr)) {
			p.d.labels = append(p.d.labels[:i], p.d.labels[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (p *fakePage) Screenshot() ([]byte, error) { return []byte("png"), nil }

func (p *fakePage) Close() error {
	p.d.closed++
	return nil
}

type fakeDriver struct {
	hasAddButton bool
	labels       []string
	navErr       error
	visited      []string
	opened       int
	closed       int
}

func (d *fakeDriver) Open(context.Context) (Page, error) {
	d.opened++
	return &fakePage{d: d}, nil
}

func (d *fakeDriver) Close() error { return nil }

func newTestActuator(t *testing.T, d *fakeDriver) *Actuator {
	t.Helper()
	a := NewActuator(d, Config{MediaDir: t.TempDir(), Settle: time.Millisecond})
	a.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return a
}

var flintan = cart.Item{ProductID: "flintan", Name: "FLINTAN Office chair", URL: "https://www.ikea.com/us/en/p/flintan", Price: 139}

func TestAdd(t *testing.T) {
	d := &fakeDriver{hasAddButton: true}
	a := newTestActuator(t, d)

	res, err := a.Add(context.Background(), "s1", flintan)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !res.Success {
		t.Fatalf("Add failed: %+v", res)
	}
	want := []cart.Line{{ProductID: "flintan", Name: "FLINTAN Office chair", URL: flintan.URL, Quantity: 1, UnitPrice: 13900}}
	if diff := cmp.Diff(want, res.Snapshot); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(a.cfg.MediaDir, res.MediaRef)); err != nil {
		t.Errorf("screenshot %q not written: %v", res.MediaRef, err)
	}
	if d.visited[0] != flintan.URL || d.closed != d.opened {
		t.Errorf("visited %v, opened %d closed %d", d.visited, d.opened, d.closed)
	}

	res, _ = a.Add(context.Background(), "s1", flintan)
	if res.Snapshot[0].Quantity != 2 {
		t.Errorf("second add quantity = %d, want 2", res.Snapshot[0].Quantity)
	}
}

func TestAdd_NoButton(t *testing.T) {
	a := newTestActuator(t, &fakeDriver{})
	res, err := a.Add(context.Background(), "s1", flintan)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res.Success || res.Snapshot != nil {
		t.Errorf("result = %+v, want failure without snapshot", res)
	}
	if len(a.lines) != 0 {
		t.Error("failed add recorded a line")
	}
}

func TestAdd_NoURL(t *testing.T) {
	d := &fakeDriver{hasAddButton: true}
	a := newTestActuator(t, d)
	res, err := a.Add(context.Background(), "s1", cart.Item{ProductID: "x", Name: "X"})
	if err != nil || res.Success {
		t.Errorf("Add = %+v, %v", res, err)
	}
	if d.opened != 0 {
		t.Error("opened a page without a URL")
	}
}

func TestAdd_NavigationError(t *testing.T) {
	d := &fakeDriver{hasAddButton: true, navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	a := newTestActuator(t, d)
	if _, err := a.Add(context.Background(), "s1", flintan); err == nil {
		t.Fatal("expected navigation error")
	}
	if d.closed != 1 {
		t.Errorf("page not closed after error")
	}
}

func TestRemove(t *testing.T) {
	d := &fakeDriver{hasAddButton: true, labels: []string{"Remove FLINTAN, Office chair, White"}}
	a := newTestActuator(t, d)
	if _, err := a.Add(context.Background(), "s1", flintan); err != nil {
		t.Fatal(err)
	}

	res, err := a.Remove(context.Background(), "s1", cart.Line{ProductID: "flintan", Name: "FLINTAN Office chair"})
	if err != nil || !res.Success {
		t.Fatalf("Remove = %+v, %v", res, err)
	}
	if len(res.Snapshot) != 0 || len(d.labels) != 0 {
		t.Errorf("snapshot %+v, labels %v", res.Snapshot, d.labels)
	}
	if d.visited[len(d.visited)-1] != DefaultCartURL {
		t.Errorf("remove visited %v", d.visited)
	}
}

func TestRemove_NotInCart(t *testing.T) {
	a := newTestActuator(t, &fakeDriver{labels: []string{"Remove MARKUS, Office chair"}})
	res, err := a.Remove(context.Background(), "s1", cart.Line{ProductID: "flintan", Name: "FLINTAN"})
	if err != nil || res.Success {
		t.Errorf("Remove = %+v, %v", res, err)
	}
}

func TestView_Reconciles(t *testing.T) {
	d := &fakeDriver{hasAddButton: true}
	a := newTestActuator(t, d)
	if _, err := a.Add(context.Background(), "s1", flintan); err != nil {
		t.Fatal(err)
	}
	d.labels = []string{"Remove FLINTAN, Office chair", "Remove POÄNG, Armchair", "Close"}

	res, err := a.View(context.Background(), "s1")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	want := []cart.Line{
		{ProductID: "flintan", Name: "FLINTAN Office chair", URL: flintan.URL, Quantity: 1, UnitPrice: 13900},
		{ProductID: "storefront:poäng", Name: "POÄNG", Quantity: 1},
	}
	if diff := cmp.Diff(want, res.Snapshot); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestView_CancelledContext(t *testing.T) {
	d := &fakeDriver{}
	a := NewActuator(d, Config{Settle: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.View(ctx, "s1"); !errors.Is(err, context.Canceled) {
		t.Errorf("View err = %v, want context.Canceled", err)
	}
	if d.closed != d.opened {
		t.Error("page leaked on cancellation")
	}
}

func TestCoreName(t *testing.T) {
	tests := map[string]string{
		"MARKUS Office chair": "MARKUS",
		"FLINTAN, white":      "FLINTAN",
		"":                    "",
	}
	for in, want := range tests {
		if got := coreName(in); got != want {
			t.Errorf("coreName(%q) = %q, want %q", in, got, want)
		}
	}
}
