// Package browser drives the storefront's web cart with a headless Chrome
// controlled through go-rod.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Page is the subset of page operations the cart actuator needs.
type Page interface {
	Navigate(url string) error
	// ClickAny clicks the first selector that becomes visible within wait
	// and returns it. Selectors starting with "//" are XPath.
	ClickAny(selectors []string, wait time.Duration) (string, error)
	// HasText reports whether text appears on the page within wait.
	HasText(text string, wait time.Duration) bool
	// Attributes returns attr of every element matching selector.
	Attributes(selector, attr string) ([]string, error)
	// ClickMatching clicks the first element matching selector whose attr
	// contains substr, case-insensitively.
	ClickMatching(selector, attr, substr string) (bool, error)
	Screenshot() ([]byte, error)
	Close() error
}

// Driver opens pages in a shared browser.
type Driver interface {
	Open(ctx context.Context) (Page, error)
	Close() error
}

// RodConfig configures the Chrome instance.
type RodConfig struct {
	// ControlURL attaches to a running Chrome instead of launching one.
	ControlURL string
	// Bin overrides the Chrome binary.
	Bin      string
	Headless bool
	// UserDataDir keeps cookies and the storefront cart across restarts.
	UserDataDir       string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
}

func (c RodConfig) withDefaults() RodConfig {
	if c.ViewportWidth == 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight == 0 {
		c.ViewportHeight = 720
	}
	if c.NavigationTimeout == 0 {
		c.NavigationTimeout = 60 * time.Second
	}
	return c
}

// RodDriver is a Driver backed by go-rod. The browser is started lazily on
// the first Open and reused afterwards.
type RodDriver struct {
	cfg RodConfig

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRodDriver creates a driver; nothing is launched until Open.
func NewRodDriver(cfg RodConfig) *RodDriver {
	return &RodDriver{cfg: cfg.withDefaults()}
}

func (d *RodDriver) connect() (*rod.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser != nil {
		if _, err := d.browser.Version(); err == nil {
			return d.browser, nil
		}
		slog.Warn("stale browser connection, reconnecting")
		_ = d.browser.Close()
		d.browser = nil
	}

	controlURL := d.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(d.cfg.Headless)
		if d.cfg.Bin != "" {
			l = l.Bin(d.cfg.Bin)
		}
		if d.cfg.UserDataDir != "" {
			l = l.UserDataDir(d.cfg.UserDataDir)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launching chrome: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to chrome: %w", err)
	}
	slog.Info("browser connected", "headless", d.cfg.Headless)
	d.browser = b
	return b, nil
}

// Open implements Driver. The page is bound to ctx.
func (d *RodDriver) Open(ctx context.Context) (Page, error) {
	b, err := d.connect()
	if err != nil {
		return nil, err
	}
	p, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	err = p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  d.cfg.ViewportWidth,
		Height: d.cfg.ViewportHeight,
	})
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("setting viewport: %w", err)
	}
	return &rodPage{page: p.Context(ctx), navTimeout: d.cfg.NavigationTimeout}, nil
}

// Close shuts the browser down.
func (d *RodDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	return err
}

type rodPage struct {
	page       *rod.Page
	navTimeout time.Duration
}

func (p *rodPage) Navigate(url string) error {
	pg := p.page.Timeout(p.navTimeout)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for %s: %w", url, err)
	}
	return nil
}

func (p *rodPage) ClickAny(selectors []string, wait time.Duration) (string, error) {
	for _, sel := range selectors {
		var (
			el  *rod.Element
			err error
		)
		if strings.HasPrefix(sel, "//") {
			el, err = p.page.Timeout(wait).ElementX(sel)
		} else {
			el, err = p.page.Timeout(wait).Element(sel)
		}
		if err != nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			slog.Debug("click failed", "selector", sel, "error", err)
			continue
		}
		return sel, nil
	}
	return "", fmt.Errorf("none of %d selectors matched", len(selectors))
}

func (p *rodPage) HasText(text string, wait time.Duration) bool {
	_, err := p.page.Timeout(wait).ElementR("*", regexp.QuoteMeta(text))
	return err == nil
}

func (p *rodPage) Attributes(selector, attr string) ([]string, error) {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("finding %s: %w", selector, err)
	}
	var out []string
	for _, el := range els {
		v, err := el.Attribute(attr)
		if err != nil || v == nil {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

func (p *rodPage) ClickMatching(selector, attr, substr string) (bool, error) {
	els, err := p.page.Elements(selector)
	if err != nil {
		return false, fmt.Errorf("finding %s: %w", selector, err)
	}
	want := strings.ToUpper(substr)
	for _, el := range els {
		v, err := el.Attribute(attr)
		if err != nil || v == nil || !strings.Contains(strings.ToUpper(*v), want) {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return false, fmt.Errorf("clicking %q: %w", *v, err)
		}
		return true, nil
	}
	return false, nil
}

func (p *rodPage) Screenshot() ([]byte, error) {
	return p.page.Screenshot(false, nil)
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
