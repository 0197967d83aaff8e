package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/akashsateesha/Clickless-IKEA/internal/agent"
	"github.com/akashsateesha/Clickless-IKEA/internal/browser"
	"github.com/akashsateesha/Clickless-IKEA/internal/cart"
	"github.com/akashsateesha/Clickless-IKEA/internal/catalog"
	"github.com/akashsateesha/Clickless-IKEA/internal/config"
	"github.com/akashsateesha/Clickless-IKEA/internal/engine"
	"github.com/akashsateesha/Clickless-IKEA/internal/intent"
	"github.com/akashsateesha/Clickless-IKEA/internal/metrics"
	"github.com/akashsateesha/Clickless-IKEA/internal/resolver"
	"github.com/akashsateesha/Clickless-IKEA/internal/retrieval"
	"github.com/akashsateesha/Clickless-IKEA/internal/session"
	"github.com/akashsateesha/Clickless-IKEA/internal/storage"
)

// app is the wired assistant shared by serve and mcp.
type app struct {
	cfg     config.Config
	store   *storage.Store
	agent   *agent.Agent
	metrics http.Handler
	closers []io.Closer
}

func setupLogging(cfg config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))
}

// openEngine detects the configured inference backend and makes sure its
// models are available. Progress goes to w.
func openEngine(ctx context.Context, cfg config.Config, w io.Writer) (engine.Engine, error) {
	eng, err := engine.Detect(ctx, engine.DetectConfig{
		Provider:      cfg.LLM.Provider,
		OllamaBaseURL: cfg.LLM.OllamaBaseURL,
		OpenAIBaseURL: cfg.LLM.OpenAIBaseURL,
		APIKey:        cfg.LLM.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	chatModel, embedModel := cfg.LLM.Models()
	if err := engine.EnsureReady(ctx, eng, w, chatModel, embedModel); err != nil {
		return nil, err
	}
	return eng, nil
}

// newCartActuator returns the cart backend for cart.mode.
func newCartActuator(cfg config.Config) (cart.Actuator, io.Closer) {
	if cfg.Cart.Mode != config.CartBrowser {
		return cart.NewLocalActuator(), nil
	}
	mediaDir := cfg.Cart.MediaDir
	if mediaDir == "" {
		mediaDir = filepath.Join(cfg.Storage.DataDir, "media")
	}
	driver := browser.NewRodDriver(browser.RodConfig{
		Headless:    cfg.Cart.Headless,
		UserDataDir: filepath.Join(cfg.Storage.DataDir, "browser"),
	})
	return browser.NewActuator(driver, browser.Config{
		CartURL:  cfg.Cart.CartURL,
		MediaDir: mediaDir,
	}), driver
}

func newApp(ctx context.Context, cfg config.Config, progress io.Writer) (*app, error) {
	eng, err := openEngine(ctx, cfg, progress)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a := &app{cfg: cfg, store: store, closers: []io.Closer{store}}

	chatModel, embedModel := cfg.LLM.Models()
	products := catalog.NewSQLiteStore(store.DB())
	index := catalog.NewIndex(products, catalog.NewProductEmbedder(eng, embedModel))
	if n, err := products.Count(ctx); err == nil && n == 0 {
		slog.Warn("product catalog is empty; run `clickless catalog import <file>`")
	}

	actuator, closer := newCartActuator(cfg)
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	a.metrics = rec.Handler()

	a.agent, err = agent.New(agent.Deps{
		Sessions:   session.NewSQLiteStore(store),
		Classifier: intent.NewClassifier(eng, chatModel, cfg.Intent.Timeout),
		Searcher:   retrieval.NewOrchestrator(index, cfg.Retrieval.TopK, cfg.Retrieval.Timeout),
		Resolver:   resolver.New(resolver.NewSemanticMatcher(eng, chatModel), cfg.Resolver.Timeout),
		Cart:       actuator,
		Responder:  agent.NewLLMResponder(eng, chatModel, 0),
		TurnLog:    store,
		Metrics:    rec,
	}, agent.Config{
		TaxRate:       cfg.Cart.TaxRate,
		MaxOptions:    cfg.Agent.MaxOptions,
		CartTimeout:   cfg.Cart.Timeout,
		ChatTimeout:   cfg.Chat.Timeout,
		HistoryWindow: cfg.Agent.HistoryWindow,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	slog.Info("assistant ready",
		"provider", cmpProvider(cfg.LLM),
		"chat_model", chatModel,
		"embed_model", embedModel,
		"cart_mode", cfg.Cart.Mode,
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func cmpProvider(c config.LLMConfig) string {
	switch {
	case c.Provider != "":
		return c.Provider
	case c.APIKey != "":
		return engine.ProviderGemini
	default:
		return engine.ProviderOllama
	}
}
