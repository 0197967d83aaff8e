// Package config loads clickless settings from defaults, the JSON config
// file, a .env file and CLICKLESS_* environment variables, in that order of
// increasing precedence.
package config

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Intent    TimeoutConfig
	Retrieval RetrievalConfig
	Resolver  TimeoutConfig
	Chat      TimeoutConfig
	Cart      CartConfig
	Agent     AgentConfig
	Session   SessionConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
	// Token enables bearer authentication on the HTTP API.
	Token string
}

type LLMConfig struct {
	// Provider is ollama, gemini or openai. Empty picks gemini when an API
	// key is set and ollama otherwise.
	Provider      string
	OllamaBaseURL string
	OpenAIBaseURL string
	APIKey        string
	ChatModel     string
	EmbedModel    string
}

type StorageConfig struct {
	DataDir string
}

type TimeoutConfig struct {
	Timeout time.Duration
}

type RetrievalConfig struct {
	TopK    int
	Timeout time.Duration
}

// Cart modes.
const (
	CartLocal   = "local"
	CartBrowser = "browser"
)

type CartConfig struct {
	Mode     string
	Timeout  time.Duration
	// TaxRate is a fraction with at most basis-point precision (0.0725, not
	// 0.07255); totals are computed in whole basis points.
	TaxRate  float64
	Headless bool
	CartURL  string
	MediaDir string
}

type AgentConfig struct {
	MaxOptions    int
	HistoryWindow int
}

type SessionConfig struct {
	TTL time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 4100},
		LLM: LLMConfig{
			OllamaBaseURL: "http://localhost:11434",
			OpenAIBaseURL: "https://api.openai.com/v1",
		},
		Storage:   StorageConfig{DataDir: defaultDataDir()},
		Intent:    TimeoutConfig{Timeout: 3 * time.Second},
		Retrieval: RetrievalConfig{TopK: 5, Timeout: 5 * time.Second},
		Resolver:  TimeoutConfig{Timeout: 5 * time.Second},
		Chat:      TimeoutConfig{Timeout: 10 * time.Second},
		Cart: CartConfig{
			Mode:     CartLocal,
			Timeout:  15 * time.Second,
			TaxRate:  0.08,
			Headless: true,
			CartURL:  "https://www.ikea.com/us/en/shoppingcart/",
		},
		Agent:   AgentConfig{MaxOptions: 5, HistoryWindow: 10},
		Session: SessionConfig{TTL: 30 * time.Minute},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads the configuration. A .env file in the working directory is
// loaded first; variables already set in the environment win over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not load .env: %v\n", err)
	}
	return loadWith(newFileBackend(FilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	switch c.LLM.Provider {
	case "", "ollama", "openai":
	case "gemini":
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("missing required config: llm.api_key for the gemini provider. Set it via environment variable CLICKLESS_LLM_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Agent.MaxOptions <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_options must be positive, got %d", c.Agent.MaxOptions))
	}
	if c.Cart.TaxRate < 0 || c.Cart.TaxRate >= 1 {
		errs = append(errs, fmt.Errorf("cart.tax_rate must be in [0, 1), got %v", c.Cart.TaxRate))
	} else if bp := c.Cart.TaxRate * 10000; math.Abs(bp-math.Round(bp)) > 1e-6 {
		errs = append(errs, fmt.Errorf("cart.tax_rate must be a whole number of basis points (e.g. 0.0838), got %v", c.Cart.TaxRate))
	}
	if c.Cart.Mode != CartLocal && c.Cart.Mode != CartBrowser {
		errs = append(errs, fmt.Errorf("cart.mode must be %q or %q, got %q", CartLocal, CartBrowser, c.Cart.Mode))
	}
	return errors.Join(errs...)
}

// Models returns the chat and embedding models, filling provider defaults
// for whichever is unset.
func (c LLMConfig) Models() (chat, embed string) {
	chat, embed = c.ChatModel, c.EmbedModel
	provider := c.Provider
	if provider == "" {
		provider = "ollama"
		if c.APIKey != "" {
			provider = "gemini"
		}
	}
	switch provider {
	case "gemini":
		chat = cmp.Or(chat, "gemini-2.0-flash")
		embed = cmp.Or(embed, "text-embedding-004")
	case "openai":
		chat = cmp.Or(chat, "gpt-4o-mini")
		embed = cmp.Or(embed, "text-embedding-3-small")
	default:
		chat = cmp.Or(chat, "llama3.2")
		embed = cmp.Or(embed, "nomic-embed-text")
	}
	return chat, embed
}

// SlogLevel maps log.level onto a slog level; unknown values mean info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
