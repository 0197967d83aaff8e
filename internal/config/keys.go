package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

func str(key string, secret bool, set func(*Config, string), get func(Config) string) keySpec {
	return keySpec{
		key: key, typ: kString, env: envName(key), secret: secret,
		apply:   func(cfg *Config, v any) { set(cfg, v.(string)) },
		extract: func(cfg Config) any { return get(cfg) },
	}
}

func integer(key string, set func(*Config, int), get func(Config) int) keySpec {
	return keySpec{
		key: key, typ: kInt, env: envName(key),
		apply:   func(cfg *Config, v any) { set(cfg, v.(int)) },
		extract: func(cfg Config) any { return get(cfg) },
	}
}

func duration(key string, set func(*Config, time.Duration), get func(Config) time.Duration) keySpec {
	return keySpec{
		key: key, typ: kDuration, env: envName(key),
		apply:   func(cfg *Config, v any) { set(cfg, v.(time.Duration)) },
		extract: func(cfg Config) any { return get(cfg) },
	}
}

var specs = []keySpec{
	integer("server.port", func(c *Config, v int) { c.Server.Port = v }, func(c Config) int { return c.Server.Port }),
	str("server.token", true, func(c *Config, v string) { c.Server.Token = v }, func(c Config) string { return c.Server.Token }),

	str("llm.provider", false, func(c *Config, v string) { c.LLM.Provider = v }, func(c Config) string { return c.LLM.Provider }),
	str("llm.ollama_base_url", false, func(c *Config, v string) { c.LLM.OllamaBaseURL = v }, func(c Config) string { return c.LLM.OllamaBaseURL }),
	str("llm.openai_base_url", false, func(c *Config, v string) { c.LLM.OpenAIBaseURL = v }, func(c Config) string { return c.LLM.OpenAIBaseURL }),
	str("llm.api_key", true, func(c *Config, v string) { c.LLM.APIKey = v }, func(c Config) string { return c.LLM.APIKey }),
	str("llm.chat_model", false, func(c *Config, v string) { c.LLM.ChatModel = v }, func(c Config) string { return c.LLM.ChatModel }),
	str("llm.embed_model", false, func(c *Config, v string) { c.LLM.EmbedModel = v }, func(c Config) string { return c.LLM.EmbedModel }),

	str("storage.data_dir", false, func(c *Config, v string) { c.Storage.DataDir = v }, func(c Config) string { return c.Storage.DataDir }),

	duration("intent.timeout", func(c *Config, v time.Duration) { c.Intent.Timeout = v }, func(c Config) time.Duration { return c.Intent.Timeout }),
	integer("retrieval.top_k", func(c *Config, v int) { c.Retrieval.TopK = v }, func(c Config) int { return c.Retrieval.TopK }),
	duration("retrieval.timeout", func(c *Config, v time.Duration) { c.Retrieval.Timeout = v }, func(c Config) time.Duration { return c.Retrieval.Timeout }),
	duration("resolver.timeout", func(c *Config, v time.Duration) { c.Resolver.Timeout = v }, func(c Config) time.Duration { return c.Resolver.Timeout }),
	duration("chat.timeout", func(c *Config, v time.Duration) { c.Chat.Timeout = v }, func(c Config) time.Duration { return c.Chat.Timeout }),

	str("cart.mode", false, func(c *Config, v string) { c.Cart.Mode = v }, func(c Config) string { return c.Cart.Mode }),
	duration("cart.timeout", func(c *Config, v time.Duration) { c.Cart.Timeout = v }, func(c Config) time.Duration { return c.Cart.Timeout }),
	{
		key: "cart.tax_rate", typ: kFloat, env: envName("cart.tax_rate"),
		apply:   func(cfg *Config, v any) { cfg.Cart.TaxRate = v.(float64) },
		extract: func(cfg Config) any { return cfg.Cart.TaxRate },
	},
	{
		key: "cart.headless", typ: kBool, env: envName("cart.headless"),
		apply:   func(cfg *Config, v any) { cfg.Cart.Headless = v.(bool) },
		extract: func(cfg Config) any { return cfg.Cart.Headless },
	},
	str("cart.url", false, func(c *Config, v string) { c.Cart.CartURL = v }, func(c Config) string { return c.Cart.CartURL }),
	str("cart.media_dir", false, func(c *Config, v string) { c.Cart.MediaDir = v }, func(c Config) string { return c.Cart.MediaDir }),

	integer("agent.max_options", func(c *Config, v int) { c.Agent.MaxOptions = v }, func(c Config) int { return c.Agent.MaxOptions }),
	integer("agent.history_window", func(c *Config, v int) { c.Agent.HistoryWindow = v }, func(c Config) int { return c.Agent.HistoryWindow }),
	duration("session.ttl", func(c *Config, v time.Duration) { c.Session.TTL = v }, func(c Config) time.Duration { return c.Session.TTL }),

	str("log.level", false, func(c *Config, v string) { c.Log.Level = v }, func(c Config) string { return c.Log.Level }),
}

// parse converts raw into the key's type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
