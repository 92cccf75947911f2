package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "portal.base_url", typ: kString, env: "DEVHARVEST_PORTAL_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Portal.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.BaseURL },
	},
	{
		key: "portal.release", typ: kString, env: "DEVHARVEST_PORTAL_RELEASE",
		apply:   func(cfg *Config, v any) { cfg.Portal.Release = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.Release },
	},
	{
		key: "portal.session_cookie", typ: kString, env: "DEVHARVEST_SESSION_COOKIE",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Portal.SessionCookie = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.SessionCookie },
	},
	{
		key: "portal.user_token", typ: kString, env: "DEVHARVEST_USER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Portal.UserToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.UserToken },
	},
	{
		key: "portal.timeout", typ: kString, env: "DEVHARVEST_PORTAL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Portal.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.Timeout },
	},
	{
		key: "portal.requests_per_second", typ: kFloat, env: "DEVHARVEST_PORTAL_RPS",
		apply:   func(cfg *Config, v any) { cfg.Portal.RequestsPerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.Portal.RequestsPerSecond },
	},
	{
		key: "portal.auth_retries", typ: kInt, env: "DEVHARVEST_PORTAL_AUTH_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Portal.AuthRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Portal.AuthRetries },
	},
	{
		key: "portal.auth_retry_delay", typ: kString, env: "DEVHARVEST_PORTAL_AUTH_RETRY_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Portal.AuthRetryDelay = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.AuthRetryDelay },
	},
	{
		key: "ai.enabled", typ: kBool, env: "DEVHARVEST_AI_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.AI.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.AI.Enabled },
	},
	{
		key: "ai.provider", typ: kString, env: "DEVHARVEST_AI_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.AI.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.Provider },
	},
	{
		key: "ai.local_base_url", typ: kString, env: "DEVHARVEST_AI_LOCAL_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.AI.LocalBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.LocalBaseURL },
	},
	{
		key: "ai.local_model", typ: kString, env: "DEVHARVEST_AI_LOCAL_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.LocalModel = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.LocalModel },
	},
	{
		key: "ai.openrouter_base_url", typ: kString, env: "DEVHARVEST_OPENROUTER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.AI.OpenRouterBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.OpenRouterBaseURL },
	},
	{
		key: "ai.openrouter_model", typ: kString, env: "DEVHARVEST_OPENROUTER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.OpenRouterModel = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.OpenRouterModel },
	},
	{
		key: "ai.openrouter_api_key", typ: kString, env: "DEVHARVEST_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.AI.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.OpenRouterAPIKey },
	},
	{
		key: "ai.timeout", typ: kString, env: "DEVHARVEST_AI_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.AI.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.Timeout },
	},
	{
		key: "batch.size", typ: kInt, env: "DEVHARVEST_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Batch.Size = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.Size },
	},
	{
		key: "batch.delay_ms", typ: kInt, env: "DEVHARVEST_BATCH_DELAY_MS",
		apply:   func(cfg *Config, v any) { cfg.Batch.DelayMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.DelayMs },
	},
	{
		key: "output.dir", typ: kString, env: "DEVHARVEST_OUTPUT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Output.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Output.Dir },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DEVHARVEST_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "DEVHARVEST_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
