package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Provider names accepted by ai.provider.
const (
	ProviderLMStudio   = "lmstudio"
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
)

type Config struct {
	Portal  PortalConfig
	AI      AIConfig
	Batch   BatchConfig
	Output  OutputConfig
	Storage StorageConfig
	Log     LogConfig
}

type PortalConfig struct {
	BaseURL           string
	Release           string
	SessionCookie     string
	UserToken         string
	Timeout           string
	RequestsPerSecond float64
	AuthRetries       int
	AuthRetryDelay    string
}

type AIConfig struct {
	Enabled           bool
	Provider          string
	LocalBaseURL      string
	LocalModel        string
	OpenRouterBaseURL string
	OpenRouterModel   string
	OpenRouterAPIKey  string
	Timeout           string
}

type BatchConfig struct {
	Size    int
	DelayMs int
}

type OutputConfig struct {
	Dir string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Portal: PortalConfig{
			BaseURL:           "https://developer.servicenow.com",
			Release:           "yokohama",
			Timeout:           "30s",
			RequestsPerSecond: 2,
			AuthRetries:       3,
			AuthRetryDelay:    "1.5s",
		},
		AI: AIConfig{
			Enabled:           true,
			Provider:          ProviderLMStudio,
			LocalModel:        "qwen2.5-coder-14b-instruct",
			OpenRouterBaseURL: "https://openrouter.ai/api/v1",
			OpenRouterModel:   "google/gemini-2.0-flash-001",
			Timeout:           "5m",
		},
		Batch: BatchConfig{
			Size:    5,
			DelayMs: 5000,
		},
		Output: OutputConfig{
			Dir: "output",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LocalBaseURLFor returns the OpenAI-compatible endpoint for a local provider
// when ai.local_base_url is not set.
func LocalBaseURLFor(provider string) string {
	if provider == ProviderOllama {
		return "http://localhost:11434/v1"
	}
	return "http://localhost:1234/v1"
}

// Load reads configuration from the config file, environment variables and
// the secrets file, in increasing order of precedence for non-secret keys.
//
// The config file is JSON5 at $XDG_CONFIG_HOME/devharvest/config.json, with
// an optional config.local.json next to it whose keys win over the base file.
// Environment variables (DEVHARVEST_*) override file values. Secrets are never
// read from the config file: they come from the environment or from
// $XDG_DATA_HOME/devharvest/secrets.json.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), fileSecrets{})
}

// secretReader abstracts the secrets store for testing.
type secretReader interface {
	Get(account string) (string, error)
}

func loadWith(b ConfigBackend, sr secretReader) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret {
			continue
		}
		if cur, _ := s.extract(cfg).(string); cur != "" {
			continue
		}
		if v, err := sr.Get(s.key); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	return cfg, nil
}

// Validate checks the values a crawl depends on.
func (c Config) Validate() error {
	var errs []error
	if c.Batch.Size <= 0 {
		errs = append(errs, fmt.Errorf("batch.size must be > 0, got %d", c.Batch.Size))
	}
	if c.Batch.DelayMs < 0 {
		errs = append(errs, fmt.Errorf("batch.delay_ms must be >= 0, got %d", c.Batch.DelayMs))
	}
	if c.Portal.AuthRetries < 0 {
		errs = append(errs, fmt.Errorf("portal.auth_retries must be >= 0, got %d", c.Portal.AuthRetries))
	}
	for key, v := range map[string]string{
		"portal.timeout":          c.Portal.Timeout,
		"portal.auth_retry_delay": c.Portal.AuthRetryDelay,
		"ai.timeout":              c.AI.Timeout,
	} {
		if _, err := parseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if c.AI.Enabled {
		switch c.AI.Provider {
		case ProviderLMStudio, ProviderOllama:
		case ProviderOpenRouter:
			if c.AI.OpenRouterAPIKey == "" {
				errs = append(errs, errors.New("missing required config: OpenRouter API key. "+
					"Set it via environment variable DEVHARVEST_OPENROUTER_API_KEY"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown ai.provider %q (want %s, %s or %s)",
				c.AI.Provider, ProviderLMStudio, ProviderOllama, ProviderOpenRouter))
		}
	}
	return errors.Join(errs...)
}

// PortalTimeout returns portal.timeout as a duration; zero disables it.
func (c Config) PortalTimeout() time.Duration {
	d, _ := parseDuration(c.Portal.Timeout)
	return d
}

// AuthRetryDelay returns portal.auth_retry_delay as a duration.
func (c Config) AuthRetryDelay() time.Duration {
	d, _ := parseDuration(c.Portal.AuthRetryDelay)
	return d
}

// AITimeout returns ai.timeout as a duration; zero disables it.
func (c Config) AITimeout() time.Duration {
	d, _ := parseDuration(c.AI.Timeout)
	return d
}

// BatchDelay returns batch.delay_ms as a duration.
func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.Batch.DelayMs) * time.Millisecond
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "devharvest-data"
		}
	}
	return filepath.Join(dir, "devharvest")
}
