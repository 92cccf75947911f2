package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kalambet/devharvest/internal/config"
)

// askConfig walks the user through the AI settings of a crawl and applies
// the answers to cfg. Empty answers keep the current value.
func askConfig(cfg *config.Config, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	ask := func(q string) string {
		fmt.Fprint(out, q)
		if !sc.Scan() {
			return ""
		}
		return strings.TrimSpace(sc.Text())
	}

	fmt.Fprintln(out, "\n=== ServiceNow Documentation Crawler Configuration ===")

	if strings.EqualFold(ask("Use AI to generate examples? (y/n, default: y): "), "n") {
		cfg.AI.Enabled = false
		fmt.Fprintln(out, "\nConfiguration complete. Starting crawler...")
		return sc.Err()
	}
	cfg.AI.Enabled = true

	fmt.Fprintln(out, "\nSelect AI provider:")
	fmt.Fprintln(out, "1. LM Studio (local)")
	fmt.Fprintln(out, "2. Ollama (local)")
	fmt.Fprintln(out, "3. OpenRouter.ai")
	switch ask("Enter choice (1-3): ") {
	case "2":
		cfg.AI.Provider = config.ProviderOllama
		cfg.AI.LocalBaseURL = config.LocalBaseURLFor(config.ProviderOllama)
		cfg.AI.LocalModel = "llama3"
		if m := ask("Enter Ollama model name (default: llama3): "); m != "" {
			cfg.AI.LocalModel = m
		}
	case "3":
		cfg.AI.Provider = config.ProviderOpenRouter
		if key := ask("Enter OpenRouter API key: "); key != "" {
			cfg.AI.OpenRouterAPIKey = key
		}
		q := fmt.Sprintf("Enter OpenRouter model ID (default: %s): ", cfg.AI.OpenRouterModel)
		if m := ask(q); m != "" {
			cfg.AI.OpenRouterModel = m
		}
	default:
		cfg.AI.Provider = config.ProviderLMStudio
	}

	if v := ask("Enter batch size for API requests (default: 5): "); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid batch size %q", v)
		}
		cfg.Batch.Size = n
	}
	if v := ask("Enter delay between batches in seconds (default: 5): "); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid delay %q", v)
		}
		cfg.Batch.DelayMs = n * 1000
	}

	fmt.Fprintln(out, "\nConfiguration complete. Starting crawler...")
	return sc.Err()
}
