package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/devharvest/internal/config"
	"github.com/kalambet/devharvest/internal/dataset"
	"github.com/kalambet/devharvest/internal/engine"
	"github.com/kalambet/devharvest/internal/harvest"
	"github.com/kalambet/devharvest/internal/pipeline"
	"github.com/kalambet/devharvest/internal/portal"
	"github.com/kalambet/devharvest/internal/storage"
)

// --- crawl ---

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the developer portal and build fine-tuning data",
	Long: `Crawl the ServiceNow developer portal, turn every documented method into a
prompt, send the prompts to the configured model and write two JSONL files:
the full records and the fine-tuning examples.

Examples:
  devharvest crawl
  devharvest crawl --interactive
  devharvest crawl --scope client,rest --release xanadu
  devharvest crawl --no-ai --output ./out`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyCrawlFlags(cmd, &cfg)

		if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
			if term.IsTerminal(int(os.Stdin.Fd())) {
				if err := askConfig(&cfg, os.Stdin, os.Stdout); err != nil {
					return err
				}
			} else {
				printWarning("stdin is not a terminal; skipping interactive configuration")
			}
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		setupLogger(cfg.Log.Level, os.Stderr)

		scopeKeys, _ := cmd.Flags().GetStringSlice("scope")
		scopes, err := portal.SelectScopes(scopeKeys)
		if err != nil {
			return err
		}
		return runCrawl(cmd.Context(), cfg, scopes)
	},
}

func init() {
	crawlCmd.Flags().Bool("interactive", false, "ask for AI settings before crawling")
	crawlCmd.Flags().StringSlice("scope", nil, "scope keys to crawl (default: all)")
	crawlCmd.Flags().String("release", "", "portal release to crawl (overrides portal.release)")
	crawlCmd.Flags().String("output", "", "output directory (overrides output.dir)")
	crawlCmd.Flags().Bool("no-ai", false, "skip the model step and only write prompts")
}

func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("release"); v != "" {
		cfg.Portal.Release = v
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.Output.Dir = v
	}
	if v, _ := cmd.Flags().GetBool("no-ai"); v {
		cfg.AI.Enabled = false
	}
}

func runCrawl(ctx context.Context, cfg config.Config, scopes []portal.Scope) error {
	creds := portal.Credentials{SessionCookie: cfg.Portal.SessionCookie, UserToken: cfg.Portal.UserToken}
	if creds.SessionCookie == "" && creds.UserToken == "" {
		printWarning("No portal credentials set; requests may be rejected. Set DEVHARVEST_SESSION_COOKIE and DEVHARVEST_USER_TOKEN.")
	}

	retries := cfg.Portal.AuthRetries
	if retries == 0 {
		retries = -1
	}
	client := portal.NewClient(portal.NewCredentialStore(creds), portal.Options{
		Timeout:           cfg.PortalTimeout(),
		RequestsPerSecond: cfg.Portal.RequestsPerSecond,
		AuthRetries:       retries,
		AuthRetryDelay:    cfg.AuthRetryDelay(),
	})
	crawler := portal.NewCrawler(client, cfg.Portal.BaseURL, cfg.Portal.Release)

	eng, settings, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	printStep("Starting ServiceNow API crawl for release %s", cfg.Portal.Release)
	if eng == nil {
		printStatus("AI processing", "disabled")
	} else {
		printStatus("AI processing", "enabled")
		printStatus("AI provider", "%s", settings.Provider)
		printStatus("Model", "%s", settings.Model)
		printStatus("Batching", "%d per batch, %s between batches", cfg.Batch.Size, cfg.BatchDelay())
	}

	runner := pipeline.NewRunner(eng, cfg.Batch.Size, cfg.BatchDelay(), nil)
	h := harvest.New(crawler, runner, store, nil)
	sum, err := h.Run(ctx, harvest.Options{
		Scopes:    scopes,
		Version:   cfg.Portal.Release,
		OutputDir: cfg.Output.Dir,
		Provider:  settings.Provider,
		Model:     settings.Model,
	})
	if err != nil {
		return err
	}

	printSuccess("All done! Results saved to:")
	printStatus("Complete data", "%s", sum.RecordsPath)
	printStatus("Fine-tuning data", "%s", sum.FinetunePath)
	printStatus("Documents", "%d", sum.Documents)
	printStatus("Prompts", "%d (%d failed)", sum.Prompts, sum.Failed)
	printStatus("Extracted pairs", "%d", sum.Pairs)
	printStatus("Run", "%s", sum.RunID)
	return nil
}

// buildEngine resolves the model backend once for the run. It returns a nil
// Engine when AI processing is off.
func buildEngine(ctx context.Context, cfg config.Config) (engine.Engine, engine.Settings, error) {
	if !cfg.AI.Enabled {
		return nil, engine.Settings{}, nil
	}
	s := engine.Settings{Provider: cfg.AI.Provider, Timeout: cfg.AITimeout()}
	switch cfg.AI.Provider {
	case config.ProviderOpenRouter:
		s.BaseURL = cfg.AI.OpenRouterBaseURL
		s.Model = cfg.AI.OpenRouterModel
		s.APIKey = cfg.AI.OpenRouterAPIKey
	default:
		s.BaseURL = cfg.AI.LocalBaseURL
		if s.BaseURL == "" {
			s.BaseURL = config.LocalBaseURLFor(cfg.AI.Provider)
		}
		s.Model = cfg.AI.LocalModel
	}

	eng, err := engine.New(s)
	if err != nil {
		return nil, s, err
	}
	if local, ok := eng.(*engine.Local); ok {
		if !local.IsRunning(ctx) {
			printWarning("%s does not answer at %s; prompts will fail until it is started", s.Provider, s.BaseURL)
		} else if models, err := local.ListModels(ctx); err == nil && !slices.Contains(models, s.Model) {
			printWarning("model %s is not loaded in %s (loaded: %s)", s.Model, s.Provider, strings.Join(models, ", "))
		}
	}
	return eng, s, nil
}

// --- reparse ---

var reparseCmd = &cobra.Command{
	Use:   "reparse <records.jsonl>",
	Short: "Re-extract fine-tuning pairs from a saved full record file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := args[0]
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = dataset.FinetunePathFor(in, time.Now())
		}

		printStep("Re-parsing %s", in)
		st, err := harvest.Reparse(in, out)
		if err != nil {
			return err
		}
		printSuccess("Wrote %d pairs to %s", st.Pairs, out)
		printStatus("Records", "%d (%d without a usable reply)", st.Records, st.Skipped)
		return nil
	},
}

func init() {
	reparseCmd.Flags().String("out", "", "fine-tune output path (default: next to the input)")
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent harvest runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		runs, err := store.ListRuns(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			printWarning("No runs recorded yet")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tRELEASE\tSTATUS\tPROMPTS\tFAILED\tPAIRS\tPROVIDER")
		for _, r := range runs {
			provider := r.Provider
			if provider == "" {
				provider = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.ID, r.StartedAt.Local().Format(time.DateTime), r.Version, statusLabel(r.Status),
				r.Prompts, r.Failed, r.Pairs, provider)
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "number of runs to show")
}

func statusLabel(status string) string {
	switch status {
	case storage.StatusCompleted:
		return colorize(colorGreen, status)
	case storage.StatusFailed:
		return colorize(colorRed, status)
	case storage.StatusCancelled, storage.StatusRunning:
		return colorize(colorYellow, status)
	default:
		return status
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		if isSecretKey(key) {
			printSuccess("Stored %s in the secrets file", key)
			return nil
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func isSecretKey(key string) bool {
	return !slices.Contains(config.ValidKeys(), key)
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
