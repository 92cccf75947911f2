// Package harvest runs one crawl end to end: fetch every scope's documents,
// format prompts, send them through the batch runner and write both output
// files, recording the run in the ledger.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/devharvest/internal/dataset"
	"github.com/kalambet/devharvest/internal/pipeline"
	"github.com/kalambet/devharvest/internal/portal"
	"github.com/kalambet/devharvest/internal/prompt"
	"github.com/kalambet/devharvest/internal/storage"
)

// Crawler fetches navigation lists and documents from the portal.
type Crawler interface {
	Navlist(ctx context.Context, scope string) ([]portal.NavEntry, error)
	Document(ctx context.Context, scope, id string) (portal.Document, error)
}

// Ledger records runs and their failures.
type Ledger interface {
	SaveRun(r storage.Run) error
	FinishRun(r storage.Run) error
	RecordFailure(f storage.Failure) error
}

// Options describes one run.
type Options struct {
	Scopes    []portal.Scope
	Version   string
	OutputDir string
	// Provider and Model are stored in the ledger; leave empty when AI is off.
	Provider string
	Model    string
}

// Summary reports what a run produced.
type Summary struct {
	RunID        string
	RecordsPath  string
	FinetunePath string
	Documents    int
	Prompts      int
	Failed       int
	Pairs        int
}

// Harvester wires the crawler, the batch runner and the output writers.
type Harvester struct {
	crawler Crawler
	runner  *pipeline.Runner
	ledger  Ledger
	logger  *slog.Logger

	now   func() time.Time
	newID func() string
}

// New creates a Harvester. ledger may be nil.
func New(crawler Crawler, runner *pipeline.Runner, ledger Ledger, logger *slog.Logger) *Harvester {
	if logger == nil {
		logger = slog.Default()
	}
	if ledger == nil {
		ledger = nopLedger{}
	}
	return &Harvester{
		crawler: crawler,
		runner:  runner,
		ledger:  ledger,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Run performs a full harvest. Navlist and document failures skip the scope
// or document, and failed model calls are kept in the full record file; none
// of these stop the run. Output, ledger and cancellation errors do.
func (h *Harvester) Run(ctx context.Context, opts Options) (Summary, error) {
	started := h.now()
	sum := Summary{RunID: h.newID()}
	sum.RecordsPath, sum.FinetunePath = dataset.Paths(opts.OutputDir, opts.Version, started)

	keys := make([]string, len(opts.Scopes))
	for i, s := range opts.Scopes {
		keys[i] = s.Key
	}
	run := storage.Run{
		ID:           sum.RunID,
		StartedAt:    started,
		Version:      opts.Version,
		Provider:     opts.Provider,
		Model:        opts.Model,
		Scopes:       strings.Join(keys, ","),
		RecordsPath:  sum.RecordsPath,
		FinetunePath: sum.FinetunePath,
	}
	if err := h.ledger.SaveRun(run); err != nil {
		return sum, fmt.Errorf("recording run: %w", err)
	}

	err := h.run(ctx, opts, &sum)

	run.FinishedAt = h.now()
	run.Documents, run.Prompts, run.Failed, run.Pairs = sum.Documents, sum.Prompts, sum.Failed, sum.Pairs
	switch {
	case err == nil:
		run.Status = storage.StatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		run.Status = storage.StatusCancelled
		run.Error = err.Error()
	default:
		run.Status = storage.StatusFailed
		run.Error = err.Error()
	}
	if ferr := h.ledger.FinishRun(run); ferr != nil {
		h.logger.Warn("failed to finish run in ledger", "run", run.ID, "error", ferr)
	}
	return sum, err
}

func (h *Harvester) run(ctx context.Context, opts Options, sum *Summary) error {
	records, err := h.crawl(ctx, opts, sum)
	if err != nil {
		return err
	}
	sum.Prompts = len(records)
	h.logger.Info("crawling completed", "documents", sum.Documents, "prompts", sum.Prompts)

	full, err := dataset.Create[dataset.FullRecord](sum.RecordsPath)
	if err != nil {
		return err
	}
	defer full.Close()
	ft, err := dataset.Create[dataset.Example](sum.FinetunePath)
	if err != nil {
		return err
	}
	defer ft.Close()

	h.logger.Info("processing prompts", "records", full.Path(), "finetune", ft.Path(),
		"batches", h.runner.Batches(len(records)))

	for rec, res := range h.runner.Run(ctx, records) {
		fr := dataset.NewFullRecord(rec, res)
		if err := full.Append(fr); err != nil {
			return err
		}
		if res.Failed() {
			sum.Failed++
			h.fail(sum.RunID, storage.StagePrompt, rec.Subject(), res.Err)
			continue
		}
		for _, ex := range dataset.Examples(fr) {
			if err := ft.Append(ex); err != nil {
				return err
			}
			sum.Pairs++
		}
	}

	if err := errors.Join(full.Close(), ft.Close()); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	h.logger.Info("harvest done", "records", sum.RecordsPath, "finetune", sum.FinetunePath,
		"pairs", sum.Pairs, "failed", sum.Failed)
	return nil
}

func (h *Harvester) crawl(ctx context.Context, opts Options, sum *Summary) ([]prompt.Record, error) {
	var records []prompt.Record
	for _, scope := range opts.Scopes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h.logger.Info("processing scope", "scope", scope.UI, "key", scope.Key)

		entries, err := h.crawler.Navlist(ctx, scope.Key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			h.logger.Error("scope failed", "scope", scope.UI, "error", err)
			if portal.IsStatus(err, http.StatusUnauthorized) {
				h.logger.Warn("portal rejected the session; refresh the session cookie and user token")
			}
			h.fail(sum.RunID, storage.StageNavlist, scope.Key, err)
			continue
		}
		h.logger.Info("found document identifiers", "scope", scope.Key, "count", len(entries))

		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			h.logger.Debug("processing document", "id", e.DCIdentifier)
			doc, err := h.crawler.Document(ctx, scope.Key, e.DCIdentifier)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				h.logger.Error("document failed", "id", e.DCIdentifier, "error", err)
				h.fail(sum.RunID, storage.StageDocument, e.DCIdentifier, err)
				continue
			}
			sum.Documents++
			records = append(records, prompt.Format(doc, opts.Version)...)
		}
	}
	return records, nil
}

func (h *Harvester) fail(runID, stage, subject string, cause error) {
	err := h.ledger.RecordFailure(storage.Failure{
		RunID:   runID,
		Stage:   stage,
		Subject: subject,
		Message: cause.Error(),
	})
	if err != nil {
		h.logger.Warn("failed to record failure", "stage", stage, "subject", subject, "error", err)
	}
}

type nopLedger struct{}

func (nopLedger) SaveRun(storage.Run) error { return nil }
func (nopLedger) FinishRun(storage.Run) error { return nil }
func (nopLedger) RecordFailure(storage.Failure) error { return nil }
