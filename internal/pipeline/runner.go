// Package pipeline drives the model gateway over a list of prompts in
// fixed-size, paced batches.
package pipeline

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/devharvest/internal/engine"
	"github.com/kalambet/devharvest/internal/prompt"
)

const (
	DefaultBatchSize = 5
	DefaultDelay     = 5 * time.Second
)

// Result is the model reply for one prompt. Err is set when the call failed,
// which is distinct from a successful call returning empty text. Processed is
// false when AI processing is off and no call was made.
type Result struct {
	Response  string
	Err       error
	Processed bool
	Duration  time.Duration
}

// Failed reports whether the model call for this item failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Runner sends prompts to Engine in contiguous batches. Items of one batch
// run concurrently; batches run strictly one after another with Delay between
// them. A nil Engine disables AI processing and records pass straight through.
type Runner struct {
	Engine    engine.Engine
	BatchSize int
	Delay     time.Duration
	Logger    *slog.Logger

	// sleep waits between batches; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a Runner. batchSize <= 0 selects DefaultBatchSize and a
// negative delay selects DefaultDelay.
func NewRunner(e engine.Engine, batchSize int, delay time.Duration, logger *slog.Logger) *Runner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if delay < 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Engine: e, BatchSize: batchSize, Delay: delay, Logger: logger}
}

// Batches returns how many batches Run dispatches for n prompts.
func (r *Runner) Batches(n int) int {
	size := r.batchSize()
	return (n + size - 1) / size
}

// Run returns the records paired with their results, in input order. The
// sequence is lazy: batch i+1 is dispatched only after the consumer has taken
// every result of batch i and the delay has elapsed. Stopping the iteration
// early leaves later batches unsent, and cancelling ctx ends it at the next
// batch boundary. Each call starts a fresh pass over records.
func (r *Runner) Run(ctx context.Context, records []prompt.Record) iter.Seq2[prompt.Record, Result] {
	return func(yield func(prompt.Record, Result) bool) {
		if r.Engine == nil {
			for _, rec := range records {
				if !yield(rec, Result{}) {
					return
				}
			}
			return
		}

		size := r.batchSize()
		total := r.Batches(len(records))
		for b := 0; b < total; b++ {
			if b > 0 {
				r.logger().Info("waiting before next batch", "delay", r.Delay)
				if err := r.wait(ctx, r.Delay); err != nil {
					r.logger().Warn("batch run cancelled", "completed_batches", b, "batches", total, "error", err)
					return
				}
			} else if err := ctx.Err(); err != nil {
				return
			}

			start := b * size
			batch := records[start:min(start+size, len(records))]
			r.logger().Info("processing batch", "batch", b+1, "batches", total, "size", len(batch))

			results := r.runBatch(ctx, batch)
			for i, rec := range batch {
				if !yield(rec, results[i]) {
					return
				}
			}
		}
	}
}

// runBatch calls the engine for every record concurrently and returns once
// all calls have resolved. Failures stay in their own Result.
func (r *Runner) runBatch(ctx context.Context, batch []prompt.Record) []Result {
	results := make([]Result, len(batch))
	var g errgroup.Group
	g.SetLimit(r.batchSize())
	for i, rec := range batch {
		g.Go(func() error {
			r.logger().Debug("processing prompt", "subject", rec.Subject())
			start := time.Now()
			text, err := r.Engine.Complete(ctx, rec.Prompt)
			results[i] = Result{Response: text, Err: err, Processed: true, Duration: time.Since(start)}
			if err != nil {
				r.logger().Warn("prompt failed", "subject", rec.Subject(), "timeout", engine.IsTimeout(err), "error", err)
			}
			return nil
		})
	}
	g.Wait()
	return results
}

func (r *Runner) batchSize() int {
	if r.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return r.BatchSize
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
