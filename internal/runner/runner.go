// Package runner drives the checkpointed batch: it walks the ordered
// work sequence, consults the outcome store to skip finished work,
// invokes the checker, and persists every terminal result so an
// interrupted crawl resumes exactly where it stopped.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jvanderlaan/branchscan/internal/classify"
	"github.com/jvanderlaan/branchscan/internal/fetcher"
	"github.com/jvanderlaan/branchscan/internal/kvk"
	"github.com/jvanderlaan/branchscan/internal/metrics"
	"github.com/jvanderlaan/branchscan/internal/store"
	"github.com/jvanderlaan/branchscan/internal/worklist"
)

// Checker resolves one identifier to a verdict. Satisfied by
// *fetcher.Checker.
type Checker interface {
	CheckBranches(ctx context.Context, number kvk.Number, name string) (classify.Verdict, error)
}

// Sequence yields work items in order. Satisfied by *worklist.Reader.
type Sequence interface {
	Next() (worklist.Item, error)
}

// Config carries the run parameters handed down from the CLI.
type Config struct {
	// StartIndex skips items before this zero-based position. Use the
	// stop index logged by a previous run to resume.
	StartIndex int
	// EndIndex, when >= 0, is the last zero-based position processed.
	// Negative means unbounded.
	EndIndex int
	// RetryFailed reprocesses identifiers stored as failed.
	RetryFailed bool
	// RetryNoBranches reprocesses identifiers stored as negative.
	RetryNoBranches bool
	// ChecksPerSecond paces the sequential loop. Zero or negative
	// disables pacing.
	ChecksPerSecond float64
}

// Stats counts terminal per-item outcomes for one run. In-memory
// only; emitted exactly once when the run ends or aborts.
type Stats struct {
	Total     int
	Invalid   int
	Skipped   int
	Positive  int
	Negative  int
	Failed    int
	LastIndex int
}

// Runner is the single-threaded batch driver. One identifier is fully
// resolved, including its retry loop, before the next begins: the
// browser session underneath is exclusive.
type Runner struct {
	store   store.Store
	checker Checker
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter
}

// New builds a Runner.
func New(st store.Store, checker Checker, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.ChecksPerSecond > 0 {
		limit = rate.Limit(cfg.ChecksPerSecond)
	}
	return &Runner{
		store:   st,
		checker: checker,
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Run consumes seq until it is exhausted, the index bounds are
// reached, or a stop signal (rate-limit exhaustion, dead session)
// aborts the batch. The returned Stats are also logged, along with
// the index to resume from after an abort.
func (r *Runner) Run(ctx context.Context, seq Sequence) (Stats, error) {
	runID := uuid.NewString()
	logger := r.logger.With(zap.String("run_id", runID))
	logger.Info("run starting",
		zap.Int("start_index", r.cfg.StartIndex),
		zap.Int("end_index", r.cfg.EndIndex),
		zap.Bool("retry_failed", r.cfg.RetryFailed),
		zap.Bool("retry_no_branches", r.cfg.RetryNoBranches),
	)

	stats := Stats{LastIndex: -1}
	idx := -1
	for {
		item, err := seq.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.emit(logger, stats, "aborted")
			return stats, fmt.Errorf("run %s: read sequence: %w", runID, err)
		}

		idx++
		if idx < r.cfg.StartIndex {
			continue
		}
		if r.cfg.EndIndex >= 0 && idx > r.cfg.EndIndex {
			break
		}

		if err := r.limiter.Wait(ctx); err != nil {
			r.emit(logger, stats, "canceled")
			return stats, fmt.Errorf("run %s canceled at index %d: %w", runID, idx, err)
		}

		if err := r.processItem(ctx, logger, item, idx, &stats); err != nil {
			logger.Error("run stopped; resume from this index",
				zap.Int("resume_index", idx),
				zap.Error(err),
			)
			r.emit(logger, stats, "stopped")
			return stats, fmt.Errorf("run %s stopped at index %d: %w", runID, idx, err)
		}
		stats.LastIndex = idx
	}

	r.emit(logger, stats, "completed")
	return stats, nil
}

// processItem resolves one work item to a terminal outcome. A
// returned error halts the batch; per-item fetch failures are
// recorded as failed outcomes and absorbed.
func (r *Runner) processItem(ctx context.Context, logger *zap.Logger, item worklist.Item, idx int, stats *Stats) error {
	stats.Total++

	number, err := kvk.Normalize(item.RawNumber)
	if err != nil {
		stats.Invalid++
		metrics.ObserveCheck("invalid")
		logger.Warn("skipping invalid identifier",
			zap.Int("index", idx),
			zap.String("raw", item.RawNumber),
		)
		return nil
	}

	skip, err := r.shouldSkip(ctx, number)
	if err != nil {
		// A broken store means checkpointing is gone; carrying on
		// would redo or lose work undetectably.
		return err
	}
	if skip {
		stats.Skipped++
		metrics.ObserveCheck("skipped")
		logger.Debug("already checked", zap.Int("index", idx), zap.String("kvk", number.String()))
		return nil
	}

	verdict, err := r.checker.CheckBranches(ctx, number, item.Name)
	if err != nil {
		if fetcher.IsStopSignal(err) {
			return err
		}
		// Single-fetch failure: record it and move on. Failed is
		// distinguishable from a semantic negative, so a later run can
		// retry these with the retry-failed flag.
		stats.Failed++
		metrics.ObserveCheck(store.OutcomeFailed.String())
		logger.Warn("check failed",
			zap.Int("index", idx),
			zap.String("kvk", number.String()),
			zap.Error(err),
		)
		return r.persist(ctx, logger, number, item.Name, store.OutcomeFailed)
	}

	outcome := store.OutcomeNegative
	if verdict == classify.VerdictHasSubsidiary {
		outcome = store.OutcomePositive
	}
	switch outcome {
	case store.OutcomePositive:
		stats.Positive++
	default:
		stats.Negative++
	}
	metrics.ObserveCheck(outcome.String())
	return r.persist(ctx, logger, number, item.Name, outcome)
}

// shouldSkip applies the checkpoint rule: a stored outcome skips the
// item unless the matching retry flag reopens it. Positive is final.
func (r *Runner) shouldSkip(ctx context.Context, number kvk.Number) (bool, error) {
	rec, found, err := r.store.Get(ctx, number)
	if err != nil {
		return false, fmt.Errorf("checkpoint lookup %s: %w", number, err)
	}
	if !found {
		return false, nil
	}
	switch rec.Outcome {
	case store.OutcomeFailed:
		return !r.cfg.RetryFailed, nil
	case store.OutcomeNegative:
		return !r.cfg.RetryNoBranches, nil
	default:
		return true, nil
	}
}

func (r *Runner) persist(ctx context.Context, logger *zap.Logger, number kvk.Number, name string, outcome store.Outcome) error {
	err := r.store.Put(ctx, store.Record{Number: number, Name: name, Outcome: outcome})
	if err != nil {
		logger.Error("persist outcome failed",
			zap.String("kvk", number.String()),
			zap.Stringer("outcome", outcome),
			zap.Error(err),
		)
		return fmt.Errorf("persist %s: %w", number, err)
	}
	return nil
}

func (r *Runner) emit(logger *zap.Logger, stats Stats, result string) {
	logger.Info("run statistics",
		zap.String("result", result),
		zap.Int("total", stats.Total),
		zap.Int("invalid", stats.Invalid),
		zap.Int("skipped", stats.Skipped),
		zap.Int("positive", stats.Positive),
		zap.Int("negative", stats.Negative),
		zap.Int("failed", stats.Failed),
		zap.Int("last_index", stats.LastIndex),
	)
}
