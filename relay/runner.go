package relay

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/grvram01/person-service-repo/capture"
	"github.com/grvram01/person-service-repo/domain"
	"github.com/grvram01/person-service-repo/retry"
)

// CheckpointStore persists the single logical reader's feed position so a
// restarted relay resumes instead of replaying or skipping.
type CheckpointStore interface {
	Load(ctx context.Context) (capture.Checkpoint, error)
	Save(ctx context.Context, cp capture.Checkpoint) error
}

// RunnerConfig tunes the polling loop. Batch size and cadence are tuning
// parameters, not behavioral contracts.
type RunnerConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	MaxAttempts   int
	RetryInitial  time.Duration
	RetryMax      time.Duration
	Retention     time.Duration
	PruneInterval time.Duration
}

// Runner is the scheduler around the relay: it reads batches from the change
// feed, invokes the relay, and retries a failed invocation whole. The relay
// itself never retries; the runner owns that, with bounded attempts.
type Runner struct {
	feed        capture.Log
	relay       *Relay
	checkpoints CheckpointStore
	cfg         RunnerConfig
	logger      *log.Logger
}

func NewRunner(feed capture.Log, r *Relay, checkpoints CheckpointStore, cfg RunnerConfig, logger *log.Logger) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Runner{feed: feed, relay: r, checkpoints: checkpoints, cfg: cfg, logger: logger}
}

// Run polls until the context is canceled or a batch exhausts its retries.
func (r *Runner) Run(ctx context.Context) error {
	cp, err := r.checkpoints.Load(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == "" {
		// First run: start from latest rather than replaying retained history.
		cp, err = r.feed.LatestCheckpoint(ctx)
		if err != nil {
			return fmt.Errorf("resolve latest checkpoint: %w", err)
		}
	}

	var lastPrune time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, next, err := r.feed.ReadBatch(ctx, cp, r.cfg.BatchSize)
		if err != nil {
			r.logger.WithError(err).Error("change feed read failed")
			if !r.sleep(ctx, r.cfg.PollInterval) {
				return ctx.Err()
			}
			continue
		}
		if len(entries) == 0 {
			r.maybePrune(ctx, &lastPrune)
			if !r.sleep(ctx, r.cfg.PollInterval) {
				return ctx.Err()
			}
			continue
		}

		if err := r.deliverBatch(ctx, entries); err != nil {
			return err
		}
		if err := r.checkpoints.Save(ctx, next); err != nil {
			// The batch is out the door; losing the checkpoint only means a
			// re-publish after restart, which downstream dedup absorbs.
			r.logger.WithError(err).Warn("checkpoint save failed")
		}
		cp = next
	}
}

// deliverBatch retries the whole batch with backoff until it succeeds or the
// attempt budget is spent. Partial progress inside the relay is re-run; the
// deterministic event ids make the resulting duplicates detectable.
func (r *Runner) deliverBatch(ctx context.Context, entries []domain.ChangeEntry) error {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if !r.sleep(ctx, retry.Backoff(attempt-1, r.cfg.RetryInitial, r.cfg.RetryMax)) {
				return ctx.Err()
			}
		}
		lastErr = r.relay.HandleBatch(ctx, entries)
		if lastErr == nil {
			return nil
		}
		r.logger.WithError(lastErr).WithFields(log.Fields{
			"entries": len(entries),
			"attempt": attempt + 1,
		}).Error("relay batch failed")
	}
	return fmt.Errorf("relay batch exhausted %d attempts: %w", r.cfg.MaxAttempts, lastErr)
}

func (r *Runner) maybePrune(ctx context.Context, last *time.Time) {
	if r.cfg.Retention <= 0 {
		return
	}
	interval := r.cfg.PruneInterval
	if interval <= 0 {
		interval = time.Minute
	}
	if time.Since(*last) < interval {
		return
	}
	*last = time.Now()
	pruned, err := r.feed.Prune(ctx, time.Now().Add(-r.cfg.Retention))
	if err != nil {
		r.logger.WithError(err).Warn("change feed prune failed")
		return
	}
	if pruned > 0 {
		r.logger.WithField("pruned", pruned).Debug("expired change entries removed")
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
