package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-identity/internal/dedup"
	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/resilience"
)

// DefaultMaxRetries is the retry budget of a failed ingest.
const DefaultMaxRetries = 3

// RetryStats summarizes a dead-letter retry pass.
type RetryStats struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// Defer records a failed ingest in the dead-letter queue. Permanent failures
// are kept for inspection but never retried. Candidate lookup failures are
// treated as transient.
func (p *Pipeline) Defer(ctx context.Context, rec identity.IdentityRecord, cause error) error {
	if dedup.IsLookupError(cause) {
		cause = resilience.NewTransientError(cause)
	}
	entry := resilience.NewDLQEntry(rec, cause, DefaultMaxRetries, p.now().UTC())
	entry.ID = p.newID()
	if err := p.store.EnqueueDLQ(ctx, entry); err != nil {
		return eris.Wrapf(err, "pipeline: defer %s", rec.SourceKey())
	}
	zap.L().Warn("pipeline: ingest deferred",
		zap.String("source", rec.SourceKey()),
		zap.String("error_type", entry.ErrorType),
		zap.Error(cause),
	)
	return nil
}

// RetryFailed re-ingests due dead-letter entries. Successful entries are
// removed; failures are rescheduled with a longer backoff.
func (p *Pipeline) RetryFailed(ctx context.Context, limit int) (RetryStats, error) {
	var stats RetryStats

	entries, err := p.store.DequeueDLQ(ctx, resilience.DLQFilter{Limit: limit})
	if err != nil {
		return stats, eris.Wrap(err, "pipeline: dequeue failed ingests")
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if !e.CanRetry() {
			continue
		}
		stats.Attempted++

		if _, ingestErr := p.Ingest(ctx, e.Record); ingestErr != nil {
			stats.Failed++
			next := resilience.NextRetryAt(e.RetryCount+1, p.now().UTC())
			if err := p.store.IncrementDLQRetry(ctx, e.ID, next, ingestErr.Error()); err != nil {
				return stats, eris.Wrapf(err, "pipeline: reschedule %s", e.ID)
			}
			continue
		}

		stats.Succeeded++
		if err := p.store.RemoveDLQ(ctx, e.ID); err != nil {
			return stats, eris.Wrapf(err, "pipeline: remove %s", e.ID)
		}
	}

	remaining, err := p.store.CountDLQ(ctx)
	if err != nil {
		return stats, eris.Wrap(err, "pipeline: count failed ingests")
	}
	stats.Remaining = remaining

	zap.L().Info("pipeline: retried failed ingests",
		zap.Int("attempted", stats.Attempted),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("remaining", stats.Remaining),
	)
	return stats, nil
}
