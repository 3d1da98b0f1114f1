package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// idempotencyRetention is how long processed idempotency keys are kept.
const idempotencyRetention = 48 * time.Hour

// NewIdempotencyCleanupHandler prunes expired idempotency keys.
func NewIdempotencyCleanupHandler(logger *slog.Logger, store *shared.IdempotencyStore, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("idempotency_cleanup")
		if err := store.Cleanup(ctx, idempotencyRetention); err != nil {
			return tracker.End(err)
		}
		logger.Info("idempotency keys pruned")
		return tracker.End(nil)
	}
}
