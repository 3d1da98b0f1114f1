package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/backfill"
	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// NewLedgerBackfillHandler synthesizes missing journal lines for one
// organization. The backfill itself is idempotent; the lock only prevents
// two workers from doing the same wasted scan at once.
func NewLedgerBackfillHandler(logger *slog.Logger, svc *backfill.Service, lock *shared.JobLock, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload BackfillPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.OrgID <= 0 {
			return asynq.SkipRetry
		}
		release, err := lock.Acquire(ctx, TaskLedgerBackfill)
		if err != nil {
			if errors.Is(err, shared.ErrJobLockHeld) {
				logger.Info("backfill already running elsewhere", slog.Int64("org_id", payload.OrgID))
				return nil
			}
			return err
		}
		defer release(ctx)

		tracker := metrics.Track("ledger_backfill")
		summary, err := svc.Run(ctx, payload.OrgID)
		if err != nil {
			return tracker.End(err)
		}
		logger.Info("backfill run finished",
			slog.Int64("org_id", payload.OrgID),
			slog.Int("documents", summary.Total()),
			slog.Int("failed", summary.Failed))

		if payload.Verify {
			report, err := svc.Verify(ctx, payload.OrgID)
			if err != nil {
				return tracker.End(err)
			}
			metrics.AddMismatches("invoice_total", payload.OrgID, len(report.Invoices))
			metrics.AddMismatches("payment_amount", payload.OrgID, len(report.Payments))
			metrics.AddMismatches("customer_balance", payload.OrgID, len(report.Customers))
			if !report.Clean() {
				logger.Warn("backfill verification found discrepancies",
					slog.Int64("org_id", payload.OrgID),
					slog.Int("invoices", len(report.Invoices)),
					slog.Int("payments", len(report.Payments)),
					slog.Int("customers", len(report.Customers)))
			}
		}
		return tracker.End(nil)
	}
}
