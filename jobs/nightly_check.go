package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/installments"
	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/recon"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// NewNightlyBalanceCheckHandler verifies every organization's ledger nets to
// zero and sweeps installment plans for overdue and defaulted state. A shared
// lock keeps concurrent worker instances from double-running the sweep;
// losing the race is a clean no-op.
func NewNightlyBalanceCheckHandler(logger *slog.Logger, svc *recon.Service, plans *installments.Service, lock *shared.JobLock, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		release, err := lock.Acquire(ctx, TaskNightlyBalanceCheck)
		if err != nil {
			if errors.Is(err, shared.ErrJobLockHeld) {
				logger.Info("nightly balance check already running elsewhere")
				return nil
			}
			return err
		}
		defer release(ctx)

		tracker := metrics.Track("nightly_balance_check")
		checks, err := svc.CheckAllOrgs(ctx)
		if err != nil {
			return tracker.End(err)
		}
		outOfBalance := 0
		for _, check := range checks {
			if check.Status == recon.CheckOutOfBalance {
				outOfBalance++
				metrics.AddMismatches("org_balance", check.OrgID, 1)
			}
		}
		sweep, err := plans.SweepOverdue(ctx)
		if err != nil {
			return tracker.End(err)
		}
		logger.Info("nightly balance check complete",
			slog.Int("orgs", len(checks)),
			slog.Int("out_of_balance", outOfBalance),
			slog.Int64("overdue_installments", sweep.Overdue),
			slog.Int64("defaulted_plans", sweep.Defaulted))
		return tracker.End(nil)
	}
}
