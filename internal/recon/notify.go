package recon

import (
	"context"
	"strconv"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// SystemActorID marks audit records written by background checks rather
// than a user.
const SystemActorID int64 = 0

// AuditNotifier records out-of-balance findings in the audit trail so the
// finance team has a durable record even when nobody is watching the logs.
type AuditNotifier struct {
	audit *shared.AuditLogger
}

// NewAuditNotifier constructs AuditNotifier.
func NewAuditNotifier(audit *shared.AuditLogger) *AuditNotifier {
	return &AuditNotifier{audit: audit}
}

// NotifyOutOfBalance writes the check outcome to audit_logs.
func (n *AuditNotifier) NotifyOutOfBalance(ctx context.Context, check OrgCheck) error {
	return n.audit.Record(ctx, shared.AuditLog{
		OrgID:    check.OrgID,
		ActorID:  SystemActorID,
		Action:   "recon.out_of_balance",
		Entity:   "organization",
		EntityID: strconv.FormatInt(check.OrgID, 10),
		Meta: map[string]any{
			"debit":  check.Debit,
			"credit": check.Credit,
			"diff":   check.Diff,
		},
		At: check.CheckedAt,
	})
}
