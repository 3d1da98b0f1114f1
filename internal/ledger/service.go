package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListLinesByReference(ctx context.Context, orgID int64, refType RefType, refID uuid.UUID) ([]JournalLine, error)
	SumByOrg(ctx context.Context, orgID int64) (debit float64, credit float64, err error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops derived-balance cache entries after a commit.
type Invalidator interface {
	Bump(ctx context.Context, orgID int64) error
}

// Service is the journal line store: it validates and appends posting sets.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache Invalidator
	now   func() time.Time
}

// NewService constructs the journal line store service.
func NewService(repo RepositoryPort, audit AuditPort, cache Invalidator) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Posting groups the lines of one reference for atomic insertion.
type Posting struct {
	RefType RefType
	RefID   uuid.UUID
	Date    time.Time
	Lines   []LineInput
}

// PostLines validates every line, the zero-net invariant of the whole set,
// then commits all lines or none.
func (s *Service) PostLines(ctx context.Context, scope shared.Scope, posting Posting) ([]JournalLine, error) {
	if posting.RefType == "" || posting.RefID == uuid.Nil {
		return nil, fmt.Errorf("%w: reference required", ErrValidation)
	}
	if err := ValidateBatch(posting.Lines); err != nil {
		return nil, err
	}
	date := posting.Date
	if date.IsZero() {
		date = s.now().UTC()
	}
	rows := BuildLines(scope, posting.RefType, posting.RefID, date, posting.Lines)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertLines(ctx, rows)
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, scope, posting)
	return rows, nil
}

// LinesByReference returns the posting set owned by a business document.
func (s *Service) LinesByReference(ctx context.Context, orgID int64, refType RefType, refID uuid.UUID) ([]JournalLine, error) {
	return s.repo.ListLinesByReference(ctx, orgID, refType, refID)
}

// OrgBalance returns the all-time debit and credit sums for an organization.
func (s *Service) OrgBalance(ctx context.Context, orgID int64) (float64, float64, error) {
	return s.repo.SumByOrg(ctx, orgID)
}

func (s *Service) afterCommit(ctx context.Context, scope shared.Scope, posting Posting) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx, scope.OrgID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OrgID:    scope.OrgID,
			ActorID:  scope.ActorID,
			Action:   "ledger.post",
			Entity:   "journal_lines",
			EntityID: posting.RefID.String(),
			Meta: map[string]any{
				"ref_type": string(posting.RefType),
				"lines":    len(posting.Lines),
			},
			At: s.now(),
		})
	}
}

// BuildLines materializes validated inputs into journal line rows.
func BuildLines(scope shared.Scope, refType RefType, refID uuid.UUID, date time.Time, inputs []LineInput) []JournalLine {
	out := make([]JournalLine, 0, len(inputs))
	for _, in := range inputs {
		branch := in.BranchID
		if branch == nil && scope.BranchID > 0 {
			b := scope.BranchID
			branch = &b
		}
		out = append(out, JournalLine{
			OrgID:      scope.OrgID,
			BranchID:   branch,
			AccountID:  in.AccountID,
			CustomerID: in.CustomerID,
			SupplierID: in.SupplierID,
			Date:       date,
			Debit:      in.Debit,
			Credit:     in.Credit,
			Memo:       in.Memo,
			RefType:    refType,
			RefID:      refID,
			CreatedBy:  scope.ActorID,
		})
	}
	return out
}
