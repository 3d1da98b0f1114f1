package recon

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// StoredDocument is a posted document's stored monetary figure.
type StoredDocument struct {
	ID     uuid.UUID
	Number string
	Amount float64
}

// StoredParty is a counterparty's stored running balance.
type StoredParty struct {
	ID      int64
	Name    string
	Balance float64
}

// RepositoryPort exposes the read surface the integrity scans need.
type RepositoryPort interface {
	ListOrgIDs(ctx context.Context) ([]int64, error)
	SumByOrg(ctx context.Context, orgID int64) (debit float64, credit float64, err error)
	InsertOrgCheck(ctx context.Context, check OrgCheck) (OrgCheck, error)
	ListOrgChecks(ctx context.Context, orgID int64, limit int) ([]OrgCheck, error)

	ListPostedInvoices(ctx context.Context, orgID int64) ([]StoredDocument, error)
	ListPostedPayments(ctx context.Context, orgID int64) ([]StoredDocument, error)
	ListCustomerBalances(ctx context.Context, orgID int64) ([]StoredParty, error)

	DerivedDocTotals(ctx context.Context, orgID int64, refType ledger.RefType) (map[uuid.UUID]float64, error)
	DerivedCustomerBalances(ctx context.Context, orgID int64) (map[int64]float64, error)

	ListLinesByReference(ctx context.Context, orgID int64, refType ledger.RefType, refID uuid.UUID) ([]ledger.JournalLine, error)
}

// Notifier is told about organizations whose ledger no longer nets to zero.
type Notifier interface {
	NotifyOutOfBalance(ctx context.Context, check OrgCheck) error
}

// Service runs ledger integrity verification: the nightly zero-net check and
// on-demand stored-versus-derived mismatch scans.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	notifier Notifier
	now      func() time.Time
}

// NewService constructs the reconciliation service.
func NewService(logger *slog.Logger, repo RepositoryPort, notifier Notifier) *Service {
	return &Service{logger: logger, repo: repo, notifier: notifier, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CheckOrg verifies one organization's all-time debits equal credits and
// persists the outcome. Out-of-balance findings are notified after the
// record is stored, so a lost notification never loses the evidence.
func (s *Service) CheckOrg(ctx context.Context, orgID int64) (OrgCheck, error) {
	debit, credit, err := s.repo.SumByOrg(ctx, orgID)
	if err != nil {
		return OrgCheck{}, err
	}
	check := OrgCheck{
		OrgID:     orgID,
		Debit:     debit,
		Credit:    credit,
		Diff:      shared.Round2(debit - credit),
		Status:    CheckBalanced,
		CheckedAt: s.now().UTC(),
	}
	if math.Abs(debit-credit) > OrgTolerance {
		check.Status = CheckOutOfBalance
	}
	stored, err := s.repo.InsertOrgCheck(ctx, check)
	if err != nil {
		return OrgCheck{}, err
	}
	if stored.Status == CheckOutOfBalance {
		s.logger.Warn("ledger out of balance",
			slog.Int64("org_id", orgID),
			slog.Float64("diff", stored.Diff))
		if s.notifier != nil {
			if err := s.notifier.NotifyOutOfBalance(ctx, stored); err != nil {
				s.logger.Error("out-of-balance notification failed", slog.Any("error", err))
			}
		}
	}
	return stored, nil
}

// CheckAllOrgs runs the nightly check for every organization with ledger
// activity. One failing organization does not stop the sweep.
func (s *Service) CheckAllOrgs(ctx context.Context) ([]OrgCheck, error) {
	orgIDs, err := s.repo.ListOrgIDs(ctx)
	if err != nil {
		return nil, err
	}
	checks := make([]OrgCheck, 0, len(orgIDs))
	for _, orgID := range orgIDs {
		check, err := s.CheckOrg(ctx, orgID)
		if err != nil {
			s.logger.Error("org balance check failed",
				slog.Int64("org_id", orgID), slog.Any("error", err))
			continue
		}
		checks = append(checks, check)
	}
	return checks, nil
}

// History returns recent balance checks for one organization, newest first.
func (s *Service) History(ctx context.Context, orgID int64, limit int) ([]OrgCheck, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	return s.repo.ListOrgChecks(ctx, orgID, limit)
}

// ScanOrg compares stored document totals and party balances against the
// ledger for one organization. The three scans run concurrently; each
// reports at most the top offenders by absolute difference.
func (s *Service) ScanOrg(ctx context.Context, orgID int64) (Report, error) {
	report := Report{OrgID: orgID, GeneratedAt: s.now().UTC()}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mismatches, err := s.scanDocuments(ctx, orgID, MismatchInvoiceTotal, ledger.RefTypeInvoice, s.repo.ListPostedInvoices)
		if err != nil {
			return err
		}
		report.Invoices = mismatches
		return nil
	})
	g.Go(func() error {
		mismatches, err := s.scanDocuments(ctx, orgID, MismatchPaymentAmount, ledger.RefTypePayment, s.repo.ListPostedPayments)
		if err != nil {
			return err
		}
		report.Payments = mismatches
		return nil
	})
	g.Go(func() error {
		mismatches, err := s.scanCustomers(ctx, orgID)
		if err != nil {
			return err
		}
		report.Customers = mismatches
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	return report, nil
}

// scanDocuments compares each posted document's stored amount against the
// sum of ledger debits booked under its reference.
func (s *Service) scanDocuments(
	ctx context.Context,
	orgID int64,
	kind MismatchKind,
	refType ledger.RefType,
	list func(context.Context, int64) ([]StoredDocument, error),
) ([]Mismatch, error) {
	docs, err := list(ctx, orgID)
	if err != nil {
		return nil, err
	}
	derived, err := s.repo.DerivedDocTotals(ctx, orgID, refType)
	if err != nil {
		return nil, err
	}
	var mismatches []Mismatch
	for _, doc := range docs {
		got := derived[doc.ID]
		diff := shared.Round2(doc.Amount - got)
		if math.Abs(diff) <= DocTolerance {
			continue
		}
		mismatches = append(mismatches, Mismatch{
			Kind:    kind,
			Key:     doc.ID.String(),
			Label:   doc.Number,
			Stored:  doc.Amount,
			Derived: got,
			Diff:    diff,
		})
	}
	return top(mismatches), nil
}

// scanCustomers compares stored customer balances against the signed sum of
// their ledger lines.
func (s *Service) scanCustomers(ctx context.Context, orgID int64) ([]Mismatch, error) {
	parties, err := s.repo.ListCustomerBalances(ctx, orgID)
	if err != nil {
		return nil, err
	}
	derived, err := s.repo.DerivedCustomerBalances(ctx, orgID)
	if err != nil {
		return nil, err
	}
	var mismatches []Mismatch
	for _, party := range parties {
		got := derived[party.ID]
		diff := shared.Round2(party.Balance - got)
		if math.Abs(diff) <= BalanceTolerance {
			continue
		}
		mismatches = append(mismatches, Mismatch{
			Kind:    MismatchCustomerBalance,
			Key:     strconv.FormatInt(party.ID, 10),
			Label:   party.Name,
			Stored:  party.Balance,
			Derived: got,
			Diff:    diff,
		})
	}
	return top(mismatches), nil
}

// DrillDown returns the raw posting set behind one mismatched document.
func (s *Service) DrillDown(ctx context.Context, orgID int64, refType ledger.RefType, refID uuid.UUID) ([]ledger.JournalLine, error) {
	return s.repo.ListLinesByReference(ctx, orgID, refType, refID)
}

func top(mismatches []Mismatch) []Mismatch {
	sort.Slice(mismatches, func(i, j int) bool {
		return math.Abs(mismatches[i].Diff) > math.Abs(mismatches[j].Diff)
	})
	if len(mismatches) > TopMismatches {
		mismatches = mismatches[:TopMismatches]
	}
	return mismatches
}
