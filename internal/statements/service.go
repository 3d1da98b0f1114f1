package statements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/reports"
)

// RepositoryPort aggregates per-account sums for statement composition.
type RepositoryPort interface {
	// AccountSums returns debit/credit sums per non-group account over lines
	// matching the filter. Nil bounds mean unbounded; nil branch means all.
	AccountSums(ctx context.Context, orgID int64, branchID *int64, from, to *time.Time) ([]reports.AccountBalance, error)
}

// ErrEmptyRange indicates a profit-and-loss request with an inverted range.
var ErrEmptyRange = errors.New("statements: range end precedes start")

// Service composes financial statements from the ledger. Statements are
// read-only and fail wholesale: no partially computed report ever leaves.
type Service struct {
	repo  RepositoryPort
	cache *ledger.BalanceCache
	now   func() time.Time
}

// NewService constructs the statement composer.
func NewService(repo RepositoryPort, cache *ledger.BalanceCache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// TrialBalance builds the per-account debit/credit report as on a date.
func (s *Service) TrialBalance(ctx context.Context, orgID int64, branchID *int64, asOn time.Time) (reports.TrialBalance, error) {
	asOn = s.defaultAsOn(asOn)
	var tb reports.TrialBalance
	key, err := s.cacheKey(ctx, orgID, "tb", branchID, asOn)
	if err != nil {
		return reports.TrialBalance{}, err
	}
	err = s.cache.FetchJSON(ctx, key, &tb, func(ctx context.Context) (interface{}, error) {
		sums, err := s.repo.AccountSums(ctx, orgID, branchID, nil, &asOn)
		if err != nil {
			return nil, err
		}
		return reports.BuildTrialBalance(sums), nil
	})
	if err != nil {
		return reports.TrialBalance{}, err
	}
	return tb, nil
}

// ProfitAndLoss builds the income/expense report over a date range.
func (s *Service) ProfitAndLoss(ctx context.Context, orgID int64, branchID *int64, from, to time.Time) (reports.ProfitAndLoss, error) {
	to = s.defaultAsOn(to)
	if !from.IsZero() && to.Before(from) {
		return reports.ProfitAndLoss{}, ErrEmptyRange
	}
	var fromPtr *time.Time
	if !from.IsZero() {
		fromPtr = &from
	}
	var pl reports.ProfitAndLoss
	key, err := s.cacheKey(ctx, orgID, "pl", branchID, from, to)
	if err != nil {
		return reports.ProfitAndLoss{}, err
	}
	err = s.cache.FetchJSON(ctx, key, &pl, func(ctx context.Context) (interface{}, error) {
		sums, err := s.repo.AccountSums(ctx, orgID, branchID, fromPtr, &to)
		if err != nil {
			return nil, err
		}
		return reports.BuildProfitAndLoss(sums), nil
	})
	if err != nil {
		return reports.ProfitAndLoss{}, err
	}
	return pl, nil
}

// BalanceSheet builds the asset/liability/equity statement as on a date.
// Retained earnings fold the all-time profit up to the date into equity.
func (s *Service) BalanceSheet(ctx context.Context, orgID int64, branchID *int64, asOn time.Time) (reports.BalanceSheet, error) {
	asOn = s.defaultAsOn(asOn)
	var bs reports.BalanceSheet
	key, err := s.cacheKey(ctx, orgID, "bs", branchID, asOn)
	if err != nil {
		return reports.BalanceSheet{}, err
	}
	err = s.cache.FetchJSON(ctx, key, &bs, func(ctx context.Context) (interface{}, error) {
		sums, err := s.repo.AccountSums(ctx, orgID, branchID, nil, &asOn)
		if err != nil {
			return nil, err
		}
		retained := reports.BuildProfitAndLoss(sums).NetProfit
		return reports.BuildBalanceSheet(sums, retained), nil
	})
	if err != nil {
		return reports.BalanceSheet{}, err
	}
	return bs, nil
}

func (s *Service) defaultAsOn(asOn time.Time) time.Time {
	if asOn.IsZero() {
		return s.now().UTC()
	}
	return asOn
}

func (s *Service) cacheKey(ctx context.Context, orgID int64, report string, branchID *int64, dates ...time.Time) (string, error) {
	parts := []string{report}
	if branchID != nil {
		parts = append(parts, fmt.Sprintf("b%d", *branchID))
	}
	for _, date := range dates {
		parts = append(parts, date.UTC().Format("2006-01-02"))
	}
	return s.cache.BuildKey(ctx, orgID, parts...)
}
