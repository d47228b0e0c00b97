// Package dashboard aggregates balances, bills and cash flow for the ledger overview.
package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

const (
	// DefaultCashFlowMonths is the window used when callers pass zero.
	DefaultCashFlowMonths = 6
	maxCashFlowMonths     = 36
	upcomingDays          = 7
)

// AccountBalance is one account line of the summary.
type AccountBalance struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Balance decimal.Decimal `json:"balance"`
}

// Totals counts and sums a group of bills.
type Totals struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// BillSummary groups payable or receivable totals.
type BillSummary struct {
	Month    Totals `json:"month"`
	Overdue  Totals `json:"overdue"`
	Upcoming Totals `json:"upcoming"`
}

// Summary is the tenant overview as of one day.
type Summary struct {
	TenantID     int64            `json:"tenant_id"`
	AsOf         string           `json:"as_of"`
	TotalBalance decimal.Decimal  `json:"total_balance"`
	Accounts     []AccountBalance `json:"accounts"`
	Payables     BillSummary      `json:"payables"`
	Receivables  BillSummary      `json:"receivables"`
	CashIn       decimal.Decimal  `json:"cash_in"`
	CashOut      decimal.Decimal  `json:"cash_out"`
	UnreadAlerts int              `json:"unread_alerts"`
}

// FlowPoint is one month of the cash-flow series.
type FlowPoint struct {
	Period   string          `json:"period"`
	Label    string          `json:"label"`
	In       decimal.Decimal `json:"in"`
	Out      decimal.Decimal `json:"out"`
	Net      decimal.Decimal `json:"net"`
	InLabel  string          `json:"in_label"`
	OutLabel string          `json:"out_label"`
	NetLabel string          `json:"net_label"`
}

// CashFlow is the monthly series ending at the month of AsOf.
type CashFlow struct {
	TenantID int64           `json:"tenant_id"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Points   []FlowPoint     `json:"points"`
	TotalIn  decimal.Decimal `json:"total_in"`
	TotalOut decimal.Decimal `json:"total_out"`
}

// Service composes read-only aggregates. It never writes.
type Service struct {
	repo   ledger.Reader
	cache  *Cache
	format *Formatter
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewService wires the reader with an optional cache.
func NewService(repo ledger.Reader, cache *Cache, format *Formatter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, format: format, logger: logger, now: time.Now}
}

// cached collapses concurrent identical requests and serves from Redis when possible.
func cached[T any](ctx context.Context, s *Service, tenantID int64, load func(context.Context) (T, error), parts ...string) (T, error) {
	var zero T
	key, err := s.cache.BuildKey(ctx, tenantID, parts...)
	if err != nil {
		s.logger.Warn("ledger dashboard cache unavailable", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
		return load(ctx)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var out T
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return load(ctx)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Summary returns the overview of the tenant as of asOf.
func (s *Service) Summary(ctx context.Context, tenantID int64, asOf time.Time) (Summary, error) {
	if tenantID <= 0 {
		return Summary{}, ledger.Invalidf("tenant required")
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = ledger.DateOnly(asOf)
	return cached(ctx, s, tenantID, func(ctx context.Context) (Summary, error) {
		return s.loadSummary(ctx, tenantID, asOf)
	}, "summary", asOf.Format("2006-01-02"))
}

func (s *Service) loadSummary(ctx context.Context, tenantID int64, asOf time.Time) (Summary, error) {
	period := ledger.PeriodOf(asOf)
	out := Summary{
		TenantID:     tenantID,
		AsOf:         asOf.Format("2006-01-02"),
		TotalBalance: decimal.Zero,
		Accounts:     []AccountBalance{},
		CashIn:       decimal.Zero,
		CashOut:      decimal.Zero,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		accounts, err := s.repo.ListAccounts(ctx, tenantID, ledger.AccountFilter{ActiveOnly: true})
		if err != nil {
			return err
		}
		for _, acc := range accounts {
			out.Accounts = append(out.Accounts, AccountBalance{ID: acc.ID, Name: acc.Name, Type: acc.Type, Balance: acc.CurrentBalance})
			out.TotalBalance = out.TotalBalance.Add(acc.CurrentBalance)
		}
		return nil
	})

	g.Go(func() error {
		summary, err := s.billSummary(ctx, ledger.BillPayable, tenantID, asOf)
		out.Payables = summary
		return err
	})

	g.Go(func() error {
		summary, err := s.billSummary(ctx, ledger.BillReceivable, tenantID, asOf)
		out.Receivables = summary
		return err
	})

	g.Go(func() error {
		flows, err := s.repo.CashFlow(ctx, tenantID, period, period)
		if err != nil {
			return err
		}
		for _, flow := range flows {
			out.CashIn = out.CashIn.Add(flow.In)
			out.CashOut = out.CashOut.Add(flow.Out)
		}
		return nil
	})

	g.Go(func() error {
		count, err := s.repo.CountUnreadAlerts(ctx, tenantID)
		out.UnreadAlerts = count
		return err
	})

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (s *Service) billSummary(ctx context.Context, kind ledger.BillKind, tenantID int64, asOf time.Time) (BillSummary, error) {
	period := ledger.PeriodOf(asOf)
	open := []ledger.BillStatus{ledger.StatusPending, ledger.StatusOverdue}
	queries := []struct {
		dest *Totals
		agg  ledger.BillAggregate
	}{
		{agg: ledger.BillAggregate{DueFrom: period.Start(), DueTo: period.End()}},
		{agg: ledger.BillAggregate{Statuses: open, DueTo: asOf.AddDate(0, 0, -1)}},
		{agg: ledger.BillAggregate{Statuses: open, DueFrom: asOf, DueTo: asOf.AddDate(0, 0, upcomingDays)}},
	}
	var out BillSummary
	queries[0].dest, queries[1].dest, queries[2].dest = &out.Month, &out.Overdue, &out.Upcoming
	for _, q := range queries {
		totals, err := s.repo.SumBills(ctx, kind, tenantID, q.agg)
		if err != nil {
			return BillSummary{}, err
		}
		*q.dest = Totals{Count: totals.Count, Total: totals.Total}
	}
	return out, nil
}

// CashFlow returns in/out/net per month for the months ending at asOf's month.
// Months without movements are present with zero values. Transfers are excluded.
func (s *Service) CashFlow(ctx context.Context, tenantID int64, asOf time.Time, months int) (CashFlow, error) {
	if tenantID <= 0 {
		return CashFlow{}, ledger.Invalidf("tenant required")
	}
	switch {
	case months == 0:
		months = DefaultCashFlowMonths
	case months < 0 || months > maxCashFlowMonths:
		return CashFlow{}, ledger.Invalidf("months must be between 1 and %d", maxCashFlowMonths)
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	to := ledger.PeriodOf(asOf)
	from := to.Add(-(months - 1))
	return cached(ctx, s, tenantID, func(ctx context.Context) (CashFlow, error) {
		return s.loadCashFlow(ctx, tenantID, from, to)
	}, "cashflow", from.String(), to.String())
}

func (s *Service) loadCashFlow(ctx context.Context, tenantID int64, from, to ledger.Period) (CashFlow, error) {
	flows, err := s.repo.CashFlow(ctx, tenantID, from, to)
	if err != nil {
		return CashFlow{}, err
	}
	byPeriod := make(map[ledger.Period]ledger.MonthlyFlow, len(flows))
	for _, flow := range flows {
		byPeriod[flow.Period] = flow
	}
	out := CashFlow{
		TenantID: tenantID,
		From:     from.String(),
		To:       to.String(),
		Points:   make([]FlowPoint, 0, to.MonthsSince(from)+1),
		TotalIn:  decimal.Zero,
		TotalOut: decimal.Zero,
	}
	for p := from; !to.Before(p); p = p.Add(1) {
		in, outflow := decimal.Zero, decimal.Zero
		if flow, ok := byPeriod[p]; ok {
			in, outflow = flow.In, flow.Out
		}
		net := in.Sub(outflow)
		point := FlowPoint{Period: p.String(), In: in, Out: outflow, Net: net}
		if s.format != nil {
			point.Label = s.format.Month(p.Year, p.Month)
			point.InLabel = s.format.Money(in)
			point.OutLabel = s.format.Money(outflow)
			point.NetLabel = s.format.Money(net)
		} else {
			point.Label = p.String()
			point.InLabel, point.OutLabel, point.NetLabel = in.StringFixed(2), outflow.StringFixed(2), net.StringFixed(2)
		}
		out.Points = append(out.Points, point)
		out.TotalIn = out.TotalIn.Add(in)
		out.TotalOut = out.TotalOut.Add(outflow)
	}
	return out, nil
}
