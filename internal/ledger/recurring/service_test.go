package recurring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/ledgertest"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type GeneratorSuite struct {
	suite.Suite
	ctx   context.Context
	store *ledgertest.Store
	svc   *Service
}

func TestGeneratorSuite(t *testing.T) {
	suite.Run(t, new(GeneratorSuite))
}

func (s *GeneratorSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = ledgertest.New()
	s.svc = NewService(s.store, nil, nil)
	s.svc.now = func() time.Time { return day("2025-01-01") }
}

func (s *GeneratorSuite) entry(kind ledger.BillKind, dayOfMonth int, start string, mutate ...func(*ledger.RecurringEntry)) ledger.RecurringEntry {
	entry := ledger.RecurringEntry{
		TenantID:    1,
		Kind:        kind,
		Description: "Internet",
		Amount:      dec("99.90"),
		Frequency:   ledger.FrequencyMonthly,
		DayOfMonth:  dayOfMonth,
		StartDate:   day(start),
		Active:      true,
	}
	for _, fn := range mutate {
		fn(&entry)
	}
	return s.store.AddRecurringEntry(entry)
}

func (s *GeneratorSuite) bills(kind ledger.BillKind) []ledger.Bill {
	bills, err := s.store.ListBills(s.ctx, kind, 1, ledger.BillFilter{Scope: ledger.IncludeDeleted})
	s.Require().NoError(err)
	return bills
}

func (s *GeneratorSuite) TestGeneratesOncePerPeriod() {
	entry := s.entry(ledger.BillPayable, 10, "2025-01-01")

	report, err := s.svc.GenerateDue(s.ctx, 1, day("2025-03-12"))
	s.Require().NoError(err)
	s.Equal(1, report.Generated)
	s.Empty(report.Errors)

	report, err = s.svc.GenerateDue(s.ctx, 1, day("2025-03-12"))
	s.Require().NoError(err)
	s.Zero(report.Generated)
	s.Equal(1, report.Skipped)

	bills := s.bills(ledger.BillPayable)
	s.Require().Len(bills, 1)
	s.Equal("2025-03", bills[0].Competence)
	s.Equal(day("2025-03-10"), bills[0].DueDate)
	s.Equal(ledger.StatusOverdue, bills[0].Status)
	s.Equal(1, bills[0].Installment)
	s.Equal(entry.ID, *bills[0].RecurringEntryID)

	stored, err := s.store.GetRecurringEntry(s.ctx, 1, entry.ID)
	s.Require().NoError(err)
	s.Equal(1, stored.InstallmentsGenerated)
	s.True(stored.Active)
}

func (s *GeneratorSuite) TestConcurrentCallsGenerateExactlyOnce() {
	s.entry(ledger.BillPayable, 5, "2025-01-01")
	s.entry(ledger.BillReceivable, 5, "2025-01-01")

	var g errgroup.Group
	for i := 0; i < 12; i++ {
		g.Go(func() error {
			_, err := s.svc.GenerateDue(s.ctx, 1, day("2025-06-05"))
			return err
		})
	}
	s.Require().NoError(g.Wait())
	s.Len(s.bills(ledger.BillPayable), 1)
	s.Len(s.bills(ledger.BillReceivable), 1)
}

func (s *GeneratorSuite) TestDueDateInFutureIsSkipped() {
	s.entry(ledger.BillPayable, 20, "2025-01-01")

	report, err := s.svc.GenerateDue(s.ctx, 1, day("2025-03-19"))
	s.Require().NoError(err)
	s.Zero(report.Generated)

	report, err = s.svc.GenerateDue(s.ctx, 1, day("2025-03-20"))
	s.Require().NoError(err)
	s.Equal(1, report.Generated)
	s.Equal(ledger.StatusPending, report.Bills[0].Status)
}

func (s *GeneratorSuite) TestDayOfMonthClampsInFebruary() {
	s.entry(ledger.BillPayable, 31, "2023-01-01")

	report, err := s.svc.GenerateDue(s.ctx, 1, day("2025-02-27"))
	s.Require().NoError(err)
	s.Zero(report.Generated)

	report, err = s.svc.GenerateDue(s.ctx, 1, day("2025-02-28"))
	s.Require().NoError(err)
	s.Require().Equal(1, report.Generated)
	s.Equal(day("2025-02-28"), report.Bills[0].DueDate)

	report, err = s.svc.GenerateDue(s.ctx, 1, day("2024-02-29"))
	s.Require().NoError(err)
	s.Require().Equal(1, report.Generated)
	s.Equal(day("2024-02-29"), report.Bills[0].DueDate)
}

func (s *GeneratorSuite) TestInstallmentLimitDeactivates() {
	total := 2
	entry := s.entry(ledger.BillReceivable, 1, "2025-01-01", func(e *ledger.RecurringEntry) {
		e.TotalInstallments = &total
	})

	for _, asOf := range []string{"2025-01-02", "2025-02-02", "2025-03-02"} {
		_, err := s.svc.GenerateDue(s.ctx, 1, day(asOf))
		s.Require().NoError(err)
	}

	bills := s.bills(ledger.BillReceivable)
	s.Require().Len(bills, 2)
	s.Equal("Internet (1/2)", bills[0].Description)
	s.Equal("Internet (2/2)", bills[1].Description)
	s.Equal(2, bills[1].InstallmentTotal)

	stored, err := s.store.GetRecurringEntry(s.ctx, 1, entry.ID)
	s.Require().NoError(err)
	s.False(stored.Active)
	s.Equal(2, stored.InstallmentsGenerated)
}

func (s *GeneratorSuite) TestFrequencyCountsFromStartMonth() {
	s.entry(ledger.BillPayable, 1, "2025-01-01", func(e *ledger.RecurringEntry) {
		e.Frequency = ledger.FrequencyQuarterly
	})

	generated := 0
	for month := time.January; month <= time.December; month++ {
		report, err := s.svc.GenerateDue(s.ctx, 1, time.Date(2025, month, 15, 0, 0, 0, 0, time.UTC))
		s.Require().NoError(err)
		generated += report.Generated
	}
	s.Equal(4, generated)

	competences := []string{}
	for _, bill := range s.bills(ledger.BillPayable) {
		competences = append(competences, bill.Competence)
	}
	s.Equal([]string{"2025-01", "2025-04", "2025-07", "2025-10"}, competences)
}

func (s *GeneratorSuite) TestOutsideWindow() {
	end := day("2025-03-31")
	entry := s.entry(ledger.BillPayable, 10, "2025-02-15", func(e *ledger.RecurringEntry) {
		e.EndDate = &end
	})

	report, err := s.svc.GenerateDue(s.ctx, 1, day("2025-02-20"))
	s.Require().NoError(err)
	s.Zero(report.Generated, "due date precedes start date")

	report, err = s.svc.GenerateDue(s.ctx, 1, day("2025-01-20"))
	s.Require().NoError(err)
	s.Zero(report.Generated)

	report, err = s.svc.GenerateDue(s.ctx, 1, day("2025-03-20"))
	s.Require().NoError(err)
	s.Equal(1, report.Generated)

	report, err = s.svc.GenerateDue(s.ctx, 1, day("2025-04-20"))
	s.Require().NoError(err)
	s.Zero(report.Generated)

	stored, err := s.store.GetRecurringEntry(s.ctx, 1, entry.ID)
	s.Require().NoError(err)
	s.False(stored.Active)
}

func (s *GeneratorSuite) TestFailureIsIsolatedPerEntry() {
	s.entry("outro", 1, "2025-01-01")
	good := s.entry(ledger.BillPayable, 1, "2025-01-01")

	report, err := s.svc.GenerateDue(s.ctx, 1, day("2025-01-02"))
	s.Require().NoError(err)
	s.Equal(1, report.Generated)
	s.Require().Len(report.Errors, 1)
	s.NotEqual(good.ID, report.Errors[0].EntryID)
	s.Len(s.bills(ledger.BillPayable), 1)
}

func (s *GeneratorSuite) TestDeletedBillIsNotRegenerated() {
	s.entry(ledger.BillPayable, 1, "2025-01-01")
	report, err := s.svc.GenerateDue(s.ctx, 1, day("2025-01-02"))
	s.Require().NoError(err)
	s.Require().Equal(1, report.Generated)

	err = s.store.WithTx(s.ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		return tx.SoftDeleteBill(ctx, ledger.BillPayable, 1, report.Bills[0].ID, day("2025-01-03"))
	})
	s.Require().NoError(err)

	report, err = s.svc.GenerateDue(s.ctx, 1, day("2025-01-04"))
	s.Require().NoError(err)
	s.Zero(report.Generated)
}

func (s *GeneratorSuite) TestGenerateAllIteratesTenants() {
	s.entry(ledger.BillPayable, 1, "2025-01-01")
	s.entry(ledger.BillPayable, 1, "2025-01-01", func(e *ledger.RecurringEntry) { e.TenantID = 7 })
	s.entry(ledger.BillPayable, 1, "2025-01-01", func(e *ledger.RecurringEntry) { e.TenantID = 9; e.Active = false })

	reports, err := s.svc.GenerateAll(s.ctx, day("2025-05-01"))
	s.Require().NoError(err)
	s.Require().Len(reports, 2)
	s.Equal(int64(1), reports[0].TenantID)
	s.Equal(int64(7), reports[1].TenantID)
	for _, r := range reports {
		s.Equal(1, r.Generated)
	}
}

type failingTenantStore struct {
	*ledgertest.Store
	tenantID int64
}

func (f failingTenantStore) ListRecurringEntries(ctx context.Context, tenantID int64, filter ledger.RecurringFilter) ([]ledger.RecurringEntry, error) {
	if tenantID == f.tenantID {
		return nil, errors.New("connection reset")
	}
	return f.Store.ListRecurringEntries(ctx, tenantID, filter)
}

func (s *GeneratorSuite) TestGenerateAllContinuesPastFailingTenant() {
	s.entry(ledger.BillPayable, 1, "2025-01-01")
	s.entry(ledger.BillPayable, 1, "2025-01-01", func(e *ledger.RecurringEntry) { e.TenantID = 7 })
	svc := NewService(failingTenantStore{Store: s.store, tenantID: 1}, nil, nil)
	svc.now = s.svc.now

	reports, err := svc.GenerateAll(s.ctx, day("2025-05-01"))
	s.Require().Error(err)
	s.Contains(err.Error(), "tenant 1")
	s.Require().Len(reports, 1)
	s.Equal(int64(7), reports[0].TenantID)
	s.Equal(1, reports[0].Generated)

	bills, err := s.store.ListBills(s.ctx, ledger.BillPayable, 7, ledger.BillFilter{})
	s.Require().NoError(err)
	s.Len(bills, 1)
}

func TestCreateValidation(t *testing.T) {
	store := ledgertest.New()
	svc := NewService(store, nil, nil)
	ctx := context.Background()
	base := CreateInput{TenantID: 1, Kind: ledger.BillPayable, Description: "Aluguel", Amount: dec("1500"), DayOfMonth: 5, StartDate: day("2025-01-01")}

	created, err := svc.Create(ctx, base)
	require.NoError(t, err)
	require.Equal(t, ledger.FrequencyMonthly, created.Frequency)
	require.True(t, created.Active)

	bad := []func(*CreateInput){
		func(in *CreateInput) { in.Kind = "x" },
		func(in *CreateInput) { in.Amount = decimal.Zero },
		func(in *CreateInput) { in.DayOfMonth = 0 },
		func(in *CreateInput) { in.DayOfMonth = 32 },
		func(in *CreateInput) { in.Frequency = "semanal" },
		func(in *CreateInput) { in.Description = " " },
		func(in *CreateInput) { in.StartDate = time.Time{} },
		func(in *CreateInput) { end := day("2024-12-31"); in.EndDate = &end },
		func(in *CreateInput) { zero := 0; in.TotalInstallments = &zero },
	}
	for i, mutate := range bad {
		in := base
		mutate(&in)
		_, err := svc.Create(ctx, in)
		require.ErrorIs(t, err, ledger.ErrInvalidArgument, "case %d", i)
	}

	missing := int64(55)
	in := base
	in.AccountID = &missing
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestUpdateDeactivateDelete(t *testing.T) {
	store := ledgertest.New()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	entry, err := svc.Create(ctx, CreateInput{TenantID: 1, Kind: ledger.BillReceivable, Description: "Mensalidade", Amount: dec("200"), DayOfMonth: 10, StartDate: day("2025-01-01")})
	require.NoError(t, err)

	amount := dec("250")
	freq := ledger.FrequencyYearly
	updated, err := svc.Update(ctx, 1, entry.ID, UpdateInput{Amount: &amount, Frequency: &freq})
	require.NoError(t, err)
	require.True(t, updated.Amount.Equal(amount))
	require.Equal(t, freq, updated.Frequency)

	badDay := 40
	_, err = svc.Update(ctx, 1, entry.ID, UpdateInput{DayOfMonth: &badDay})
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)

	deactivated, err := svc.Deactivate(ctx, 1, entry.ID)
	require.NoError(t, err)
	require.False(t, deactivated.Active)

	active, err := svc.List(ctx, 1, ledger.RecurringFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Empty(t, active)

	require.NoError(t, svc.Delete(ctx, 1, entry.ID))
	_, err = svc.Get(ctx, 1, entry.ID)
	require.ErrorIs(t, err, ledger.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, 1, entry.ID), ledger.ErrNotFound)
}
