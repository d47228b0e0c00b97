package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/movements"
)

// Verifier checks each account balance against its latest movement snapshot.
type Verifier interface {
	VerifyTenant(ctx context.Context, tenantID int64) ([]movements.Check, error)
}

// TenantLister enumerates the tenants owning accounts.
type TenantLister interface {
	ListAccountTenants(ctx context.Context) ([]int64, error)
}

// IntegrityJob reports balance drift. It never rewrites balances.
type IntegrityJob struct {
	Verifier Verifier
	Tenants  TenantLister
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewIntegrityJob constructs the job handler.
func NewIntegrityJob(verifier Verifier, tenants TenantLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Verifier: verifier, Tenants: tenants, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity task. Drift is logged and counted, not treated as a failure.
func (j *IntegrityJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Verifier == nil || j.Tenants == nil {
		return errors.New("ledger integrity: dependencies not configured")
	}
	payload, err := decodePayload(task)
	if err != nil {
		return err
	}

	tracker := j.Metrics.Track(TaskIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	tenants := []int64{payload.TenantID}
	if payload.TenantID <= 0 {
		if tenants, err = j.Tenants.ListAccountTenants(ctx); err != nil {
			return err
		}
	}

	checked, drifted := 0, 0
	var errs []error
	for _, tenantID := range tenants {
		checks, err := j.Verifier.VerifyTenant(ctx, tenantID)
		if err != nil {
			j.log().Error("verify tenant", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		for _, c := range checks {
			checked++
			if !c.Drifted() {
				continue
			}
			drifted++
			j.log().Warn("ledger balance drift",
				slog.Int64("tenant_id", tenantID),
				slog.Int64("account_id", c.AccountID),
				slog.String("stored", c.Stored.StringFixed(2)),
				slog.String("expected", c.Expected.StringFixed(2)),
			)
		}
	}
	j.Metrics.SetDriftedAccounts(drifted)
	j.log().Info("ledger integrity completed",
		slog.Int("tenants", len(tenants)), slog.Int("accounts", checked), slog.Int("drifted", drifted))
	return errors.Join(errs...)
}

func (j *IntegrityJob) log() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", TaskIntegrity))
	}
	return j.Logger.With(slog.String("job", TaskIntegrity))
}
