package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/recurring"
)

// Generator creates bills from recurring entries.
type Generator interface {
	GenerateDue(ctx context.Context, tenantID int64, asOf time.Time) (recurring.Report, error)
	GenerateAll(ctx context.Context, asOf time.Time) ([]recurring.Report, error)
}

// RecurringGenerateJob runs the recurring generator for one tenant or all of them.
type RecurringGenerateJob struct {
	Generator Generator
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewRecurringGenerateJob constructs the job handler.
func NewRecurringGenerateJob(generator Generator, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecurringGenerateJob {
	return &RecurringGenerateJob{
		Generator: generator,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the recurring generation task.
func (j *RecurringGenerateJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Generator == nil {
		return errors.New("recurring generate: dependencies not configured")
	}
	payload, err := decodePayload(task)
	if err != nil {
		return err
	}
	asOf, err := payload.asOf(j.clock())
	if err != nil {
		return fmt.Errorf("recurring generate: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskRecurringGenerate)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var reports []recurring.Report
	if payload.TenantID > 0 {
		report, err := j.Generator.GenerateDue(ctx, payload.TenantID, asOf)
		if err != nil {
			j.log().Error("recurring generate failed", slog.Int64("tenant_id", payload.TenantID), slog.Any("error", err))
			return err
		}
		reports = append(reports, report)
	} else {
		reports, resultErr = j.Generator.GenerateAll(ctx, asOf)
	}

	generated, failed := 0, 0
	for _, report := range reports {
		generated += report.Generated
		failed += len(report.Errors)
		for _, bill := range report.Bills {
			j.Metrics.AddGeneratedBills(string(bill.Kind), 1)
		}
	}
	j.log().Info("recurring generate completed",
		slog.String("as_of", asOf.Format(dateLayout)),
		slog.Int("tenants", len(reports)),
		slog.Int("generated", generated),
		slog.Int("failed_entries", failed),
	)
	if resultErr != nil {
		j.log().Error("recurring generate incomplete", slog.Any("error", resultErr))
	}
	return resultErr
}

func (j *RecurringGenerateJob) log() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", TaskRecurringGenerate))
	}
	return j.Logger.With(slog.String("job", TaskRecurringGenerate))
}
