package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/alerts"
)

// Scanner flags overdue bills and raises due-date alerts.
type Scanner interface {
	ScanDue(ctx context.Context, tenantID int64, asOf time.Time, dueSoonDays int) (alerts.ScanResult, error)
	ScanAll(ctx context.Context, asOf time.Time, dueSoonDays int) ([]alerts.ScanResult, error)
}

// DueScanJob runs the due-date scanner.
type DueScanJob struct {
	Scanner     Scanner
	DueSoonDays int
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	clock       func() time.Time
}

// NewDueScanJob constructs the job handler. dueSoonDays applies when a task names no window.
func NewDueScanJob(scanner Scanner, dueSoonDays int, logger *slog.Logger, metrics *jobmetrics.Metrics) *DueScanJob {
	if dueSoonDays <= 0 {
		dueSoonDays = alerts.DefaultDueSoonDays
	}
	return &DueScanJob{
		Scanner:     scanner,
		DueSoonDays: dueSoonDays,
		Logger:      logger,
		Metrics:     metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the due scan task.
func (j *DueScanJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Scanner == nil {
		return errors.New("due scan: dependencies not configured")
	}
	payload, err := decodePayload(task)
	if err != nil {
		return err
	}
	asOf, err := payload.asOf(j.clock())
	if err != nil {
		return fmt.Errorf("due scan: %v: %w", err, asynq.SkipRetry)
	}
	days := payload.DueSoonDays
	if days <= 0 {
		days = j.DueSoonDays
	}

	tracker := j.Metrics.Track(TaskDueScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var results []alerts.ScanResult
	if payload.TenantID > 0 {
		result, err := j.Scanner.ScanDue(ctx, payload.TenantID, asOf, days)
		if err != nil {
			j.log().Error("due scan failed", slog.Int64("tenant_id", payload.TenantID), slog.Any("error", err))
			return err
		}
		results = append(results, result)
	} else {
		results, resultErr = j.Scanner.ScanAll(ctx, asOf, days)
	}

	overdue, raised := 0, 0
	for _, r := range results {
		overdue += r.MarkedOverdue
		raised += r.Raised
	}
	j.Metrics.AddAlerts(raised)
	j.log().Info("due scan completed",
		slog.String("as_of", asOf.Format(dateLayout)),
		slog.Int("tenants", len(results)),
		slog.Int("marked_overdue", overdue),
		slog.Int("alerts", raised),
	)
	if resultErr != nil {
		j.log().Error("due scan incomplete", slog.Any("error", resultErr))
	}
	return resultErr
}

func (j *DueScanJob) log() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", TaskDueScan))
	}
	return j.Logger.With(slog.String("job", TaskDueScan))
}
