package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/fulfillment/internal/jobs"
)

const defaultRestockLimit = 50

// Restocker reallocates out of stock pick lists.
type Restocker interface {
	RestockOutOfStock(ctx context.Context, limit int) (int, error)
}

// KeyCleaner prunes expired idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// RestockScanJob reallocates submitted pick lists whose rows were reset by a
// stock-out, so they pick from stock received since.
type RestockScanJob struct {
	Restocker Restocker
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewRestockScanJob initialises the restock scan handler.
func NewRestockScanJob(restocker Restocker, logger *slog.Logger, metrics *jobmetrics.Metrics) *RestockScanJob {
	return &RestockScanJob{
		Restocker: restocker,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one restock scan.
func (j *RestockScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Restocker == nil {
		return errors.New("restock scan: handler not configured")
	}
	var payload RestockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultRestockLimit
	}

	start := j.now()
	tracker := j.Metrics.Track(TaskRestockScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("limit", payload.Limit))
	logger.Info("starting restock scan")

	restocked, err := j.Restocker.RestockOutOfStock(ctx, payload.Limit)
	j.Metrics.AddRestocked(restocked)
	if err != nil {
		logger.Error("restock scan failed", slog.Int("restocked", restocked), slog.Any("error", err))
		return err
	}
	logger.Info("completed restock scan",
		slog.Int("restocked", restocked),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *RestockScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *RestockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// IdempotencyCleanupJob prunes idempotency keys past their retention.
type IdempotencyCleanupJob struct {
	Cleaner KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Cleaner == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		payload.Retention = 7 * 24 * time.Hour
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	err := j.Cleaner.Cleanup(ctx, payload.Retention)
	if err != nil && j.Logger != nil {
		j.Logger.Error("idempotency cleanup failed", slog.Any("error", err))
	}
	return tracker.End(err)
}
