package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/fulfillment/internal/jobs"
)

type stubRestocker struct {
	limit     int
	restocked int
	err       error
}

func (s *stubRestocker) RestockOutOfStock(_ context.Context, limit int) (int, error) {
	s.limit = limit
	return s.restocked, s.err
}

type stubCleaner struct {
	retention time.Duration
}

func (s *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	s.retention = olderThan
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRestockScanUsesPayloadLimit(t *testing.T) {
	restocker := &stubRestocker{restocked: 2}
	job := NewRestockScanJob(restocker, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewRestockScanTask(10)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 10, restocker.limit)
}

func TestRestockScanDefaultsLimit(t *testing.T) {
	restocker := &stubRestocker{}
	job := NewRestockScanJob(restocker, discardLogger(), nil)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskRestockScan, nil)))
	require.Equal(t, defaultRestockLimit, restocker.limit)
}

func TestRestockScanPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewRestockScanJob(&stubRestocker{err: boom}, discardLogger(), nil)

	task, err := NewRestockScanTask(5)
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestRestockScanRejectsMalformedPayload(t *testing.T) {
	job := NewRestockScanJob(&stubRestocker{}, discardLogger(), nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskRestockScan, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &stubCleaner{}
	job := &IdempotencyCleanupJob{Cleaner: cleaner, Logger: discardLogger()}

	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 7*24*time.Hour, cleaner.retention)

	task, err = NewIdempotencyCleanupTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Hour, cleaner.retention)
}

type stubEnqueuer struct {
	limit int
	err   error
}

func (s *stubEnqueuer) EnqueueRestockScan(_ context.Context, limit int) (*asynq.TaskInfo, error) {
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func TestHandlerRestockScan(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	r := chi.NewRouter()
	NewHandler(nil, enqueuer, discardLogger()).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/restock-scan?limit=25", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, 25, enqueuer.limit)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "task-1", body["task_id"])

	enqueuer.err = asynq.ErrDuplicateTask
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/restock-scan", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())
}
