package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/archifusion/api/internal/metrics"
	"github.com/archifusion/api/internal/model"
	"github.com/archifusion/api/internal/orchestrator"
	"github.com/archifusion/api/internal/store"
)

// ErrShuttingDown is returned by Dispatch once Shutdown has begun.
var ErrShuttingDown = errors.New("worker is shutting down")

// Generator produces an outcome for one decoded input.
type Generator interface {
	Generate(ctx context.Context, in *model.DecodedInput, progress orchestrator.ProgressFunc) (*model.Outcome, error)
}

// JobWorker runs generation jobs in the background and records their
// progress in the store, which feeds both the SSE and WebSocket streams.
type JobWorker struct {
	generator Generator
	store     *store.JobStore
	metrics   *metrics.Metrics
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewJobWorker creates a new job worker
func NewJobWorker(generator Generator, jobs *store.JobStore, m *metrics.Metrics, logger *zap.Logger) *JobWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobWorker{
		generator: generator,
		store:     jobs,
		metrics:   m,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Dispatch starts the job and returns immediately.
func (w *JobWorker) Dispatch(jobID string, in *model.DecodedInput) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrShuttingDown
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.process(w.ctx, jobID, in)
	}()
	return nil
}

func (w *JobWorker) process(ctx context.Context, jobID string, in *model.DecodedInput) {
	start := time.Now()
	logger := w.logger.With(zap.String("job_id", jobID))
	logger.Info("starting generation job")

	defer func() {
		if r := recover(); r != nil {
			logger.Error("generation job panicked", zap.Any("panic", r))
			w.failJob(jobID, fmt.Sprintf("internal error: %v", r), start)
		}
	}()

	outcome, err := w.generator.Generate(ctx, in, func(status model.JobStatus, progress int, step string) {
		w.updateProgress(jobID, status, progress, step)
	})
	if err != nil {
		logger.Error("generation job failed", zap.Error(err))
		w.failJob(jobID, err.Error(), start)
		return
	}

	if err := w.store.Complete(jobID, outcome); err != nil {
		logger.Error("failed to save result", zap.Error(err))
		w.failJob(jobID, "failed to save result", start)
		return
	}
	w.metrics.JobFinished(string(model.JobStatusCompleted), time.Since(start))

	logger.Info("generation job completed",
		zap.String("strategy", string(outcome.Strategy)),
		zap.Int("rooms", len(outcome.Model.Rooms)),
		zap.Int("degradations", len(outcome.Degradations)),
		zap.Duration("elapsed", time.Since(start)))
}

func (w *JobWorker) updateProgress(jobID string, status model.JobStatus, progress int, step string) {
	if err := w.store.Advance(jobID, status, progress, step); err != nil {
		w.logger.Warn("failed to update progress", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *JobWorker) failJob(jobID, errMsg string, start time.Time) {
	if err := w.store.Fail(jobID, errMsg); err != nil {
		w.logger.Error("failed to mark job as failed", zap.String("job_id", jobID), zap.Error(err))
	}
	w.metrics.JobFinished(string(model.JobStatusFailed), time.Since(start))
}

// Shutdown stops accepting jobs and waits for running ones. If ctx ends
// first, running jobs are cancelled, which sends them down the heuristic
// path, and Shutdown waits for them to settle.
func (w *JobWorker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		return ctx.Err()
	}
}
