// Package executor bounds upstream calls with per-tier deadlines.
//
// Each call runs in its own goroutine under a derived context. When the
// deadline passes the caller gets a typed timeout immediately and the
// derived context is cancelled, so the straggler sees ctx.Done() and its
// late result lands in a buffered channel nobody reads.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/archifusion/api/internal/metrics"
	"github.com/archifusion/api/internal/model"
)

// Tier selects a per-call deadline.
type Tier string

const (
	TierSpeech Tier = "speech"
	TierText   Tier = "text"
	TierVisual Tier = "visual"
	TierStage  Tier = "stage"
)

// ErrJobDeadline marks a call that could not finish because the whole job ran out of time.
var ErrJobDeadline = errors.New("job deadline exceeded")

// Timeouts are the configured deadlines.
type Timeouts struct {
	Speech time.Duration
	Text   time.Duration
	Visual time.Duration
	Job    time.Duration
	Stage  time.Duration
}

// DefaultTimeouts returns the production deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Speech: 8 * time.Second,
		Text:   15 * time.Second,
		Visual: 25 * time.Second,
		Job:    60 * time.Second,
		Stage:  10 * time.Second,
	}
}

// Validate enforces positive values and visual >= text >= speech.
func (t Timeouts) Validate() error {
	for name, d := range map[string]time.Duration{
		"speech": t.Speech, "text": t.Text, "visual": t.Visual, "job": t.Job, "stage": t.Stage,
	} {
		if d <= 0 {
			return fmt.Errorf("timeout %s must be positive, got %v", name, d)
		}
	}
	if t.Visual < t.Text {
		return fmt.Errorf("visual timeout %v must be >= text timeout %v", t.Visual, t.Text)
	}
	if t.Text < t.Speech {
		return fmt.Errorf("text timeout %v must be >= speech timeout %v", t.Text, t.Speech)
	}
	return nil
}

// TimeoutError reports an expired per-call deadline.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s timed out after %v", e.Operation, e.Timeout)
}

// Executor runs functions against tiered deadlines.
type Executor struct {
	timeouts Timeouts
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func New(t Timeouts, m *metrics.Metrics, logger *zap.Logger) (*Executor, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{timeouts: t, metrics: m, logger: logger}, nil
}

// Timeout returns the deadline for a tier.
func (e *Executor) Timeout(tier Tier) time.Duration {
	switch tier {
	case TierSpeech:
		return e.timeouts.Speech
	case TierText:
		return e.timeouts.Text
	case TierVisual:
		return e.timeouts.Visual
	default:
		return e.timeouts.Stage
	}
}

// Timeouts returns the configured deadlines.
func (e *Executor) Timeouts() Timeouts {
	return e.timeouts
}

// JobContext applies the job-level hard ceiling.
func (e *Executor) JobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeouts.Job)
}

// Run calls fn under the tier's deadline.
func Run[T any](ctx context.Context, e *Executor, tier Tier, op string, fn func(context.Context) (T, error)) (T, error) {
	return RunWithin(ctx, e, e.Timeout(tier), op, fn)
}

// RunWithin calls fn under an explicit budget. Errors are typed:
// KindUpstreamTimeout for an expired deadline (wrapping ErrJobDeadline when
// the parent ran out first) and KindUpstreamFailure for anything fn returned.
func RunWithin[T any](ctx context.Context, e *Executor, budget time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		e.record(op, "timeout", 0)
		return zero, parentError(op, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(callCtx)
		ch <- result{val: v, err: err}
	}()

	select {
	case r := <-ch:
		elapsed := time.Since(start)
		if r.err == nil {
			e.record(op, "success", elapsed)
			return r.val, nil
		}
		if callCtx.Err() != nil && errors.Is(r.err, context.DeadlineExceeded) {
			e.record(op, "timeout", elapsed)
			return zero, e.timeoutError(ctx, op, budget)
		}
		e.record(op, "failure", elapsed)
		e.logger.Warn("upstream call failed", zap.String("op", op), zap.Duration("elapsed", elapsed), zap.Error(r.err))
		if model.KindOf(r.err) != "" {
			return zero, r.err
		}
		return zero, model.WrapError(model.KindUpstreamFailure, op, r.err)

	case <-callCtx.Done():
		elapsed := time.Since(start)
		e.record(op, "timeout", elapsed)
		e.logger.Warn("upstream call timed out", zap.String("op", op), zap.Duration("budget", budget))
		return zero, e.timeoutError(ctx, op, budget)
	}
}

func (e *Executor) timeoutError(parent context.Context, op string, budget time.Duration) error {
	if err := parent.Err(); err != nil {
		return parentError(op, err)
	}
	return model.WrapError(model.KindUpstreamTimeout, op, &TimeoutError{Operation: op, Timeout: budget})
}

func parentError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.WrapError(model.KindUpstreamTimeout, op, ErrJobDeadline)
	}
	return model.WrapError(model.KindUpstreamFailure, op, err)
}

func (e *Executor) record(op, outcome string, d time.Duration) {
	e.metrics.ObserveUpstream(op, outcome, d)
}

// IsTimeout reports whether err is an expired per-call or job deadline.
func IsTimeout(err error) bool {
	return model.IsKind(err, model.KindUpstreamTimeout)
}

// IsJobDeadline reports whether the job-level ceiling was hit.
func IsJobDeadline(err error) bool {
	return errors.Is(err, ErrJobDeadline)
}
