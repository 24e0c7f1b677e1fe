package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/archifusion/api/internal/config"
	"github.com/archifusion/api/internal/metrics"
	"github.com/archifusion/api/internal/model"
	"github.com/archifusion/api/internal/orchestrator"
	"github.com/archifusion/api/internal/store"
)

// ErrUnavailable is returned when a job cannot be dispatched.
var ErrUnavailable = errors.New("job processing unavailable")

// Dispatcher runs an accepted job in the background.
type Dispatcher interface {
	Dispatch(jobID string, in *model.DecodedInput) error
}

// JobService validates submissions and exposes job state
type JobService struct {
	store      *store.JobStore
	dispatcher Dispatcher
	validator  *validator.Validate
	limits     config.LimitsConfig
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewJobService(jobs *store.JobStore, dispatcher Dispatcher, v *validator.Validate, limits config.LimitsConfig, m *metrics.Metrics, logger *zap.Logger) *JobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if v == nil {
		v = NewValidator()
	}
	return &JobService{
		store:      jobs,
		dispatcher: dispatcher,
		validator:  v,
		limits:     limits,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// NewValidator returns a validator with the bundle rules registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	RegisterValidations(v)
	return v
}

// RegisterValidations adds the struct-level InputBundle rule to v.
func RegisterValidations(v *validator.Validate) {
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		b := sl.Current().Interface().(model.InputBundle)
		if !b.HasAnyModality() {
			sl.ReportError(b.Text, "Text", "Text", "required_without_all", "")
		}
	}, model.InputBundle{})
}

// Submit validates the bundle and starts a job. Nothing is created when
// validation fails.
func (s *JobService) Submit(ctx context.Context, bundle *model.InputBundle) (*model.JobSubmitResponse, error) {
	in, strategy, err := s.prepare(bundle)
	if err != nil {
		return nil, err
	}

	job, err := s.store.Create(strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.dispatcher.Dispatch(job.ID, in); err != nil {
		s.store.Fail(job.ID, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.metrics.JobSubmitted(string(strategy))

	s.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("strategy", string(strategy)),
		zap.Bool("sketch", in.Sketch != nil),
		zap.Bool("photo", in.Photo != nil),
		zap.Bool("audio", in.SpeechAudio != nil))

	return &model.JobSubmitResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Strategy:  strategy,
		CreatedAt: job.CreatedAt,
	}, nil
}

func (s *JobService) prepare(bundle *model.InputBundle) (*model.DecodedInput, model.Strategy, error) {
	if bundle == nil {
		return nil, "", model.NewValidationError("submit", "request body is required", nil)
	}
	if err := s.validator.Struct(bundle); err != nil {
		return nil, "", model.NewValidationError("submit", "Validation failed", ValidationDetails(err))
	}

	in, err := decodeBundle(bundle, s.limits.MaxImageBytes, s.limits.MaxAudioBytes)
	if err != nil {
		return nil, "", err
	}
	strategy, err := orchestrator.SelectStrategy(in)
	if err != nil {
		return nil, "", err
	}
	return in, strategy, nil
}

// Status returns the job view
func (s *JobService) Status(ctx context.Context, id string) (*model.JobStatusResponse, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return &model.JobStatusResponse{
		JobID:          job.ID,
		Status:         job.Status,
		Progress:       job.Progress,
		CurrentStep:    job.CurrentStep,
		Strategy:       job.Strategy,
		Result:         job.Result,
		Requirements:   job.Requirements,
		Description:    job.Description,
		Degradations:   job.Degradations,
		Error:          job.Error,
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.CompletedAt,
		ElapsedSeconds: job.Elapsed(s.now()).Seconds(),
	}, nil
}

// Stream submits the bundle and subscribes to the new job's events.
func (s *JobService) Stream(ctx context.Context, bundle *model.InputBundle) (*model.JobSubmitResponse, <-chan model.JobEvent, error) {
	res, err := s.Submit(ctx, bundle)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.store.Subscribe(ctx, res.JobID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return res, events, nil
}

// Subscribe follows an existing job's events.
func (s *JobService) Subscribe(ctx context.Context, id string) (<-chan model.JobEvent, error) {
	return s.store.Subscribe(ctx, id)
}

// Watch follows an existing job from its current state.
func (s *JobService) Watch(ctx context.Context, id string) (<-chan model.JobEvent, error) {
	return s.store.Watch(ctx, id)
}

// Quick runs the heuristic path synchronously.
func (s *JobService) Quick(ctx context.Context, req *model.QuickRequest) (*model.QuickResponse, error) {
	if req == nil {
		return nil, model.NewValidationError("quick", "request body is required", nil)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, model.NewValidationError("quick", "Validation failed", ValidationDetails(err))
	}

	reqs, m, err := orchestrator.Quick(req.Prompt)
	if err != nil {
		return nil, err
	}
	return &model.QuickResponse{Requirements: reqs, Model: m}, nil
}

// ValidationDetails formats validator errors as field -> tag.
func ValidationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, e := range verrs {
		details[e.Field()] = e.Tag()
	}
	return details
}
