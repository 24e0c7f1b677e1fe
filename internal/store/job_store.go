// Package store keeps jobs in memory and fans their progress out to
// stream subscribers.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archifusion/api/internal/model"
)

var ErrJobNotFound = errors.New("job not found")

// maxProgress caps non-terminal progress; only Complete reaches 100.
const maxProgress = 99

type entry struct {
	mu     sync.Mutex
	job    model.Job
	events []model.JobEvent
	notify chan struct{}
	purged bool
}

// append records ev and wakes subscribers. Caller holds e.mu.
func (e *entry) append(ev model.JobEvent) {
	e.events = append(e.events, ev)
	close(e.notify)
	e.notify = make(chan struct{})
}

// JobStore is a TTL-bounded in-memory job registry.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*entry

	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func New(ttl time.Duration, logger *zap.Logger) *JobStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobStore{
		jobs:   make(map[string]*entry),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Create registers a queued job.
func (s *JobStore) Create(strategy model.Strategy) (*model.Job, error) {
	zero := 0
	e := &entry{
		job: model.Job{
			ID:        uuid.New().String(),
			Status:    model.JobStatusQueued,
			Strategy:  strategy,
			CreatedAt: s.now().UTC(),
		},
		notify: make(chan struct{}),
	}
	e.events = []model.JobEvent{{Status: string(model.JobStatusQueued), Progress: &zero}}

	s.mu.Lock()
	s.jobs[e.job.ID] = e
	s.mu.Unlock()

	job := cloneJob(&e.job)
	return job, nil
}

// Get returns a snapshot of the job.
func (s *JobStore) Get(id string) (*model.Job, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneJob(&e.job), nil
}

// Advance moves a running job forward. Progress never decreases and stays
// below 100; calls after a terminal state are ignored.
func (s *JobStore) Advance(id string, status model.JobStatus, progress int, step string) error {
	if status.IsTerminal() {
		return fmt.Errorf("advance to terminal status %q", status)
	}
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status.IsTerminal() {
		return nil
	}
	if progress > maxProgress {
		progress = maxProgress
	}
	if progress < e.job.Progress {
		progress = e.job.Progress
	}
	e.job.Status = status
	e.job.Progress = progress
	e.job.CurrentStep = step

	p := progress
	e.append(model.JobEvent{Status: string(status), Step: step, Progress: &p})
	return nil
}

// Complete stores the outcome. Only the first terminal call has effect.
func (s *JobStore) Complete(id string, out *model.Outcome) error {
	if out == nil || out.Model == nil {
		return fmt.Errorf("complete job %s: nil outcome", id)
	}
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status.IsTerminal() {
		return nil
	}
	now := s.now().UTC()
	e.job.Status = model.JobStatusCompleted
	e.job.Progress = 100
	e.job.CurrentStep = ""
	e.job.Result = out.Model
	e.job.Requirements = out.Requirements
	e.job.Description = out.Description
	e.job.Degradations = append([]model.Degradation(nil), out.Degradations...)
	if out.Strategy != "" {
		e.job.Strategy = out.Strategy
	}
	e.job.CompletedAt = &now

	p := 100
	e.append(model.JobEvent{Status: model.EventStatusCompleted, Progress: &p, Result: out.Model})
	return nil
}

// Fail marks the job failed. Only the first terminal call has effect.
func (s *JobStore) Fail(id string, msg string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status.IsTerminal() {
		return nil
	}
	now := s.now().UTC()
	e.job.Status = model.JobStatusFailed
	e.job.CurrentStep = ""
	e.job.Error = &msg
	e.job.CompletedAt = &now

	e.append(model.JobEvent{Status: model.EventStatusError, Error: msg})
	return nil
}

// Subscribe replays the job's events and then follows new ones. The channel
// closes after the terminal event, when ctx is done, or when the job is purged.
func (s *JobStore) Subscribe(ctx context.Context, id string) (<-chan model.JobEvent, error) {
	return s.follow(ctx, id, false)
}

// Watch is Subscribe without the history: the first event is the job's
// latest one, and a finished job yields only its terminal event.
func (s *JobStore) Watch(ctx context.Context, id string) (<-chan model.JobEvent, error) {
	return s.follow(ctx, id, true)
}

func (s *JobStore) follow(ctx context.Context, id string, latest bool) (<-chan model.JobEvent, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	next := 0
	if latest {
		e.mu.Lock()
		next = len(e.events) - 1
		e.mu.Unlock()
	}

	ch := make(chan model.JobEvent, 8)
	go func() {
		defer close(ch)
		for {
			e.mu.Lock()
			pending := append([]model.JobEvent(nil), e.events[next:]...)
			notify := e.notify
			purged := e.purged
			e.mu.Unlock()

			for _, ev := range pending {
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
				if ev.IsTerminal() {
					return
				}
			}
			next += len(pending)
			if purged {
				return
			}

			select {
			case <-notify:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Purge drops jobs created more than ttl before now.
func (s *JobStore) Purge(now time.Time) int {
	var expired []*entry

	s.mu.Lock()
	for id, e := range s.jobs {
		if now.Sub(e.job.CreatedAt) >= s.ttl {
			expired = append(expired, e)
			delete(s.jobs, id)
		}
	}
	s.mu.Unlock()

	for _, e := range expired {
		e.mu.Lock()
		e.purged = true
		close(e.notify)
		e.notify = make(chan struct{})
		e.mu.Unlock()
	}
	return len(expired)
}

// Run purges expired jobs every interval until ctx is done.
func (s *JobStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Purge(s.now()); n > 0 {
				s.logger.Info("purged expired jobs", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of retained jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *JobStore) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	return e, nil
}

func cloneJob(j *model.Job) *model.Job {
	c := *j
	c.Degradations = append([]model.Degradation(nil), j.Degradations...)
	if j.Error != nil {
		msg := *j.Error
		c.Error = &msg
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
