package model

import "time"

// Job represents one generation request from submission to terminal state
type Job struct {
	ID           string              `json:"id"`
	Status       JobStatus           `json:"status"`
	Progress     int                 `json:"progress"`
	CurrentStep  string              `json:"currentStep,omitempty"`
	Strategy     Strategy            `json:"strategy,omitempty"`
	Result       *ArchitecturalModel `json:"result"`
	Requirements *RequirementSet     `json:"requirements,omitempty"`
	Description  string              `json:"description,omitempty"`
	Degradations []Degradation       `json:"degradations,omitempty"`
	Error        *string             `json:"error"`
	CreatedAt    time.Time           `json:"createdAt"`
	CompletedAt  *time.Time          `json:"completedAt,omitempty"`
}

// Elapsed is the time since creation, frozen once the job is terminal.
func (j *Job) Elapsed(now time.Time) time.Duration {
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(j.CreatedAt)
	}
	return now.Sub(j.CreatedAt)
}

// Degradation records one step of the fallback chain that was taken.
type Degradation struct {
	Stage  string    `json:"stage"`
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
}

// Outcome is what the generator hands back for a completed job.
type Outcome struct {
	Model        *ArchitecturalModel `json:"model"`
	Requirements *RequirementSet     `json:"requirements"`
	Visual       *VisualAnalysis     `json:"visual,omitempty"`
	Strategy     Strategy            `json:"strategy"`
	Description  string              `json:"description,omitempty"`
	Degradations []Degradation       `json:"degradations,omitempty"`
}

// Stream event statuses. Non-terminal events reuse the job status values.
const (
	EventStatusCompleted = "completed"
	EventStatusError     = "error"
)

// JobEvent is one entry of a job's progress stream
type JobEvent struct {
	Status   string              `json:"status"`
	Step     string              `json:"step,omitempty"`
	Progress *int                `json:"progress,omitempty"`
	Result   *ArchitecturalModel `json:"result,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// IsTerminal reports whether the event closes the stream.
func (e JobEvent) IsTerminal() bool {
	return e.Status == EventStatusCompleted || e.Status == EventStatusError
}

// JobSubmitResponse is returned by POST /jobs
type JobSubmitResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Strategy  Strategy  `json:"strategy"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobStatusResponse is returned by GET /jobs/:id
type JobStatusResponse struct {
	JobID          string              `json:"jobId"`
	Status         JobStatus           `json:"status"`
	Progress       int                 `json:"progress"`
	CurrentStep    string              `json:"currentStep,omitempty"`
	Strategy       Strategy            `json:"strategy,omitempty"`
	Result         *ArchitecturalModel `json:"result"`
	Requirements   *RequirementSet     `json:"requirements,omitempty"`
	Description    string              `json:"description,omitempty"`
	Degradations   []Degradation       `json:"degradations,omitempty"`
	Error          *string             `json:"error"`
	CreatedAt      time.Time           `json:"createdAt"`
	CompletedAt    *time.Time          `json:"completedAt,omitempty"`
	ElapsedSeconds float64             `json:"elapsedSeconds"`
}
