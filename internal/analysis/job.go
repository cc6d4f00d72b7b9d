package analysis

import (
	"fmt"
	"strings"
	"time"
)

// Job tracks one document's journey through the pipeline.
type Job struct {
	ID                 string     `json:"id"`
	FileName           string     `json:"fileName"`
	AnalysisType       Type       `json:"analysisType"`
	Priority           string     `json:"priority"`
	PatientRef         string     `json:"patientRef,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	Model              string     `json:"model"`
	Status             Status     `json:"status"`
	Diagnostic         string     `json:"diagnostic,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	ProcessingDuration string     `json:"processingDuration,omitempty"`
}

// NewJob returns a queued job. A blank priority becomes DefaultPriority.
func NewJob(id, fileName string, t Type, priority, patientRef, notes, model string) Job {
	priority = strings.TrimSpace(priority)
	if priority == "" {
		priority = DefaultPriority
	}
	return Job{
		ID:           id,
		FileName:     fileName,
		AnalysisType: t,
		Priority:     priority,
		PatientRef:   strings.TrimSpace(patientRef),
		Notes:        strings.TrimSpace(notes),
		Model:        model,
		Status:       StatusQueued,
		CreatedAt:    Now(),
	}
}

// Transition moves the job to next, keeping CompletedAt set exactly when the status is terminal.
func (j *Job) Transition(next Status, at time.Time, diagnostic string) error {
	if !canTransition(j.Status, next) {
		return fmt.Errorf("%w: %s->%s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	switch {
	case next == StatusProcessing:
		started := at
		j.StartedAt = &started
	case next.Terminal():
		completed := at
		j.CompletedAt = &completed
		from := j.CreatedAt
		if j.StartedAt != nil {
			from = *j.StartedAt
		}
		j.ProcessingDuration = FormatDuration(completed.Sub(from))
		j.Diagnostic = SanitizeDiagnostic(diagnostic)
	}
	return nil
}

func canTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing || to.Terminal()
	case StatusProcessing:
		return to.Terminal()
	default:
		return false
	}
}
