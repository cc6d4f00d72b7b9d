package queue

import (
	"errors"
	"fmt"
	"sync"

	"clinical-review-backend/internal/analysis"
)

var (
	ErrDuplicateJob = errors.New("job already registered")
	ErrJobNotFound  = errors.New("job not found")
	// ErrJobFinal is returned when an update would move a terminal job to another status.
	ErrJobFinal = errors.New("job already in a terminal state")
)

// Queue is the volatile, process-lifetime registry of jobs. It is safe for concurrent use;
// reads return copies so callers never alias queue-owned jobs.
type Queue struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*analysis.Job
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{byID: map[string]*analysis.Job{}}
}

// Register appends job in insertion order.
func (q *Queue) Register(job analysis.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[job.ID]; ok {
		return ErrDuplicateJob
	}
	stored := copyJob(job)
	q.byID[job.ID] = &stored
	q.order = append(q.order, job.ID)
	return nil
}

// Update replaces the stored state of an already registered job. A terminal job keeps its status.
func (q *Queue) Update(job analysis.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	existing, ok := q.byID[job.ID]
	if !ok {
		return ErrJobNotFound
	}
	if existing.Status.Terminal() && job.Status != existing.Status {
		return fmt.Errorf("%w: %s is %s", ErrJobFinal, job.ID, existing.Status)
	}
	*existing = copyJob(job)
	return nil
}

// Get returns a copy of one job.
func (q *Queue) Get(jobID string) (analysis.Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.byID[jobID]
	if !ok {
		return analysis.Job{}, ErrJobNotFound
	}
	return copyJob(*job), nil
}

// List returns jobs in registration order. An empty filter returns every job.
func (q *Queue) List(filter analysis.Type) []analysis.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]analysis.Job, 0, len(q.order))
	for _, id := range q.order {
		job := q.byID[id]
		if filter != "" && job.AnalysisType != filter {
			continue
		}
		out = append(out, copyJob(*job))
	}
	return out
}

// Len returns the number of registered jobs.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.order)
}

func copyJob(job analysis.Job) analysis.Job {
	if job.StartedAt != nil {
		started := *job.StartedAt
		job.StartedAt = &started
	}
	if job.CompletedAt != nil {
		completed := *job.CompletedAt
		job.CompletedAt = &completed
	}
	return job
}
