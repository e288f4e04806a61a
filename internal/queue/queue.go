// Package queue tracks pending and active work items and their exclusivity
// attribute. Pull order is FIFO by submission.
package queue

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/me/docsched/pkg/model"
)

var (
	// ErrDuplicate is returned when a job id is already known to the queue.
	ErrDuplicate = errors.New("job already exists")
	// ErrNotActive is returned when finishing a job that is not active.
	ErrNotActive = errors.New("job not active")
	// ErrBadTransition is returned when a state change would violate
	// model.ValidJobTransitions, such as failing a finished job.
	ErrBadTransition = errors.New("invalid job state transition")
)

// Queue owns jobs until they are assigned, then tracks them as active until
// their agent finishes or dies.
type Queue struct {
	mu      sync.RWMutex
	jobs    map[string]*model.Job
	pending []string
	active  map[string]*model.Job
}

// New creates an empty job queue.
func New() *Queue {
	return &Queue{
		jobs:   make(map[string]*model.Job),
		active: make(map[string]*model.Job),
	}
}

// Push appends a pending job. The job id must be unique.
func (q *Queue) Push(j *model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.jobs[j.ID]; exists {
		return ErrDuplicate
	}
	j.State = model.JobStatePending
	q.jobs[j.ID] = j
	q.pending = append(q.pending, j.ID)
	return nil
}

// Next pops the oldest pending job, or nil when none remain. The caller owns
// the decision to dispatch, hold, or requeue it.
func (q *Queue) Next() *model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	id := q.pending[0]
	q.pending = q.pending[1:]
	return q.jobs[id]
}

// Requeue returns a popped-but-undispatched job to the front of the pending
// list, preserving FIFO order for the next tick.
func (q *Queue) Requeue(j *model.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append([]string{j.ID}, q.pending...)
}

// Activate marks a job as assigned to an agent. Activating a job that is
// not pending is a no-op.
func (q *Queue) Activate(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok || !j.State.CanTransitionTo(model.JobStateAssigned) {
		return
	}
	j.State = model.JobStateAssigned
	j.UpdatedAt = time.Now().UTC()
	q.active[id] = j
}

// Finish marks an active job finished.
func (q *Queue) Finish(id string) error {
	return q.complete(id, model.JobStateFinished)
}

// Fail marks a job failed. Unlike Finish it also accepts jobs that never
// became active (a spawn that could not start), but a job already in a
// terminal state stays as it is.
func (q *Queue) Fail(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return ErrNotActive
	}
	if !j.State.CanTransitionTo(model.JobStateFailed) {
		return ErrBadTransition
	}
	j.State = model.JobStateFailed
	j.UpdatedAt = time.Now().UTC()
	delete(q.active, id)
	return nil
}

func (q *Queue) complete(id string, state model.JobState) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.active[id]
	if !ok {
		return ErrNotActive
	}
	j.State = state
	j.UpdatedAt = time.Now().UTC()
	delete(q.active, id)
	return nil
}

// Get returns the job with the given id, or nil.
func (q *Queue) Get(id string) *model.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.jobs[id]
}

// PendingCount returns the number of jobs waiting for dispatch.
func (q *Queue) PendingCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}

// ActiveCount returns the number of assigned, still-running jobs.
func (q *Queue) ActiveCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.active)
}

// Jobs returns every known job ordered by creation time.
func (q *Queue) Jobs() []*model.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*model.Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Clear drops every job. Used on shutdown.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = make(map[string]*model.Job)
	q.pending = nil
	q.active = make(map[string]*model.Job)
}
