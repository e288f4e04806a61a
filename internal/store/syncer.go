package store

import (
	"context"
	"log/slog"

	"github.com/me/docsched/internal/queue"
	"github.com/me/docsched/pkg/model"
)

// ExclusiveChecker reports whether a job type runs exclusively. Jobs carry
// no exclusivity of their own; it is an attribute of the agent template.
type ExclusiveChecker interface {
	IsExclusive(name string) bool
}

// Syncer reconciles the persistent job table with the in-memory queue. It
// runs as a database_sync handler on the event loop goroutine, which is the
// only place the queue may be written: the HTTP API persists submissions to
// the store and the next sync pulls them in.
type Syncer struct {
	store     Store
	queue     *queue.Queue
	exclusive ExclusiveChecker
	logger    *slog.Logger

	// last state written back per job id, to skip redundant updates
	written map[string]model.JobState
}

// NewSyncer creates a Syncer.
func NewSyncer(st Store, q *queue.Queue, exclusive ExclusiveChecker, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:     st,
		queue:     q,
		exclusive: exclusive,
		logger:    logger.With("component", "syncer"),
		written:   make(map[string]model.JobState),
	}
}

// Handle runs one reconciliation pass. Registered for database_sync.
func (sy *Syncer) Handle(any) {
	ctx := context.Background()
	if err := sy.Pull(ctx); err != nil {
		sy.logger.Error("pull pending jobs", "error", err)
	}
	if err := sy.Flush(ctx); err != nil {
		sy.logger.Error("flush job states", "error", err)
	}
}

// Pull loads pending jobs from the store that the queue has not seen and
// enqueues them, stamping exclusivity from the current template set.
func (sy *Syncer) Pull(ctx context.Context) error {
	jobs, err := sy.store.ListJobsByState(ctx, model.JobStatePending)
	if err != nil {
		return err
	}

	for _, j := range jobs {
		if sy.queue.Get(j.ID) != nil {
			continue
		}
		j.Exclusive = sy.exclusive.IsExclusive(j.Type)
		if err := sy.queue.Push(j); err != nil {
			sy.logger.Warn("enqueue job", "job_id", j.ID, "error", err)
			continue
		}
		sy.written[j.ID] = model.JobStatePending
		sy.logger.Info("job pulled from store", "job_id", j.ID, "type", j.Type,
			"exclusive", j.Exclusive)
	}
	return nil
}

// Flush writes changed job states back to the store. Terminal jobs are
// dropped from the tracking map afterwards; the queue keeps their record
// for the status API but they never need another write.
func (sy *Syncer) Flush(ctx context.Context) error {
	var firstErr error
	for _, j := range sy.queue.Jobs() {
		prev, tracked := sy.written[j.ID]
		if !tracked || prev == j.State {
			continue
		}
		if err := sy.store.UpdateJobState(ctx, j.ID, j.State); err != nil {
			sy.logger.Warn("update job state", "job_id", j.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if j.State.IsTerminal() {
			delete(sy.written, j.ID)
		} else {
			sy.written[j.ID] = j.State
		}
	}
	return firstErr
}
