package store

import (
	"context"

	"github.com/me/docsched/pkg/model"
)

// Store defines the persistence layer for scheduler entities.
type Store interface {
	// Job CRUD
	CreateJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context) ([]*model.Job, error)
	ListJobsByState(ctx context.Context, state model.JobState) ([]*model.Job, error)
	UpdateJobState(ctx context.Context, id string, state model.JobState) error

	// ResetQueue deletes every non-terminal job, used by the --reset
	// startup flag to discard work stranded by an unclean shutdown.
	ResetQueue(ctx context.Context) (int64, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
