package store

import (
	"context"

	"github.com/pipewright/pipewright/common/models"
)

// BuildStore persists builds to the local build history database.
type BuildStore interface {
	// Create a new build.
	// Returns gerror.ErrAlreadyExists if a build with matching unique properties already exists.
	Create(ctx context.Context, txOrNil *Tx, build *models.Build) error
	// Read an existing build, looking it up by ID.
	// Returns gerror.ErrNotFound if the build does not exist.
	Read(ctx context.Context, txOrNil *Tx, id models.BuildID) (*models.Build, error)
	// Update an existing build. Overrides all previous values using the supplied model.
	Update(ctx context.Context, txOrNil *Tx, build *models.Build) error
	// LockRowForUpdate takes out an exclusive row lock on the build table row for the specified build.
	// This function must be called within a transaction, and will block other transactions from locking,
	// updating or deleting the row until this transaction ends.
	LockRowForUpdate(ctx context.Context, tx *Tx, id models.BuildID) error
	// ListRecent lists up to limit builds, newest first. A limit of zero lists every build.
	ListRecent(ctx context.Context, txOrNil *Tx, limit int) ([]*models.Build, error)
}

// JobStore persists the matrix-expanded job instances of each build.
type JobStore interface {
	// Create a new job.
	Create(ctx context.Context, txOrNil *Tx, job *models.Job) error
	// Read an existing job, looking it up by ID.
	// Returns gerror.ErrNotFound if the job does not exist.
	Read(ctx context.Context, txOrNil *Tx, id models.JobID) (*models.Job, error)
	// Update an existing job. Overrides all previous values using the supplied model.
	Update(ctx context.Context, txOrNil *Tx, job *models.Job) error
	// ListByBuildID lists all jobs belonging to the specified build, ordered
	// by job name and then by matrix combination.
	ListByBuildID(ctx context.Context, txOrNil *Tx, buildID models.BuildID) ([]*models.Job, error)
	// FindLatestSuccessful finds the most recently created job with the given
	// name and fingerprint that succeeded and was not itself skipped.
	// Returns gerror.ErrNotFound if no such job exists.
	FindLatestSuccessful(ctx context.Context, txOrNil *Tx, name models.ResourceName, fingerprint string) (*models.Job, error)
}

// StepStore persists the steps of each job instance.
type StepStore interface {
	// Create a new step.
	Create(ctx context.Context, txOrNil *Tx, step *models.Step) error
	// Update an existing step. Overrides all previous values using the supplied model.
	Update(ctx context.Context, txOrNil *Tx, step *models.Step) error
	// ListByJobID lists all steps belonging to the specified job, in sequence order.
	ListByJobID(ctx context.Context, txOrNil *Tx, jobID models.JobID) ([]*models.Step, error)
}
