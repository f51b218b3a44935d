package jobs

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/server/store"
)

func init() {
	store.MustDBModel(&models.Job{})
}

type JobStore struct {
	table *store.ResourceTable
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *JobStore {
	return &JobStore{
		table: store.NewResourceTable(db, logFactory, &models.Job{}),
	}
}

// Create a new job.
func (d *JobStore) Create(ctx context.Context, txOrNil *store.Tx, job *models.Job) error {
	return d.table.Create(ctx, txOrNil, job)
}

// Read an existing job, looking it up by ID.
// Returns gerror.ErrNotFound if the job does not exist.
func (d *JobStore) Read(ctx context.Context, txOrNil *store.Tx, id models.JobID) (*models.Job, error) {
	job := &models.Job{}
	return job, d.table.ReadByID(ctx, txOrNil, id.ResourceID, job)
}

// Update an existing job. Overrides all previous values using the supplied model.
func (d *JobStore) Update(ctx context.Context, txOrNil *store.Tx, job *models.Job) error {
	return d.table.UpdateByID(ctx, txOrNil, job)
}

// ListByBuildID lists all jobs belonging to the specified build, ordered by
// job name and then by matrix combination so the list is stable across reads.
func (d *JobStore) ListByBuildID(ctx context.Context, txOrNil *store.Tx, buildID models.BuildID) ([]*models.Job, error) {
	ds := d.table.Dialect().From(d.table.TableName()).
		Select(&models.Job{}).
		Where(goqu.Ex{"job_build_id": buildID}).
		Order(goqu.I("job_name").Asc()).
		OrderAppend(goqu.I("job_matrix").Asc())
	var jobs []*models.Job
	err := d.table.ListInOrder(ctx, txOrNil, &jobs, ds)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// FindLatestSuccessful finds the most recently created job with the given name
// and fingerprint that succeeded and was not itself skipped.
// Returns gerror.ErrNotFound if no such job exists.
func (d *JobStore) FindLatestSuccessful(ctx context.Context, txOrNil *store.Tx, name models.ResourceName, fingerprint string) (*models.Job, error) {
	ds := d.table.Dialect().From(d.table.TableName()).
		Select(&models.Job{}).
		Where(goqu.Ex{
			"job_name":        name,
			"job_fingerprint": fingerprint,
			"job_status":      models.WorkflowStatusSucceeded,
		}).
		Where(goqu.Or(
			goqu.C("job_indirect_to_job_id").IsNull(),
			goqu.C("job_indirect_to_job_id").Eq(""),
		)).
		Order(goqu.I("job_created_at").Desc()).
		OrderAppend(goqu.I("job_id").Desc()).
		Limit(1)
	job := &models.Job{}
	err := d.table.ReadIn(ctx, txOrNil, job, ds)
	if err != nil {
		return nil, err
	}
	return job, nil
}
