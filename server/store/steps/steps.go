package steps

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/server/store"
)

func init() {
	store.MustDBModel(&models.Step{})
}

type StepStore struct {
	table *store.ResourceTable
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *StepStore {
	return &StepStore{
		table: store.NewResourceTable(db, logFactory, &models.Step{}),
	}
}

// Create a new step.
func (d *StepStore) Create(ctx context.Context, txOrNil *store.Tx, step *models.Step) error {
	return d.table.Create(ctx, txOrNil, step)
}

// Update an existing step. Overrides all previous values using the supplied model.
func (d *StepStore) Update(ctx context.Context, txOrNil *store.Tx, step *models.Step) error {
	return d.table.UpdateByID(ctx, txOrNil, step)
}

// ListByJobID lists all steps belonging to the specified job, in sequence order.
func (d *StepStore) ListByJobID(ctx context.Context, txOrNil *store.Tx, jobID models.JobID) ([]*models.Step, error) {
	ds := d.table.Dialect().From(d.table.TableName()).
		Select(&models.Step{}).
		Where(goqu.Ex{"step_job_id": jobID}).
		Order(goqu.I("step_sequence").Asc())
	var steps []*models.Step
	err := d.table.ListInOrder(ctx, txOrNil, &steps, ds)
	if err != nil {
		return nil, err
	}
	return steps, nil
}
