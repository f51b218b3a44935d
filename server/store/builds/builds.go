package builds

import (
	"context"

	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/server/store"
)

func init() {
	store.MustDBModel(&models.Build{})
}

type BuildStore struct {
	table *store.ResourceTable
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *BuildStore {
	return &BuildStore{
		table: store.NewResourceTable(db, logFactory, &models.Build{}),
	}
}

// Create a new build.
// Returns gerror.ErrAlreadyExists if a build with matching unique properties already exists.
func (d *BuildStore) Create(ctx context.Context, txOrNil *store.Tx, build *models.Build) error {
	return d.table.Create(ctx, txOrNil, build)
}

// Read an existing build, looking it up by ID.
// Returns gerror.ErrNotFound if the build does not exist.
func (d *BuildStore) Read(ctx context.Context, txOrNil *store.Tx, id models.BuildID) (*models.Build, error) {
	build := &models.Build{}
	return build, d.table.ReadByID(ctx, txOrNil, id.ResourceID, build)
}

// Update an existing build. Overrides all previous values using the supplied model.
func (d *BuildStore) Update(ctx context.Context, txOrNil *store.Tx, build *models.Build) error {
	return d.table.UpdateByID(ctx, txOrNil, build)
}

// LockRowForUpdate takes out an exclusive row lock on the build table row for the specified build.
// This function must be called within a transaction, and will block other transactions from locking, updating
// or deleting the row until this transaction ends.
func (d *BuildStore) LockRowForUpdate(ctx context.Context, tx *store.Tx, id models.BuildID) error {
	return d.table.LockRowForUpdate(ctx, tx, id.ResourceID)
}

// ListRecent lists up to limit builds, newest first. A limit of zero lists every build.
func (d *BuildStore) ListRecent(ctx context.Context, txOrNil *store.Tx, limit int) ([]*models.Build, error) {
	ds := d.table.Dialect().From(d.table.TableName()).Select(&models.Build{})
	var builds []*models.Build
	err := d.table.ListIn(ctx, txOrNil, &builds, limit, ds)
	if err != nil {
		return nil, err
	}
	return builds, nil
}
