package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pipewright/pipewright/common/gerror"
	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/server/store"
	"github.com/pipewright/pipewright/server/store/builds"
	"github.com/pipewright/pipewright/server/store/jobs"
	"github.com/pipewright/pipewright/server/store/steps"
	"github.com/pipewright/pipewright/server/store/store_test"
)

type testStores struct {
	db     *store.DB
	builds *builds.BuildStore
	jobs   *jobs.JobStore
	steps  *steps.StepStore
}

func newTestStores(t *testing.T) (*testStores, func()) {
	logRegistry, err := logger.NewLogRegistry("")
	require.Nil(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)
	db, cleanup, err := store_test.Connect(logFactory)
	require.Nil(t, err)
	return &testStores{
		db:     db,
		builds: builds.NewStore(db, logFactory),
		jobs:   jobs.NewStore(db, logFactory),
		steps:  steps.NewStore(db, logFactory),
	}, cleanup
}

func testBuild(now models.Time) *models.Build {
	return models.NewBuild(now, "build", &models.Event{
		Kind:      models.EventKindPush,
		Ref:       "refs/heads/main",
		CommitSHA: "0123456789abcdef0123456789abcdef01234567",
	})
}

func testJob(now models.Time, build *models.Build, name models.ResourceName, fingerprint string) *models.Job {
	return &models.Job{
		ID:          models.NewJobID(),
		CreatedAt:   now,
		UpdatedAt:   now,
		BuildID:     build.ID,
		Name:        name,
		Type:        models.JobTypeExec,
		RunsOn:      models.Labels{"ubuntu-latest"},
		Matrix:      models.MatrixCombination{"python-version": "3.8"},
		Ref:         build.Ref,
		CommitSHA:   build.CommitSHA,
		Status:      models.WorkflowStatusQueued,
		Timings:     models.WorkflowTimings{QueuedAt: &now},
		Fingerprint: fingerprint,
	}
}

func TestBuildRoundTrip(t *testing.T) {
	stores, cleanup := newTestStores(t)
	defer cleanup()
	ctx := context.Background()
	now := models.NewTime(time.Now())

	build := testBuild(now)
	err := stores.builds.Create(ctx, nil, build)
	require.Nil(t, err)

	// Creating the same build twice must fail with ErrAlreadyExists
	err = stores.builds.Create(ctx, nil, build)
	require.NotNil(t, err)
	require.NotNil(t, gerror.ToAlreadyExists(err))

	read, err := stores.builds.Read(ctx, nil, build.ID)
	require.Nil(t, err)
	require.Equal(t, build.ID, read.ID)
	require.Equal(t, build.WorkflowName, read.WorkflowName)
	require.Equal(t, models.EventKindPush, read.EventKind)
	require.Equal(t, models.WorkflowStatusQueued, read.Status)
	require.NotNil(t, read.Timings.QueuedAt)

	read.Status = models.WorkflowStatusSucceeded
	read.Timings.FinishedAt = &now
	err = stores.builds.Update(ctx, nil, read)
	require.Nil(t, err)

	read, err = stores.builds.Read(ctx, nil, build.ID)
	require.Nil(t, err)
	require.Equal(t, models.WorkflowStatusSucceeded, read.Status)
	require.NotNil(t, read.Timings.FinishedAt)

	_, err = stores.builds.Read(ctx, nil, models.NewBuildID())
	require.NotNil(t, err)
	require.NotNil(t, gerror.ToNotFound(err))
}

func TestListRecentBuilds(t *testing.T) {
	stores, cleanup := newTestStores(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		build := testBuild(models.NewTime(base.Add(time.Duration(i) * time.Second)))
		err := stores.builds.Create(ctx, nil, build)
		require.Nil(t, err)
	}

	listed, err := stores.builds.ListRecent(ctx, nil, 3)
	require.Nil(t, err)
	require.Len(t, listed, 3)
	// Newest first
	require.True(t, !listed[0].CreatedAt.Time.Before(listed[1].CreatedAt.Time))
	require.True(t, !listed[1].CreatedAt.Time.Before(listed[2].CreatedAt.Time))

	listed, err = stores.builds.ListRecent(ctx, nil, 0)
	require.Nil(t, err)
	require.Len(t, listed, 5)
}

func TestJobAndStepRoundTrip(t *testing.T) {
	stores, cleanup := newTestStores(t)
	defer cleanup()
	ctx := context.Background()
	now := models.NewTime(time.Now())

	build := testBuild(now)
	err := stores.builds.Create(ctx, nil, build)
	require.Nil(t, err)

	job := testJob(now, build, "test", "abc123")
	err = stores.jobs.Create(ctx, nil, job)
	require.Nil(t, err)

	for i, name := range []models.ResourceName{"lint", "run-tests"} {
		step := &models.Step{
			ID:        models.NewStepID(),
			CreatedAt: now,
			UpdatedAt: now,
			JobID:     job.ID,
			Name:      name,
			Sequence:  i,
			Commands:  models.Commands{"echo hello"},
			Status:    models.WorkflowStatusQueued,
			Timings:   models.WorkflowTimings{QueuedAt: &now},
		}
		err = stores.steps.Create(ctx, nil, step)
		require.Nil(t, err)
	}

	listedJobs, err := stores.jobs.ListByBuildID(ctx, nil, build.ID)
	require.Nil(t, err)
	require.Len(t, listedJobs, 1)
	require.Equal(t, job.ID, listedJobs[0].ID)
	require.Equal(t, models.MatrixCombination{"python-version": "3.8"}, listedJobs[0].Matrix)
	require.Equal(t, models.Labels{"ubuntu-latest"}, listedJobs[0].RunsOn)

	listedSteps, err := stores.steps.ListByJobID(ctx, nil, job.ID)
	require.Nil(t, err)
	require.Len(t, listedSteps, 2)
	require.Equal(t, models.ResourceName("lint"), listedSteps[0].Name)
	require.Equal(t, models.ResourceName("run-tests"), listedSteps[1].Name)

	listedSteps[0].Status = models.WorkflowStatusFailed
	listedSteps[0].Error = models.NewError(gerror.NewErrStepFailed("exit status 1", nil))
	err = stores.steps.Update(ctx, nil, listedSteps[0])
	require.Nil(t, err)

	listedSteps, err = stores.steps.ListByJobID(ctx, nil, job.ID)
	require.Nil(t, err)
	require.Equal(t, models.WorkflowStatusFailed, listedSteps[0].Status)
	require.NotNil(t, listedSteps[0].Error)
}

func TestFindLatestSuccessfulJob(t *testing.T) {
	stores, cleanup := newTestStores(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now()
	makeJob := func(offset time.Duration, status models.WorkflowStatus, fingerprint string) *models.Job {
		now := models.NewTime(base.Add(offset))
		build := testBuild(now)
		err := stores.builds.Create(ctx, nil, build)
		require.Nil(t, err)
		job := testJob(now, build, "test", fingerprint)
		job.Status = status
		err = stores.jobs.Create(ctx, nil, job)
		require.Nil(t, err)
		return job
	}

	_, err := stores.jobs.FindLatestSuccessful(ctx, nil, "test", "fp1")
	require.NotNil(t, err)
	require.NotNil(t, gerror.ToNotFound(err))

	makeJob(0, models.WorkflowStatusFailed, "fp1")
	older := makeJob(time.Second, models.WorkflowStatusSucceeded, "fp1")
	newer := makeJob(2*time.Second, models.WorkflowStatusSucceeded, "fp1")
	makeJob(3*time.Second, models.WorkflowStatusSucceeded, "fp2")

	found, err := stores.jobs.FindLatestSuccessful(ctx, nil, "test", "fp1")
	require.Nil(t, err)
	require.Equal(t, newer.ID, found.ID)
	require.NotEqual(t, older.ID, found.ID)

	// A job that was itself skipped must not be used as a skip target
	skipped := makeJob(4*time.Second, models.WorkflowStatusSucceeded, "fp1")
	skipped.IndirectToJobID = newer.ID
	err = stores.jobs.Update(ctx, nil, skipped)
	require.Nil(t, err)

	found, err = stores.jobs.FindLatestSuccessful(ctx, nil, "test", "fp1")
	require.Nil(t, err)
	require.Equal(t, newer.ID, found.ID)
}
