package queue

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/pipewright/pipewright/common/gerror"
	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/server/store/builds"
	"github.com/pipewright/pipewright/server/store/jobs"
	"github.com/pipewright/pipewright/server/store/steps"
	"github.com/pipewright/pipewright/server/store/store_test"
)

func newTestQueueService(t *testing.T) (*QueueService, *clock.Mock, func()) {
	logRegistry, err := logger.NewLogRegistry("")
	require.Nil(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)
	db, cleanup, err := store_test.Connect(logFactory)
	require.Nil(t, err)
	clk := clock.NewMock()
	clk.Set(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC))
	service := NewQueueService(
		db,
		builds.NewStore(db, logFactory),
		jobs.NewStore(db, logFactory),
		steps.NewStore(db, logFactory),
		clk,
		logFactory,
		DefaultLimits(),
	)
	return service, clk, cleanup
}

func testWorkflowDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Name: "build",
		Triggers: models.Triggers{
			Push:        &models.TriggerRule{},
			PullRequest: &models.TriggerRule{},
		},
		Jobs: []models.JobDefinition{
			{
				Name:   "test",
				Type:   models.JobTypeExec,
				RunsOn: models.Labels{"ubuntu-latest"},
				Matrix: models.Matrix{"python-version": []string{"3.6", "3.7", "3.8", "3.9"}},
				Environment: models.JobEnvVars{
					{Name: "PYTHON_VERSION", Value: "${{ matrix.python-version }}"},
				},
				Steps: []models.StepDefinition{
					{
						Name:     "install-dependencies",
						Commands: models.Commands{"pip install flake8 coverage"},
					},
					{
						Name:            "lint-advisory",
						Commands:        models.Commands{"flake8 . --exit-zero"},
						ContinueOnError: true,
					},
					{
						Name:     "run-tests",
						Commands: models.Commands{"coverage run -m unittest discover -s Tests.test_pvlive_api"},
					},
				},
			},
			{
				Name:    "package",
				Type:    models.JobTypeExec,
				RunsOn:  models.Labels{"ubuntu-latest"},
				Steps:   []models.StepDefinition{{Name: "sdist", Commands: models.Commands{"python setup.py sdist"}}},
				Timeout: 10 * time.Minute,
			},
		},
	}
}

func pushEvent() *models.Event {
	return &models.Event{
		Kind:      models.EventKindPush,
		Ref:       "refs/heads/main",
		CommitSHA: "0123456789abcdef0123456789abcdef01234567",
	}
}

func TestEnqueueBuildExpandsMatrix(t *testing.T) {
	service, _, cleanup := newTestQueueService(t)
	defer cleanup()
	ctx := context.Background()

	graph, err := service.EnqueueBuild(ctx, nil, testWorkflowDefinition(), pushEvent(), nil)
	require.Nil(t, err)
	require.Equal(t, models.WorkflowStatusQueued, graph.Build.Status)
	require.Equal(t, models.ResourceName("build"), graph.Build.WorkflowName)

	// 4 matrix instances of "test" plus one "package" job
	require.Len(t, graph.Jobs, 5)

	versions := make(map[string]bool)
	for _, jobGraph := range graph.Jobs {
		job := jobGraph.Job
		require.Equal(t, models.WorkflowStatusQueued, job.Status)
		require.NotEmpty(t, job.Fingerprint)
		require.True(t, job.IndirectToJobID.IsZero())
		if job.Name == "test" {
			version := job.Matrix["python-version"]
			versions[version] = true
			// The matrix value must be interpolated into the environment
			require.Len(t, job.Environment, 1)
			require.Equal(t, "PYTHON_VERSION", job.Environment[0].Name)
			require.Equal(t, version, job.Environment[0].Value)
			require.Len(t, jobGraph.Steps, 3)
			require.True(t, jobGraph.Steps[1].ContinueOnError)
		}
	}
	require.Equal(t, map[string]bool{"3.6": true, "3.7": true, "3.8": true, "3.9": true}, versions)

	// The graph must be fully persisted
	persisted, err := service.ReadBuildGraph(ctx, nil, graph.Build.ID)
	require.Nil(t, err)
	require.Equal(t, graph.Build.ID, persisted.Build.ID)
	require.Len(t, persisted.Jobs, 5)
	for _, jobGraph := range persisted.Jobs {
		if jobGraph.Job.Name == "test" {
			require.Len(t, jobGraph.Steps, 3)
		}
	}
}

func TestEnqueueBuildNotTriggered(t *testing.T) {
	service, _, cleanup := newTestQueueService(t)
	defer cleanup()

	def := testWorkflowDefinition()
	def.Triggers = models.Triggers{Push: &models.TriggerRule{Branches: []string{"main"}}}

	event := pushEvent()
	event.Ref = "refs/heads/feature"
	_, err := service.EnqueueBuild(context.Background(), nil, def, event, nil)
	require.NotNil(t, err)
	require.True(t, gerror.IsWorkflowNotTriggered(err))
}

func TestEnqueueBuildJobFilter(t *testing.T) {
	service, _, cleanup := newTestQueueService(t)
	defer cleanup()

	opts := &models.BuildOptions{JobsToRun: []models.ResourceName{"package"}}
	graph, err := service.EnqueueBuild(context.Background(), nil, testWorkflowDefinition(), pushEvent(), opts)
	require.Nil(t, err)
	require.Len(t, graph.Jobs, 1)
	require.Equal(t, models.ResourceName("package"), graph.Jobs[0].Job.Name)

	// Filtering down to an unknown job leaves nothing to run
	opts = &models.BuildOptions{JobsToRun: []models.ResourceName{"deploy"}}
	_, err = service.EnqueueBuild(context.Background(), nil, testWorkflowDefinition(), pushEvent(), opts)
	require.NotNil(t, err)
	require.True(t, gerror.IsValidationFailed(err))
}

func TestEnqueueBuildFingerprintSkip(t *testing.T) {
	service, clk, cleanup := newTestQueueService(t)
	defer cleanup()
	ctx := context.Background()

	first, err := service.EnqueueBuild(ctx, nil, testWorkflowDefinition(), pushEvent(), nil)
	require.Nil(t, err)

	// Simulate the first build running to a successful finish
	now := models.NewTime(clk.Now())
	for _, jobGraph := range first.Jobs {
		jobGraph.Job.Status = models.WorkflowStatusSucceeded
		jobGraph.Job.Timings.FinishedAt = &now
		err = service.jobStore.Update(ctx, nil, jobGraph.Job)
		require.Nil(t, err)
	}

	clk.Add(time.Hour)

	// An identical workflow enqueued again skips every job
	second, err := service.EnqueueBuild(ctx, nil, testWorkflowDefinition(), pushEvent(), nil)
	require.Nil(t, err)
	require.Len(t, second.Jobs, 5)
	for _, jobGraph := range second.Jobs {
		require.Equal(t, models.WorkflowStatusSucceeded, jobGraph.Job.Status)
		require.True(t, jobGraph.Job.WasSkipped())
		require.NotNil(t, jobGraph.Job.Timings.FinishedAt)
	}

	// Changing a command changes the fingerprint, so the job runs again
	changed := testWorkflowDefinition()
	changed.Jobs[1].Steps[0].Commands = models.Commands{"python -m build"}
	third, err := service.EnqueueBuild(ctx, nil, changed, pushEvent(), nil)
	require.Nil(t, err)
	for _, jobGraph := range third.Jobs {
		if jobGraph.Job.Name == "package" {
			require.Equal(t, models.WorkflowStatusQueued, jobGraph.Job.Status)
			require.False(t, jobGraph.Job.WasSkipped())
		} else {
			require.True(t, jobGraph.Job.WasSkipped())
		}
	}

	// Force makes every job run regardless of fingerprints
	forced, err := service.EnqueueBuild(ctx, nil, testWorkflowDefinition(), pushEvent(), &models.BuildOptions{Force: true})
	require.Nil(t, err)
	for _, jobGraph := range forced.Jobs {
		require.Equal(t, models.WorkflowStatusQueued, jobGraph.Job.Status)
		require.False(t, jobGraph.Job.WasSkipped())
	}
}
