package runner

import (
	"context"
	"io"
	goruntime "runtime"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/pipewright/pipewright/common/gerror"
	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/runner/logging"
	"github.com/pipewright/pipewright/server/services/queue"
	"github.com/pipewright/pipewright/server/store"
	"github.com/pipewright/pipewright/server/store/builds"
	"github.com/pipewright/pipewright/server/store/jobs"
	"github.com/pipewright/pipewright/server/store/steps"
	"github.com/pipewright/pipewright/server/store/store_test"
)

type testFixture struct {
	queueService *queue.QueueService
	scheduler    *Scheduler
	buildStore   store.BuildStore
	jobStore     store.JobStore
	stepStore    store.StepStore
	stdLog       *logging.StructuredLogger
}

func newTestFixture(t *testing.T, workDir string, schedulerConfig SchedulerConfig) *testFixture {
	if goruntime.GOOS == "windows" {
		t.Skip("test runs POSIX shell commands")
	}
	registry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(registry)

	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	buildStore := builds.NewStore(db, logFactory)
	jobStore := jobs.NewStore(db, logFactory)
	stepStore := steps.NewStore(db, logFactory)
	clk := clock.New()

	queueService := queue.NewQueueService(db, buildStore, jobStore, stepStore, clk, logFactory, queue.DefaultLimits())

	executorConfig := ExecutorConfig{RepoDir: workDir, IsLocal: true}
	checkout := NewGitCheckoutManager(logFactory)
	orchestrator := NewOrchestrator(executorConfig, checkout, jobStore, stepStore, clk, logFactory)
	scheduler := NewJobScheduler(orchestrator, buildStore, clk, logFactory, schedulerConfig)

	return &testFixture{
		queueService: queueService,
		scheduler:    scheduler,
		buildStore:   buildStore,
		jobStore:     jobStore,
		stepStore:    stepStore,
		stdLog:       logging.NewStructuredLogger(logFactory, io.Discard),
	}
}

func pushEvent() *models.Event {
	return &models.Event{
		Kind: models.EventKindPush,
		Ref:  "refs/heads/main",
	}
}

func (f *testFixture) enqueueAndRun(t *testing.T, def *models.WorkflowDefinition) *models.BuildGraph {
	ctx := context.Background()
	graph, err := f.queueService.EnqueueBuild(ctx, nil, def, pushEvent(), nil)
	require.NoError(t, err)
	err = f.scheduler.RunBuild(ctx, graph, f.stdLog)
	require.NoError(t, err)
	return graph
}

func (f *testFixture) jobByName(t *testing.T, graph *models.BuildGraph, name string) *models.JobGraph {
	for _, jobGraph := range graph.Jobs {
		if jobGraph.Job.Name.String() == name {
			return jobGraph
		}
	}
	t.Fatalf("no job named %q in build", name)
	return nil
}

func TestRunBuildSucceeds(t *testing.T) {
	f := newTestFixture(t, t.TempDir(), SchedulerConfig{ParallelJobs: 2})
	def := &models.WorkflowDefinition{
		Name: "build",
		Triggers: models.Triggers{
			Push: &models.TriggerRule{},
		},
		Jobs: []models.JobDefinition{
			{
				Name: "greet",
				Type: models.JobTypeExec,
				Steps: []models.StepDefinition{
					{Name: "hello", Commands: models.Commands{"echo hello"}},
					{Name: "env", Commands: models.Commands{"test \"$PW_JOB_NAME\" = greet"}},
				},
			},
		},
	}
	graph := f.enqueueAndRun(t, def)

	require.Equal(t, models.WorkflowStatusSucceeded, graph.Build.Status)
	require.NotNil(t, graph.Build.Timings.FinishedAt)
	job := f.jobByName(t, graph, "greet")
	require.Equal(t, models.WorkflowStatusSucceeded, job.Job.Status)
	for _, step := range job.Steps {
		require.Equal(t, models.WorkflowStatusSucceeded, step.Status)
		require.NotNil(t, step.Timings.FinishedAt)
	}

	// the persisted build must agree with the in-memory graph
	stored, err := f.buildStore.Read(context.Background(), nil, graph.Build.ID)
	require.NoError(t, err)
	require.Equal(t, models.WorkflowStatusSucceeded, stored.Status)
}

func TestRunBuildBlockingStepFailureCancelsRemainingSteps(t *testing.T) {
	f := newTestFixture(t, t.TempDir(), SchedulerConfig{ParallelJobs: 2})
	def := &models.WorkflowDefinition{
		Name:     "build",
		Triggers: models.Triggers{Push: &models.TriggerRule{}},
		Jobs: []models.JobDefinition{
			{
				Name: "broken",
				Type: models.JobTypeExec,
				Steps: []models.StepDefinition{
					{Name: "first", Commands: models.Commands{"echo ok"}},
					{Name: "boom", Commands: models.Commands{"exit 3"}},
					{Name: "never", Commands: models.Commands{"echo unreachable"}},
				},
			},
			{
				Name: "healthy",
				Type: models.JobTypeExec,
				Steps: []models.StepDefinition{
					{Name: "fine", Commands: models.Commands{"true"}},
				},
			},
		},
	}
	graph := f.enqueueAndRun(t, def)

	require.Equal(t, models.WorkflowStatusFailed, graph.Build.Status)

	broken := f.jobByName(t, graph, "broken")
	require.Equal(t, models.WorkflowStatusFailed, broken.Job.Status)
	require.NotNil(t, broken.Job.Error)
	require.Equal(t, models.WorkflowStatusSucceeded, broken.Steps[0].Status)
	require.Equal(t, models.WorkflowStatusFailed, broken.Steps[1].Status)
	require.Equal(t, models.WorkflowStatusCanceled, broken.Steps[2].Status)

	// an unrelated job in the same build still runs to completion
	healthy := f.jobByName(t, graph, "healthy")
	require.Equal(t, models.WorkflowStatusSucceeded, healthy.Job.Status)
}

func TestRunBuildContinueOnErrorStepIsAdvisory(t *testing.T) {
	f := newTestFixture(t, t.TempDir(), SchedulerConfig{ParallelJobs: 2})
	def := &models.WorkflowDefinition{
		Name:     "build",
		Triggers: models.Triggers{Push: &models.TriggerRule{}},
		Jobs: []models.JobDefinition{
			{
				Name: "lint",
				Type: models.JobTypeExec,
				Steps: []models.StepDefinition{
					{Name: "advisory", Commands: models.Commands{"exit 1"}, ContinueOnError: true},
					{Name: "after", Commands: models.Commands{"echo still running"}},
				},
			},
		},
	}
	graph := f.enqueueAndRun(t, def)

	require.Equal(t, models.WorkflowStatusSucceeded, graph.Build.Status)
	job := f.jobByName(t, graph, "lint")
	require.Equal(t, models.WorkflowStatusSucceeded, job.Job.Status)
	// the advisory step itself is still recorded as failed
	require.Equal(t, models.WorkflowStatusFailed, job.Steps[0].Status)
	require.NotNil(t, job.Steps[0].Error)
	require.Equal(t, models.WorkflowStatusSucceeded, job.Steps[1].Status)
}

func TestRunBuildNoMatchingRunnerLabels(t *testing.T) {
	f := newTestFixture(t, t.TempDir(), SchedulerConfig{
		ParallelJobs: 2,
		Labels:       models.Labels{"linux"},
	})
	def := &models.WorkflowDefinition{
		Name:     "build",
		Triggers: models.Triggers{Push: &models.TriggerRule{}},
		Jobs: []models.JobDefinition{
			{
				Name:   "needs-gpu",
				Type:   models.JobTypeExec,
				RunsOn: models.Labels{"linux", "gpu"},
				Steps: []models.StepDefinition{
					{Name: "train", Commands: models.Commands{"echo training"}},
				},
			},
		},
	}
	graph := f.enqueueAndRun(t, def)

	require.Equal(t, models.WorkflowStatusFailed, graph.Build.Status)
	job := f.jobByName(t, graph, "needs-gpu")
	require.Equal(t, models.WorkflowStatusFailed, job.Job.Status)
	require.NotNil(t, job.Job.Error)
	require.True(t, gerror.IsNoMatchingRunner(job.Job.Error))
	// the step never ran
	require.Equal(t, models.WorkflowStatusCanceled, job.Steps[0].Status)
}

func TestRunBuildJobTimeout(t *testing.T) {
	f := newTestFixture(t, t.TempDir(), SchedulerConfig{ParallelJobs: 2})
	def := &models.WorkflowDefinition{
		Name:     "build",
		Triggers: models.Triggers{Push: &models.TriggerRule{}},
		Jobs: []models.JobDefinition{
			{
				Name:    "slow",
				Type:    models.JobTypeExec,
				Timeout: 100 * time.Millisecond,
				Steps: []models.StepDefinition{
					{Name: "sleep", Commands: models.Commands{"sleep 10"}},
				},
			},
		},
	}
	graph := f.enqueueAndRun(t, def)

	require.Equal(t, models.WorkflowStatusFailed, graph.Build.Status)
	job := f.jobByName(t, graph, "slow")
	require.Equal(t, models.WorkflowStatusFailed, job.Job.Status)
	require.True(t, gerror.IsTimeout(job.Job.Error))
}
