package runner

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/pipewright/pipewright/common/gerror"
	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/runner/logging"
	"github.com/pipewright/pipewright/server/store"
)

const (
	// DefaultParallelJobs causes the scheduler to size its worker pool from
	// the number of CPUs on the host.
	DefaultParallelJobs = 0
	// minimumParallelJobs is the smallest worker pool the scheduler will run
	minimumParallelJobs = 2
)

// DefaultRunnerLabels returns the labels this host naturally satisfies,
// including the hosted-runner alias jobs commonly ask for (e.g. a linux
// host satisfies "ubuntu-latest").
func DefaultRunnerLabels() models.Labels {
	labels := models.Labels{"self-hosted", models.Label(runtime.GOOS)}
	switch runtime.GOOS {
	case "linux":
		labels = append(labels, "ubuntu-latest")
	case "darwin":
		labels = append(labels, "macos-latest")
	case "windows":
		labels = append(labels, "windows-latest")
	}
	return labels
}

type SchedulerConfig struct {
	// ParallelJobs is the number of jobs to run concurrently, or
	// DefaultParallelJobs to derive it from the host CPU count.
	ParallelJobs int
	// Labels advertises the capabilities of this runner. A job is only run
	// if its runs-on labels are all present here.
	Labels models.Labels
}

// Scheduler runs all the runnable jobs of a build across a pool of workers
// and records the final build status.
type Scheduler struct {
	orchestrator *Orchestrator
	buildStore   store.BuildStore
	clk          clock.Clock
	config       SchedulerConfig
	log          logger.Log
}

func NewJobScheduler(
	orchestrator *Orchestrator,
	buildStore store.BuildStore,
	clk clock.Clock,
	logFactory logger.LogFactory,
	config SchedulerConfig,
) *Scheduler {
	log := logFactory("Scheduler")
	if config.ParallelJobs == 0 {
		config.ParallelJobs = runtime.NumCPU() / 2
		if config.ParallelJobs < minimumParallelJobs {
			config.ParallelJobs = minimumParallelJobs
		}
	}
	log.Infof("Using %d parallel jobs", config.ParallelJobs)
	return &Scheduler{
		orchestrator: orchestrator,
		buildStore:   buildStore,
		clk:          clk,
		config:       config,
		log:          log,
	}
}

// RunBuild runs every queued job in the build and blocks until they have
// all finished. The build's final status is recorded in the store and in
// graph.Build before returning. Job and step failures are reflected in the
// build status, not in the returned error, which reports infrastructure
// problems only.
func (s *Scheduler) RunBuild(ctx context.Context, graph *models.BuildGraph, stdLog *logging.StructuredLogger) error {
	err := s.setBuildRunning(ctx, graph.Build)
	if err != nil {
		return err
	}

	runnable := s.admitJobs(ctx, graph, stdLog)

	jobC := make(chan *models.JobGraph)
	var wg sync.WaitGroup
	for i := 0; i < s.config.ParallelJobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for jobGraph := range jobC {
				err := s.orchestrator.RunJob(ctx, jobGraph, stdLog)
				if err != nil {
					s.log.WithField("job_name", jobGraph.Job.DisplayName()).
						Infof("Job did not succeed: %v", err)
				}
			}
		}()
	}
	for _, jobGraph := range runnable {
		jobC <- jobGraph
	}
	close(jobC)
	wg.Wait()

	// Record the final status on a fresh context so a canceled build is
	// still persisted as finished.
	return s.setBuildFinished(context.Background(), graph)
}

// admitJobs returns the jobs in the build that should be dispatched to the
// worker pool. Jobs skipped at enqueue time are not run again, and jobs
// whose runs-on labels this runner does not have are failed immediately.
func (s *Scheduler) admitJobs(ctx context.Context, graph *models.BuildGraph, stdLog *logging.StructuredLogger) []*models.JobGraph {
	var runnable []*models.JobGraph
	for _, jobGraph := range graph.Jobs {
		job := jobGraph.Job
		if job.WasSkipped() {
			stdLog.WriteLinef("Job %s skipped; identical job %s previously succeeded", job.DisplayName(), job.IndirectToJobID)
			continue
		}
		if job.Status.HasFinished() {
			continue
		}
		if !s.config.Labels.Contains(job.RunsOn) {
			labelErr := gerror.NewErrNoMatchingRunner(fmt.Sprintf(
				"job %s requires runner labels %v but this runner has %v", job.DisplayName(), job.RunsOn, s.config.Labels))
			stdLog.WriteError(labelErr.Error())
			err := s.failJob(ctx, jobGraph, labelErr)
			if err != nil {
				s.log.Errorf("Ignoring error failing job with no matching runner: %v", err)
			}
			continue
		}
		runnable = append(runnable, jobGraph)
	}
	return runnable
}

// failJob marks a job and all of its steps as failed without running them.
func (s *Scheduler) failJob(ctx context.Context, jobGraph *models.JobGraph, jobErr error) error {
	now := models.NewTime(s.clk.Now())
	for _, step := range jobGraph.Steps {
		step.Status = models.WorkflowStatusCanceled
		step.Timings.CanceledAt = &now
		step.Timings.FinishedAt = &now
		step.UpdatedAt = now
		step.Error = models.NewError(gerror.NewErrCanceled("step canceled because the job could not be scheduled"))
		err := s.orchestrator.stepStore.Update(ctx, nil, step)
		if err != nil {
			return fmt.Errorf("error canceling step: %w", err)
		}
	}
	job := jobGraph.Job
	job.Status = models.WorkflowStatusFailed
	job.Timings.FinishedAt = &now
	job.UpdatedAt = now
	job.Error = models.NewError(jobErr)
	err := s.orchestrator.jobStore.Update(ctx, nil, job)
	if err != nil {
		return fmt.Errorf("error failing job: %w", err)
	}
	return nil
}

func (s *Scheduler) setBuildRunning(ctx context.Context, build *models.Build) error {
	now := models.NewTime(s.clk.Now())
	build.Status = models.WorkflowStatusRunning
	build.Timings.RunningAt = &now
	build.UpdatedAt = now
	err := s.buildStore.Update(ctx, nil, build)
	if err != nil {
		return fmt.Errorf("error recording build as running: %w", err)
	}
	return nil
}

// setBuildFinished records the build's final status: succeeded only if
// every job in the build succeeded.
func (s *Scheduler) setBuildFinished(ctx context.Context, graph *models.BuildGraph) error {
	build := graph.Build
	now := models.NewTime(s.clk.Now())
	build.Timings.FinishedAt = &now
	build.UpdatedAt = now
	unsuccessful := 0
	for _, jobGraph := range graph.Jobs {
		if jobGraph.Job.Status != models.WorkflowStatusSucceeded {
			unsuccessful++
		}
	}
	if unsuccessful > 0 {
		build.Status = models.WorkflowStatusFailed
		build.Error = models.NewError(fmt.Errorf("%d of %d jobs did not succeed", unsuccessful, len(graph.Jobs)))
	} else {
		build.Status = models.WorkflowStatusSucceeded
	}
	err := s.buildStore.Update(ctx, nil, build)
	if err != nil {
		return fmt.Errorf("error recording build as finished: %w", err)
	}
	return nil
}
