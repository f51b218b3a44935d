package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pipewright/pipewright/common/gerror"
	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/runner/logging"
	"github.com/pipewright/pipewright/server/store"
)

// DefaultJobTimeout is the maximum wall-clock time a job may run for when
// its definition does not set a timeout.
const DefaultJobTimeout = time.Hour

// Orchestrator runs a single job from start to finish: it transitions the
// job and its steps through their statuses, persisting each transition, and
// delegates the actual execution of steps to an Executor.
type Orchestrator struct {
	executorConfig ExecutorConfig
	checkout       *GitCheckoutManager
	jobStore       store.JobStore
	stepStore      store.StepStore
	clk            clock.Clock
	logFactory     logger.LogFactory
	log            logger.Log
}

func NewOrchestrator(
	executorConfig ExecutorConfig,
	checkout *GitCheckoutManager,
	jobStore store.JobStore,
	stepStore store.StepStore,
	clk clock.Clock,
	logFactory logger.LogFactory,
) *Orchestrator {
	return &Orchestrator{
		executorConfig: executorConfig,
		checkout:       checkout,
		jobStore:       jobStore,
		stepStore:      stepStore,
		clk:            clk,
		logFactory:     logFactory,
		log:            logFactory("Orchestrator"),
	}
}

// RunJob executes the job and all of its steps, recording the outcome of
// each against the store. Returns an error if the job finished with any
// status other than succeeded.
func (o *Orchestrator) RunJob(ctx context.Context, jobGraph *models.JobGraph, stdLog *logging.StructuredLogger) error {
	job := jobGraph.Job
	log := o.log.WithFields(logger.Fields{"job_id": job.ID.String(), "job_name": job.DisplayName()})
	jobLog := stdLog.Wrapf(job.DisplayName(), "Running job %s...", job.DisplayName())

	err := o.setJobRunning(ctx, job)
	if err != nil {
		return err
	}

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	executor := NewExecutor(o.executorConfig, o.checkout, o.logFactory, jobGraph, jobLog)
	jobErr := o.runSteps(jobCtx, executor, jobGraph, jobLog, log)

	err = executor.PostExecuteJob(context.Background())
	if err != nil {
		log.Errorf("Ignoring error tearing down job: %v", err)
	}

	if jobErr != nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		jobErr = gerror.NewErrTimeout(fmt.Sprintf("job exceeded its timeout of %s", timeout)).Wrap(jobErr)
	}
	// Record the outcome on a fresh context so the final status is
	// persisted even when the build itself was canceled.
	err = o.setJobFinished(context.Background(), job, jobErr)
	if err != nil {
		return err
	}
	if jobErr != nil {
		jobLog.WriteErrorf("Job failed: %s", jobErr)
		return jobErr
	}
	jobLog.WriteLine("Job succeeded")
	return nil
}

// runSteps prepares the executor and runs each of the job's steps in
// sequence. Once a blocking step has failed the remaining steps are marked
// canceled without being run. Steps marked as continue-on-error never fail
// the job.
func (o *Orchestrator) runSteps(
	ctx context.Context,
	executor *Executor,
	jobGraph *models.JobGraph,
	jobLog *logging.StructuredLogger,
	log logger.Log,
) error {
	jobErr := executor.PreExecuteJob(ctx)
	if jobErr != nil {
		jobErr = fmt.Errorf("error preparing job: %w", jobErr)
		jobLog.WriteError(jobErr.Error())
	}
	// Step transitions are persisted on a background context so the record
	// is accurate even when ctx has been canceled part way through the job.
	for _, step := range jobGraph.Steps {
		if jobErr != nil {
			err := o.setStepCanceled(context.Background(), step)
			if err != nil {
				log.Errorf("Ignoring error canceling step %q: %v", step.Name, err)
			}
			continue
		}
		err := o.setStepRunning(context.Background(), step)
		if err != nil {
			jobErr = err
			continue
		}
		stepErr := executor.ExecuteStep(ctx, step)
		err = o.setStepFinished(context.Background(), step, stepErr)
		if err != nil {
			jobErr = err
			continue
		}
		if stepErr != nil {
			if step.ContinueOnError {
				jobLog.WriteLinef("Step %q failed but is marked continue-on-error; continuing", step.Name)
				log.WithField("step_name", step.Name.String()).Infof("Ignoring failure of continue-on-error step: %v", stepErr)
			} else {
				jobErr = stepErr
			}
		}
	}
	return jobErr
}

func (o *Orchestrator) setJobRunning(ctx context.Context, job *models.Job) error {
	now := models.NewTime(o.clk.Now())
	job.Status = models.WorkflowStatusRunning
	job.Timings.RunningAt = &now
	job.UpdatedAt = now
	err := o.jobStore.Update(ctx, nil, job)
	if err != nil {
		return fmt.Errorf("error recording job as running: %w", err)
	}
	return nil
}

func (o *Orchestrator) setJobFinished(ctx context.Context, job *models.Job, jobErr error) error {
	now := models.NewTime(o.clk.Now())
	job.Timings.FinishedAt = &now
	job.UpdatedAt = now
	if jobErr != nil {
		if gerror.IsCanceled(jobErr) {
			job.Status = models.WorkflowStatusCanceled
			job.Timings.CanceledAt = &now
		} else {
			job.Status = models.WorkflowStatusFailed
		}
		job.Error = models.NewError(jobErr)
	} else {
		job.Status = models.WorkflowStatusSucceeded
	}
	err := o.jobStore.Update(ctx, nil, job)
	if err != nil {
		return fmt.Errorf("error recording job as finished: %w", err)
	}
	return nil
}

func (o *Orchestrator) setStepRunning(ctx context.Context, step *models.Step) error {
	now := models.NewTime(o.clk.Now())
	step.Status = models.WorkflowStatusRunning
	step.Timings.RunningAt = &now
	step.UpdatedAt = now
	err := o.stepStore.Update(ctx, nil, step)
	if err != nil {
		return fmt.Errorf("error recording step as running: %w", err)
	}
	return nil
}

func (o *Orchestrator) setStepFinished(ctx context.Context, step *models.Step, stepErr error) error {
	now := models.NewTime(o.clk.Now())
	step.Timings.FinishedAt = &now
	step.UpdatedAt = now
	if stepErr != nil {
		step.Status = models.WorkflowStatusFailed
		step.Error = models.NewError(stepErr)
	} else {
		step.Status = models.WorkflowStatusSucceeded
	}
	err := o.stepStore.Update(ctx, nil, step)
	if err != nil {
		return fmt.Errorf("error recording step as finished: %w", err)
	}
	return nil
}

func (o *Orchestrator) setStepCanceled(ctx context.Context, step *models.Step) error {
	now := models.NewTime(o.clk.Now())
	step.Status = models.WorkflowStatusCanceled
	step.Timings.CanceledAt = &now
	step.Timings.FinishedAt = &now
	step.UpdatedAt = now
	step.Error = models.NewError(gerror.NewErrCanceled("step canceled because an earlier step failed"))
	err := o.stepStore.Update(ctx, nil, step)
	if err != nil {
		return fmt.Errorf("error recording step as canceled: %w", err)
	}
	return nil
}
