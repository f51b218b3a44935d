package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/benbjohnson/clock"
	"github.com/mitchellh/hashstructure/v2"

	"github.com/pipewright/pipewright/common/gerror"
	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/server/services/queue/parser"
	"github.com/pipewright/pipewright/server/store"
)

const (
	DefaultMaxWorkflowConfigLength int = 2 * 1024 * 1024 // 2 megabytes
	DefaultMaxJobsPerWorkflow      int = 256
	DefaultMaxStepsPerJob          int = 20
)

type LimitsConfig struct {
	// MaxWorkflowConfigLength is the maximum length a workflow configuration file is allowed to be, in bytes.
	MaxWorkflowConfigLength int
	// MaxJobsPerWorkflow is the maximum number of jobs allowed in a single workflow, counted after
	// matrix expansion. Any workflow definition expanding to more jobs will be rejected.
	MaxJobsPerWorkflow int
	// MaxStepsPerJob is the maximum number of steps allowed in any single job. Any workflow
	// definition containing a job with more than this number of steps will be rejected.
	MaxStepsPerJob int
}

func DefaultLimits() LimitsConfig {
	return LimitsConfig{
		MaxWorkflowConfigLength: DefaultMaxWorkflowConfigLength,
		MaxJobsPerWorkflow:      DefaultMaxJobsPerWorkflow,
		MaxStepsPerJob:          DefaultMaxStepsPerJob,
	}
}

// QueueService turns workflow definitions into persisted builds ready for a
// runner to execute: it matches trigger rules against the incoming event,
// expands each job over its matrix, interpolates matrix values into commands
// and environments, and skips jobs whose fingerprint matches a previously
// successful run.
type QueueService struct {
	db         *store.DB
	buildStore store.BuildStore
	jobStore   store.JobStore
	stepStore  store.StepStore
	clk        clock.Clock
	limits     LimitsConfig
	logger.Log
}

func NewQueueService(
	db *store.DB,
	buildStore store.BuildStore,
	jobStore store.JobStore,
	stepStore store.StepStore,
	clk clock.Clock,
	logFactory logger.LogFactory,
	limits LimitsConfig,
) *QueueService {
	return &QueueService{
		db:         db,
		buildStore: buildStore,
		jobStore:   jobStore,
		stepStore:  stepStore,
		clk:        clk,
		limits:     limits,
		Log:        logFactory("QueueService"),
	}
}

// FindWorkflowConfig locates the workflow configuration file in the specified
// directory, checking the well-known file names for each supported format.
// Returns the file path and config type, or ConfigTypeNoConfig if the
// directory contains no workflow file.
func (s *QueueService) FindWorkflowConfig(dir string) (string, models.ConfigType, error) {
	candidates := []struct {
		names      []string
		configType models.ConfigType
	}{
		{parser.JSONNETWorkflowFileNames, models.ConfigTypeJSONNET},
		{parser.YAMLWorkflowFileNames, models.ConfigTypeYAML},
		{parser.JSONWorkflowFileNames, models.ConfigTypeJSON},
	}
	for _, candidate := range candidates {
		for _, name := range candidate.names {
			path := filepath.Join(dir, name)
			info, err := os.Stat(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return "", models.ConfigTypeNoConfig, fmt.Errorf("error checking for workflow file %q: %w", path, err)
			}
			if info.IsDir() {
				continue
			}
			return path, candidate.configType, nil
		}
	}
	return "", models.ConfigTypeNoConfig, nil
}

// ReadWorkflowDefinition locates, reads and parses the workflow configuration
// file in the specified directory.
// Returns a validation error if the directory contains no workflow file or
// the file fails to parse.
func (s *QueueService) ReadWorkflowDefinition(dir string) (*models.WorkflowDefinition, error) {
	path, configType, err := s.FindWorkflowConfig(dir)
	if err != nil {
		return nil, err
	}
	if configType == models.ConfigTypeNoConfig {
		return nil, gerror.NewErrValidationFailed(fmt.Sprintf("no workflow file found in %q", dir))
	}
	config, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading workflow file %q: %w", path, err)
	}
	err = s.CheckWorkflowConfigLength(len(config))
	if err != nil {
		return nil, err
	}
	workflowParser := parser.NewWorkflowParser(s.getParserLimits())
	def, err := workflowParser.Parse(config, configType)
	if err != nil {
		return nil, gerror.NewErrValidationFailed(err.Error()).Wrap(err)
	}
	return def, nil
}

// CheckWorkflowConfigLength returns an error if the supplied length (in bytes) is too long for a
// workflow configuration, or if the configuration is empty.
func (s *QueueService) CheckWorkflowConfigLength(length int) error {
	if length == 0 {
		return gerror.NewErrValidationFailed("workflow configuration is empty")
	}
	if length > s.limits.MaxWorkflowConfigLength {
		return gerror.NewErrValidationFailed(fmt.Sprintf(
			"workflow configuration is too long (length is %d bytes, maximum allowed is %d)",
			length, s.limits.MaxWorkflowConfigLength))
	}
	return nil
}

// EnqueueBuild creates a new build from the supplied workflow definition and
// event, persisting the build together with its matrix-expanded jobs and
// steps, all in the queued state.
// Returns gerror.ErrWorkflowNotTriggered if the event does not fire the
// workflow's trigger rules.
// Jobs whose fingerprint matches a previously successful run are persisted
// already succeeded and indirected to the earlier job, unless opts.Force is set.
func (s *QueueService) EnqueueBuild(
	ctx context.Context,
	txOrNil *store.Tx,
	def *models.WorkflowDefinition,
	event *models.Event,
	opts *models.BuildOptions,
) (*models.BuildGraph, error) {
	err := def.Validate()
	if err != nil {
		return nil, gerror.NewErrValidationFailed(err.Error()).Wrap(err)
	}
	err = event.Validate()
	if err != nil {
		return nil, gerror.NewErrValidationFailed(err.Error()).Wrap(err)
	}
	if opts == nil {
		opts = &models.BuildOptions{}
	}

	matched, err := EventMatches(&def.Triggers, event)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, gerror.NewErrWorkflowNotTriggered(fmt.Sprintf(
			"workflow %q is not triggered by %s event for ref %q", def.Name, event.Kind, event.Ref))
	}

	graph, err := s.makeBuildGraph(def, event, opts)
	if err != nil {
		return nil, fmt.Errorf("error creating build graph: %w", err)
	}

	err = s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		err := s.buildStore.Create(ctx, tx, graph.Build)
		if err != nil {
			return fmt.Errorf("error creating build: %w", err)
		}
		for _, jobGraph := range graph.Jobs {
			if !opts.Force {
				err := s.indirectIfPreviouslySucceeded(ctx, tx, jobGraph)
				if err != nil {
					return err
				}
			}
			err = s.jobStore.Create(ctx, tx, jobGraph.Job)
			if err != nil {
				return fmt.Errorf("error creating job %q: %w", jobGraph.Job.DisplayName(), err)
			}
			for _, step := range jobGraph.Steps {
				err = s.stepStore.Create(ctx, tx, step)
				if err != nil {
					return fmt.Errorf("error creating step %q: %w", step.Name, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Infof("Enqueued build %s for workflow %q with %d job(s)", graph.Build.ID, def.Name, len(graph.Jobs))
	return graph, nil
}

// makeBuildGraph expands the workflow definition into a build with one job
// instance per matrix combination, with all matrix expressions interpolated.
func (s *QueueService) makeBuildGraph(
	def *models.WorkflowDefinition,
	event *models.Event,
	opts *models.BuildOptions,
) (*models.BuildGraph, error) {
	now := models.NewTime(s.clk.Now())
	build := models.NewBuild(now, def.Name, event)
	graph := &models.BuildGraph{Build: build}

	totalJobs := 0
	for i := range def.Jobs {
		jobDef := &def.Jobs[i]
		if !opts.ShouldRunJob(jobDef.Name) {
			continue
		}
		combinations := jobDef.Matrix.Expand()
		totalJobs += len(combinations)
		if totalJobs > s.limits.MaxJobsPerWorkflow {
			return nil, gerror.NewErrValidationFailed(fmt.Sprintf(
				"workflow expands to more than %d jobs", s.limits.MaxJobsPerWorkflow))
		}
		for _, combination := range combinations {
			jobGraph, err := s.makeJobGraph(build, jobDef, combination, now)
			if err != nil {
				return nil, err
			}
			graph.Jobs = append(graph.Jobs, jobGraph)
		}
	}
	if len(graph.Jobs) == 0 {
		return nil, gerror.NewErrValidationFailed("no jobs to run; check the job names passed to the build options")
	}
	return graph, nil
}

// makeJobGraph creates one queued job instance plus its steps for a single
// matrix combination, interpolating matrix values and fingerprinting the
// interpolated definition.
func (s *QueueService) makeJobGraph(
	build *models.Build,
	jobDef *models.JobDefinition,
	combination models.MatrixCombination,
	now models.Time,
) (*models.JobGraph, error) {
	env, err := interpolateEnv(jobDef.Environment, combination)
	if err != nil {
		return nil, fmt.Errorf("error interpolating environment for job %q: %w", jobDef.Name, err)
	}
	job := &models.Job{
		ID:          models.NewJobID(),
		CreatedAt:   now,
		UpdatedAt:   now,
		BuildID:     build.ID,
		Name:        jobDef.Name,
		Description: jobDef.Description,
		Type:        jobDef.Type,
		RunsOn:      jobDef.RunsOn,
		Matrix:      combination,
		Environment: env,
		Ref:         build.Ref,
		CommitSHA:   build.CommitSHA,
		Status:      models.WorkflowStatusQueued,
		Timings:     models.WorkflowTimings{QueuedAt: &now},
		Timeout:     jobDef.Timeout,
	}
	jobGraph := &models.JobGraph{Job: job}
	for i := range jobDef.Steps {
		stepDef := &jobDef.Steps[i]
		commands, err := interpolateCommands(stepDef.Commands, combination)
		if err != nil {
			return nil, fmt.Errorf("error interpolating commands for step %q: %w", stepDef.Name, err)
		}
		stepEnv, err := interpolateEnv(stepDef.Environment, combination)
		if err != nil {
			return nil, fmt.Errorf("error interpolating environment for step %q: %w", stepDef.Name, err)
		}
		jobGraph.Steps = append(jobGraph.Steps, &models.Step{
			ID:              models.NewStepID(),
			CreatedAt:       now,
			UpdatedAt:       now,
			JobID:           job.ID,
			Name:            stepDef.Name,
			Description:     stepDef.Description,
			Sequence:        i,
			Commands:        commands,
			Environment:     stepEnv,
			ContinueOnError: stepDef.ContinueOnError,
			Status:          models.WorkflowStatusQueued,
			Timings:         models.WorkflowTimings{QueuedAt: &now},
		})
	}
	job.Fingerprint, err = s.fingerprintJob(jobGraph)
	if err != nil {
		return nil, fmt.Errorf("error fingerprinting job %q: %w", job.DisplayName(), err)
	}
	return jobGraph, nil
}

// jobFingerprintData is the subset of a job's interpolated definition that
// determines whether two job instances are functionally identical.
type jobFingerprintData struct {
	Name        string
	Type        string
	RunsOn      []string
	Matrix      map[string]string
	Environment map[string]string
	Steps       []stepFingerprintData
}

type stepFingerprintData struct {
	Name            string
	Commands        []string
	Environment     map[string]string
	ContinueOnError bool
}

func (s *QueueService) fingerprintJob(jobGraph *models.JobGraph) (string, error) {
	job := jobGraph.Job
	data := jobFingerprintData{
		Name:        job.Name.String(),
		Type:        string(job.Type),
		RunsOn:      labelsToStrings(job.RunsOn),
		Matrix:      job.Matrix,
		Environment: envToMap(job.Environment),
	}
	for _, step := range jobGraph.Steps {
		data.Steps = append(data.Steps, stepFingerprintData{
			Name:            step.Name.String(),
			Commands:        step.Commands.Strings(),
			Environment:     envToMap(step.Environment),
			ContinueOnError: step.ContinueOnError,
		})
	}
	hash, err := hashstructure.Hash(data, hashstructure.FormatV2, nil)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash), nil
}

// indirectIfPreviouslySucceeded checks the build history for a successful job
// with the same name and fingerprint, and if one exists marks the new job
// instance (and its steps) as already succeeded, indirected to the earlier job.
func (s *QueueService) indirectIfPreviouslySucceeded(ctx context.Context, tx *store.Tx, jobGraph *models.JobGraph) error {
	job := jobGraph.Job
	previous, err := s.jobStore.FindLatestSuccessful(ctx, tx, job.Name, job.Fingerprint)
	if err != nil {
		if gerror.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("error looking up previous job run for %q: %w", job.DisplayName(), err)
	}
	now := models.NewTime(s.clk.Now())
	job.Status = models.WorkflowStatusSucceeded
	job.IndirectToJobID = previous.ID
	job.Timings.FinishedAt = &now
	job.UpdatedAt = now
	for _, step := range jobGraph.Steps {
		step.Status = models.WorkflowStatusSucceeded
		step.Timings.FinishedAt = &now
		step.UpdatedAt = now
	}
	s.Infof("Job %q is identical to previously successful job %s; skipping", job.DisplayName(), previous.ID)
	return nil
}

// ReadBuildGraph reads a build together with all of its jobs and steps.
func (s *QueueService) ReadBuildGraph(ctx context.Context, txOrNil *store.Tx, buildID models.BuildID) (*models.BuildGraph, error) {
	var graph *models.BuildGraph
	err := s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		build, err := s.buildStore.Read(ctx, tx, buildID)
		if err != nil {
			return fmt.Errorf("error reading build: %w", err)
		}
		jobs, err := s.jobStore.ListByBuildID(ctx, tx, buildID)
		if err != nil {
			return fmt.Errorf("error listing build jobs: %w", err)
		}
		graph = &models.BuildGraph{Build: build}
		for _, job := range jobs {
			steps, err := s.stepStore.ListByJobID(ctx, tx, job.ID)
			if err != nil {
				return fmt.Errorf("error listing job steps: %w", err)
			}
			graph.Jobs = append(graph.Jobs, &models.JobGraph{Job: job, Steps: steps})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return graph, nil
}

func (s *QueueService) getParserLimits() parser.ParserLimits {
	return parser.ParserLimits{
		MaxJobsPerWorkflow: s.limits.MaxJobsPerWorkflow,
		MaxStepsPerJob:     s.limits.MaxStepsPerJob,
	}
}

func labelsToStrings(labels models.Labels) []string {
	result := make([]string, len(labels))
	for i, label := range labels {
		result[i] = label.String()
	}
	return result
}

func envToMap(env models.JobEnvVars) map[string]string {
	if len(env) == 0 {
		return nil
	}
	result := make(map[string]string, len(env))
	for _, envVar := range env {
		result[envVar.Name] = envVar.Value
	}
	return result
}
