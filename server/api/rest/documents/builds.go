package documents

import (
	"time"

	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/server/api/rest/routes"
)

// Build contains information and links relating to a build resource, but not
// the jobs and steps it contains.
type Build struct {
	URL       string         `json:"url"`
	ID        models.BuildID `json:"id"`
	CreatedAt models.Time    `json:"created_at"`
	UpdatedAt models.Time    `json:"updated_at"`

	// WorkflowName is the name of the workflow this build ran.
	WorkflowName models.ResourceName `json:"workflow_name"`
	// EventKind is the kind of event that triggered the build.
	EventKind models.EventKind `json:"event_kind"`
	// Ref is the git ref the build is for (e.g. branch or tag)
	Ref string `json:"ref"`
	// CommitSHA is the commit being built.
	CommitSHA string `json:"commit_sha"`
	// Status reflects where the build is in processing.
	Status models.WorkflowStatus `json:"status"`
	// Timings records the times at which the build transitioned between statuses.
	Timings models.WorkflowTimings `json:"timings"`
	// Error is set if the build finished with an error (or nil if the build succeeded).
	Error string `json:"error,omitempty"`
}

func MakeBuild(build *models.Build) *Build {
	return &Build{
		URL:          routes.MakeBuildLink(build.ID),
		ID:           build.ID,
		CreatedAt:    build.CreatedAt,
		UpdatedAt:    build.UpdatedAt,
		WorkflowName: build.WorkflowName,
		EventKind:    build.EventKind,
		Ref:          build.Ref,
		CommitSHA:    build.CommitSHA,
		Status:       build.Status,
		Timings:      build.Timings,
		Error:        build.Error.Error(),
	}
}

// Job is one matrix-expanded job instance within a build.
type Job struct {
	ID        models.JobID `json:"id"`
	CreatedAt models.Time  `json:"created_at"`
	UpdatedAt models.Time  `json:"updated_at"`

	Name        models.ResourceName      `json:"name"`
	Description string                   `json:"description,omitempty"`
	Type        models.JobType           `json:"type"`
	RunsOn      models.Labels            `json:"runs_on,omitempty"`
	Matrix      models.MatrixCombination `json:"matrix,omitempty"`
	Environment models.JobEnvVars        `json:"environment,omitempty"`
	Status      models.WorkflowStatus    `json:"status"`
	Timings     models.WorkflowTimings   `json:"timings"`
	Timeout     time.Duration            `json:"timeout,omitempty"`
	Fingerprint string                   `json:"fingerprint,omitempty"`
	// IndirectToJobID is set if this job was skipped because an identical job
	// previously succeeded.
	IndirectToJobID models.JobID `json:"indirect_to_job_id,omitempty"`
	Error           string       `json:"error,omitempty"`
}

func MakeJob(job *models.Job) *Job {
	return &Job{
		ID:              job.ID,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		Name:            job.Name,
		Description:     job.Description,
		Type:            job.Type,
		RunsOn:          job.RunsOn,
		Matrix:          job.Matrix,
		Environment:     job.Environment,
		Status:          job.Status,
		Timings:         job.Timings,
		Timeout:         job.Timeout,
		Fingerprint:     job.Fingerprint,
		IndirectToJobID: job.IndirectToJobID,
		Error:           job.Error.Error(),
	}
}

// Step is one step of a job instance.
type Step struct {
	ID        models.StepID `json:"id"`
	CreatedAt models.Time   `json:"created_at"`
	UpdatedAt models.Time   `json:"updated_at"`

	Name            models.ResourceName    `json:"name"`
	Description     string                 `json:"description,omitempty"`
	Sequence        int                    `json:"sequence"`
	Commands        models.Commands        `json:"commands"`
	Environment     models.JobEnvVars      `json:"environment,omitempty"`
	ContinueOnError bool                   `json:"continue_on_error,omitempty"`
	Status          models.WorkflowStatus  `json:"status"`
	Timings         models.WorkflowTimings `json:"timings"`
	Error           string                 `json:"error,omitempty"`
}

func MakeStep(step *models.Step) *Step {
	return &Step{
		ID:              step.ID,
		CreatedAt:       step.CreatedAt,
		UpdatedAt:       step.UpdatedAt,
		Name:            step.Name,
		Description:     step.Description,
		Sequence:        step.Sequence,
		Commands:        step.Commands,
		Environment:     step.Environment,
		ContinueOnError: step.ContinueOnError,
		Status:          step.Status,
		Timings:         step.Timings,
		Error:           step.Error.Error(),
	}
}

// JobGraph is a job instance together with its steps, in execution order.
type JobGraph struct {
	Job   *Job    `json:"job"`
	Steps []*Step `json:"steps"`
}

// BuildGraph is a build together with every job and step it contains.
type BuildGraph struct {
	Build *Build      `json:"build"`
	Jobs  []*JobGraph `json:"jobs"`
}

func MakeBuildGraph(graph *models.BuildGraph) *BuildGraph {
	doc := &BuildGraph{Build: MakeBuild(graph.Build)}
	for _, jobGraph := range graph.Jobs {
		jobDoc := &JobGraph{Job: MakeJob(jobGraph.Job)}
		for _, step := range jobGraph.Steps {
			jobDoc.Steps = append(jobDoc.Steps, MakeStep(step))
		}
		doc.Jobs = append(doc.Jobs, jobDoc)
	}
	return doc
}

// BuildList is a page of builds, newest first.
type BuildList struct {
	Builds []*Build `json:"builds"`
}

func MakeBuildList(builds []*models.Build) *BuildList {
	doc := &BuildList{Builds: []*Build{}}
	for _, build := range builds {
		doc.Builds = append(doc.Builds, MakeBuild(build))
	}
	return doc
}
