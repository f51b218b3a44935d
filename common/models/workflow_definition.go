package models

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// WorkflowDefinition is the parsed, validated form of a workflow file: the
// trigger rules, plus the list of job definitions to expand and run when an
// event fires the workflow.
type WorkflowDefinition struct {
	// Name of the workflow, e.g. "build".
	Name ResourceName `json:"name"`
	// Triggers declares which repository events fire this workflow.
	Triggers Triggers `json:"on"`
	// Jobs is the ordered list of job definitions.
	Jobs []JobDefinition `json:"jobs"`
}

// GetJob returns the job definition with the given name, or nil.
func (m *WorkflowDefinition) GetJob(name ResourceName) *JobDefinition {
	for i := range m.Jobs {
		if m.Jobs[i].Name == name {
			return &m.Jobs[i]
		}
	}
	return nil
}

// Validate the workflow definition, including all job and step definitions.
func (m *WorkflowDefinition) Validate() error {
	var result *multierror.Error
	if err := m.Name.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := m.Triggers.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if len(m.Jobs) == 0 {
		result = multierror.Append(result, errors.New("error workflow must contain at least one job"))
	}
	seenJobs := make(map[ResourceName]bool, len(m.Jobs))
	for i := range m.Jobs {
		job := &m.Jobs[i]
		if seenJobs[job.Name] {
			result = multierror.Append(result, errors.Errorf("error job name %q is used more than once", job.Name))
		}
		seenJobs[job.Name] = true
		if err := job.Validate(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "error validating job %q", job.Name))
		}
	}
	return result.ErrorOrNil()
}

// JobDefinition describes a single job within a workflow, before matrix
// expansion.
type JobDefinition struct {
	// Name of the job, unique within the workflow.
	Name ResourceName `json:"name"`
	// Description is an optional human-readable description of the job.
	Description string `json:"description,omitempty"`
	// Type of the job (currently always exec).
	Type JobType `json:"type"`
	// RunsOn contains a set of labels that this job requires runners to have.
	RunsOn Labels `json:"runs_on,omitempty"`
	// Matrix lists the axes this job is expanded over, or empty for a single
	// job instance.
	Matrix Matrix `json:"matrix,omitempty"`
	// Environment contains a list of environment variables to export prior to
	// executing the job's steps.
	Environment JobEnvVars `json:"environment,omitempty"`
	// Steps is the ordered list of steps to execute.
	Steps []StepDefinition `json:"steps"`
	// FingerprintCommands contains zero or more shell commands whose output
	// feeds the job's fingerprint. Two jobs in the same workflow with the same
	// name and fingerprint are considered identical.
	FingerprintCommands Commands `json:"fingerprint_commands,omitempty"`
	// Timeout is the maximum wall-clock time the job may run for, or zero for
	// the runner default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// GetStep returns the step definition with the given name, or nil.
func (m *JobDefinition) GetStep(name ResourceName) *StepDefinition {
	for i := range m.Steps {
		if m.Steps[i].Name == name {
			return &m.Steps[i]
		}
	}
	return nil
}

func (m *JobDefinition) Validate() error {
	var result *multierror.Error
	if err := m.Name.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if !m.Type.Valid() {
		result = multierror.Append(result, errors.Errorf("error job type is invalid: %q", m.Type))
	}
	for _, label := range m.RunsOn {
		if err := label.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := m.Matrix.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, envVar := range m.Environment {
		if err := envVar.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if len(m.Steps) == 0 {
		result = multierror.Append(result, errors.New("error job must contain at least one step"))
	}
	seenSteps := make(map[ResourceName]bool, len(m.Steps))
	for i := range m.Steps {
		step := &m.Steps[i]
		if seenSteps[step.Name] {
			result = multierror.Append(result, errors.Errorf("error step name %q is used more than once", step.Name))
		}
		seenSteps[step.Name] = true
		if err := step.Validate(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "error validating step %q", step.Name))
		}
	}
	if m.Timeout < 0 {
		result = multierror.Append(result, errors.New("error job timeout must not be negative"))
	}
	return result.ErrorOrNil()
}

// StepDefinition describes a single step within a job.
type StepDefinition struct {
	// Name of the step, unique within the job.
	Name ResourceName `json:"name"`
	// Description is an optional human-readable description of the step.
	Description string `json:"description,omitempty"`
	// Commands is a list of at least one shell command to execute during the step.
	Commands Commands `json:"commands"`
	// Environment contains a list of environment variables to export prior to
	// executing the step's commands, on top of the job environment.
	Environment JobEnvVars `json:"environment,omitempty"`
	// ContinueOnError makes a non-zero exit from this step advisory: the
	// failure is recorded but the job keeps running and can still succeed.
	ContinueOnError bool `json:"continue_on_error,omitempty"`
}

func (m *StepDefinition) Validate() error {
	var result *multierror.Error
	if err := m.Name.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if len(m.Commands) == 0 {
		result = multierror.Append(result, errors.New("error at least one command must be set"))
	}
	for i, command := range m.Commands {
		if isBlankCommand(command) {
			result = multierror.Append(result, errors.Errorf("error command %d must not be empty", i))
		}
	}
	for _, envVar := range m.Environment {
		if err := envVar.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func isBlankCommand(command Command) bool {
	for _, r := range command {
		if r != ' ' && r != '\t' && r != '\n' {
			return false
		}
	}
	return true
}
