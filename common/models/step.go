package models

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const StepResourceKind ResourceKind = "step"

type StepID struct {
	ResourceID
}

func NewStepID() StepID {
	return StepID{ResourceID: NewResourceID(StepResourceKind)}
}

func StepIDFromResourceID(id ResourceID) StepID {
	return StepID{ResourceID: id}
}

func ParseStepID(str string) (StepID, error) {
	resourceID, err := ParseResourceID(str)
	if err != nil {
		return StepID{}, errors.Wrap(err, "error parsing Step ID")
	}
	return StepIDFromResourceID(resourceID), nil
}

// Step is one command-list step of a job instance, executed in definition
// order. Matrix interpolation has already been applied to its commands and
// environment by the time the step is persisted.
type Step struct {
	ID        StepID `json:"id" goqu:"skipupdate" db:"step_id"`
	CreatedAt Time   `json:"created_at" goqu:"skipupdate" db:"step_created_at"`
	UpdatedAt Time   `json:"updated_at" db:"step_updated_at"`
	// JobID of the job instance this step belongs to.
	JobID JobID `json:"job_id" db:"step_job_id"`
	// Name of the step.
	Name ResourceName `json:"name" db:"step_name"`
	// Description is an optional human-readable description of the step.
	Description string `json:"description" db:"step_description"`
	// Sequence is the zero-based position of the step within its job.
	Sequence int `json:"sequence" db:"step_sequence"`
	// Commands is a list of at least one command to execute during the step.
	Commands Commands `json:"commands" db:"step_commands"`
	// Environment contains the interpolated environment variables to export
	// prior to executing the step's commands.
	Environment JobEnvVars `json:"environment" db:"step_environment"`
	// ContinueOnError makes a non-zero exit from this step advisory: the
	// failure is recorded but the job keeps running.
	ContinueOnError bool `json:"continue_on_error" db:"step_continue_on_error"`
	// Status reflects where the step is in processing.
	Status WorkflowStatus `json:"status" db:"step_status"`
	// Error is set if the step finished with an error (or nil if the step succeeded).
	Error *Error `json:"error" db:"step_error"`
	// Timings records the times at which the step transitioned between statuses.
	Timings WorkflowTimings `json:"timings" db:"step_timings"`
}

func (m *Step) GetKind() ResourceKind {
	return StepResourceKind
}

func (m *Step) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *Step) GetID() ResourceID {
	return m.ID.ResourceID
}

func (m *Step) GetParentID() ResourceID {
	return m.JobID.ResourceID
}

func (m *Step) GetName() ResourceName {
	return m.Name
}

func (m *Step) Validate() error {
	var result *multierror.Error
	if m.ID.IsZero() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	if m.JobID.IsZero() {
		result = multierror.Append(result, errors.New("error job id must be set"))
	}
	if err := m.Name.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if m.Sequence < 0 {
		result = multierror.Append(result, errors.New("error sequence must not be negative"))
	}
	if !m.Status.Valid() {
		result = multierror.Append(result, errors.New("error status is invalid"))
	}
	if len(m.Commands) == 0 {
		result = multierror.Append(result, errors.New("error at least one command must be set"))
	}
	return result.ErrorOrNil()
}
