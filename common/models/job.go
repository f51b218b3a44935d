package models

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const (
	JobResourceKind ResourceKind = "job"
)

type JobID struct {
	ResourceID
}

func NewJobID() JobID {
	return JobID{ResourceID: NewResourceID(JobResourceKind)}
}

func JobIDFromResourceID(id ResourceID) JobID {
	return JobID{ResourceID: id}
}

func ParseJobID(str string) (JobID, error) {
	resourceID, err := ParseResourceID(str)
	if err != nil {
		return JobID{}, errors.Wrap(err, "error parsing Job ID")
	}
	return JobIDFromResourceID(resourceID), nil
}

// Job is one matrix-expanded instance of a job definition within a build.
// Matrix interpolation has already been applied to its environment by the
// time the job is persisted.
type Job struct {
	ID        JobID `json:"id" goqu:"skipupdate" db:"job_id"`
	CreatedAt Time  `json:"created_at" goqu:"skipupdate" db:"job_created_at"`
	UpdatedAt Time  `json:"updated_at" db:"job_updated_at"`
	// BuildID of the build this job belongs to.
	BuildID BuildID `json:"build_id" db:"job_build_id"`
	// Name of the job definition this instance was expanded from.
	Name ResourceName `json:"name" db:"job_name"`
	// Description is an optional human-readable description of the job.
	Description string `json:"description" db:"job_description"`
	// Type of the job (e.g. exec).
	Type JobType `json:"type" db:"job_type"`
	// RunsOn contains a set of labels that this job requires runners to have.
	RunsOn Labels `json:"runs_on" db:"job_runs_on"`
	// Matrix is the combination of matrix axis values assigned to this
	// instance, or empty if the job definition had no matrix.
	Matrix MatrixCombination `json:"matrix" db:"job_matrix"`
	// Environment contains the interpolated environment variables to export
	// prior to executing the job.
	Environment JobEnvVars `json:"environment" db:"job_environment"`
	// Ref is the git ref from the build that the job was generated from (e.g. branch or tag)
	Ref string `json:"ref" db:"job_ref"`
	// CommitSHA that the job was generated from.
	CommitSHA string `json:"commit_sha" db:"job_commit_sha"`
	// Status reflects where the job is in processing.
	Status WorkflowStatus `json:"status" db:"job_status"`
	// Error is set if the job finished with an error (or nil if the job succeeded).
	Error *Error `json:"error" db:"job_error"`
	// Timings records the times at which the job transitioned between statuses.
	Timings WorkflowTimings `json:"timings" db:"job_timings"`
	// Timeout is the maximum wall-clock time the job may run for, or zero for
	// the runner default.
	Timeout time.Duration `json:"timeout" db:"job_timeout"`
	// Fingerprint is the hex-encoded hash of the job's interpolated
	// definition data. Only jobs with equal fingerprints may be skipped as
	// identical.
	Fingerprint string `json:"fingerprint" db:"job_fingerprint"`
	// IndirectToJobID records the ID of a job that previously ran successfully
	// and which is functionally identical to this job. If this is set it means
	// this job did not actually run to avoid redundantly running the same
	// thing more than once.
	IndirectToJobID JobID `json:"indirect_to_job_id" db:"job_indirect_to_job_id"`
}

func (m *Job) GetKind() ResourceKind {
	return JobResourceKind
}

func (m *Job) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *Job) GetID() ResourceID {
	return m.ID.ResourceID
}

func (m *Job) GetParentID() ResourceID {
	return m.BuildID.ResourceID
}

func (m *Job) GetName() ResourceName {
	return m.Name
}

// DisplayName is the job name plus its matrix combination, e.g.
// "test (python-version=3.8)".
func (m *Job) DisplayName() string {
	if len(m.Matrix) == 0 {
		return m.Name.String()
	}
	return m.Name.String() + " (" + m.Matrix.String() + ")"
}

// WasSkipped returns true if this job never ran because it was indirected to
// a previously successful, functionally identical job.
func (m *Job) WasSkipped() bool {
	return !m.IndirectToJobID.IsZero()
}

func (m *Job) Validate() error {
	var result *multierror.Error
	if m.ID.IsZero() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	if m.BuildID.IsZero() {
		result = multierror.Append(result, errors.New("error build id must be set"))
	}
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
	if !m.Status.Valid() {
		result = multierror.Append(result, errors.New("error status is invalid"))
	}
	return result.ErrorOrNil()
}
