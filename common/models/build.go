package models

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const (
	BuildResourceKind ResourceKind = "build"
)

type BuildID struct {
	ResourceID
}

func NewBuildID() BuildID {
	return BuildID{ResourceID: NewResourceID(BuildResourceKind)}
}

func BuildIDFromResourceID(id ResourceID) BuildID {
	return BuildID{ResourceID: id}
}

func ParseBuildID(str string) (BuildID, error) {
	resourceID, err := ParseResourceID(str)
	if err != nil {
		return BuildID{}, errors.Wrap(err, "error parsing Build ID")
	}
	return BuildIDFromResourceID(resourceID), nil
}

// Build is one run of a workflow, triggered by a single event. A build owns
// the set of matrix-expanded jobs created when the workflow was enqueued.
type Build struct {
	ID        BuildID `json:"id" goqu:"skipupdate" db:"build_id"`
	CreatedAt Time    `json:"created_at" goqu:"skipupdate" db:"build_created_at"`
	UpdatedAt Time    `json:"updated_at" db:"build_updated_at"`
	// WorkflowName is the name of the workflow this build ran.
	WorkflowName ResourceName `json:"workflow_name" db:"build_workflow_name"`
	// EventKind is the kind of event that triggered the build.
	EventKind EventKind `json:"event_kind" db:"build_event_kind"`
	// Ref is the git ref the build is for (e.g. branch or tag)
	Ref string `json:"ref" db:"build_ref"`
	// CommitSHA is the commit being built.
	CommitSHA string `json:"commit_sha" db:"build_commit_sha"`
	// Status reflects where the build is in processing.
	Status WorkflowStatus `json:"status" db:"build_status"`
	// Timings records the times at which the build transitioned between statuses.
	Timings WorkflowTimings `json:"timings" db:"build_timings"`
	// Error is set if the build finished with an error (or nil if the build succeeded).
	Error *Error `json:"error" db:"build_error"`
}

func NewBuild(now Time, workflowName ResourceName, event *Event) *Build {
	return &Build{
		ID:           NewBuildID(),
		CreatedAt:    now,
		UpdatedAt:    now,
		WorkflowName: workflowName,
		EventKind:    event.Kind,
		Ref:          event.Ref,
		CommitSHA:    event.CommitSHA,
		Status:       WorkflowStatusQueued,
		Timings:      WorkflowTimings{QueuedAt: &now},
	}
}

func (m *Build) GetKind() ResourceKind {
	return BuildResourceKind
}

func (m *Build) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *Build) GetID() ResourceID {
	return m.ID.ResourceID
}

func (m *Build) Validate() error {
	var result *multierror.Error
	if m.ID.IsZero() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	if err := m.WorkflowName.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if !m.EventKind.Valid() {
		result = multierror.Append(result, errors.Errorf("error event kind is invalid: %q", m.EventKind))
	}
	if m.Ref == "" {
		result = multierror.Append(result, errors.New("error ref must be set"))
	}
	if !m.Status.Valid() {
		result = multierror.Append(result, errors.New("error status is invalid"))
	}
	return result.ErrorOrNil()
}
