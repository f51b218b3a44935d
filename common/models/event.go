package models

import (
	"database/sql/driver"
	"strings"

	"github.com/pkg/errors"
)

const (
	// EventKindPush fires a workflow when commits are pushed to a branch or tag.
	EventKindPush EventKind = "push"
	// EventKindPullRequest fires a workflow when a pull request is opened or updated.
	EventKindPullRequest EventKind = "pull_request"
)

type EventKind string

func (m EventKind) String() string {
	return string(m)
}

func (m EventKind) Valid() bool {
	return m == EventKindPush || m == EventKindPullRequest
}

func (m *EventKind) Scan(src interface{}) error {
	if src == nil {
		*m = ""
		return nil
	}
	t, ok := src.(string)
	if !ok {
		return errors.Errorf("error expected string but found: %T", src)
	}
	kind := EventKind(strings.ToLower(t))
	if !kind.Valid() {
		return errors.Errorf("error unknown event kind: %s", t)
	}
	*m = kind
	return nil
}

func (m EventKind) Value() (driver.Value, error) {
	return string(m), nil
}

// Event is a repository event that a workflow's trigger rules are evaluated
// against, e.g. a push to refs/heads/main at a particular commit.
type Event struct {
	Kind EventKind `json:"kind"`
	// Ref is the fully qualified git ref the event relates to,
	// e.g. refs/heads/main or refs/tags/v1.0.0.
	Ref string `json:"ref"`
	// CommitSHA is the commit the event points at.
	CommitSHA string `json:"commit_sha"`
}

// BranchName returns the short branch name if Ref refers to a branch, or an
// empty string otherwise.
func (m *Event) BranchName() string {
	if strings.HasPrefix(m.Ref, "refs/heads/") {
		return strings.TrimPrefix(m.Ref, "refs/heads/")
	}
	return ""
}

// TagName returns the short tag name if Ref refers to a tag, or an empty
// string otherwise.
func (m *Event) TagName() string {
	if strings.HasPrefix(m.Ref, "refs/tags/") {
		return strings.TrimPrefix(m.Ref, "refs/tags/")
	}
	return ""
}

func (m *Event) Validate() error {
	if !m.Kind.Valid() {
		return errors.Errorf("error unknown event kind: %s", m.Kind)
	}
	if m.Ref == "" {
		return errors.New("error event ref must be set")
	}
	return nil
}
