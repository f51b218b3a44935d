package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// TriggerRule constrains which refs fire a workflow for one event kind.
// An empty rule (no branch or tag patterns) matches every ref of that kind.
type TriggerRule struct {
	// Branches is a list of doublestar glob patterns matched against the
	// short branch name, e.g. "main" or "release/**".
	Branches []string `json:"branches,omitempty"`
	// Tags is a list of doublestar glob patterns matched against the short
	// tag name, e.g. "v*".
	Tags []string `json:"tags,omitempty"`
}

// Triggers declares the repository events that fire a workflow.
// A nil rule means the workflow does not respond to that event kind.
type Triggers struct {
	Push        *TriggerRule `json:"push,omitempty"`
	PullRequest *TriggerRule `json:"pull_request,omitempty"`
}

// RuleFor returns the trigger rule for the given event kind, or nil if the
// workflow does not respond to that kind.
func (m *Triggers) RuleFor(kind EventKind) *TriggerRule {
	switch kind {
	case EventKindPush:
		return m.Push
	case EventKindPullRequest:
		return m.PullRequest
	default:
		return nil
	}
}

// Kinds returns the event kinds this trigger set responds to, in declaration
// order (push before pull_request).
func (m *Triggers) Kinds() []EventKind {
	var kinds []EventKind
	if m.Push != nil {
		kinds = append(kinds, EventKindPush)
	}
	if m.PullRequest != nil {
		kinds = append(kinds, EventKindPullRequest)
	}
	return kinds
}

func (m *Triggers) Validate() error {
	var result *multierror.Error
	if m.Push == nil && m.PullRequest == nil {
		result = multierror.Append(result, errors.New("error workflow must declare at least one trigger event"))
	}
	return result.ErrorOrNil()
}

func (m *Triggers) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	str, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type: %[1]T (%[1]v)", src)
	}
	err := json.Unmarshal([]byte(str), m)
	if err != nil {
		return fmt.Errorf("error unmarshalling from JSON: %w", err)
	}
	return nil
}

func (m Triggers) Value() (driver.Value, error) {
	buf, err := json.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("error marshalling to JSON: %w", err)
	}
	return string(buf), nil
}
