package models

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type ResourceKind string

func (s ResourceKind) String() string {
	return string(s)
}

// ResourceID is the globally unique, immutable identifier of a resource, in
// the form "kind:uuid". Use ResourceID (not ResourceName) when persistently
// referring to a resource.
type ResourceID struct {
	kind ResourceKind
	id   string
}

func NewResourceID(kind ResourceKind) ResourceID {
	return ResourceID{kind: kind, id: uuid.New().String()}
}

func ParseResourceID(str string) (ResourceID, error) {
	parts := strings.SplitN(str, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ResourceID{}, fmt.Errorf("error parsing resource id %q: expected kind:id", str)
	}
	return ResourceID{kind: ResourceKind(parts[0]), id: parts[1]}, nil
}

func (s ResourceID) Kind() ResourceKind {
	return s.kind
}

func (s ResourceID) String() string {
	if s.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%s", s.kind, s.id)
}

func (s ResourceID) IsZero() bool {
	return s.kind == "" && s.id == ""
}

func (s *ResourceID) Scan(src interface{}) error {
	if src == nil {
		*s = ResourceID{}
		return nil
	}
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("error expected string: %#v", src)
	}
	if t == "" {
		*s = ResourceID{}
		return nil
	}
	id, err := ParseResourceID(t)
	if err != nil {
		return err
	}
	*s = id
	return nil
}

func (s ResourceID) Value() (driver.Value, error) {
	return s.String(), nil
}

func (s ResourceID) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", s.String())), nil
}

func (s *ResourceID) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	if str == "" || str == "null" {
		*s = ResourceID{}
		return nil
	}
	id, err := ParseResourceID(str)
	if err != nil {
		return err
	}
	*s = id
	return nil
}

// Resource is implemented by all persistent record types.
type Resource interface {
	// GetKind returns the unique name/type of the resource e.g. "build" or "job".
	GetKind() ResourceKind
	// GetCreatedAt returns the Time at which this resource was created.
	GetCreatedAt() Time
	// GetID returns the globally unique ResourceID of the resource.
	GetID() ResourceID
	// Validate the model by checking for required fields, lengths and types etc.
	Validate() error
}
