package models

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	// JobTypeExec runs a job's steps directly on the host machine.
	JobTypeExec JobType = "exec"
)

type JobType string

func (m *JobType) Scan(src interface{}) error {
	if src == nil {
		*m = JobTypeExec
		return nil
	}
	t, ok := src.(string)
	if !ok {
		return errors.Errorf("error expected string but found: %T", src)
	}
	switch strings.ToLower(t) {
	case "", string(JobTypeExec):
		*m = JobTypeExec
	default:
		return errors.Errorf("error unknown job type: %s", t)
	}
	return nil
}

func (m JobType) Valid() bool {
	return m == JobTypeExec
}

func (m JobType) String() string {
	return string(m)
}
