package utils

import (
	"os"

	"github.com/pkg/errors"

	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/common/util/proc_lock"
)

// ParseJobNames parses each of the supplied arguments as the name of a job
// in the workflow.
func ParseJobNames(args []string) ([]models.ResourceName, error) {
	var names []models.ResourceName
	for _, arg := range args {
		name := models.ResourceName(arg)
		if err := name.Validate(); err != nil {
			return nil, errors.Wrapf(err, "error parsing %q to job name", arg)
		}
		names = append(names, name)
	}
	return names, nil
}

// GetPWFileLock opens the pipewright lock file exclusively for write, and
// returns a file handle. The caller should keep the file open for the
// duration of the command. Returns an error if any other pw instance
// currently has the lock file open (i.e. is running a command).
func GetPWFileLock() (*os.File, error) {
	return proc_lock.CreateLockFile(proc_lock.PWLockFile)
}
