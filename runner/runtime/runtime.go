package runtime

import (
	"context"
	"io"

	"github.com/pipewright/pipewright/common/models"
)

// Config contains the information needed to create a runtime for a job.
type Config struct {
	// RuntimeID uniquely identifies the runtime, typically derived from the
	// job it will execute.
	RuntimeID string
	// StagingDir is a scratch directory the runtime may use for generated
	// files such as step scripts. It is removed when the runtime is cleaned up.
	StagingDir string
	// WorkspaceDir is the directory that step commands execute in. The
	// checked out source tree lives here.
	WorkspaceDir string
}

// ExecConfig contains the information needed to execute one step's commands
// within a runtime.
type ExecConfig struct {
	// Name identifies the step being executed, for diagnostics and script
	// file naming.
	Name models.ResourceName
	// Commands is the list of shell commands to run, in order.
	Commands models.Commands
	// Env is the complete set of environment variable mappings for the step,
	// in NAME=value form.
	Env []string
	// Stdout receives the combined command standard output.
	Stdout io.Writer
	// Stderr receives the combined command standard error.
	Stderr io.Writer
}

// Runtime is an environment that a job's steps execute in.
type Runtime interface {
	// Start prepares the runtime for use. It must be called before Exec.
	Start(ctx context.Context) error
	// Exec synchronously executes the configured commands inside the runtime,
	// returning an error if the commands exit non-zero.
	Exec(ctx context.Context, config ExecConfig) error
	// Stop stops the runtime. The runtime cannot be used again once stopped.
	Stop(ctx context.Context) error
	// CleanUp removes any resources the runtime created on the host.
	CleanUp(ctx context.Context) error
}
