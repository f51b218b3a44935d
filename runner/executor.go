package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pipewright/pipewright/common/gerror"
	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/common/util"
	"github.com/pipewright/pipewright/runner/logging"
	"github.com/pipewright/pipewright/runner/runtime"
	"github.com/pipewright/pipewright/runner/runtime/exec"
)

// ExecutorConfig configures how jobs are executed on the host.
type ExecutorConfig struct {
	// RepoDir is the path of the local git repository builds are run from.
	RepoDir string
	// IsLocal runs job commands directly in RepoDir instead of performing a
	// fresh checkout into a temporary workspace.
	IsLocal bool
	// Shell overrides the shell used to run step scripts, or empty for the
	// host default.
	Shell string
}

// Executor executes a single job on the host, one step at a time.
// Executors are single use; create a new one for each job.
type Executor struct {
	config   ExecutorConfig
	checkout *GitCheckoutManager
	jobGraph *models.JobGraph
	stdLog   *logging.StructuredLogger
	log      logger.Log
	state    struct {
		runtime       runtime.Runtime
		jobRootDir    string
		workspaceDir  string
		stagingDir    string
		globalEnvVars []string
	}
}

func NewExecutor(
	config ExecutorConfig,
	checkout *GitCheckoutManager,
	logFactory logger.LogFactory,
	jobGraph *models.JobGraph,
	stdLog *logging.StructuredLogger,
) *Executor {
	e := &Executor{
		config:   config,
		checkout: checkout,
		jobGraph: jobGraph,
		stdLog:   stdLog,
	}
	e.log = logFactory("Executor").WithFields(logger.Fields{
		"job_id":   jobGraph.Job.ID.String(),
		"job_name": jobGraph.Job.DisplayName(),
	})
	return e
}

// PreExecuteJob prepares the host to execute the job's steps: it creates the
// job's directories, checks out the source tree and starts the runtime.
func (e *Executor) PreExecuteJob(ctx context.Context) error {
	err := e.initFileSystem()
	if err != nil {
		return fmt.Errorf("error initializing file system: %w", err)
	}
	if !e.config.IsLocal {
		err = e.checkout.Checkout(ctx, CheckoutInfo{
			RepoDir:     e.config.RepoDir,
			Ref:         e.jobGraph.Job.Ref,
			CommitSHA:   e.jobGraph.Job.CommitSHA,
			CheckoutDir: e.state.workspaceDir,
		}, e.stdLog)
		if err != nil {
			return fmt.Errorf("error checking out source: %w", err)
		}
	}
	e.state.runtime = exec.NewRuntime(exec.Config{
		Config: runtime.Config{
			RuntimeID:    util.EscapeFileName(e.jobGraph.Job.ID.String()),
			StagingDir:   e.state.stagingDir,
			WorkspaceDir: e.state.workspaceDir,
		},
		Shell: e.config.Shell,
	})
	err = e.state.runtime.Start(ctx)
	if err != nil {
		return fmt.Errorf("error starting runtime: %w", err)
	}
	e.addStandardGlobalEnvVars()
	return nil
}

// ExecuteStep synchronously executes one step of the job, streaming its
// output to the structured log. Returns a step failure error if the step's
// commands exit non-zero.
func (e *Executor) ExecuteStep(ctx context.Context, step *models.Step) error {
	start := time.Now()
	stepLog := e.stdLog.Wrapf(step.Name.String(), "Running step %s...", step.Name)
	out := stepLog.LineWriter()
	defer out.Close()

	config := runtime.ExecConfig{
		Name:     step.Name,
		Commands: step.Commands,
		Env:      e.makeEnvMappings(step.Environment),
		Stdout:   out,
		Stderr:   out,
	}
	err := e.state.runtime.Exec(ctx, config)
	if err != nil {
		if ctx.Err() != nil {
			return gerror.NewErrCanceled(fmt.Sprintf("step %q canceled", step.Name)).Wrap(ctx.Err())
		}
		return gerror.NewErrStepFailed(fmt.Sprintf("step %q failed", step.Name), err)
	}
	stepLog.WriteLinef("Step completed in: %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// PostExecuteJob stops the runtime and removes the job's directories from
// the host. Safe to call even if PreExecuteJob failed part way through.
func (e *Executor) PostExecuteJob(ctx context.Context) error {
	if e.state.runtime != nil {
		err := e.state.runtime.Stop(ctx)
		if err != nil {
			e.log.Errorf("Ignoring error stopping runtime: %v", err)
		}
		err = e.state.runtime.CleanUp(ctx)
		if err != nil {
			e.log.Errorf("Ignoring error cleaning up runtime: %v", err)
		}
	}
	if e.state.jobRootDir != "" {
		err := os.RemoveAll(e.state.jobRootDir)
		if err != nil {
			return fmt.Errorf("error removing job directory: %w", err)
		}
	}
	return nil
}

// initFileSystem creates the directories the job will run in. When running
// locally the repo directory itself is the workspace and only a staging
// directory is created.
func (e *Executor) initFileSystem() error {
	e.state.jobRootDir = filepath.Join(os.TempDir(), "pipewright", util.EscapeFileName(e.jobGraph.Job.ID.String()))
	if e.config.IsLocal {
		e.state.workspaceDir = e.config.RepoDir
	} else {
		e.state.workspaceDir = filepath.Join(e.state.jobRootDir, "workspace")
		err := os.MkdirAll(e.state.workspaceDir, 0777)
		if err != nil {
			return fmt.Errorf("error creating workspace directory: %w", err)
		}
	}
	e.state.stagingDir = filepath.Join(e.state.jobRootDir, "staging")
	err := os.MkdirAll(e.state.stagingDir, 0777)
	if err != nil {
		return fmt.Errorf("error creating staging directory: %w", err)
	}
	e.addGlobalEnvVar("CI_WORKSPACE", e.state.workspaceDir)
	e.log.WithFields(logger.Fields{"workspace": e.state.workspaceDir, "staging": e.state.stagingDir}).
		Debugf("Initialized file system")
	return nil
}

// addStandardGlobalEnvVars exports a standard set of environment variables
// describing the build to all step commands.
func (e *Executor) addStandardGlobalEnvVars() {
	job := e.jobGraph.Job
	e.addGlobalEnvVar("CI", "true")
	e.addGlobalEnvVar("PW_BUILD_ID", job.BuildID.String())
	e.addGlobalEnvVar("PW_JOB_ID", job.ID.String())
	e.addGlobalEnvVar("PW_JOB_NAME", job.Name.String())
	e.addGlobalEnvVar("PW_JOB_FINGERPRINT", job.Fingerprint)
	e.addGlobalEnvVar("PW_REF", job.Ref)
	e.addGlobalEnvVar("PW_COMMIT", job.CommitSHA)
	for axis, value := range job.Matrix {
		e.addGlobalEnvVar("PW_MATRIX_"+envVarName(axis), value)
	}
}

func (e *Executor) addGlobalEnvVar(name string, value string) {
	e.state.globalEnvVars = append(e.state.globalEnvVars, fmt.Sprintf("%s=%s", name, value))
}

// makeEnvMappings converts the specified environment variables to a mapping
// of `key=value` strings ready to be exported. Job-level variables are
// included; step-level variables take precedence over them.
func (e *Executor) makeEnvMappings(environment models.JobEnvVars) []string {
	mappings := append([]string{}, e.state.globalEnvVars...)
	for _, env := range e.jobGraph.Job.Environment.Merge(environment) {
		mappings = append(mappings, fmt.Sprintf("%s=%s", env.Name, env.Value))
	}
	return mappings
}

// envVarName converts a matrix axis name to a valid environment variable
// name, e.g. "python-version" becomes "PYTHON_VERSION".
func envVarName(axis string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(axis) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
