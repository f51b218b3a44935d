package run

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/common/gerror"
	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/common/util"
	"github.com/pipewright/pipewright/pw/app"
	"github.com/pipewright/pipewright/pw/cmd/pw/cli"
	"github.com/pipewright/pipewright/pw/cmd/pw/commands"
	"github.com/pipewright/pipewright/pw/cmd/pw/utils"
	"github.com/pipewright/pipewright/runner"
)

func init() {
	runCmd.Flags().StringVar(
		&runCmdConfig.event,
		"event",
		string(models.EventKindPush),
		"The event to trigger the workflow with (push or pull_request)")
	runCmd.Flags().StringVar(
		&runCmdConfig.ref,
		"ref",
		"",
		"The git ref to build, e.g. refs/heads/main. Defaults to the repo's current HEAD")
	runCmd.Flags().StringVar(
		&runCmdConfig.workDir,
		"workdir",
		"~/.pipewright/local",
		"The scratch space to use for local builds")
	runCmd.Flags().BoolVarP(
		&runCmdConfig.verbose,
		"verbose",
		"v",
		false,
		"Enable verbose log output")
	runCmd.Flags().BoolVarP(
		&runCmdConfig.force,
		"force",
		"f",
		false,
		"Force all jobs to re-run by ignoring fingerprints")
	runCmd.Flags().IntVar(
		&runCmdConfig.parallelJobs,
		"parallel-jobs",
		runner.DefaultParallelJobs,
		"The number of jobs to run in parallel. Defaults to half the number of CPUs")
	runCmd.Flags().StringArrayVar(
		&runCmdConfig.labels,
		"label",
		nil,
		"Additional runner labels to advertise, e.g. --label gpu")
	commands.RootCmd.AddCommand(runCmd)
}

var runCmdConfig = struct {
	event        string
	ref          string
	workDir      string
	verbose      bool
	force        bool
	parallelJobs int
	labels       []string
}{}

var runCmd = &cobra.Command{
	Use:           "run [job]...",
	Short:         "Run the repo's workflow, or just the named jobs",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		lockFile, err := utils.GetPWFileLock()
		if err != nil {
			return errors.Wrap(err, "Error: Another instance of pw is currently running")
		}
		defer lockFile.Close()

		jobsToRun, err := utils.ParseJobNames(args)
		if err != nil {
			return err
		}

		repoDir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("error locating current directory: %w", err)
		}

		event, err := makeEvent(repoDir)
		if err != nil {
			return err
		}

		runCmdConfig.workDir, err = util.HomeifyPath(runCmdConfig.workDir)
		if err != nil {
			return err
		}
		err = os.MkdirAll(runCmdConfig.workDir, 0770)
		if err != nil {
			return fmt.Errorf("error making work directory %q: %w", runCmdConfig.workDir, err)
		}

		config := app.NewPWConfig(runCmdConfig.workDir, repoDir, runCmdConfig.verbose, commands.Global.JSON)
		config.SchedulerConfig.ParallelJobs = runCmdConfig.parallelJobs
		for _, label := range runCmdConfig.labels {
			config.SchedulerConfig.Labels = append(config.SchedulerConfig.Labels, models.Label(label))
		}

		pw, cleanup, err := app.New(ctx, config)
		if err != nil {
			// The local sqlite database is effectively a cache. Blow it away
			// at the first sign of trouble and try again.
			os.Remove(config.DatabaseFilePath)
			pw, cleanup, err = app.New(ctx, config)
			if err != nil {
				return errors.Wrap(err, "error initializing app")
			}
		}
		defer cleanup()

		def, err := pw.QueueService.ReadWorkflowDefinition(repoDir)
		if err != nil {
			return err
		}

		opts := &models.BuildOptions{JobsToRun: jobsToRun, Force: runCmdConfig.force}
		graph, err := pw.QueueService.EnqueueBuild(ctx, nil, def, event, opts)
		if err != nil {
			if gerror.IsWorkflowNotTriggered(err) {
				cli.Stdout.Printf("Workflow %q is not triggered by %s on %s; nothing to do", def.Name, event.Kind, event.Ref)
				return nil
			}
			return fmt.Errorf("error queuing local build: %w", err)
		}

		err = pw.Scheduler.RunBuild(ctx, graph, pw.StdLog)
		if err != nil {
			return fmt.Errorf("error running build: %w", err)
		}

		printSummary(graph)
		if graph.Build.Status != models.WorkflowStatusSucceeded {
			os.Exit(1)
		}
		return nil
	},
}

// makeEvent builds the triggering event from the command's flags and the
// state of the local repo.
func makeEvent(repoDir string) (*models.Event, error) {
	kind := models.EventKind(runCmdConfig.event)
	if !kind.Valid() {
		return nil, fmt.Errorf("error unknown event kind %q; expected push or pull_request", runCmdConfig.event)
	}
	ref, commitSHA, err := runner.ResolveRepoHead(repoDir)
	if err != nil {
		return nil, err
	}
	if runCmdConfig.ref != "" {
		ref = runCmdConfig.ref
	}
	if ref == "" {
		return nil, fmt.Errorf("error repo HEAD is detached; specify --ref")
	}
	return &models.Event{Kind: kind, Ref: ref, CommitSHA: commitSHA}, nil
}

func printSummary(graph *models.BuildGraph) {
	cli.Stdout.Printf("")
	for _, jobGraph := range graph.Jobs {
		job := jobGraph.Job
		switch {
		case job.WasSkipped():
			cli.Stdout.Printf("  %-40s skipped (identical job previously succeeded)", job.DisplayName())
		case job.Status == models.WorkflowStatusSucceeded:
			cli.Stdout.Printf("  %-40s succeeded", job.DisplayName())
		default:
			cli.Stdout.Printf("  %-40s %s: %s", job.DisplayName(), job.Status, job.Error)
		}
	}
	cli.Stdout.Printf("")
	cli.Stdout.Printf("Build %s %s", graph.Build.ID, graph.Build.Status)
}
