package history

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/common/util"
	"github.com/pipewright/pipewright/pw/app"
	"github.com/pipewright/pipewright/pw/cmd/pw/cli"
	"github.com/pipewright/pipewright/pw/cmd/pw/commands"
)

func init() {
	historyCmd.Flags().StringVar(
		&historyCmdConfig.workDir,
		"workdir",
		"~/.pipewright/local",
		"The scratch space used for local builds")
	historyCmd.Flags().IntVarP(
		&historyCmdConfig.limit,
		"limit",
		"n",
		20,
		"The maximum number of builds to list")
	commands.RootCmd.AddCommand(historyCmd)
}

var historyCmdConfig = struct {
	workDir string
	limit   int
}{}

var historyCmd = &cobra.Command{
	Use:           "history",
	Short:         "List recent builds, newest first",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		workDir, err := util.HomeifyPath(historyCmdConfig.workDir)
		if err != nil {
			return err
		}
		repoDir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("error locating current directory: %w", err)
		}

		config := app.NewPWConfig(workDir, repoDir, false, commands.Global.JSON)
		pw, cleanup, err := app.New(ctx, config)
		if err != nil {
			return errors.Wrap(err, "error initializing app")
		}
		defer cleanup()

		builds, err := pw.BuildStore.ListRecent(ctx, nil, historyCmdConfig.limit)
		if err != nil {
			return fmt.Errorf("error listing builds: %w", err)
		}
		if len(builds) == 0 {
			cli.Stdout.Printf("No builds have been run yet")
			return nil
		}
		for _, build := range builds {
			cli.Stdout.Printf("%s  %-10s %-12s %-30s %s",
				build.CreatedAt.Format(time.RFC3339), build.Status, build.EventKind, build.Ref, build.ID)
		}
		return nil
	},
}
