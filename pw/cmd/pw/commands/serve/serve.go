package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/common/util"
	"github.com/pipewright/pipewright/pw/app"
	"github.com/pipewright/pipewright/pw/cmd/pw/cli"
	"github.com/pipewright/pipewright/pw/cmd/pw/commands"
)

const shutdownTimeout = 10 * time.Second

func init() {
	serveCmd.Flags().StringVar(
		&serveCmdConfig.workDir,
		"workdir",
		"~/.pipewright/local",
		"The scratch space used for local builds")
	serveCmd.Flags().StringVar(
		&serveCmdConfig.address,
		"address",
		fmt.Sprintf("localhost:%d", app.DefaultStatusServerPort),
		"The host:port for the status API to listen on")
	commands.RootCmd.AddCommand(serveCmd)
}

var serveCmdConfig = struct {
	workDir string
	address string
}{}

var serveCmd = &cobra.Command{
	Use:           "serve",
	Short:         "Serve the build status API over HTTP",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		workDir, err := util.HomeifyPath(serveCmdConfig.workDir)
		if err != nil {
			return err
		}
		repoDir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("error locating current directory: %w", err)
		}

		config := app.NewPWConfig(workDir, repoDir, commands.Global.Debug, commands.Global.JSON)
		config.APIServerConfig.Address = serveCmdConfig.address

		pw, cleanup, err := app.New(ctx, config)
		if err != nil {
			return errors.Wrap(err, "error initializing app")
		}
		defer cleanup()

		pw.APIServer.Start()
		cli.Stdout.Printf("Status API listening on %s; press Ctrl+C to stop", pw.APIServer.GetServerURL())

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = pw.APIServer.Stop(shutdownCtx)
		if err != nil {
			return fmt.Errorf("error stopping server: %w", err)
		}
		return nil
	},
}
