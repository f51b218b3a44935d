package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/pw/cmd/pw/cli"
	"github.com/pipewright/pipewright/pw/cmd/pw/commands"
	"github.com/pipewright/pipewright/server/services/queue"
	"github.com/pipewright/pipewright/server/services/queue/parser"
)

func init() {
	commands.RootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:           "validate [file]",
	Short:         "Parse and validate a workflow file",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) == 1 {
			path = args[0]
		} else {
			found, err := findWorkflowFile(".")
			if err != nil {
				return err
			}
			path = found
		}

		configType := configTypeForFile(path)
		if configType == models.ConfigTypeNoConfig {
			return fmt.Errorf("error unrecognized workflow file extension: %s", path)
		}
		config, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("error reading workflow file: %w", err)
		}

		limits := parser.ParserLimits{
			MaxJobsPerWorkflow: queue.DefaultMaxJobsPerWorkflow,
			MaxStepsPerJob:     queue.DefaultMaxStepsPerJob,
		}
		def, err := parser.NewWorkflowParser(limits).Parse(config, configType)
		if err != nil {
			return fmt.Errorf("%s is not a valid workflow:\n%w", path, err)
		}

		jobs := 0
		for i := range def.Jobs {
			jobs += len(def.Jobs[i].Matrix.Expand())
		}
		cli.Stdout.Printf("%s is a valid workflow: %d job definition(s), %d job(s) after matrix expansion",
			path, len(def.Jobs), jobs)
		return nil
	},
}

// findWorkflowFile locates the workflow file in dir using the well-known
// file names for each supported format.
func findWorkflowFile(dir string) (string, error) {
	names := append(append(append([]string{},
		parser.JSONNETWorkflowFileNames...),
		parser.YAMLWorkflowFileNames...),
		parser.JSONWorkflowFileNames...)
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("error no workflow file found in %s; expected one of: %s", dir, strings.Join(names, ", "))
}

func configTypeForFile(path string) models.ConfigType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return models.ConfigTypeYAML
	case ".json":
		return models.ConfigTypeJSON
	case ".jsonnet":
		return models.ConfigTypeJSONNET
	default:
		return models.ConfigTypeNoConfig
	}
}
