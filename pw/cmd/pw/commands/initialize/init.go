package initialize

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pipewright/pipewright/pw/cmd/pw/cli"
	"github.com/pipewright/pipewright/pw/cmd/pw/commands"
)

const workflowFileName = ".pipewright.yml"

// referenceWorkflow is a starter workflow for a Python project: a blocking
// syntax lint, an advisory style lint and the unit test suite, run across
// several Python versions.
const referenceWorkflow = `version: "1.0"
name: build

on:
  push:
  pull_request:

jobs:
  - name: test
    description: Lint and run the unit test suite with coverage
    type: exec
    runs_on:
      - ubuntu-latest
    matrix:
      python-version: ["3.6", "3.7", "3.8", "3.9"]
    environment:
      PYTHON_VERSION: ${{ matrix.python-version }}
    steps:
      - name: install-dependencies
        commands:
          - python -m pip install --upgrade pip
          - pip install flake8 coverage
          - if [ -f requirements.txt ]; then pip install -r requirements.txt; fi
          - pip install -e .
      - name: lint
        description: Stop the build for syntax errors or undefined names
        commands:
          - flake8 . --count --select=E9,F63,F7,F82 --show-source --statistics
      - name: lint-advisory
        description: Report all other style issues without failing the build
        continue_on_error: true
        commands:
          - flake8 . --count --exit-zero --max-complexity=10 --max-line-length=127 --statistics
      - name: test
        commands:
          - coverage run -m Tests.test_pvlive_api
          - coverage report
`

func init() {
	commands.RootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:           "init",
	Short:         "Write a starter workflow file to the current directory",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("error locating current directory: %w", err)
		}
		path := filepath.Join(dir, workflowFileName)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("error %s already exists; not overwriting", path)
		}
		err = os.WriteFile(path, []byte(referenceWorkflow), 0644)
		if err != nil {
			return fmt.Errorf("error writing %s: %w", path, err)
		}
		cli.Stdout.Printf("Wrote %s", path)
		cli.Stdout.Printf("Edit it to match your project, then run: pw run")
		return nil
	},
}
