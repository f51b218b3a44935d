package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipewright/pipewright/common/models"
)

func parseTestdata(t *testing.T, name string) *models.WorkflowDefinition {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	workflow, err := NewWorkflowParser(ParserLimits{}).Parse(data, models.ConfigTypeYAML)
	require.NoError(t, err)
	require.NoError(t, workflow.Validate())
	return workflow
}

func TestParseReferenceWorkflow(t *testing.T) {
	workflow := parseTestdata(t, "pvlive.yml")

	assert.Equal(t, models.ResourceName("build"), workflow.Name)

	// Triggers on exactly push and pull_request, with no ref restrictions.
	require.NotNil(t, workflow.Triggers.Push)
	require.NotNil(t, workflow.Triggers.PullRequest)
	assert.Empty(t, workflow.Triggers.Push.Branches)
	assert.Empty(t, workflow.Triggers.Push.Tags)
	assert.Equal(t, []models.EventKind{models.EventKindPush, models.EventKindPullRequest}, workflow.Triggers.Kinds())

	require.Len(t, workflow.Jobs, 1)
	job := workflow.Jobs[0]
	assert.Equal(t, models.ResourceName("test"), job.Name)
	assert.Equal(t, models.JobTypeExec, job.Type)
	assert.Equal(t, models.Labels{"ubuntu-latest"}, job.RunsOn)

	// The matrix enumerates exactly four interpreter versions, in order.
	assert.Equal(t, models.Matrix{
		"python-version": {"3.6", "3.7", "3.8", "3.9"},
	}, job.Matrix)

	require.Len(t, job.Environment, 1)
	assert.Equal(t, "PYTHON_VERSION", job.Environment[0].Name)
	assert.Equal(t, "${{ matrix.python-version }}", job.Environment[0].Value)

	require.Len(t, job.Steps, 4)

	// The blocking lint step selects exactly the build-breaking rule set.
	lint := job.GetStep("lint")
	require.NotNil(t, lint)
	assert.False(t, lint.ContinueOnError)
	require.Len(t, lint.Commands, 1)
	assert.Contains(t, lint.Commands[0].String(), "--select=E9,F63,F7,F82")

	// The second lint invocation is always advisory.
	advisory := job.GetStep("lint-advisory")
	require.NotNil(t, advisory)
	assert.True(t, advisory.ContinueOnError)
	require.Len(t, advisory.Commands, 1)
	assert.Contains(t, advisory.Commands[0].String(), "--exit-zero")

	// The test step always targets the Tests.test_pvlive_api module.
	test := job.GetStep("test")
	require.NotNil(t, test)
	assert.False(t, test.ContinueOnError)
	require.Len(t, test.Commands, 2)
	assert.Equal(t, "coverage run -m Tests.test_pvlive_api", test.Commands[0].String())
	assert.Equal(t, "coverage report", test.Commands[1].String())
}

func TestParseTriggerShorthand(t *testing.T) {
	config := `
name: shorthand
on: [push, pull_request]
jobs:
  - name: noop
    steps:
      - name: hello
        commands: echo hello
`
	workflow, err := NewWorkflowParser(ParserLimits{}).Parse([]byte(config), models.ConfigTypeYAML)
	require.NoError(t, err)
	require.NotNil(t, workflow.Triggers.Push)
	require.NotNil(t, workflow.Triggers.PullRequest)
}

func TestParseTriggerBranchFilters(t *testing.T) {
	config := `
name: filtered
on:
  push:
    branches: [main, "release/**"]
    tags: ["v*"]
jobs:
  - name: noop
    steps:
      - name: hello
        commands: echo hello
`
	workflow, err := NewWorkflowParser(ParserLimits{}).Parse([]byte(config), models.ConfigTypeYAML)
	require.NoError(t, err)
	require.NotNil(t, workflow.Triggers.Push)
	assert.Equal(t, []string{"main", "release/**"}, workflow.Triggers.Push.Branches)
	assert.Equal(t, []string{"v*"}, workflow.Triggers.Push.Tags)
	assert.Nil(t, workflow.Triggers.PullRequest)
}

func TestParseUnknownTriggerEvent(t *testing.T) {
	config := `
on: [deployment]
jobs:
  - name: noop
    steps:
      - name: hello
        commands: echo hello
`
	_, err := NewWorkflowParser(ParserLimits{}).Parse([]byte(config), models.ConfigTypeYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported trigger event")
}

func TestParseMissingTriggers(t *testing.T) {
	config := `
jobs:
  - name: noop
    steps:
      - name: hello
        commands: echo hello
`
	_, err := NewWorkflowParser(ParserLimits{}).Parse([]byte(config), models.ConfigTypeYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'on' trigger block")
}

func TestParseJSON(t *testing.T) {
	config := `{
		"name": "json-workflow",
		"on": ["push"],
		"jobs": [
			{
				"name": "noop",
				"steps": [
					{"name": "hello", "commands": ["echo hello"], "continue_on_error": true}
				]
			}
		]
	}`
	workflow, err := NewWorkflowParser(ParserLimits{}).Parse([]byte(config), models.ConfigTypeJSON)
	require.NoError(t, err)
	require.Len(t, workflow.Jobs, 1)
	require.Len(t, workflow.Jobs[0].Steps, 1)
	assert.True(t, workflow.Jobs[0].Steps[0].ContinueOnError)
}

func TestParseJSONNET(t *testing.T) {
	config := `
local job(name) = {
	name: name,
	steps: [{name: "hello", commands: ["echo hello"]}],
};
{
	name: "jsonnet-workflow",
	on: ["push"],
	jobs: [job("noop-%d" % i) for i in [1, 2]],
}`
	workflow, err := NewWorkflowParser(ParserLimits{}).Parse([]byte(config), models.ConfigTypeJSONNET)
	require.NoError(t, err)
	require.Len(t, workflow.Jobs, 2)
	assert.Equal(t, models.ResourceName("noop-1"), workflow.Jobs[0].Name)
}

func TestParseUnsupportedVersion(t *testing.T) {
	config := `
version: "9.9"
on: [push]
jobs: []
`
	_, err := NewWorkflowParser(ParserLimits{}).Parse([]byte(config), models.ConfigTypeYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version 9.9 not supported")
}

func TestParseLimits(t *testing.T) {
	config := `
on: [push]
jobs:
  - name: fanout
    matrix:
      python-version: ["3.6", "3.7", "3.8", "3.9"]
    steps:
      - name: hello
        commands: echo hello
`
	// Four matrix-expanded jobs is over a limit of three.
	_, err := NewWorkflowParser(ParserLimits{MaxJobsPerWorkflow: 3}).Parse([]byte(config), models.ConfigTypeYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "the maximum is 3")

	// And exactly at a limit of four is fine.
	_, err = NewWorkflowParser(ParserLimits{MaxJobsPerWorkflow: 4}).Parse([]byte(config), models.ConfigTypeYAML)
	require.NoError(t, err)

	stepLimited := NewWorkflowParser(ParserLimits{MaxStepsPerJob: 1})
	_, err = stepLimited.Parse([]byte(strings.Replace(config, "- name: hello", "- name: one\n        commands: echo one\n      - name: hello", 1)), models.ConfigTypeYAML)
	require.Error(t, err)
}

func TestParseNoConfig(t *testing.T) {
	_, err := NewWorkflowParser(ParserLimits{}).Parse(nil, models.ConfigTypeNoConfig)
	require.Error(t, err)
}
