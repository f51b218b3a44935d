package parser

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/pipewright/pipewright/common/models"
)

type workflowParserV1 struct {
	limits ParserLimits
}

func newWorkflowParserV1(limits ParserLimits) *workflowParserV1 {
	return &workflowParserV1{
		limits: limits,
	}
}

// Parse parses a workflow definition of this specific version.
func (s *workflowParserV1) Parse(topLevelElement map[string]interface{}) (*models.WorkflowDefinition, error) {
	workflow := &models.WorkflowDefinition{}

	rName, ok := topLevelElement["name"]
	if ok {
		name, ok := rName.(string)
		if !ok {
			return nil, errors.Errorf("Expected workflow 'name' field to be a string but found: %T", rName)
		}
		workflow.Name = models.ResourceName(name)
	}

	rOn, ok := topLevelElement["on"]
	if !ok {
		return nil, errors.Errorf("workflow definition does not contain an 'on' trigger block")
	}
	triggers, err := s.parseTriggers(rOn)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing workflow triggers")
	}
	workflow.Triggers = *triggers

	rJobs, ok := topLevelElement["jobs"]
	if !ok {
		return nil, errors.Errorf("workflow definition does not contain a 'jobs' list")
	}
	rJobsArray, ok := rJobs.([]interface{})
	if !ok {
		return nil, errors.Errorf("jobs element must contain an array but found %T", rJobs)
	}
	jobs, err := s.parseJobs(rJobsArray)
	if err != nil {
		return nil, err
	}
	workflow.Jobs = jobs

	err = s.checkLimits(workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// checkLimits enforces the parser limits against the fully parsed workflow,
// counting jobs after matrix expansion.
func (s *workflowParserV1) checkLimits(workflow *models.WorkflowDefinition) error {
	expandedJobCount := 0
	for i := range workflow.Jobs {
		job := &workflow.Jobs[i]
		expandedJobCount += len(job.Matrix.Expand())
		if s.limits.MaxStepsPerJob > 0 && len(job.Steps) > s.limits.MaxStepsPerJob {
			return errors.Errorf("job %q contains %d steps; the maximum is %d",
				job.Name, len(job.Steps), s.limits.MaxStepsPerJob)
		}
	}
	if s.limits.MaxJobsPerWorkflow > 0 && expandedJobCount > s.limits.MaxJobsPerWorkflow {
		return errors.Errorf("workflow expands to %d jobs; the maximum is %d",
			expandedJobCount, s.limits.MaxJobsPerWorkflow)
	}
	return nil
}

// parseTriggers parses the 'on' block. Two forms are supported: the list
// shorthand ("on: [push, pull_request]", every ref matches) and the full map
// form with optional branch/tag pattern lists per event kind.
func (s *workflowParserV1) parseTriggers(raw interface{}) (*models.Triggers, error) {
	triggers := &models.Triggers{}
	switch value := raw.(type) {
	case string:
		err := s.applyTriggerKind(triggers, value, &models.TriggerRule{})
		if err != nil {
			return nil, err
		}
	case []interface{}:
		for _, rKind := range value {
			kind, ok := rKind.(string)
			if !ok {
				return nil, errors.Errorf("Expected trigger event to be a string but found: %T", rKind)
			}
			err := s.applyTriggerKind(triggers, kind, &models.TriggerRule{})
			if err != nil {
				return nil, err
			}
		}
	case map[string]interface{}:
		for kind, rRule := range value {
			rule, err := s.parseTriggerRule(rRule)
			if err != nil {
				return nil, errors.Wrapf(err, "error parsing trigger rule for event %q", kind)
			}
			err = s.applyTriggerKind(triggers, kind, rule)
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.Errorf("Expected 'on' to be a string, list or object but found: %T", raw)
	}
	return triggers, nil
}

func (s *workflowParserV1) applyTriggerKind(triggers *models.Triggers, kind string, rule *models.TriggerRule) error {
	switch models.EventKind(kind) {
	case models.EventKindPush:
		if triggers.Push != nil {
			return errors.Errorf("trigger event %q is declared more than once", kind)
		}
		triggers.Push = rule
	case models.EventKindPullRequest:
		if triggers.PullRequest != nil {
			return errors.Errorf("trigger event %q is declared more than once", kind)
		}
		triggers.PullRequest = rule
	default:
		return errors.Errorf("unsupported trigger event: %s", kind)
	}
	return nil
}

func (s *workflowParserV1) parseTriggerRule(raw interface{}) (*models.TriggerRule, error) {
	rule := &models.TriggerRule{}
	if raw == nil {
		return rule, nil
	}
	element, ok := raw.(map[string]interface{})
	if !ok {
		// The YAML normalizer renders a bare "push:" key (nil value) as the string "<nil>"
		if str, isStr := raw.(string); isStr && (str == "" || str == "<nil>") {
			return rule, nil
		}
		return nil, errors.Errorf("Expected trigger rule to be an object but found: %T", raw)
	}
	rBranches, ok := element["branches"]
	if ok {
		branches, err := s.parseStringList(rBranches)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to parse trigger 'branches' field")
		}
		rule.Branches = branches
	}
	rTags, ok := element["tags"]
	if ok {
		tags, err := s.parseStringList(rTags)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to parse trigger 'tags' field")
		}
		rule.Tags = tags
	}
	return rule, nil
}

func (s *workflowParserV1) parseJobs(raw []interface{}) ([]models.JobDefinition, error) {
	jobs := make([]models.JobDefinition, len(raw))
	for i, obj := range raw {
		element, ok := obj.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("Top-level element is not a job object: %T", obj)
		}
		job, err := s.parseJob(element)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing workflow job at index %d", i)
		}
		jobs[i] = *job
	}
	return jobs, nil
}

func (s *workflowParserV1) parseJob(raw map[string]interface{}) (*models.JobDefinition, error) {
	job := &models.JobDefinition{}

	rName, ok := raw["name"]
	if ok {
		name, ok := rName.(string)
		if !ok {
			return nil, errors.Errorf("Expected job 'name' field to be a string but found: %T", rName)
		}
		job.Name = models.ResourceName(name)
	}

	rDescription, ok := raw["description"]
	if ok {
		job.Description, ok = rDescription.(string)
		if !ok {
			return nil, errors.Errorf("Expected job 'description' field to be a string but found: %T", rDescription)
		}
	}

	// If type is not set explicitly then the default (exec) applies
	rType, ok := raw["type"]
	if ok {
		err := job.Type.Scan(rType)
		if err != nil {
			return nil, fmt.Errorf("error parsing job 'type' property: %w", err)
		}
	} else {
		job.Type = models.JobTypeExec
	}

	rRunsOn, ok := raw["runs_on"]
	if ok {
		switch value := rRunsOn.(type) {
		case string:
			job.RunsOn = models.Labels{models.Label(value)}
		case []interface{}:
			labels, err := s.parseLabels(value)
			if err != nil {
				return nil, errors.Wrap(err, "Unable to parse job 'runs_on' field")
			}
			job.RunsOn = labels
		default:
			return nil, errors.Errorf("Unable to parse %q to list of labels", rRunsOn)
		}
	}

	rMatrix, ok := raw["matrix"]
	if ok {
		matrix, err := s.parseMatrix(rMatrix)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing job 'matrix' field")
		}
		job.Matrix = matrix
	}

	rEnv, ok := raw["environment"]
	if ok {
		env, err := s.parseEnvironment(rEnv)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing job 'environment' field")
		}
		job.Environment = env
	}

	rSteps, ok := raw["steps"]
	if ok {
		stepsArray, ok := rSteps.([]interface{})
		if !ok {
			return nil, errors.Errorf("Expected job 'steps' field to be an array but found: %T", rSteps)
		}
		steps, err := s.parseSteps(stepsArray)
		if err != nil {
			return nil, err
		}
		job.Steps = steps
	}

	rFingerprint, ok := raw["fingerprint"]
	if ok {
		commands, err := s.parseCommands(rFingerprint)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing job 'fingerprint' field")
		}
		job.FingerprintCommands = commands
	}

	rTimeout, ok := raw["timeout"]
	if ok {
		str, ok := rTimeout.(string)
		if !ok {
			return nil, errors.Errorf("Expected job 'timeout' field to be a duration string but found: %T", rTimeout)
		}
		timeout, err := time.ParseDuration(str)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing job 'timeout' value %q", str)
		}
		job.Timeout = timeout
	}

	return job, nil
}

func (s *workflowParserV1) parseSteps(raw []interface{}) ([]models.StepDefinition, error) {
	steps := make([]models.StepDefinition, len(raw))
	for i, obj := range raw {
		element, ok := obj.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("Step element is not an object: %T", obj)
		}
		step, err := s.parseStep(element)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing step at index %d", i)
		}
		steps[i] = *step
	}
	return steps, nil
}

func (s *workflowParserV1) parseStep(raw map[string]interface{}) (*models.StepDefinition, error) {
	step := &models.StepDefinition{}

	rName, ok := raw["name"]
	if ok {
		name, ok := rName.(string)
		if !ok {
			return nil, errors.Errorf("Expected step 'name' field to be a string but found: %T", rName)
		}
		step.Name = models.ResourceName(name)
	}

	rDescription, ok := raw["description"]
	if ok {
		step.Description, ok = rDescription.(string)
		if !ok {
			return nil, errors.Errorf("Expected step 'description' field to be a string but found: %T", rDescription)
		}
	}

	rCommands, ok := raw["commands"]
	if ok {
		commands, err := s.parseCommands(rCommands)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing step 'commands' field")
		}
		step.Commands = commands
	}

	rEnv, ok := raw["environment"]
	if ok {
		env, err := s.parseEnvironment(rEnv)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing step 'environment' field")
		}
		step.Environment = env
	}

	rContinue, ok := raw["continue_on_error"]
	if ok {
		continueOnError, err := s.parseBool(rContinue)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing step 'continue_on_error' field")
		}
		step.ContinueOnError = continueOnError
	}

	return step, nil
}

func (s *workflowParserV1) parseCommands(raw interface{}) (models.Commands, error) {
	switch value := raw.(type) {
	case string:
		return models.Commands{models.Command(value)}, nil
	case []interface{}:
		commands := make(models.Commands, len(value))
		for i, rCommand := range value {
			command, ok := rCommand.(string)
			if !ok {
				return nil, errors.Errorf("Expected command to be a string but found: %T", rCommand)
			}
			commands[i] = models.Command(command)
		}
		return commands, nil
	default:
		return nil, errors.Errorf("Expected a command string or list of commands but found: %T", raw)
	}
}

func (s *workflowParserV1) parseLabels(raw []interface{}) (models.Labels, error) {
	labels := make(models.Labels, len(raw))
	for i, rLabel := range raw {
		label, ok := rLabel.(string)
		if !ok {
			return nil, errors.Errorf("Expected label to be a string but found: %T", rLabel)
		}
		labels[i] = models.Label(label)
	}
	return labels, nil
}

// parseMatrix parses a map of axis name to list of scalar values. The YAML
// normalizer has already converted all scalars to strings.
func (s *workflowParserV1) parseMatrix(raw interface{}) (models.Matrix, error) {
	element, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("Expected matrix to be an object but found: %T", raw)
	}
	matrix := make(models.Matrix, len(element))
	for axis, rValues := range element {
		values, err := s.parseStringList(rValues)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing matrix axis %q", axis)
		}
		matrix[axis] = values
	}
	return matrix, nil
}

// parseEnvironment parses either a map of name to value or a list of
// {name, value} objects. The map form is sorted by name so that parsing is
// deterministic.
func (s *workflowParserV1) parseEnvironment(raw interface{}) (models.JobEnvVars, error) {
	switch value := raw.(type) {
	case map[string]interface{}:
		names := make([]string, 0, len(value))
		for name := range value {
			names = append(names, name)
		}
		sort.Strings(names)
		env := make(models.JobEnvVars, 0, len(names))
		for _, name := range names {
			str, ok := value[name].(string)
			if !ok {
				return nil, errors.Errorf("Expected environment variable %q to have a scalar value but found: %T", name, value[name])
			}
			env = append(env, &models.EnvVar{Name: name, Value: str})
		}
		return env, nil
	case []interface{}:
		env := make(models.JobEnvVars, 0, len(value))
		for _, rVar := range value {
			element, ok := rVar.(map[string]interface{})
			if !ok {
				return nil, errors.Errorf("Expected environment variable to be an object but found: %T", rVar)
			}
			name, _ := element["name"].(string)
			val, _ := element["value"].(string)
			if name == "" {
				return nil, errors.New("environment variable 'name' field must be set")
			}
			env = append(env, &models.EnvVar{Name: name, Value: val})
		}
		return env, nil
	default:
		return nil, errors.Errorf("Expected environment to be an object or list but found: %T", raw)
	}
}

func (s *workflowParserV1) parseStringList(raw interface{}) ([]string, error) {
	switch value := raw.(type) {
	case string:
		return []string{value}, nil
	case []interface{}:
		strs := make([]string, len(value))
		for i, rStr := range value {
			str, ok := rStr.(string)
			if !ok {
				return nil, errors.Errorf("Expected a string but found: %T", rStr)
			}
			strs[i] = str
		}
		return strs, nil
	default:
		return nil, errors.Errorf("Expected a string or list of strings but found: %T", raw)
	}
}

// parseBool handles both real booleans (from JSON) and the stringified
// booleans the YAML normalizer produces.
func (s *workflowParserV1) parseBool(raw interface{}) (bool, error) {
	switch value := raw.(type) {
	case bool:
		return value, nil
	case string:
		switch value {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, errors.Errorf("Expected a boolean but found: %q", value)
	default:
		return false, errors.Errorf("Expected a boolean but found: %T", raw)
	}
}
