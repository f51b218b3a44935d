package parser

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-jsonnet"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/pipewright/pipewright/common/models"
)

var (
	// YAMLWorkflowFileNames contains a list of all workflow file names
	// that represent a YAML formatted workflow in the root of a git repo.
	YAMLWorkflowFileNames = []string{
		".pipewright.yaml",
		"pipewright.yaml",
		".pipewright.yml",
		"pipewright.yml",
	}

	// JSONWorkflowFileNames contains a list of all workflow file names
	// that represent a JSON formatted workflow in the root of a git repo.
	JSONWorkflowFileNames = []string{
		".pipewright.json",
		"pipewright.json",
	}

	// JSONNETWorkflowFileNames contains a list of all workflow file names
	// that represent a JSONNET formatted workflow in the root of a git repo.
	JSONNETWorkflowFileNames = []string{
		".pipewright.jsonnet",
		"pipewright.jsonnet",
	}
)

// workflowVersionedParser is an object capable of parsing a specific version of a workflow definition.
type workflowVersionedParser interface {
	Parse(topLevelElement map[string]interface{}) (*models.WorkflowDefinition, error)
}

// ParserLimits provides a parser with information on limits to check while parsing. If the data goes beyond
// any limit then parsing should fail.
type ParserLimits struct {
	// MaxJobsPerWorkflow is the maximum number of jobs allowed in a workflow, counted after
	// matrix expansion. Any workflow definition expanding to more jobs will be rejected.
	MaxJobsPerWorkflow int
	// MaxStepsPerJob is the maximum number of steps allowed in any single job. Any workflow
	// definition containing a job with more than this number of steps will be rejected.
	MaxStepsPerJob int
}

type WorkflowParser struct {
	limits ParserLimits
}

func NewWorkflowParser(limits ParserLimits) *WorkflowParser {
	return &WorkflowParser{
		limits: limits,
	}
}

// Parse parses a raw workflow file.
func (s *WorkflowParser) Parse(config []byte, configType models.ConfigType) (*models.WorkflowDefinition, error) {
	var (
		err      error
		raw      interface{}
		workflow *models.WorkflowDefinition
	)
	switch configType {
	case models.ConfigTypeYAML:
		raw, err = s.parseFromYAML(config)
	case models.ConfigTypeJSON:
		raw, err = s.parseFromJSON(config)
	case models.ConfigTypeJSONNET:
		raw, err = s.parseFromJSONNET(config)
	case models.ConfigTypeNoConfig:
		return nil, errors.Errorf("error: no workflow file was found")
	case models.ConfigTypeInvalid:
		return nil, s.getErrorForInvalidConfig(config)
	default:
		return nil, errors.Errorf("error: unsupported workflow file type: %s", configType)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling workflow definition from %s", configType)
	}

	// All versions must have a top-level object rather than an array.
	topLevelElement, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("error parsing workflow definition: must contain a top-level object: %T", raw)
	}

	const defaultVersion = "DEFAULT_VERSION"
	version := defaultVersion
	rVersion, ok := topLevelElement["version"]
	if ok {
		// normalizeMapValues() turns all scalar data types into strings, including float/integer version numbers
		version, ok = rVersion.(string)
		if !ok {
			return nil, errors.Errorf("error parsing workflow definition: expected 'version' field to be a string but found: %T", rVersion)
		}
	}

	// Create a parser specific to the version to parse the rest of the data
	var parser workflowVersionedParser
	switch version {
	case "1.0", "1", defaultVersion:
		parser = newWorkflowParserV1(s.limits)
	default:
		return nil, errors.Errorf("error parsing workflow definition: version %s not supported", version)
	}

	workflow, err = parser.Parse(topLevelElement)
	if err != nil {
		return nil, fmt.Errorf("error parsing workflow definition: %w", err)
	}

	return workflow, nil
}

func (s *WorkflowParser) parseFromYAML(config []byte) (interface{}, error) {
	var raw interface{}
	err := yaml.Unmarshal(config, &raw)
	if err != nil {
		return nil, errors.Wrap(err, "error unmarshalling yml")
	}
	raw = s.normalizeMapValues(raw)
	return raw, nil
}

func (s *WorkflowParser) parseFromJSON(config []byte) (interface{}, error) {
	var raw interface{}
	err := json.Unmarshal(config, &raw)
	if err != nil {
		return nil, errors.Wrap(err, "error unmarshalling json")
	}
	return raw, nil
}

func (s *WorkflowParser) parseFromJSONNET(config []byte) (interface{}, error) {
	vm := jsonnet.MakeVM()
	json, err := vm.EvaluateSnippet(models.ConfigFileName, string(config[:]))
	if err != nil {
		return nil, errors.Wrap(err, "error parsing jsonnet")
	}
	return s.parseFromJSON([]byte(json))
}

// getErrorForInvalidConfig returns a suitable error message, given an invalid workflow file
func (s *WorkflowParser) getErrorForInvalidConfig(config []byte) error {
	if len(config) == 0 {
		return errors.Errorf("error: invalid workflow file")
	}

	// For an invalid config, the config itself has been replaced with an error message
	message := string(config)
	if len(message) > 100 {
		message = message[:100]
	}

	return errors.Errorf("error: %s", message)
}

// normalizeMapValues iterates through all properties (including nested properties)
// of an object and converts all map[interface{}]interface{} that have a string key
// to map[string]interface{}. This is intended to be used to normalize the output of
// the yaml parser, to make it consistent with the JSON parser in the go standard lib.
func (s *WorkflowParser) normalizeMapValues(v interface{}) interface{} {
	switch v := v.(type) {
	case []interface{}:
		return s.normalizeInterfaceArray(v)
	case map[interface{}]interface{}:
		return s.cleanupInterfaceMap(v)
	case string:
		return v
	default:
		// This will convert integers, floats and booleans to strings
		return fmt.Sprintf("%v", v)
	}
}

func (s *WorkflowParser) normalizeInterfaceArray(in []interface{}) []interface{} {
	res := make([]interface{}, len(in))
	for i, v := range in {
		res[i] = s.normalizeMapValues(v)
	}
	return res
}

func (s *WorkflowParser) cleanupInterfaceMap(in map[interface{}]interface{}) map[string]interface{} {
	res := make(map[string]interface{})
	for k, v := range in {
		res[fmt.Sprintf("%v", k)] = s.normalizeMapValues(v)
	}
	return res
}
