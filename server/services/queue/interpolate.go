package queue

import (
	"regexp"

	"github.com/pkg/errors"

	"github.com/pipewright/pipewright/common/models"
)

// matrixExprRegex matches matrix interpolation expressions of the form
// "${{ matrix.axis-name }}" (whitespace inside the braces is optional).
var matrixExprRegex = regexp.MustCompile(`\$\{\{\s*matrix\.([a-zA-Z0-9_-]+)\s*\}\}`)

// interpolate substitutes every matrix expression in s with the value the
// combination assigns to the referenced axis. Referencing an axis that is not
// part of the combination is an error.
func interpolate(s string, combination models.MatrixCombination) (string, error) {
	var firstErr error
	result := matrixExprRegex.ReplaceAllStringFunc(s, func(match string) string {
		axis := matrixExprRegex.FindStringSubmatch(match)[1]
		value, ok := combination[axis]
		if !ok {
			if firstErr == nil {
				firstErr = errors.Errorf("error interpolating %q: job has no matrix axis %q", match, axis)
			}
			return match
		}
		return value
	})
	return result, firstErr
}

// interpolateCommands applies matrix interpolation to each command in turn.
func interpolateCommands(commands models.Commands, combination models.MatrixCombination) (models.Commands, error) {
	if len(commands) == 0 {
		return commands, nil
	}
	result := make(models.Commands, len(commands))
	for i, command := range commands {
		interpolated, err := interpolate(command.String(), combination)
		if err != nil {
			return nil, err
		}
		result[i] = models.Command(interpolated)
	}
	return result, nil
}

// interpolateEnv applies matrix interpolation to the value of each
// environment variable, returning a new list.
func interpolateEnv(env models.JobEnvVars, combination models.MatrixCombination) (models.JobEnvVars, error) {
	if len(env) == 0 {
		return env, nil
	}
	result := make(models.JobEnvVars, len(env))
	for i, envVar := range env {
		value, err := interpolate(envVar.Value, combination)
		if err != nil {
			return nil, err
		}
		result[i] = &models.EnvVar{Name: envVar.Name, Value: value}
	}
	return result, nil
}
