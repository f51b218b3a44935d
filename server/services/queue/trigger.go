package queue

import (
	"github.com/bmatcuk/doublestar/v2"
	"github.com/pkg/errors"

	"github.com/pipewright/pipewright/common/models"
)

// EventMatches returns true if the supplied event fires the given trigger
// set: the rule for the event's kind must be declared, and the event's
// branch or tag short name must match one of the rule's glob patterns (an
// empty pattern list matches every ref of that kind).
func EventMatches(triggers *models.Triggers, event *models.Event) (bool, error) {
	rule := triggers.RuleFor(event.Kind)
	if rule == nil {
		return false, nil
	}
	if branch := event.BranchName(); branch != "" {
		return refMatches(rule.Branches, branch)
	}
	if tag := event.TagName(); tag != "" {
		return refMatches(rule.Tags, tag)
	}
	// A bare ref (e.g. a raw SHA) only matches an unrestricted rule.
	return len(rule.Branches) == 0 && len(rule.Tags) == 0, nil
}

func refMatches(patterns []string, shortName string) (bool, error) {
	if len(patterns) == 0 {
		return true, nil
	}
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, shortName)
		if err != nil {
			return false, errors.Wrapf(err, "error matching ref %q against pattern %q", shortName, pattern)
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}
