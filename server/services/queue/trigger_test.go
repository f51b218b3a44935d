package queue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pipewright/pipewright/common/models"
)

func TestEventMatches(t *testing.T) {
	tests := []struct {
		name     string
		triggers models.Triggers
		event    models.Event
		matches  bool
	}{
		{
			name:     "push event matches unrestricted push rule",
			triggers: models.Triggers{Push: &models.TriggerRule{}},
			event:    models.Event{Kind: models.EventKindPush, Ref: "refs/heads/main"},
			matches:  true,
		},
		{
			name:     "pull request event does not match push-only workflow",
			triggers: models.Triggers{Push: &models.TriggerRule{}},
			event:    models.Event{Kind: models.EventKindPullRequest, Ref: "refs/heads/main"},
			matches:  false,
		},
		{
			name: "pull request event matches workflow with both triggers",
			triggers: models.Triggers{
				Push:        &models.TriggerRule{},
				PullRequest: &models.TriggerRule{},
			},
			event:   models.Event{Kind: models.EventKindPullRequest, Ref: "refs/heads/feature"},
			matches: true,
		},
		{
			name:     "branch filter matches exact branch",
			triggers: models.Triggers{Push: &models.TriggerRule{Branches: []string{"main"}}},
			event:    models.Event{Kind: models.EventKindPush, Ref: "refs/heads/main"},
			matches:  true,
		},
		{
			name:     "branch filter rejects other branch",
			triggers: models.Triggers{Push: &models.TriggerRule{Branches: []string{"main"}}},
			event:    models.Event{Kind: models.EventKindPush, Ref: "refs/heads/feature"},
			matches:  false,
		},
		{
			name:     "branch glob matches prefixed branches",
			triggers: models.Triggers{Push: &models.TriggerRule{Branches: []string{"release/*"}}},
			event:    models.Event{Kind: models.EventKindPush, Ref: "refs/heads/release/1.2"},
			matches:  true,
		},
		{
			name:     "tag ref matches tag filter",
			triggers: models.Triggers{Push: &models.TriggerRule{Tags: []string{"v*"}}},
			event:    models.Event{Kind: models.EventKindPush, Ref: "refs/tags/v1.0.0"},
			matches:  true,
		},
		{
			name:     "tag ref does not match non-matching tag filter",
			triggers: models.Triggers{Push: &models.TriggerRule{Tags: []string{"v*"}}},
			event:    models.Event{Kind: models.EventKindPush, Ref: "refs/tags/nightly"},
			matches:  false,
		},
		{
			name:     "tag ref matches unrestricted rule",
			triggers: models.Triggers{Push: &models.TriggerRule{}},
			event:    models.Event{Kind: models.EventKindPush, Ref: "refs/tags/v1.0.0"},
			matches:  true,
		},
		{
			name:     "bare ref matches only unrestricted rule",
			triggers: models.Triggers{Push: &models.TriggerRule{}},
			event:    models.Event{Kind: models.EventKindPush, Ref: "0123456789abcdef"},
			matches:  true,
		},
		{
			name:     "bare ref does not match restricted rule",
			triggers: models.Triggers{Push: &models.TriggerRule{Branches: []string{"main"}}},
			event:    models.Event{Kind: models.EventKindPush, Ref: "0123456789abcdef"},
			matches:  false,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			matched, err := EventMatches(&test.triggers, &test.event)
			require.Nil(t, err)
			require.Equal(t, test.matches, matched)
		})
	}
}

func TestInterpolate(t *testing.T) {
	combination := models.MatrixCombination{"python-version": "3.8", "os": "ubuntu-latest"}

	result, err := interpolate("python${{ matrix.python-version }} on ${{matrix.os}}", combination)
	require.Nil(t, err)
	require.Equal(t, "python3.8 on ubuntu-latest", result)

	// No expressions passes through untouched
	result, err = interpolate("echo hello", combination)
	require.Nil(t, err)
	require.Equal(t, "echo hello", result)

	// Unknown axis is an error
	_, err = interpolate("${{ matrix.node-version }}", combination)
	require.NotNil(t, err)
}
