package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leadforge/prospect-cli/internal/model"
)

func TestNextStepsLinearChain(t *testing.T) {
	task := &model.Task{
		WorkflowSteps: []string{model.StepEnriching, model.StepSearching, model.StepClassifying},
	}

	assert.Equal(t, []string{model.StepEnriching}, NextSteps(task))

	task.CompletedSteps = []string{model.StepEnriching}
	assert.Equal(t, []string{model.StepSearching}, NextSteps(task))

	task.CompletedSteps = []string{model.StepEnriching, model.StepSearching}
	assert.Equal(t, []string{model.StepClassifying}, NextSteps(task))

	task.CompletedSteps = []string{model.StepEnriching, model.StepSearching, model.StepClassifying}
	assert.Empty(t, NextSteps(task))
	assert.True(t, AllDone(task))
}

func TestNextStepsParallelBranches(t *testing.T) {
	task := &model.Task{
		WorkflowSteps:  DefaultSteps(),
		CompletedSteps: []string{model.StepEnriching},
	}
	// Both branches unblock at once.
	assert.Equal(t, []string{model.StepSearching, model.StepRegistrySearching}, NextSteps(task))
}

func TestAggregatingIsAnOrJoin(t *testing.T) {
	task := &model.Task{
		WorkflowSteps: DefaultSteps(),
		CompletedSteps: []string{
			model.StepEnriching, model.StepRegistrySearching,
		},
	}
	ready := NextSteps(task)
	// One completed source branch is enough for aggregating.
	assert.Contains(t, ready, model.StepAggregating)
	// The web branch is still runnable too.
	assert.Contains(t, ready, model.StepSearching)
}

func TestAggregatingBlockedWithNoCompletedSource(t *testing.T) {
	task := &model.Task{
		WorkflowSteps:  DefaultSteps(),
		CompletedSteps: []string{model.StepEnriching},
	}
	assert.NotContains(t, NextSteps(task), model.StepAggregating)
}

func TestUnselectedDependenciesDoNotBlock(t *testing.T) {
	// Registry-only workflow: aggregating's scraping dependencies are not
	// selected and must not deadlock the join.
	task := &model.Task{
		WorkflowSteps:  []string{model.StepEnriching, model.StepRegistrySearching, model.StepAggregating},
		CompletedSteps: []string{model.StepEnriching, model.StepRegistrySearching},
	}
	assert.Equal(t, []string{model.StepAggregating}, NextSteps(task))

	// Degenerate: aggregating alone, no source selected at all.
	solo := &model.Task{WorkflowSteps: []string{model.StepAggregating}}
	assert.Equal(t, []string{model.StepAggregating}, NextSteps(solo))
}

func TestNextStepsIgnoresUnknownSteps(t *testing.T) {
	task := &model.Task{WorkflowSteps: []string{"bogus", model.StepEnriching}}
	assert.Equal(t, []string{model.StepEnriching}, NextSteps(task))
}

func TestKnownStepAndDefaults(t *testing.T) {
	for _, id := range DefaultSteps() {
		assert.True(t, KnownStep(id), id)
	}
	assert.False(t, KnownStep("bogus"))
	assert.Equal(t, model.StepEnriching, DefaultSteps()[0])
	assert.Equal(t, model.StepAggregating, DefaultSteps()[len(DefaultSteps())-1])
}
