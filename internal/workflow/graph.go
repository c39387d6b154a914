// Package workflow drives a task through its step dependency graph.
package workflow

import (
	"github.com/leadforge/prospect-cli/internal/model"
)

// DependencyType controls how a step's dependencies combine.
type DependencyType string

const (
	// DependAll requires every dependency completed before the step runs.
	DependAll DependencyType = "AND"
	// DependAny unblocks the step once any one dependency completed.
	DependAny DependencyType = "OR"
)

// Step is one node of the workflow graph.
type Step struct {
	ID             string
	DependsOn      []string
	DependencyType DependencyType
}

// Template is the full step graph. A task's WorkflowSteps selects a
// subset of node IDs; dependency edges to unselected nodes still count,
// which is why the aggregation join is an OR: whichever selected source
// branch finishes first unblocks it.
var Template = []Step{
	{ID: model.StepEnriching},

	// Web search branch.
	{ID: model.StepSearching, DependsOn: []string{model.StepEnriching}},
	{ID: model.StepClassifying, DependsOn: []string{model.StepSearching}},
	{ID: model.StepScrapingCompany, DependsOn: []string{model.StepClassifying}},
	{ID: model.StepScrapingPortal, DependsOn: []string{model.StepClassifying}},

	// Registry branch.
	{ID: model.StepRegistrySearching, DependsOn: []string{model.StepEnriching}},

	// Final join.
	{
		ID:             model.StepAggregating,
		DependsOn:      []string{model.StepScrapingCompany, model.StepScrapingPortal, model.StepRegistrySearching},
		DependencyType: DependAny,
	},
}

// templateByID indexes Template for lookup.
var templateByID = func() map[string]Step {
	m := make(map[string]Step, len(Template))
	for _, s := range Template {
		m[s.ID] = s
	}
	return m
}()

// KnownStep reports whether id names a template node.
func KnownStep(id string) bool {
	_, ok := templateByID[id]
	return ok
}

// DefaultSteps returns the IDs of the full template in declaration order.
func DefaultSteps() []string {
	out := make([]string, 0, len(Template))
	for _, s := range Template {
		out = append(out, s.ID)
	}
	return out
}

// NextSteps returns the selected, not-yet-completed steps whose
// dependencies are satisfied by the task's completed set. For an AND
// join, only dependencies that are part of the task's selected workflow
// are required; depending on a step the user excluded must not deadlock
// the graph.
func NextSteps(task *model.Task) []string {
	var ready []string
	for _, id := range task.WorkflowSteps {
		if task.StepDone(id) {
			continue
		}
		step, ok := templateByID[id]
		if !ok {
			continue
		}
		if depsMet(task, step) {
			ready = append(ready, id)
		}
	}
	return ready
}

// depsMet checks a step's dependencies against the task's completed set,
// counting only dependencies the task actually selected. A step whose
// declared dependencies were all excluded is immediately ready: a
// selection like [aggregating] alone runs aggregation over whatever
// result buckets exist, empty included, which the aggregator handles by
// writing an empty final bucket.
func depsMet(task *model.Task, step Step) bool {
	selected := make([]string, 0, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		if task.HasStep(dep) {
			selected = append(selected, dep)
		}
	}
	if len(selected) == 0 {
		return true
	}
	if step.DependencyType == DependAny {
		for _, dep := range selected {
			if task.StepDone(dep) {
				return true
			}
		}
		return false
	}
	for _, dep := range selected {
		if !task.StepDone(dep) {
			return false
		}
	}
	return true
}

// AllDone reports whether every selected step has completed.
func AllDone(task *model.Task) bool {
	for _, id := range task.WorkflowSteps {
		if !task.StepDone(id) {
			return false
		}
	}
	return true
}
