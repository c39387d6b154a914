package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadforge/prospect-cli/internal/agents"
	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/store"
)

const orchestratorAgent = "orchestrator"

// stepStatus maps each step to the task status shown while it runs.
var stepStatus = map[string]model.TaskStatus{
	model.StepEnriching:         model.StatusEnriching,
	model.StepSearching:         model.StatusSearching,
	model.StepClassifying:       model.StatusClassifying,
	model.StepScrapingCompany:   model.StatusScrapingCompany,
	model.StepScrapingPortal:    model.StatusScrapingPortal,
	model.StepRegistrySearching: model.StatusRegistrySearching,
	model.StepAggregating:       model.StatusAggregating,
}

// Orchestrator advances tasks through the workflow graph one step at a
// time, re-reading persisted state between steps so pause, terminate and
// selection checkpoints always observe the latest status.
type Orchestrator struct {
	store store.TaskStore

	enricher   *agents.Enricher
	searcher   *agents.Searcher
	classifier *agents.Classifier
	scraper    *agents.PageScraper
	registry   *agents.RegistrySearcher
	aggregator *agents.Aggregator
}

// Deps bundles the agents an orchestrator drives.
type Deps struct {
	Enricher   *agents.Enricher
	Searcher   *agents.Searcher
	Classifier *agents.Classifier
	Scraper    *agents.PageScraper
	Registry   *agents.RegistrySearcher
	Aggregator *agents.Aggregator
}

func NewOrchestrator(st store.TaskStore, deps Deps) *Orchestrator {
	return &Orchestrator{
		store:      st,
		enricher:   deps.Enricher,
		searcher:   deps.Searcher,
		classifier: deps.Classifier,
		scraper:    deps.Scraper,
		registry:   deps.Registry,
		aggregator: deps.Aggregator,
	}
}

// Run advances the task until it completes, fails, pauses, or stops at
// the selection checkpoint. Safe to call again on a resumed task: steps
// already in completedSteps never re-run, and a step interrupted mid-way
// was never recorded, so it re-runs whole.
func (o *Orchestrator) Run(ctx context.Context, taskID string) error {
	for {
		task, err := o.store.GetTask(ctx, taskID)
		if err != nil {
			return eris.Wrap(err, "orchestrator: load task")
		}

		if task.Status.Terminal() || task.Status == model.StatusPaused || task.Status == model.StatusWaitingSelection {
			zap.L().Info("task not runnable, stopping",
				zap.String("task", taskID), zap.String("status", string(task.Status)))
			return nil
		}

		if task.Status == model.StatusPending {
			if err := o.store.SetStatus(ctx, taskID, model.StatusEvaluating); err != nil {
				return eris.Wrap(err, "orchestrator: set evaluating")
			}
		}

		if len(task.CompletedSteps) == 0 {
			o.log(ctx, taskID, fmt.Sprintf("starting task, plan: [%s]",
				strings.Join(task.WorkflowSteps, " -> ")))
		}

		if AllDone(task) {
			if err := o.store.SetStatus(ctx, taskID, model.StatusCompleted); err != nil {
				return eris.Wrap(err, "orchestrator: mark completed")
			}
			o.log(ctx, taskID, "all workflow steps completed")
			return nil
		}

		ready := NextSteps(task)
		if len(ready) == 0 {
			msg := fmt.Sprintf("workflow stalled: completed [%s] unblocks nothing",
				strings.Join(task.CompletedSteps, ", "))
			if err := o.store.Fail(ctx, taskID, msg); err != nil {
				return eris.Wrap(err, "orchestrator: mark failed")
			}
			o.log(ctx, taskID, msg)
			return eris.New("orchestrator: " + msg)
		}

		step := ready[0]
		if err := o.store.SetStatus(ctx, taskID, stepStatus[step]); err != nil {
			return eris.Wrap(err, "orchestrator: set step status")
		}

		if err := o.execute(ctx, step, task); err != nil {
			msg := fmt.Sprintf("step %s failed: %s", step, err.Error())
			if ferr := o.store.Fail(ctx, taskID, msg); ferr != nil {
				zap.L().Error("marking task failed failed",
					zap.String("task", taskID), zap.Error(ferr))
			}
			o.log(ctx, taskID, msg)
			return eris.Wrapf(err, "orchestrator: step %s", step)
		}

		// A pause or terminate during the step means the step did not
		// finish; leave it unrecorded so resume re-runs it from scratch.
		status, err := o.store.GetStatus(ctx, taskID)
		if err != nil {
			return eris.Wrap(err, "orchestrator: reload status")
		}
		if status.Interrupted() {
			zap.L().Info("task interrupted mid-step",
				zap.String("task", taskID), zap.String("step", step))
			return nil
		}

		if err := o.store.AddCompletedStep(ctx, taskID, step); err != nil {
			return eris.Wrap(err, "orchestrator: record step")
		}

		if step == model.StepClassifying {
			proceed, err := o.afterClassify(ctx, task)
			if err != nil {
				return err
			}
			if !proceed {
				return nil
			}
		}
	}
}

func (o *Orchestrator) execute(ctx context.Context, step string, task *model.Task) error {
	switch step {
	case model.StepEnriching:
		return o.enricher.Run(ctx, task)
	case model.StepSearching:
		return o.searcher.Run(ctx, task)
	case model.StepClassifying:
		return o.classifier.Run(ctx, task)
	case model.StepScrapingCompany:
		return o.scraper.RunCompanyPages(ctx, task)
	case model.StepScrapingPortal:
		return o.scraper.RunPortalPages(ctx, task)
	case model.StepRegistrySearching:
		return o.registry.Run(ctx, task)
	case model.StepAggregating:
		return o.aggregator.Run(ctx, task)
	default:
		return eris.Errorf("orchestrator: unknown step %q", step)
	}
}

// afterClassify handles the selection checkpoint. Auto-select tasks copy
// the full partition and keep going; otherwise the task parks until a
// selection arrives. Returns whether the run loop should continue.
func (o *Orchestrator) afterClassify(ctx context.Context, task *model.Task) (bool, error) {
	if task.AutoSelect {
		if err := o.applySelection(ctx, task, nil); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := o.store.SetStatus(ctx, task.ID, model.StatusWaitingSelection); err != nil {
		return false, eris.Wrap(err, "orchestrator: set waiting-for-selection")
	}
	o.log(ctx, task.ID, "classification done, waiting for link selection")
	return false, nil
}

// ApplySelection records which classified links to scrape and makes the
// task runnable again. A nil selection accepts the full classified
// partition. The task must be at the selection checkpoint: applying a
// selection to a task in any other state would reset it to pending,
// which for a terminated task means resurrecting it.
func (o *Orchestrator) ApplySelection(ctx context.Context, taskID string, selection *model.ClassifiedLinks) error {
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return eris.Wrap(err, "orchestrator: load task for selection")
	}
	if task.Status != model.StatusWaitingSelection {
		return eris.Errorf("orchestrator: task %s is %s, selection requires %s",
			taskID, task.Status, model.StatusWaitingSelection)
	}
	return o.applySelection(ctx, task, selection)
}

func (o *Orchestrator) applySelection(ctx context.Context, task *model.Task, selection *model.ClassifiedLinks) error {
	if selection == nil {
		var links model.ClassifiedLinks
		raw, ok := task.Intermediate[model.IntermediateSelectableLinks]
		if ok && raw != nil {
			if err := remarshal(raw, &links); err != nil {
				return eris.Wrap(err, "orchestrator: decode selectable links")
			}
		}
		selection = &links
	}

	if err := o.store.SetIntermediate(ctx, task.ID, model.IntermediateClassifiedLinks, selection); err != nil {
		return eris.Wrap(err, "orchestrator: persist selection")
	}
	if err := o.store.SetStatus(ctx, task.ID, model.StatusPending); err != nil {
		return eris.Wrap(err, "orchestrator: reset status after selection")
	}
	o.log(ctx, task.ID, fmt.Sprintf("selection applied: %d company links, %d portal links",
		len(selection.CompanyURLs), len(selection.PortalURLs)))
	return nil
}

// remarshal converts a generic JSON-decoded value into a typed one.
func remarshal(value, out any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (o *Orchestrator) log(ctx context.Context, taskID, message string) {
	zap.L().Info(message, zap.String("task", taskID), zap.String("agent", orchestratorAgent))
	if err := o.store.AppendLogs(ctx, taskID, model.NewLog(orchestratorAgent, message)); err != nil {
		zap.L().Warn("append task log failed", zap.String("task", taskID), zap.Error(err))
	}
}
