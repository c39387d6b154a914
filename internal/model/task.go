package model

import (
	"time"
)

// TaskStatus is the lifecycle state of a prospecting task.
type TaskStatus string

const (
	StatusPending           TaskStatus = "pending"
	StatusEvaluating        TaskStatus = "evaluating"
	StatusEnriching         TaskStatus = "enriching"
	StatusSearching         TaskStatus = "searching"
	StatusClassifying       TaskStatus = "classifying"
	StatusWaitingSelection  TaskStatus = "waiting-for-selection"
	StatusScrapingCompany   TaskStatus = "scraping-company"
	StatusScrapingPortal    TaskStatus = "scraping-portal"
	StatusRegistrySearching TaskStatus = "registry-searching"
	StatusAggregating       TaskStatus = "aggregating"
	StatusCompleted         TaskStatus = "completed"
	StatusFailed            TaskStatus = "failed"
	StatusPaused            TaskStatus = "paused"
	StatusTerminated        TaskStatus = "terminated"
)

// Terminal reports whether the status admits no further processing.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTerminated
}

// Interrupted reports whether a running step should stop at its next
// checkpoint. Paused work is re-run from the start of the step on resume;
// terminated work never resumes.
func (s TaskStatus) Interrupted() bool {
	return s == StatusPaused || s == StatusTerminated
}

// Step identifiers. These double as workflow node IDs in completedSteps
// and workflowSteps.
const (
	StepEnriching         = "enriching"
	StepSearching         = "searching"
	StepClassifying       = "classifying"
	StepScrapingCompany   = "scraping-company"
	StepScrapingPortal    = "scraping-portal"
	StepRegistrySearching = "registry-searching"
	StepAggregating       = "aggregating"
)

// Result bucket names keyed in Task.Results. Each producing step appends
// into its own bucket only.
const (
	BucketCompanyPages = "company-pages"
	BucketPortalPages  = "portal-pages"
	BucketRegistry     = "registry"
	BucketAggregated   = "aggregated"
)

// Intermediate data keys in Task.Intermediate.
const (
	IntermediateSearchResults   = "searchResults"
	IntermediateSelectableLinks = "selectableLinks"
	IntermediateClassifiedLinks = "classifiedLinks"
)

// Location narrows a query to a geographic area.
type Location struct {
	City     string `json:"city,omitempty"`
	Province string `json:"province,omitempty"`
	RadiusKm int    `json:"radiusKm,omitempty"`
}

// QuerySpec is the structured query a task runs against. InitialQuery is
// set at creation; IdentifiedService, ExpandedKeywords and PKDCodes are
// filled by the enrichment step.
type QuerySpec struct {
	InitialQuery       string   `json:"initialQuery"`
	IdentifiedService  string   `json:"identifiedService,omitempty"`
	ExpandedKeywords   []string `json:"expandedKeywords,omitempty"`
	PKDCodes           []string `json:"pkdCodes,omitempty"`
	SelectedPKDSection string   `json:"selectedPkdSection,omitempty"`
	Location           Location `json:"location"`
}

// LogEntry is one line of the append-only task progress log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Agent     string    `json:"agent"`
	Message   string    `json:"message"`
}

// Task is the persisted unit of pipeline work and the single source of
// truth for one prospecting run. Components mutate it only through the
// field-level store operations; no component replaces another component's
// result bucket.
type Task struct {
	ID             string                     `json:"id"`
	OwnerID        string                     `json:"ownerId"`
	Status         TaskStatus                 `json:"status"`
	PreviousStatus TaskStatus                 `json:"previousStatus,omitempty"`
	Error          string                     `json:"error,omitempty"`
	Query          QuerySpec                  `json:"query"`
	WorkflowSteps  []string                   `json:"workflowSteps"`
	CompletedSteps []string                   `json:"completedSteps"`
	AutoSelect     bool                       `json:"autoSelect"`
	Intermediate   map[string]any             `json:"intermediateData,omitempty"`
	Results        map[string][]ScrapedRecord `json:"results,omitempty"`
	Logs           []LogEntry                 `json:"logs,omitempty"`
	CreatedAt      time.Time                  `json:"createdAt"`
	UpdatedAt      time.Time                  `json:"updatedAt"`
}

// StepDone reports whether step is already in CompletedSteps.
func (t *Task) StepDone(step string) bool {
	for _, s := range t.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// HasStep reports whether step is part of this task's selected workflow.
func (t *Task) HasStep(step string) bool {
	for _, s := range t.WorkflowSteps {
		if s == step {
			return true
		}
	}
	return false
}

// NewLog creates a log entry stamped now.
func NewLog(agent, message string) LogEntry {
	return LogEntry{Timestamp: time.Now().UTC(), Agent: agent, Message: message}
}
