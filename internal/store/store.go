// Package store persists prospecting tasks. The interface is deliberately
// narrow and field-level: logs, completed steps and result buckets are
// append-only so concurrent pollers never observe a half-written task.
package store

import (
	"context"

	"github.com/leadforge/prospect-cli/internal/model"
)

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	OwnerID string           `json:"owner_id,omitempty"`
	Status  model.TaskStatus `json:"status,omitempty"`
	Limit   int              `json:"limit,omitempty"`
	Offset  int              `json:"offset,omitempty"`
}

// TaskStore defines the persistence capability the pipeline depends on.
type TaskStore interface {
	// Lifecycle
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error)

	// Status. GetStatus backs the pause/terminate polling inside long
	// loops and must be read-your-writes consistent with SetStatus.
	GetStatus(ctx context.Context, id string) (model.TaskStatus, error)
	SetStatus(ctx context.Context, id string, status model.TaskStatus) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Terminate(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, message string) error

	// Field-level appends
	AppendLogs(ctx context.Context, id string, entries ...model.LogEntry) error
	AddCompletedStep(ctx context.Context, id, step string) error
	AppendResults(ctx context.Context, id, bucket string, records []model.ScrapedRecord) error
	SetIntermediate(ctx context.Context, id, key string, value any) error
	MergeQuery(ctx context.Context, id string, fields map[string]any) error

	// Maintenance
	Migrate(ctx context.Context) error
	Close() error
}
