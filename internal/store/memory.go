package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/leadforge/prospect-cli/internal/model"
)

// MemoryStore implements TaskStore in process memory. It backs the
// "memory" driver for one-shot runs that need no persistence, and doubles
// as the store in tests. Tasks round-trip through JSON on read and write
// so callers see the same shapes the durable backends produce.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
}

func NewMemory() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*model.Task)}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                      { return nil }

func cloneTask(t *model.Task) (*model.Task, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, eris.Wrap(err, "memory: marshal task")
	}
	var out model.Task
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrap(err, "memory: unmarshal task")
	}
	return &out, nil
}

func (s *MemoryStore) CreateTask(ctx context.Context, task *model.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = model.StatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := cloneTask(task)
	if err != nil {
		return err
	}
	s.tasks[task.ID] = stored
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, eris.Errorf("task not found: %s", id)
	}
	return cloneTask(t)
}

func (s *MemoryStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Task
	for _, t := range s.tasks {
		if filter.OwnerID != "" && t.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		c, err := cloneTask(t)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// mutate applies fn to the stored task under the lock.
func (s *MemoryStore) mutate(id string, fn func(*model.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return eris.Errorf("task not found: %s", id)
	}
	if err := fn(t); err != nil {
		return err
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetStatus(ctx context.Context, id string) (model.TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return "", eris.Errorf("task not found: %s", id)
	}
	return t.Status, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id string, status model.TaskStatus) error {
	return s.mutate(id, func(t *model.Task) error {
		t.Status = status
		return nil
	})
}

func (s *MemoryStore) Pause(ctx context.Context, id string) error {
	return s.mutate(id, func(t *model.Task) error {
		if t.Status.Terminal() || t.Status == model.StatusPaused {
			return nil
		}
		t.PreviousStatus = t.Status
		t.Status = model.StatusPaused
		return nil
	})
}

func (s *MemoryStore) Resume(ctx context.Context, id string) error {
	return s.mutate(id, func(t *model.Task) error {
		if t.Status != model.StatusPaused {
			return nil
		}
		if t.PreviousStatus != "" {
			t.Status = t.PreviousStatus
		} else {
			t.Status = model.StatusPending
		}
		t.PreviousStatus = ""
		return nil
	})
}

func (s *MemoryStore) Terminate(ctx context.Context, id string) error {
	return s.mutate(id, func(t *model.Task) error {
		if t.Status == model.StatusCompleted || t.Status == model.StatusFailed {
			return nil
		}
		t.Status = model.StatusTerminated
		return nil
	})
}

func (s *MemoryStore) Fail(ctx context.Context, id, message string) error {
	return s.mutate(id, func(t *model.Task) error {
		t.Status = model.StatusFailed
		t.Error = message
		return nil
	})
}

func (s *MemoryStore) AppendLogs(ctx context.Context, id string, entries ...model.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.mutate(id, func(t *model.Task) error {
		t.Logs = append(t.Logs, entries...)
		return nil
	})
}

func (s *MemoryStore) AddCompletedStep(ctx context.Context, id, step string) error {
	return s.mutate(id, func(t *model.Task) error {
		if t.StepDone(step) {
			return nil
		}
		t.CompletedSteps = append(t.CompletedSteps, step)
		return nil
	})
}

func (s *MemoryStore) AppendResults(ctx context.Context, id, bucket string, records []model.ScrapedRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.mutate(id, func(t *model.Task) error {
		if t.Results == nil {
			t.Results = make(map[string][]model.ScrapedRecord)
		}
		t.Results[bucket] = append(t.Results[bucket], records...)
		return nil
	})
}

func (s *MemoryStore) SetIntermediate(ctx context.Context, id, key string, value any) error {
	// Round-trip through JSON so readers get generic shapes, matching the
	// durable backends.
	raw, err := json.Marshal(value)
	if err != nil {
		return eris.Wrap(err, "memory: marshal intermediate")
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return eris.Wrap(err, "memory: unmarshal intermediate")
	}
	return s.mutate(id, func(t *model.Task) error {
		if t.Intermediate == nil {
			t.Intermediate = make(map[string]any)
		}
		t.Intermediate[key] = generic
		return nil
	})
}

func (s *MemoryStore) MergeQuery(ctx context.Context, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return eris.Wrap(err, "memory: marshal query fields")
	}
	return s.mutate(id, func(t *model.Task) error {
		current, err := json.Marshal(t.Query)
		if err != nil {
			return eris.Wrap(err, "memory: marshal query")
		}
		var mergedMap map[string]json.RawMessage
		if err := json.Unmarshal(current, &mergedMap); err != nil {
			return eris.Wrap(err, "memory: unmarshal query")
		}
		var patch map[string]json.RawMessage
		if err := json.Unmarshal(raw, &patch); err != nil {
			return eris.Wrap(err, "memory: unmarshal query patch")
		}
		for k, v := range patch {
			mergedMap[k] = v
		}
		merged, err := json.Marshal(mergedMap)
		if err != nil {
			return eris.Wrap(err, "memory: marshal merged query")
		}
		return eris.Wrap(json.Unmarshal(merged, &t.Query), "memory: apply merged query")
	})
}
