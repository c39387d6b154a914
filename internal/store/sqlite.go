package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/leadforge/prospect-cli/internal/model"
)

// SQLiteStore implements TaskStore using modernc.org/sqlite. JSON columns
// have no in-place append, so every mutation of a list field runs
// read-modify-write inside a transaction, serialized by the single
// connection.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tasks (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	previous_status TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	query           TEXT NOT NULL DEFAULT '{}',
	workflow_steps  TEXT NOT NULL DEFAULT '[]',
	completed_steps TEXT NOT NULL DEFAULT '[]',
	auto_select     INTEGER NOT NULL DEFAULT 0,
	intermediate    TEXT NOT NULL DEFAULT '{}',
	results         TEXT NOT NULL DEFAULT '{}',
	logs            TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTask(ctx context.Context, task *model.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = model.StatusPending
	}

	queryJSON, err := json.Marshal(task.Query)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal query")
	}
	stepsJSON, err := json.Marshal(task.WorkflowSteps)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal workflow steps")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, owner_id, status, query, workflow_steps, auto_select, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.OwnerID, string(task.Status), string(queryJSON), string(stepsJSON),
		task.AutoSelect, now, now,
	)
	return eris.Wrap(err, "sqlite: insert task")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	var status, prevStatus string
	var queryJSON, stepsJSON, completedJSON, intermediateJSON, resultsJSON, logsJSON string

	err := row.Scan(&t.ID, &t.OwnerID, &status, &prevStatus, &t.Error, &queryJSON, &stepsJSON,
		&completedJSON, &t.AutoSelect, &intermediateJSON, &resultsJSON, &logsJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Status = model.TaskStatus(status)
	t.PreviousStatus = model.TaskStatus(prevStatus)
	fields := []struct {
		name string
		data string
		dst  any
	}{
		{"query", queryJSON, &t.Query},
		{"workflow_steps", stepsJSON, &t.WorkflowSteps},
		{"completed_steps", completedJSON, &t.CompletedSteps},
		{"intermediate", intermediateJSON, &t.Intermediate},
		{"results", resultsJSON, &t.Results},
		{"logs", logsJSON, &t.Logs},
	}
	for _, f := range fields {
		if f.data == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.data), f.dst); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal %s", f.name)
		}
	}
	return &t, nil
}

const sqliteTaskColumns = `id, owner_id, status, previous_status, error, query, workflow_steps,
	completed_steps, auto_select, intermediate, results, logs, created_at, updated_at`

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteTaskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanSQLiteTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, eris.Errorf("task not found: %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get task %s", id)
	}
	return task, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	query := `SELECT ` + sqliteTaskColumns + ` FROM tasks WHERE 1=1`
	args := []any{}
	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tasks")
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		tasks = append(tasks, *t)
	}
	return tasks, eris.Wrap(rows.Err(), "sqlite: list tasks rows")
}

func (s *SQLiteStore) GetStatus(ctx context.Context, id string) (model.TaskStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: get status %s", id)
	}
	return model.TaskStatus(status), nil
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status model.TaskStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set status %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("task not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) Pause(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET previous_status = status, status = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?, ?, ?)`,
		string(model.StatusPaused), time.Now().UTC(), id,
		string(model.StatusPaused), string(model.StatusCompleted),
		string(model.StatusFailed), string(model.StatusTerminated),
	)
	return eris.Wrapf(err, "sqlite: pause %s", id)
}

func (s *SQLiteStore) Resume(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = CASE WHEN previous_status = '' THEN ? ELSE previous_status END,
		        previous_status = '', updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.StatusPending), time.Now().UTC(), id, string(model.StatusPaused),
	)
	return eris.Wrapf(err, "sqlite: resume %s", id)
}

func (s *SQLiteStore) Terminate(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?, ?)`,
		string(model.StatusTerminated), time.Now().UTC(), id,
		string(model.StatusCompleted), string(model.StatusFailed), string(model.StatusTerminated),
	)
	return eris.Wrapf(err, "sqlite: terminate %s", id)
}

func (s *SQLiteStore) Fail(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.StatusFailed), message, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: fail %s", id)
}

// mutateJSON reads one JSON column, applies fn to its raw value, and writes
// the result back, all inside a single transaction.
func (s *SQLiteStore) mutateJSON(ctx context.Context, id, column string, fn func(raw string) (string, bool, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT `+column+` FROM tasks WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return eris.Errorf("task not found: %s", id)
		}
		return eris.Wrapf(err, "sqlite: read %s", column)
	}

	updated, changed, err := fn(raw)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		updated, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: write %s", column)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) AppendLogs(ctx context.Context, id string, entries ...model.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.mutateJSON(ctx, id, "logs", func(raw string) (string, bool, error) {
		var logs []model.LogEntry
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &logs); err != nil {
				return "", false, eris.Wrap(err, "sqlite: unmarshal logs")
			}
		}
		logs = append(logs, entries...)
		out, err := json.Marshal(logs)
		if err != nil {
			return "", false, eris.Wrap(err, "sqlite: marshal logs")
		}
		return string(out), true, nil
	})
}

func (s *SQLiteStore) AddCompletedStep(ctx context.Context, id, step string) error {
	return s.mutateJSON(ctx, id, "completed_steps", func(raw string) (string, bool, error) {
		var steps []string
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &steps); err != nil {
				return "", false, eris.Wrap(err, "sqlite: unmarshal completed steps")
			}
		}
		for _, s := range steps {
			if s == step {
				return "", false, nil
			}
		}
		steps = append(steps, step)
		out, err := json.Marshal(steps)
		if err != nil {
			return "", false, eris.Wrap(err, "sqlite: marshal completed steps")
		}
		return string(out), true, nil
	})
}

func (s *SQLiteStore) AppendResults(ctx context.Context, id, bucket string, records []model.ScrapedRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.mutateJSON(ctx, id, "results", func(raw string) (string, bool, error) {
		results := map[string][]model.ScrapedRecord{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &results); err != nil {
				return "", false, eris.Wrap(err, "sqlite: unmarshal results")
			}
		}
		results[bucket] = append(results[bucket], records...)
		out, err := json.Marshal(results)
		if err != nil {
			return "", false, eris.Wrap(err, "sqlite: marshal results")
		}
		return string(out), true, nil
	})
}

func (s *SQLiteStore) SetIntermediate(ctx context.Context, id, key string, value any) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal intermediate")
	}
	return s.mutateJSON(ctx, id, "intermediate", func(raw string) (string, bool, error) {
		intermediate := map[string]json.RawMessage{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &intermediate); err != nil {
				return "", false, eris.Wrap(err, "sqlite: unmarshal intermediate")
			}
		}
		intermediate[key] = valueJSON
		out, err := json.Marshal(intermediate)
		if err != nil {
			return "", false, eris.Wrap(err, "sqlite: marshal intermediate map")
		}
		return string(out), true, nil
	})
}

func (s *SQLiteStore) MergeQuery(ctx context.Context, id string, fields map[string]any) error {
	return s.mutateJSON(ctx, id, "query", func(raw string) (string, bool, error) {
		query := map[string]json.RawMessage{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &query); err != nil {
				return "", false, eris.Wrap(err, "sqlite: unmarshal query")
			}
		}
		for k, v := range fields {
			vb, err := json.Marshal(v)
			if err != nil {
				return "", false, eris.Wrapf(err, "sqlite: marshal query field %s", k)
			}
			query[k] = vb
		}
		out, err := json.Marshal(query)
		if err != nil {
			return "", false, eris.Wrap(err, "sqlite: marshal query map")
		}
		return string(out), true, nil
	})
}
