package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/leadforge/prospect-cli/internal/db"
	"github.com/leadforge/prospect-cli/internal/model"
)

// PostgresStore implements TaskStore using pgxpool. All appends are
// single-statement jsonb concatenations, so readers polling a task never
// see partial writes.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tasks (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending',
	previous_status TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	query           JSONB NOT NULL DEFAULT '{}'::jsonb,
	workflow_steps  JSONB NOT NULL DEFAULT '[]'::jsonb,
	completed_steps JSONB NOT NULL DEFAULT '[]'::jsonb,
	auto_select     BOOLEAN NOT NULL DEFAULT FALSE,
	intermediate    JSONB NOT NULL DEFAULT '{}'::jsonb,
	results         JSONB NOT NULL DEFAULT '{}'::jsonb,
	logs            JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, task *model.Task) error {
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
		return eris.Wrap(err, "postgres: marshal query")
	}
	stepsJSON, err := json.Marshal(task.WorkflowSteps)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal workflow steps")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tasks (id, owner_id, status, query, workflow_steps, auto_select, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		task.ID, task.OwnerID, string(task.Status), queryJSON, stepsJSON, task.AutoSelect, now, now,
	)
	return eris.Wrap(err, "postgres: insert task")
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, status, previous_status, error, query, workflow_steps,
		        completed_steps, auto_select, intermediate, results, logs, created_at, updated_at
		 FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("task not found: %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get task %s", id)
	}
	return task, nil
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var status, prevStatus string
	var queryJSON, stepsJSON, completedJSON, intermediateJSON, resultsJSON, logsJSON []byte

	err := row.Scan(&t.ID, &t.OwnerID, &status, &prevStatus, &t.Error, &queryJSON, &stepsJSON,
		&completedJSON, &t.AutoSelect, &intermediateJSON, &resultsJSON, &logsJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Status = model.TaskStatus(status)
	t.PreviousStatus = model.TaskStatus(prevStatus)
	fields := []struct {
		name string
		data []byte
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
		if len(f.data) == 0 {
			continue
		}
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal %s", f.name)
		}
	}
	return &t, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	query := `SELECT id, owner_id, status, previous_status, error, query, workflow_steps,
	                 completed_steps, auto_select, intermediate, results, logs, created_at, updated_at
	          FROM tasks WHERE 1=1`
	args := []any{}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		query += ` AND owner_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tasks")
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		tasks = append(tasks, *t)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: list tasks rows")
}

func (s *PostgresStore) GetStatus(ctx context.Context, id string) (model.TaskStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: get status %s", id)
	}
	return model.TaskStatus(status), nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status model.TaskStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("task not found: %s", id)
	}
	return nil
}

// Pause snapshots the current status into previous_status and parks the
// task. Terminal and already-paused tasks are left untouched.
func (s *PostgresStore) Pause(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET previous_status = status, status = $1, updated_at = $2
		 WHERE id = $3 AND status NOT IN ($1, $4, $5, $6)`,
		string(model.StatusPaused), time.Now().UTC(), id,
		string(model.StatusCompleted), string(model.StatusFailed), string(model.StatusTerminated),
	)
	return eris.Wrapf(err, "postgres: pause %s", id)
}

// Resume restores the pre-pause status. The interrupted step was never
// recorded as completed, so the orchestrator re-runs it from the start.
func (s *PostgresStore) Resume(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = CASE WHEN previous_status = '' THEN $1 ELSE previous_status END,
		        previous_status = '', updated_at = $2
		 WHERE id = $3 AND status = $4`,
		string(model.StatusPending), time.Now().UTC(), id, string(model.StatusPaused),
	)
	return eris.Wrapf(err, "postgres: resume %s", id)
}

// Terminate is absorbing: once set, no component issues further writes.
func (s *PostgresStore) Terminate(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $1, updated_at = $2
		 WHERE id = $3 AND status NOT IN ($4, $5, $1)`,
		string(model.StatusTerminated), time.Now().UTC(), id,
		string(model.StatusCompleted), string(model.StatusFailed),
	)
	return eris.Wrapf(err, "postgres: terminate %s", id)
}

func (s *PostgresStore) Fail(ctx context.Context, id, message string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.StatusFailed), message, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: fail %s", id)
}

func (s *PostgresStore) AppendLogs(ctx context.Context, id string, entries ...model.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	entriesJSON, err := json.Marshal(entries)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal log entries")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE tasks SET logs = logs || $1::jsonb, updated_at = $2 WHERE id = $3`,
		entriesJSON, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: append logs %s", id)
}

// AddCompletedStep appends step once; re-adding an existing step is a
// no-op so orchestrator retries stay idempotent.
func (s *PostgresStore) AddCompletedStep(ctx context.Context, id, step string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET completed_steps = completed_steps || to_jsonb($1::text), updated_at = $2
		 WHERE id = $3 AND NOT completed_steps @> to_jsonb($1::text)`,
		step, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: add completed step %s", id)
}

func (s *PostgresStore) AppendResults(ctx context.Context, id, bucket string, records []model.ScrapedRecord) error {
	if len(records) == 0 {
		return nil
	}
	recordsJSON, err := json.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal records")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE tasks SET results = jsonb_set(results, ARRAY[$1], COALESCE(results->$1, '[]'::jsonb) || $2::jsonb),
		        updated_at = $3
		 WHERE id = $4`,
		bucket, recordsJSON, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: append results %s/%s", id, bucket)
}

func (s *PostgresStore) SetIntermediate(ctx context.Context, id, key string, value any) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal intermediate")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE tasks SET intermediate = jsonb_set(intermediate, ARRAY[$1], $2::jsonb), updated_at = $3
		 WHERE id = $4`,
		key, valueJSON, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: set intermediate %s/%s", id, key)
}

func (s *PostgresStore) MergeQuery(ctx context.Context, id string, fields map[string]any) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal query fields")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE tasks SET query = query || $1::jsonb, updated_at = $2 WHERE id = $3`,
		fieldsJSON, time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "postgres: merge query %s", id)
}
