package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/prospect-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newSQLiteTask(t *testing.T, st *SQLiteStore) *model.Task {
	t.Helper()
	task := &model.Task{
		OwnerID: "owner-1",
		Query: model.QuerySpec{
			InitialQuery: "firmy brukarskie",
			Location:     model.Location{City: "Kraków", Province: "małopolskie"},
		},
		WorkflowSteps: []string{model.StepEnriching, model.StepRegistrySearching},
		AutoSelect:    true,
	}
	require.NoError(t, st.CreateTask(context.Background(), task))
	return task
}

func TestSQLite_CreateAndGetTask(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	task := newSQLiteTask(t, st)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, model.StatusPending, task.Status)

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, "owner-1", got.OwnerID)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, "firmy brukarskie", got.Query.InitialQuery)
	assert.Equal(t, "Kraków", got.Query.Location.City)
	assert.Equal(t, []string{model.StepEnriching, model.StepRegistrySearching}, got.WorkflowSteps)
	assert.True(t, got.AutoSelect)
	assert.Empty(t, got.CompletedSteps)
}

func TestSQLite_GetTask_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetTask(context.Background(), "nonexistent-task")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task not found")
}

func TestSQLite_PauseAndResume(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	task := newSQLiteTask(t, st)

	require.NoError(t, st.SetStatus(ctx, task.ID, model.StatusSearching))
	require.NoError(t, st.Pause(ctx, task.ID))

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, got.Status)
	assert.Equal(t, model.StatusSearching, got.PreviousStatus)

	// Re-pausing a paused task must not overwrite the snapshot.
	require.NoError(t, st.Pause(ctx, task.ID))
	got, err = st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSearching, got.PreviousStatus)

	require.NoError(t, st.Resume(ctx, task.ID))
	got, err = st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSearching, got.Status)
	assert.Equal(t, model.TaskStatus(""), got.PreviousStatus)
}

func TestSQLite_ResumeNonPausedIsNoOp(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	task := newSQLiteTask(t, st)

	require.NoError(t, st.Resume(ctx, task.ID))
	status, err := st.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)
}

func TestSQLite_TerminateIsAbsorbing(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	task := newSQLiteTask(t, st)

	require.NoError(t, st.Terminate(ctx, task.ID))
	status, err := st.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTerminated, status)

	// A terminated task cannot be paused back out of its state.
	require.NoError(t, st.Pause(ctx, task.ID))
	status, err = st.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTerminated, status)
}

func TestSQLite_TerminateSkipsCompleted(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	task := newSQLiteTask(t, st)

	require.NoError(t, st.SetStatus(ctx, task.ID, model.StatusCompleted))
	require.NoError(t, st.Terminate(ctx, task.ID))
	status, err := st.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status)
}

func TestSQLite_Fail(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	task := newSQLiteTask(t, st)

	require.NoError(t, st.Fail(ctx, task.ID, "step enriching failed: bad reply"))
	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "step enriching failed: bad reply", got.Error)
}

func TestSQLite_AddCompletedStep_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	task := newSQLiteTask(t, st)

	require.NoError(t, st.AddCompletedStep(ctx, task.ID, model.StepEnriching))
	require.NoError(t, st.AddCompletedStep(ctx, task.ID, model.StepEnriching))
	require.NoError(t, st.AddCompletedStep(ctx, task.ID, model.StepRegistrySearching))

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{model.StepEnriching, model.StepRegistrySearching}, got.CompletedSteps)
}

func TestSQLite_AppendLogs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	task := newSQLiteTask(t, st)

	require.NoError(t, st.AppendLogs(ctx, task.ID, model.NewLog("query-enricher", "expanded 3 keywords")))
	require.NoError(t, st.AppendLogs(ctx, task.ID, model.NewLog("web-searcher", "kept 5 of 12 results")))

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, got.Logs, 2)
	assert.Equal(t, "query-enricher", got.Logs[0].Agent)
	assert.Equal(t, "kept 5 of 12 results", got.Logs[1].Message)
}

func TestSQLite_AppendResults_Accumulates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	task := newSQLiteTask(t, st)

	first := []model.ScrapedRecord{{CompanyName: "Brukpol", SourceType: model.SourceRegistry}}
	second := []model.ScrapedRecord{{CompanyName: "Kostka SA", SourceType: model.SourceRegistry}}
	require.NoError(t, st.AppendResults(ctx, task.ID, model.BucketRegistry, first))
	require.NoError(t, st.AppendResults(ctx, task.ID, model.BucketRegistry, second))
	require.NoError(t, st.AppendResults(ctx, task.ID, model.BucketAggregated, nil))

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, got.Results[model.BucketRegistry], 2)
	assert.Equal(t, "Brukpol", got.Results[model.BucketRegistry][0].CompanyName)
	assert.Equal(t, "Kostka SA", got.Results[model.BucketRegistry][1].CompanyName)
	assert.NotContains(t, got.Results, model.BucketAggregated)
}

func TestSQLite_SetIntermediate_Overwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	task := newSQLiteTask(t, st)

	require.NoError(t, st.SetIntermediate(ctx, task.ID, model.IntermediateSearchResults,
		[]model.SearchResult{{Title: "old", Link: "https://old.pl"}}))
	require.NoError(t, st.SetIntermediate(ctx, task.ID, model.IntermediateSearchResults,
		[]model.SearchResult{{Title: "new", Link: "https://new.pl"}}))

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	raw, ok := got.Intermediate[model.IntermediateSearchResults].([]any)
	require.True(t, ok)
	require.Len(t, raw, 1)
	entry, ok := raw[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "new", entry["title"])
}

func TestSQLite_MergeQuery_PreservesExistingFields(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	task := newSQLiteTask(t, st)

	require.NoError(t, st.MergeQuery(ctx, task.ID, map[string]any{
		"identifiedService": "paving services",
		"pkdCodes":          []string{"43.99.Z"},
	}))

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "firmy brukarskie", got.Query.InitialQuery)
	assert.Equal(t, "Kraków", got.Query.Location.City)
	assert.Equal(t, "paving services", got.Query.IdentifiedService)
	assert.Equal(t, []string{"43.99.Z"}, got.Query.PKDCodes)
}

func TestSQLite_ListTasks_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := newSQLiteTask(t, st)
	b := newSQLiteTask(t, st)
	other := &model.Task{OwnerID: "owner-2", Query: model.QuerySpec{InitialQuery: "x"}}
	require.NoError(t, st.CreateTask(ctx, other))
	require.NoError(t, st.SetStatus(ctx, b.ID, model.StatusCompleted))

	all, err := st.ListTasks(ctx, TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := st.ListTasks(ctx, TaskFilter{OwnerID: "owner-1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	ids := []string{mine[0].ID, mine[1].ID}
	assert.Contains(t, ids, a.ID)
	assert.Contains(t, ids, b.ID)

	done, err := st.ListTasks(ctx, TaskFilter{OwnerID: "owner-1", Status: model.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, b.ID, done[0].ID)

	limited, err := st.ListTasks(ctx, TaskFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
