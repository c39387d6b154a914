package agents

import (
	"context"

	"go.uber.org/zap"

	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/store"
)

// checkpoint re-reads the task status and reports whether the running
// step must stop. Long loops call this between units of work so pause and
// terminate take effect mid-step.
func checkpoint(ctx context.Context, st store.TaskStore, taskID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, nil
	}
	status, err := st.GetStatus(ctx, taskID)
	if err != nil {
		return false, err
	}
	return status.Interrupted(), nil
}

// logProgress appends a task log line and mirrors it to the process log.
// Log persistence is best effort; a failed append never fails the step.
func logProgress(ctx context.Context, st store.TaskStore, taskID, agent, message string) {
	zap.L().Info(message, zap.String("task", taskID), zap.String("agent", agent))
	if err := st.AppendLogs(ctx, taskID, model.NewLog(agent, message)); err != nil {
		zap.L().Warn("append task log failed", zap.String("task", taskID), zap.Error(err))
	}
}
