package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/store"
)

var (
	tasksStatus string
	tasksOwner  string
	tasksLimit  int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and control prospecting tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		tasks, err := st.ListTasks(ctx, store.TaskFilter{
			OwnerID: tasksOwner,
			Status:  model.TaskStatus(tasksStatus),
			Limit:   tasksLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tQUERY\tSTEPS DONE\tCREATED")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
				t.ID, t.Status, t.Query.InitialQuery,
				len(t.CompletedSteps), len(t.WorkflowSteps),
				t.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Print one task as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		task, err := st.GetTask(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(task)
	},
}

var tasksPauseCmd = &cobra.Command{
	Use:   "pause <task-id>",
	Short: "Pause a running task at its next checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Pause(ctx, args[0]); err != nil {
			return err
		}
		zap.L().Info("task paused", zap.String("task", args[0]))
		return nil
	},
}

var tasksResumeCmd = &cobra.Command{
	Use:   "resume <task-id>",
	Short: "Resume a paused task and run it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Resume(ctx, args[0]); err != nil {
			return err
		}
		zap.L().Info("task resumed", zap.String("task", args[0]))
		return env.Orchestrator.Run(ctx, args[0])
	},
}

var tasksTerminateCmd = &cobra.Command{
	Use:   "terminate <task-id>",
	Short: "Terminate a task permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Terminate(ctx, args[0]); err != nil {
			return err
		}
		zap.L().Info("task terminated", zap.String("task", args[0]))
		return nil
	},
}

var selectFile string

var tasksSelectCmd = &cobra.Command{
	Use:   "select <task-id>",
	Short: "Apply a link selection to a waiting task and continue it",
	Long:  "Reads a ClassifiedLinks JSON document from --file, or accepts the full classified partition when no file is given, then resumes the workflow.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var selection *model.ClassifiedLinks
		if selectFile != "" {
			data, err := os.ReadFile(selectFile)
			if err != nil {
				return err
			}
			selection = &model.ClassifiedLinks{}
			if err := json.Unmarshal(data, selection); err != nil {
				return err
			}
		}

		if err := env.Orchestrator.ApplySelection(ctx, args[0], selection); err != nil {
			return err
		}
		return env.Orchestrator.Run(ctx, args[0])
	},
}

func init() {
	tasksListCmd.Flags().StringVar(&tasksStatus, "status", "", "filter by status")
	tasksListCmd.Flags().StringVar(&tasksOwner, "owner", "", "filter by owner")
	tasksListCmd.Flags().IntVar(&tasksLimit, "limit", 50, "maximum rows")
	tasksSelectCmd.Flags().StringVar(&selectFile, "file", "", "JSON file with the link selection")

	tasksCmd.AddCommand(tasksListCmd, tasksShowCmd, tasksPauseCmd, tasksResumeCmd, tasksTerminateCmd, tasksSelectCmd)
	rootCmd.AddCommand(tasksCmd)
}
