package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/workflow"
)

var (
	runQuery      string
	runCity       string
	runProvince   string
	runRadius     int
	runSection    string
	runSteps      []string
	runAutoSelect bool
	runOwner      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a prospecting task and run it to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		steps := runSteps
		if len(steps) == 0 {
			steps = workflow.DefaultSteps()
		}
		for _, s := range steps {
			if !workflow.KnownStep(s) {
				return eris.Errorf("unknown workflow step: %s", s)
			}
		}

		task := &model.Task{
			OwnerID: runOwner,
			Query: model.QuerySpec{
				InitialQuery:       runQuery,
				SelectedPKDSection: runSection,
				Location: model.Location{
					City:     runCity,
					Province: runProvince,
					RadiusKm: runRadius,
				},
			},
			WorkflowSteps: steps,
			AutoSelect:    runAutoSelect,
		}
		if err := env.Store.CreateTask(ctx, task); err != nil {
			return err
		}
		zap.L().Info("task created", zap.String("task", task.ID))

		if err := env.Orchestrator.Run(ctx, task.ID); err != nil {
			return err
		}

		final, err := env.Store.GetTask(ctx, task.ID)
		if err != nil {
			return err
		}
		zap.L().Info("run finished",
			zap.String("task", final.ID),
			zap.String("status", string(final.Status)),
			zap.Int("aggregated_records", len(final.Results[model.BucketAggregated])),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	},
}

func init() {
	runCmd.Flags().StringVar(&runQuery, "query", "", "prospecting query, e.g. \"firmy brukarskie\" (required)")
	runCmd.Flags().StringVar(&runCity, "city", "", "limit results to a city")
	runCmd.Flags().StringVar(&runProvince, "province", "", "limit results to a province")
	runCmd.Flags().IntVar(&runRadius, "radius", 0, "search radius in km around the city")
	runCmd.Flags().StringVar(&runSection, "section", "", "restrict PKD candidates to one section, e.g. F")
	runCmd.Flags().StringSliceVar(&runSteps, "steps", nil, "workflow steps to run (default: all)")
	runCmd.Flags().BoolVar(&runAutoSelect, "auto-select", false, "scrape all classified links without waiting for selection")
	runCmd.Flags().StringVar(&runOwner, "owner", "", "owner identifier stored on the task")
	_ = runCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(runCmd)
}
