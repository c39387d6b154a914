package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/leadforge/prospect-cli/internal/model"
)

var (
	exportOut    string
	exportBucket string
)

var exportCmd = &cobra.Command{
	Use:   "export <task-id>",
	Short: "Export a task's results to an XLSX workbook",
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

		records := task.Results[exportBucket]
		if len(records) == 0 {
			return eris.Errorf("task %s has no records in bucket %q", task.ID, exportBucket)
		}

		f := xlsx.NewFile()
		sheet, err := f.AddSheet("Results")
		if err != nil {
			return eris.Wrap(err, "export: add sheet")
		}

		header := sheet.AddRow()
		for _, h := range []string{"Company", "Description", "Emails", "Phones", "Address", "Source URL", "Source Type", "PKD", "Registry ID"} {
			header.AddCell().SetString(h)
		}
		for _, rec := range records {
			row := sheet.AddRow()
			row.AddCell().SetString(rec.CompanyName)
			row.AddCell().SetString(rec.Description)
			row.AddCell().SetString(strings.Join(rec.ContactDetails.Emails, ", "))
			row.AddCell().SetString(strings.Join(rec.ContactDetails.Phones, ", "))
			row.AddCell().SetString(rec.ContactDetails.Address)
			row.AddCell().SetString(rec.SourceURL)
			row.AddCell().SetString(string(rec.SourceType))
			row.AddCell().SetString(strings.Join(rec.PKDCodes, ", "))
			row.AddCell().SetString(rec.RegistryID)
		}

		out := exportOut
		if out == "" {
			out = task.ID + ".xlsx"
		}
		if err := f.Save(out); err != nil {
			return eris.Wrap(err, "export: save workbook")
		}
		zap.L().Info("results exported",
			zap.String("task", task.ID),
			zap.String("file", out),
			zap.Int("records", len(records)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default <task-id>.xlsx)")
	exportCmd.Flags().StringVar(&exportBucket, "bucket", model.BucketAggregated, "result bucket to export")
	rootCmd.AddCommand(exportCmd)
}
