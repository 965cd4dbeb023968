package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apexswarm/leadgen/internal/intake"
	"github.com/apexswarm/leadgen/internal/model"
)

var (
	importFile    string
	importProcess bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		candidates, err := intake.ReadFile(importFile)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return eris.Errorf("no valid leads in %s", importFile)
		}

		created := 0
		for _, c := range candidates {
			lead, err := intake.Resolve(ctx, e.store, c, model.SourceImport)
			if err != nil {
				return err
			}
			if lead.Version == 0 {
				// New lead: persist it as pending before any processing.
				if err := e.store.Upsert(ctx, lead); err != nil {
					return eris.Wrapf(err, "import %s", c.Handle)
				}
				created++
			}

			if importProcess {
				if _, err := e.orch.Process(ctx, lead); err != nil {
					zap.L().Error("processing failed",
						zap.String("lead_id", lead.ID),
						zap.Error(err),
					)
				}
			}
		}

		zap.L().Info("import complete",
			zap.Int("rows", len(candidates)),
			zap.Int("created", created),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to .csv or .xlsx file (required)")
	importCmd.Flags().BoolVar(&importProcess, "process", false, "run imported leads through the pipeline immediately")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
