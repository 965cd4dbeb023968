package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apexswarm/leadgen/internal/intake"
	"github.com/apexswarm/leadgen/internal/model"
)

var (
	runHandle   string
	runPlatform string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a single lead through the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		cand, ok := intake.ParseCandidate(runHandle, runPlatform)
		if !ok {
			return eris.Errorf("malformed handle %q", runHandle)
		}

		lead, err := intake.Resolve(ctx, e.store, cand, model.SourceImport)
		if err != nil {
			return err
		}

		result, err := e.orch.Process(ctx, lead)
		if err != nil {
			return eris.Wrap(err, "process lead")
		}

		zap.L().Info("processing complete",
			zap.String("lead_id", result.Lead.ID),
			zap.String("status", string(result.FinalStatus)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Lead)
	},
}

func init() {
	runCmd.Flags().StringVar(&runHandle, "handle", "", "social handle, e.g. @janesmith (required)")
	runCmd.Flags().StringVar(&runPlatform, "platform", "instagram", "platform: instagram, tiktok, twitter, linkedin")
	_ = runCmd.MarkFlagRequired("handle")
	rootCmd.AddCommand(runCmd)
}
