package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apexswarm/leadgen/internal/model"
	"github.com/apexswarm/leadgen/internal/store"
)

var (
	leadsStatus string
	leadsLimit  int
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List stored leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		leads, err := st.List(ctx, store.LeadFilter{
			Status: model.Status(leadsStatus),
			Limit:  leadsLimit,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(leads)
	},
}

var leadsRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-enter failed leads into the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		failed, err := e.store.List(ctx, store.LeadFilter{
			Status: model.StatusError,
			Limit:  leadsLimit,
		})
		if err != nil {
			return err
		}
		if len(failed) == 0 {
			zap.L().Info("no failed leads to retry")
			return nil
		}

		retried := 0
		for i := range failed {
			lead := &failed[i]
			if err := lead.ResetForRetry(); err != nil {
				return eris.Wrapf(err, "reset lead %s", lead.ID)
			}
			if err := e.store.Upsert(ctx, lead); err != nil {
				return eris.Wrapf(err, "persist reset lead %s", lead.ID)
			}

			result, err := e.orch.Process(ctx, lead)
			if err != nil {
				zap.L().Error("retry failed",
					zap.String("lead_id", lead.ID),
					zap.Error(err),
				)
				continue
			}
			retried++
			zap.L().Info("retried lead",
				zap.String("lead_id", lead.ID),
				zap.String("status", string(result.FinalStatus)),
			)
		}

		zap.L().Info("retry pass complete",
			zap.Int("failed", len(failed)),
			zap.Int("retried", retried),
		)
		return nil
	},
}

// listLeads backs the GET /leads endpoint.
func listLeads(ctx context.Context, e *env, status string) ([]model.Lead, error) {
	return e.store.List(ctx, store.LeadFilter{
		Status: model.Status(status),
		Limit:  100,
	})
}

func init() {
	leadsCmd.Flags().StringVar(&leadsStatus, "status", "", "filter by status")
	leadsCmd.Flags().IntVar(&leadsLimit, "limit", 50, "max leads to list")
	leadsCmd.AddCommand(leadsRetryCmd)
	rootCmd.AddCommand(leadsCmd)
}
