package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apexswarm/leadgen/internal/intake"
)

var (
	pollInterval time.Duration
	pollLimit    int
	pollOnce     bool
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll the spreadsheet queue for new leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		queue, err := initQueue()
		if err != nil {
			return err
		}

		pollCfg := cfg.Poll
		if cmd.Flags().Changed("interval") {
			pollCfg.Interval = pollInterval
		}
		if cmd.Flags().Changed("limit") {
			pollCfg.BatchSize = pollLimit
		}

		poller := intake.NewPoller(queue, e.store, e.orch, pollCfg, cfg.Pipeline.MaxConcurrent, zap.L())

		if pollOnce {
			return poller.RunOnce(ctx)
		}

		zap.L().Info("polling queue",
			zap.Duration("interval", pollCfg.Interval),
			zap.Int("batch_size", pollCfg.BatchSize),
		)
		return poller.Run(ctx)
	},
}

func init() {
	pollCmd.Flags().DurationVar(&pollInterval, "interval", time.Hour, "poll interval")
	pollCmd.Flags().IntVar(&pollLimit, "limit", 10, "max leads per batch")
	pollCmd.Flags().BoolVar(&pollOnce, "once", false, "process one batch and exit")
	rootCmd.AddCommand(pollCmd)
}
