package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/digest-cli/internal/monitoring"
)

var deliverWatch bool

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Send digests to every subscriber that is due",
	Long:  "Makes one delivery pass over verified subscribers. With --watch, repeats every delivery.interval until interrupted. Per-user failures are logged and do not change the exit status.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("deliver"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, guard, err := initPipeline(cfg)
		if err != nil {
			return err
		}
		sender, err := initSender(cfg)
		if err != nil {
			return err
		}
		checker := initMonitoring(cfg, initScheduler(cfg, st, p, sender), guard)

		if !deliverWatch {
			_, err := checker.Run(ctx)
			return err
		}
		return watch(ctx, checker, cfg.Delivery.Interval)
	},
}

func init() {
	deliverCmd.Flags().BoolVar(&deliverWatch, "watch", false, "keep running and deliver every delivery.interval")
	rootCmd.AddCommand(deliverCmd)
}

// watch runs a pass immediately and then on every tick until ctx is done.
// A failed pass is logged and the loop continues.
func watch(ctx context.Context, r monitoring.Runner, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
			zap.L().Error("deliver: pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			zap.L().Info("deliver: stopping")
			return nil
		case <-ticker.C:
		}
	}
}
