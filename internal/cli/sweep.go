package cli

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/uma-arai/sbcntr-booking/internal/common/config"
	"github.com/uma-arai/sbcntr-booking/internal/common/utils"
	"github.com/uma-arai/sbcntr-booking/internal/metrics"
	"github.com/uma-arai/sbcntr-booking/internal/service/batch"
)

func newSweepCmd() *cobra.Command {
	var (
		every       time.Duration
		metricsAddr string
	)

	c := &cobra.Command{
		Use:   "sweep",
		Short: "Cancel stale pending reservations and complete finished ones",
		Long: "Cancels pending reservations whose start time has passed and completes confirmed " +
			"reservations whose slot has ended. With --every the sweep repeats until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig("")
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if metricsAddr == "" {
				metricsAddr = cfg.MetricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			timeout, _ := cmd.Flags().GetDuration("timeout")
			if timeout <= 0 {
				timeout = 5 * time.Minute
			}

			if metricsAddr != "" {
				go func() {
					if err := metrics.Serve(ctx, metricsAddr); err != nil {
						log.Printf("metrics server error: %v", err)
					}
				}()
			}

			// CLIからの実行ではStep Functionsへの通知は行わない
			service, err := batch.NewReservationBatchService(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer service.Close()

			runOnce := func() error {
				runCtx, end := configureTracing(ctx, cfg, cmd.Name())
				defer end()
				return utils.RunWithTimeout(runCtx, timeout, service.Run)
			}

			if every <= 0 {
				return runOnce()
			}
			return runEvery(ctx, every, runOnce)
		},
	}

	c.Flags().DurationVar(&every, "every", 0, "repeat the sweep at this interval (0 = run once)")
	c.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default SBCNTR_METRICS_ADDR)")

	return c
}

// runEvery はctxがキャンセルされるまでintervalごとにfnを実行します
// fnの失敗はログに記録して次回に持ち越します
func runEvery(ctx context.Context, interval time.Duration, fn func() error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fn(); err != nil {
			log.Printf("sweep failed: %v", err)
		}
		if ctx.Err() != nil {
			log.Printf("sweep stopped: %v", ctx.Err())
			return nil
		}
		select {
		case <-ctx.Done():
			log.Printf("sweep stopped: %v", ctx.Err())
			return nil
		case <-ticker.C:
		}
	}
}
