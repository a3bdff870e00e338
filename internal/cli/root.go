package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/spf13/cobra"
	"github.com/uma-arai/sbcntr-booking/internal/common/config"
	"github.com/uma-arai/sbcntr-booking/internal/model"
	"github.com/uma-arai/sbcntr-booking/internal/service/booking"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

const projectName = "sbcntr-booking"

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           projectName,
		Short:         "Restaurant reservation admission control (booking, status changes, lifecycle sweep)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Duration("timeout", time.Minute, "timeout for a single command")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newBookCmd())
	root.AddCommand(newLookupCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newDeleteCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newAvailabilityCmd())
	root.AddCommand(newSweepCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitCode(err))
	}
}

// ExitCode はエラーの分類に対応する終了コードを返します
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrInvalidTime):
		return 2
	case errors.Is(err, model.ErrSlotFull):
		return 3
	case errors.Is(err, model.ErrNotFound):
		return 4
	case errors.Is(err, model.ErrIllegalTransition):
		return 5
	case errors.Is(err, model.ErrStoreUnavailable):
		return 6
	default:
		return 1
	}
}

// commandContext はシグナルとタイムアウトでキャンセルされるコンテキストを返します
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil || timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// configureTracing は設定に従ってX-Rayを設定し、セグメントを開始します
func configureTracing(ctx context.Context, cfg *config.Config, name string) (context.Context, func()) {
	if !cfg.EnableTracing {
		return ctx, func() {}
	}
	if err := xray.Configure(xray.Config{
		DaemonAddr:     "127.0.0.1:2000", // X-Rayデーモンのアドレス
		ServiceVersion: Version,
	}); err != nil {
		log.Printf("Failed to configure X-Ray: %v", err)
	}
	os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")

	ctx, seg := xray.BeginSegment(ctx, projectName+"."+name)
	return ctx, func() { seg.Close(nil) }
}

// withController は設定を読み込み、AdmissionControllerを作成してfnを実行します
func withController(cmd *cobra.Command, fn func(ctx context.Context, c *booking.AdmissionController) error) error {
	cfg, err := config.LoadConfig("")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	ctx, end := configureTracing(ctx, cfg, cmd.Name())
	defer end()

	rt, err := booking.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	return fn(ctx, rt.Controller)
}
