package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	config "github.com/maheshrc27/postflow/configs"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the queued attempt worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
		if cfg.Scheduler.DispatchMode != config.DispatchQueue {
			return fmt.Errorf("worker needs DISPATCH_MODE=queue, got %q", cfg.Scheduler.DispatchMode)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		g, ctx := errgroup.WithContext(ctx)
		runWorker(ctx, g, a)
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
