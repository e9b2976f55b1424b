package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	job "github.com/maheshrc27/postflow/internal/jobs"
)

var tickPass string

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scheduler pass and exit",
	Example: `  postflow tick --pass first
  postflow tick --pass retry`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pass, ok := job.ParsePass(tickPass)
		if !ok {
			return fmt.Errorf("unknown pass %q (must be 'first' or 'retry')", tickPass)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		res, err := a.job.RunPass(ctx, pass)
		if err != nil {
			return fmt.Errorf("%s pass: %w", pass, err)
		}
		slog.Info("pass complete", "pass", pass, "selected", res.Selected, "dispatched", res.Dispatched, "failed", res.Failed)
		return nil
	},
}

func init() {
	tickCmd.Flags().StringVar(&tickPass, "pass", "first", "pass to run: first or retry")
	rootCmd.AddCommand(tickCmd)
}
