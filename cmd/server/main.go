package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/pkg/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "postflow",
	Short: "Schedules and publishes image posts to Instagram and Facebook",
	Long: `postflow stores scheduled image posts, publishes them to Instagram and
Facebook when they come due, and retries failed publishes with a delay.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(c.LogLevel, c.LogFormat)
		cfg = c
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
