package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	viewHour    int
	viewSelect  int
	viewTimeout time.Duration
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Print the map geometry for an hour",
	Long: `Loads the grid points for an hour and prints the positions, marker colors,
center and zoom the map would draw. With --select, clicks the point at that
index; overloaded points drill down into their nearby chargers.`,
	RunE: runView,
}

func init() {
	viewCmd.Flags().IntVar(&viewHour, "hour", 0, "hour of day 1-24 (default from config, 12)")
	viewCmd.Flags().IntVar(&viewSelect, "select", 0, "index of the point to click")
	viewCmd.Flags().DurationVar(&viewTimeout, "timeout", 2*time.Minute, "give up waiting for data after this long")
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	src, closeSrc, err := openSource(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSrc()

	session, stop := startSession(cfg, src, logger)
	defer stop()

	ctx, cancel := context.WithTimeout(cmd.Context(), viewTimeout)
	defer cancel()

	snap, err := navigate(ctx, session, navigationFlags(cmd, viewHour, viewSelect))
	if err != nil {
		return err
	}

	printSnapshot(os.Stdout, snap)
	return nil
}
