package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/gridview/internal/publisher"
)

var (
	publishHour   int
	publishSelect int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a map snapshot to MQTT",
	Long: `Loads the dashboard for an hour (optionally drilling into a point) and
publishes the resulting snapshot to the MQTT broker as retained messages:

  <prefix>/snapshot    full snapshot as JSON
  <prefix>/overloaded  number of overloaded points
  <prefix>/mode        overview or drilldown`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().IntVar(&publishHour, "hour", 0, "hour of day 1-24 (default from config, 12)")
	publishCmd.Flags().IntVar(&publishSelect, "select", 0, "index of the point to click before publishing")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !cfg.MQTT.Enabled {
		return fmt.Errorf("MQTT is not enabled in config")
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pub, err := publisher.New(cfg.MQTT, cfg.GetTopicPrefix(), logger)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	src, closeSrc, err := openSource(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSrc()

	session, stop := startSession(cfg, src, logger)
	defer stop()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	snap, err := navigate(ctx, session, navigationFlags(cmd, publishHour, publishSelect))
	if err != nil {
		return err
	}

	if err := pub.Publish(snap); err != nil {
		return fmt.Errorf("publishing snapshot: %w", err)
	}

	fmt.Printf("✓ Published hour %d (%s, %d points) to %s/*\n",
		snap.Hour, snap.Mode, len(snap.Render.Positions), cfg.GetTopicPrefix())
	return nil
}
