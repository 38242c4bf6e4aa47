package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jgoulah/gridview/internal/classify"
	"github.com/jgoulah/gridview/internal/database"
	"github.com/jgoulah/gridview/internal/gridapi"
	"github.com/jgoulah/gridview/pkg/models"
)

var (
	fetchHour     int
	fetchAll      bool
	fetchChargers bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download grid data into the local cache",
	Long: `Downloads grid points from the load forecasting API and stores them in the
local SQLite database, together with the chargers behind every overloaded
point. Cached data can be browsed later with --offline.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().IntVar(&fetchHour, "hour", 0, "hour of day 1-24 to fetch (default from config, 12)")
	fetchCmd.Flags().BoolVar(&fetchAll, "all", false, "fetch all 24 hours")
	fetchCmd.Flags().BoolVar(&fetchChargers, "chargers", true, "also fetch chargers for overloaded points")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	hourSet := cmd.Flags().Changed("hour")
	if fetchAll && hourSet {
		return fmt.Errorf("--hour and --all are mutually exclusive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	hours := []int{cfg.GetDefaultHour()}
	switch {
	case fetchAll:
		hours = hours[:0]
		for h := models.MinHour; h <= models.MaxHour; h++ {
			hours = append(hours, h)
		}
	case hourSet:
		if !models.ValidHour(fetchHour) {
			return fmt.Errorf("invalid hour %d: must be between %d and %d", fetchHour, models.MinHour, models.MaxHour)
		}
		hours = []int{fetchHour}
	}

	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var totalPoints, totalChargers atomic.Int64

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(cfg.GetFetchConcurrency())
	for _, hour := range hours {
		g.Go(func() error {
			points, chargers, err := fetchHourData(ctx, client, db, hour, logger)
			if err != nil {
				return err
			}
			totalPoints.Add(int64(points))
			totalChargers.Add(int64(chargers))
			fmt.Printf("✓ Hour %2d: %d points, %d chargers\n", hour, points, chargers)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("\nStored %d points and %d chargers across %d hour(s) in %s\n",
		totalPoints.Load(), totalChargers.Load(), len(hours), getDBPath())
	return nil
}

// fetchHourData replaces the cached dataset for one hour
func fetchHourData(ctx context.Context, client *gridapi.Client, db *database.DB, hour int, logger *zap.Logger) (int, int, error) {
	points, err := client.FetchPoints(ctx, hour)
	if err != nil {
		return 0, 0, err
	}
	if err := db.ReplacePoints(ctx, hour, points); err != nil {
		return 0, 0, fmt.Errorf("storing hour %d: %w", hour, err)
	}

	if !fetchChargers {
		return len(points), 0, nil
	}

	chargers := 0
	for _, p := range points {
		if !classify.Classify(p).Overloaded() {
			continue
		}
		q := models.ChargerQuery{
			Hour:     hour,
			Cadaster: p.Cadaster,
			BaseLoad: p.BaseLoad,
			MaxLoad:  p.MaxLoad,
		}
		records, err := client.FetchChargers(ctx, q)
		if err != nil {
			logger.Warn("skipping chargers",
				zap.Int("hour", hour),
				zap.String("cadaster", p.Cadaster),
				zap.Error(err))
			continue
		}
		if err := db.ReplaceChargers(ctx, q, records); err != nil {
			return 0, 0, fmt.Errorf("storing chargers for %s: %w", p.Cadaster, err)
		}
		chargers += len(records)
	}

	return len(points), chargers, nil
}
