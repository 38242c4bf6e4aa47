package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jgoulah/gridview/internal/config"
	"github.com/jgoulah/gridview/internal/database"
	"github.com/jgoulah/gridview/internal/gridapi"
	"github.com/jgoulah/gridview/internal/logging"
	"github.com/jgoulah/gridview/internal/view"
)

var (
	cfgFile  string
	dbPath   string
	offline  bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "gridview",
	Short: "Explore predicted grid overloads and the EV chargers behind them",
	Long: `GridView shows electrical grid load points for an hour of the day, colored by
overload severity, and drills into the electric vehicle chargers near an
overloaded point. Data comes from the load forecasting API or, with --offline,
from the local SQLite cache filled by 'gridview fetch'.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "cache database file (default is ./gridview.db)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "read from the local cache instead of the API")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "gridview.db"
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// newLogger builds the logger, the --log-level flag winning over config
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return logging.New(level)
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

// newAPIClient creates the backend client from config
func newAPIClient(cfg *config.Config, logger *zap.Logger) (*gridapi.Client, error) {
	if cfg.API.URL == "" {
		return nil, fmt.Errorf("no API URL configured. Set api.url in %s or GRIDVIEW_API_URL", getConfigPath())
	}
	return gridapi.New(cfg.API.URL,
		gridapi.WithToken(cfg.API.Token),
		gridapi.WithTimeout(cfg.GetAPITimeout()),
		gridapi.WithRetries(cfg.GetMaxRetries(), 0),
		gridapi.WithLogger(logger),
	)
}

// openSource returns the data source for a session: the cache when --offline
// is set, the API otherwise. The returned func releases it.
func openSource(cfg *config.Config, logger *zap.Logger) (view.Source, func(), error) {
	if offline {
		db, err := openDB()
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		return db, func() { db.Close() }, nil
	}

	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, func() {}, nil
}

// newController creates a view controller from config
func newController(cfg *config.Config) *view.Controller {
	return view.NewController(
		view.WithHour(cfg.GetDefaultHour()),
		view.WithReturn(cfg.View.AllowReturn),
	)
}

// startSession runs a session in the background until the returned stop func is called
func startSession(cfg *config.Config, src view.Source, logger *zap.Logger) (*view.Session, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	session := view.NewSession(newController(cfg), src, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = session.Run(ctx)
	}()

	return session, func() {
		cancel()
		<-done
	}
}
