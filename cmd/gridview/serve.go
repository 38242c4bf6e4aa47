package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jgoulah/gridview/internal/publisher"
	"github.com/jgoulah/gridview/internal/server"
	"github.com/jgoulah/gridview/internal/view"
)

var serveAddr string

// Seams for tests
var (
	newPublisher    = publisher.New
	listenDashboard = func(ctx context.Context, srv *server.Server, addr string) error {
		return srv.ListenAndServe(ctx, addr)
	}
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the live dashboard",
	Long: `Serves the interactive map on HTTP. Browsers receive every state change over a
websocket. When MQTT is enabled, each change is also published to the broker.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	addr := serveAddr
	if addr == "" {
		addr = cfg.GetServerAddr()
	}

	var pub *publisher.Publisher
	if cfg.MQTT.Enabled {
		pub, err = newPublisher(cfg.MQTT, cfg.GetTopicPrefix(), logger)
		if err != nil {
			return fmt.Errorf("creating publisher: %w", err)
		}
		defer pub.Close()
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("serving dashboard", zap.String("addr", addr))
		err := listenDashboard(ctx, server.New(session, logger), addr)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if pub != nil {
		g.Go(func() error {
			return publishChanges(ctx, session, pub, logger)
		})
	}

	return g.Wait()
}

// publishChanges forwards every snapshot change to the broker until ctx is done
func publishChanges(ctx context.Context, session *view.Session, pub *publisher.Publisher, logger *zap.Logger) error {
	updates, unsubscribe, err := session.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to session: %w", err)
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-updates:
			if err := pub.Publish(snap); err != nil {
				logger.Warn("publishing snapshot failed", zap.Int("hour", snap.Hour), zap.Error(err))
			}
		}
	}
}
