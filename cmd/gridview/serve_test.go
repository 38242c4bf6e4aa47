package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jgoulah/gridview/internal/config"
	"github.com/jgoulah/gridview/internal/publisher"
	"github.com/jgoulah/gridview/internal/server"
)

func TestServePublisherFailureStartsNothing(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("mqtt:\n  enabled: true\n  broker: localhost:1\nlog_level: error\n"), 0600))

	oldCfg, oldDB, oldOffline := cfgFile, dbPath, offline
	oldPub, oldListen := newPublisher, listenDashboard
	t.Cleanup(func() {
		cfgFile, dbPath, offline = oldCfg, oldDB, oldOffline
		newPublisher, listenDashboard = oldPub, oldListen
	})

	cfgFile = cfgPath
	dbPath = filepath.Join(dir, "gridview.db")
	offline = true

	newPublisher = func(config.MQTTConfig, string, *zap.Logger) (*publisher.Publisher, error) {
		return nil, errors.New("broker unreachable")
	}
	listened := false
	listenDashboard = func(context.Context, *server.Server, string) error {
		listened = true
		return nil
	}

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	err := runServe(cmd, nil)
	assert.ErrorContains(t, err, "creating publisher: broker unreachable")
	assert.False(t, listened, "the server must not start when the publisher cannot be created")
}

func TestServeStopsWithContext(t *testing.T) {
	dir := t.TempDir()

	oldCfg, oldDB, oldOffline := cfgFile, dbPath, offline
	oldListen := listenDashboard
	t.Cleanup(func() {
		cfgFile, dbPath, offline = oldCfg, oldDB, oldOffline
		listenDashboard = oldListen
	})

	cfgFile = filepath.Join(dir, "missing.yaml")
	dbPath = filepath.Join(dir, "gridview.db")
	offline = true

	ctx, cancel := context.WithCancel(context.Background())
	var gotAddr string
	listenDashboard = func(ctx context.Context, _ *server.Server, addr string) error {
		gotAddr = addr
		cancel()
		<-ctx.Done()
		return nil
	}

	cmd := &cobra.Command{}
	cmd.SetContext(ctx)

	require.NoError(t, runServe(cmd, nil))
	assert.Equal(t, ":8080", gotAddr)
}
