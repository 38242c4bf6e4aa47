package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/gridview/internal/render"
)

var (
	captureHour    int
	captureSelect  int
	captureOut     string
	captureHTML    bool
	captureVisible bool
	captureSettle  time.Duration
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Save the map as a PNG screenshot",
	Long: `Renders the dashboard map for an hour in headless Chrome and saves a PNG.
With --html, writes the standalone map page instead and skips the browser.`,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().IntVar(&captureHour, "hour", 0, "hour of day 1-24 (default from config, 12)")
	captureCmd.Flags().IntVar(&captureSelect, "select", 0, "index of the point to click before capturing")
	captureCmd.Flags().StringVarP(&captureOut, "out", "o", "map.png", "output file")
	captureCmd.Flags().BoolVar(&captureHTML, "html", false, "write the HTML page instead of a screenshot")
	captureCmd.Flags().BoolVar(&captureVisible, "visible", false, "Show browser window (for debugging)")
	captureCmd.Flags().DurationVar(&captureSettle, "settle", 3*time.Second, "time to let map tiles load")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.GetCaptureTimeout())
	defer cancel()

	snap, err := navigate(ctx, session, navigationFlags(cmd, captureHour, captureSelect))
	if err != nil {
		return err
	}

	var page bytes.Buffer
	title := fmt.Sprintf("GridView - hour %d", snap.Hour)
	if err := render.Page(&page, snap, render.PageOptions{Title: title}); err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}

	out := page.Bytes()
	if !captureHTML {
		width, height := cfg.GetCaptureSize()
		fmt.Printf("Rendering %dx%d map in Chrome...\n", width, height)
		out, err = render.Screenshot(ctx, page.Bytes(), render.ScreenshotOptions{
			Width:   width,
			Height:  height,
			Timeout: cfg.GetCaptureTimeout(),
			Settle:  captureSettle,
			Visible: captureVisible,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("capturing screenshot: %w", err)
		}
	}

	if err := os.WriteFile(captureOut, out, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", captureOut, err)
	}

	fmt.Printf("✓ Saved hour %d %s map to %s\n", snap.Hour, snap.Mode, captureOut)
	return nil
}
