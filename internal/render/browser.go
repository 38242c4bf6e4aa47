package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ScreenshotOptions controls the headless browser render
type ScreenshotOptions struct {
	Width   int
	Height  int
	Timeout time.Duration
	// Settle is how long to wait for map tiles after the page is visible
	Settle  time.Duration
	Visible bool
	Logger  *zap.Logger
}

// Screenshot loads page in headless Chrome and returns a PNG of the viewport
func Screenshot(ctx context.Context, page []byte, opts ScreenshotOptions) ([]byte, error) {
	dir, err := os.MkdirTemp("", "gridview-capture-")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "map.html")
	if err := os.WriteFile(path, page, 0600); err != nil {
		return nil, fmt.Errorf("writing page: %w", err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !opts.Visible),
		chromedp.WindowSize(opts.Width, opts.Height),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, opts.Timeout)
	defer cancel()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Failed loads are usually map tiles when offline
	var failed atomic.Int32
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventLoadingFailed); ok && !e.Canceled {
			failed.Add(1)
			logger.Debug("resource failed to load", zap.String("error", e.ErrorText))
		}
	})

	var buf []byte
	if err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate("file://"+path),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.Sleep(opts.Settle),
		chromedp.CaptureScreenshot(&buf),
	); err != nil {
		return nil, fmt.Errorf("capturing map: %w", err)
	}

	if n := failed.Load(); n > 0 {
		logger.Warn("some map resources failed to load", zap.Int32("count", n))
	}

	return buf, nil
}
