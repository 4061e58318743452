// Package render provides backends for the render_media operation: an HTTP
// video service, a headless browser poster capture and an offline storyboard.
package render

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/types"
)

// BrowserBackend renders the prototype HTML in headless Chrome and returns a
// full-page PNG capture as the demo poster frame.
// Requires Chrome/Chromium to be installed on the system.
type BrowserBackend struct {
	// Settle is how long to let scripts run before capturing
	Settle time.Duration
	Width  int64
	Height int64
}

// NewBrowserBackend creates a browser capture backend with defaults
func NewBrowserBackend() *BrowserBackend {
	return &BrowserBackend{Settle: time.Second, Width: 1280, Height: 800}
}

// Call implements gateway.Backend.
func (b *BrowserBackend) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	if op != gateway.OpRenderMedia {
		return nil, &types.FatalError{Op: op, Err: errors.New("operation not supported by browser backend")}
	}
	var req gateway.MediaRequest
	if err := gateway.DecodePayload(op, payload, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.HTML) == "" {
		return nil, &types.FatalError{Op: op, Err: errors.New("browser capture needs html")}
	}

	png, err := b.capture(ctx, req.HTML)
	if err != nil {
		return nil, &types.TransientError{Op: op, Err: err}
	}
	return json.Marshal(gateway.MediaResponse{ContentType: "image/png", Data: png})
}

func (b *BrowserBackend) capture(ctx context.Context, html string) ([]byte, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(int(b.Width), int(b.Height)),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html))

	var buf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(b.Settle),
		// quality 100 produces PNG
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("browser capture failed: %w", err)
	}
	if len(buf) == 0 {
		return nil, errors.New("browser capture returned no data")
	}
	return buf, nil
}
