package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	cdpfetch "github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/cecibot/cecibot/internal/bus"
)

const (
	// fallbackHeightPx substitutes for scrollHeight when the evaluation hits
	// the driver's execution-context race.
	fallbackHeightPx = 1920

	// heightPaddingPx prevents a trailing blank page.
	heightPaddingPx = 32

	// Navigation is finished once no more than idleMaxInflight connections
	// have been in flight for idleQuiet.
	idleQuiet       = 500 * time.Millisecond
	idleMaxInflight = 2

	pxPerInch = 96
)

// allowedResources are the only resource types a page may load; everything
// else (XHR, media, scripts, beacons) is aborted at the network layer.
var allowedResources = map[network.ResourceType]bool{
	network.ResourceTypeDocument:   true,
	network.ResourceTypeStylesheet: true,
	network.ResourceTypeImage:      true,
	network.ResourceTypeFont:       true,
}

// Browser is a long-lived headless browser session. Launching one costs
// seconds and hundreds of megabytes, so the worker shares a single instance
// and opens a fresh page per request; page isolation suffices because
// JavaScript is disabled.
type Browser struct {
	ctx          context.Context
	cancel       context.CancelFunc
	allocCancel  context.CancelFunc
	downloadPath string
	navTimeout   time.Duration
	pageWidthPx  int64
}

// NewBrowser launches a headless browser.
func NewBrowser(ctx context.Context, downloadPath string, navTimeout time.Duration, pageWidthPx int64) (*Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Force the browser process to start now, not on the first request.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return &Browser{
		ctx:          browserCtx,
		cancel:       cancel,
		allocCancel:  allocCancel,
		downloadPath: downloadPath,
		navTimeout:   navTimeout,
		pageWidthPx:  pageWidthPx,
	}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.cancel()
	b.allocCancel()
}

// Render visits the URL in a new page and exports it as a PDF artefact.
// Failures the user should hear about come back as *Error ("timeout",
// "navigation: ...").
func (b *Browser) Render(rawURL string) (*bus.FileInfo, error) {
	tabCtx, closeTab := chromedp.NewContext(b.ctx)
	defer closeTab()

	interceptRequests(tabCtx)
	idle := newIdleWaiter(tabCtx)

	navCtx, cancelNav := context.WithTimeout(tabCtx, b.navTimeout)
	defer cancelNav()

	err := chromedp.Run(navCtx,
		emulation.SetScriptExecutionDisabled(true),
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"DNT": "1"}),
		cdpfetch.Enable(),
		chromedp.Navigate(rawURL),
		idle.wait(idleQuiet, idleMaxInflight),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Message: "timeout"}
		}
		return nil, Errorf("navigation: %s", err)
	}

	// The driver sometimes clears a freshly created execution context right
	// after navigation ("cannot find context with specified id"); a reduced
	// fixed height still yields a usable PDF.
	var heightPx int64
	if err := chromedp.Run(tabCtx, chromedp.Evaluate("document.documentElement.scrollHeight", &heightPx)); err != nil {
		heightPx = fallbackHeightPx
	}

	var (
		title string
		pdf   []byte
	)
	err = chromedp.Run(tabCtx,
		emulation.SetEmulatedMedia().WithMedia("screen"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPaperWidth(float64(b.pageWidthPx) / pxPerInch).
				WithPaperHeight(float64(heightPx+heightPaddingPx) / pxPerInch).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
		chromedp.Title(&title),
	)
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}

	filePath := filepath.Join(b.downloadPath, uuid.NewString()+".pdf")
	if err := os.WriteFile(filePath, pdf, 0o644); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	return &bus.FileInfo{
		Title:     title,
		Path:      filePath,
		Extension: ".pdf",
		MIME:      "application/pdf",
		Size:      int64(len(pdf)),
	}, nil
}

// interceptRequests pauses every outgoing request and lets only visual
// resource types through, denying the page any non-visual traffic.
func interceptRequests(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		e, ok := ev.(*cdpfetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(ctx)
			ectx := cdp.WithExecutor(ctx, c.Target)
			if allowedResources[e.ResourceType] {
				_ = cdpfetch.ContinueRequest(e.RequestID).Do(ectx)
			} else {
				_ = cdpfetch.FailRequest(e.RequestID, network.ErrorReasonAborted).Do(ectx)
			}
		}()
	})
}
