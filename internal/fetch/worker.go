// Package fetch contains the render worker: it pops request envelopes,
// turns each URL into an artefact (direct download or headless-browser PDF),
// and pushes the response back to the originating medium's queue.
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"

	"github.com/cecibot/cecibot/internal/bus"
	"github.com/cecibot/cecibot/internal/metrics"
)

// Renderer produces a PDF artefact from a web page.
type Renderer interface {
	Render(rawURL string) (*bus.FileInfo, error)
}

// Worker is the single long-running render loop.
type Worker struct {
	bus         *bus.Bus
	renderer    Renderer
	downloader  *Downloader
	maxFileSize int64
}

// NewWorker wires the worker to its queue, browser and download settings.
func NewWorker(b *bus.Bus, renderer Renderer, downloadPath string, maxFileSize int64) *Worker {
	return &Worker{
		bus:         b,
		renderer:    renderer,
		downloader:  NewDownloader(http.DefaultClient, downloadPath, maxFileSize),
		maxFileSize: maxFileSize,
	}
}

// Run processes requests until ctx is cancelled. The in-flight request is
// always finished and answered; per-request failures never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("cecibot worker is ready for requests")

	for {
		req, err := w.bus.PopRequest(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("worker stopping")
				return nil
			}
			return err
		}

		slog.Info("request received", "url", req.URL, "medium", req.Medium)
		metrics.RequestsTotal.WithLabelValues(req.Medium).Inc()

		// Shutdown must not abort a request we already popped.
		resp := w.process(context.WithoutCancel(ctx), req)
		resp.Opaque = req.Opaque
		resp.URL = req.URL

		if err := w.bus.PushResponse(context.WithoutCancel(ctx), req.Medium, resp); err != nil {
			slog.Error("pushing response", "url", req.URL, "medium", req.Medium, "error", err)
			continue
		}
		metrics.ResponsesTotal.WithLabelValues(req.Medium, resp.Kind).Inc()
	}
}

// process turns one request into a response. It never panics out: unexpected
// failures become an "internal error" response.
func (w *Worker) process(ctx context.Context, req *bus.Request) (resp *bus.Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing request",
				"url", req.URL,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			resp = errorResponse("internal error")
		}
	}()

	var (
		file *bus.FileInfo
		err  error
	)
	if IsFile(req.URL) {
		file, err = w.downloader.Download(ctx, req.URL)
	} else {
		file, err = w.renderPage(req.URL)
	}

	if err != nil {
		var reqErr *Error
		if errors.As(err, &reqErr) {
			return errorResponse(reqErr.Message)
		}
		slog.Error("request failed", "url", req.URL, "error", err)
		return errorResponse("internal error")
	}

	return &bus.Response{Kind: bus.KindFile, File: file}
}

func (w *Worker) renderPage(rawURL string) (*bus.FileInfo, error) {
	file, err := w.renderer.Render(rawURL)
	if err != nil {
		return nil, err
	}
	if file.Size > w.maxFileSize {
		os.Remove(file.Path)
		return nil, errTooBig(file.Size, w.maxFileSize)
	}
	return file, nil
}

func errorResponse(message string) *bus.Response {
	return &bus.Response{
		Kind:  bus.KindError,
		Error: &bus.ErrorInfo{Message: message},
	}
}
