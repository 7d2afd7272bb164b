package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/cecibot/cecibot/internal/bus"
)

// Downloader fetches direct-file URLs, refusing anything whose declared or
// actual size exceeds the cap.
type Downloader struct {
	client       *http.Client
	downloadPath string
	maxFileSize  int64
}

// NewDownloader returns a downloader writing artefacts under downloadPath.
func NewDownloader(client *http.Client, downloadPath string, maxFileSize int64) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{
		client:       client,
		downloadPath: downloadPath,
		maxFileSize:  maxFileSize,
	}
}

// Download streams the URL's body to a uuid-named file and describes it.
// The Content-Length header is required so oversized files are rejected
// before any transfer; the on-disk size is still enforced afterwards in case
// the server lied.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*bus.FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, Errorf("invalid URL!")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, Errorf("navigation: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, Errorf("not 200 OK: %d", resp.StatusCode)
	}

	lengthHeader := resp.Header.Get("Content-Length")
	if lengthHeader == "" {
		return nil, Errorf("file size unknown: %q header is missing", "content-length")
	}
	declared, err := strconv.ParseInt(lengthHeader, 10, 64)
	if err != nil {
		return nil, Errorf("file size unknown: %q header is malformed", "content-length")
	}
	if declared > d.maxFileSize {
		return nil, errTooBig(declared, d.maxFileSize)
	}

	filePath := filepath.Join(d.downloadPath, uuid.NewString()+URLExtension(rawURL))
	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("create artefact: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(resp.Body, d.maxFileSize+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		os.Remove(filePath)
		return nil, fmt.Errorf("download body: %w", err)
	case closeErr != nil:
		os.Remove(filePath)
		return nil, fmt.Errorf("close artefact: %w", closeErr)
	case written > d.maxFileSize:
		os.Remove(filePath)
		return nil, errTooBig(written, d.maxFileSize)
	}

	return &bus.FileInfo{
		Title:     URLBasename(rawURL),
		Path:      filePath,
		Extension: URLExtension(rawURL),
		MIME:      resp.Header.Get("Content-Type"),
		Size:      written,
	}, nil
}
