package veo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/h2non/filetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/generation"
)

// Compile-time check that Downloader implements generation.Fetcher.
var _ generation.Fetcher = (*Downloader)(nil)

// sniffLen is how many leading bytes filetype needs to recognise a container.
const sniffLen = 262

// Downloader fetches finished videos over HTTP.
type Downloader struct {
	httpClient *http.Client
	tracer     trace.Tracer
}

// DownloaderOption is a function that configures a Downloader.
type DownloaderOption func(*Downloader)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) DownloaderOption {
	return func(d *Downloader) {
		if c != nil {
			d.httpClient = c
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) DownloaderOption {
	return func(d *Downloader) {
		if timeout > 0 {
			d.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewDownloader creates a Downloader with a 2 minute timeout.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch downloads rawURL and returns its body and media type. The media type
// comes from the response header, or from the content itself when the header
// is missing or generic; it is empty when neither identifies the data.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	ctx, span := d.tracer.Start(ctx, "veo.Download")
	defer span.End()

	data, contentType, err := d.fetch(ctx, rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, "", err
	}
	span.SetAttributes(
		attribute.Int("veo.bytes", len(data)),
		attribute.String("veo.content_type", contentType),
	)
	return data, contentType, nil
}

func (d *Downloader) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("veo: create download request: %w", redact(err))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("veo: download video: %w", redact(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", &generation.DownloadError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("veo: read video body: %w", err)
	}

	return data, contentType(resp.Header.Get("Content-Type"), data), nil
}

// contentType prefers a specific header value and otherwise sniffs data.
func contentType(header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
		return mt
	}
	return Sniff(data)
}

// Sniff identifies data from its magic bytes. It returns "" when unknown.
func Sniff(data []byte) string {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

// redact drops the request URL, which carries the API key, from transport errors.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
