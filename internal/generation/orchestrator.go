package generation

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPollInterval is the wait between operation status checks.
const DefaultPollInterval = 10 * time.Second

// DefaultContentType is assumed when neither the download nor the
// descriptor names a media type.
const DefaultContentType = "video/mp4"

const tracerName = "github.com/r3gb0b2/VIDEO-RAFAEL/internal/generation"

// Operation is a snapshot of a remote long-running generation job.
type Operation struct {
	Name string
	Done bool

	// Videos is set once Done is true and the job produced output.
	Videos []VideoHandle
	// FilteredCount and FilteredReasons report safety filtering, when any.
	FilteredCount   int
	FilteredReasons []string

	// ErrorCode and ErrorMessage are set when the job itself failed.
	ErrorCode    int
	ErrorMessage string
}

// Remote submits payloads and reports on the resulting operations.
type Remote interface {
	// Submit starts a generation and returns the first snapshot of its operation.
	Submit(ctx context.Context, apiKey string, payload RequestPayload) (*Operation, error)
	// Poll returns the current snapshot of op.
	Poll(ctx context.Context, apiKey string, op *Operation) (*Operation, error)
}

// KeySource supplies the credential for an attempt. An empty key means none is selected.
type KeySource interface {
	APIKey() string
}

// Fetcher downloads a finished video. A non-2xx response must be returned as
// a *DownloadError.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (data []byte, contentType string, err error)
}

// ObjectStore registers downloaded bytes behind a revocable local handle.
type ObjectStore interface {
	Create(data []byte, contentType string) string
}

// Artifact is a finished video. Ownership of Handle passes to the caller,
// which revokes it when the video is no longer shown.
type Artifact struct {
	Handle      string
	Data        []byte
	ContentType string
	RemoteURI   string
	// Video is the remote descriptor, needed to extend this video later.
	Video VideoHandle
}

// Orchestrator runs one generation attempt end to end. It performs no retries.
type Orchestrator struct {
	builder      *Builder
	remote       Remote
	keys         KeySource
	fetcher      Fetcher
	objects      ObjectStore
	logger       *slog.Logger
	tracer       trace.Tracer
	pollInterval time.Duration
	maxPolls     int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPollInterval sets the wait between status checks. Non-positive values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMaxPolls bounds the number of status checks. Zero, the default,
// polls until the remote service reports the operation done.
func WithMaxPolls(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxPolls = n
		}
	}
}

// WithBuilder sets the payload builder.
func WithBuilder(b *Builder) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.builder = b
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer sets the tracer used for attempt spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(remote Remote, keys KeySource, fetcher Fetcher, objects ObjectStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		builder:      defaultBuilder,
		remote:       remote,
		keys:         keys,
		fetcher:      fetcher,
		objects:      objects,
		logger:       slog.Default(),
		tracer:       otel.Tracer(tracerName),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate runs cfg to completion: credential check, build, submit, poll,
// download, register. Errors from the remote service and the fetcher are
// returned as they are; use Classify to route them.
func (o *Orchestrator) Generate(ctx context.Context, cfg Config) (*Artifact, error) {
	ctx, span := o.tracer.Start(ctx, "generation.Generate", trace.WithAttributes(
		attribute.String("generation.mode", string(cfg.Mode())),
		attribute.String("generation.model", cfg.Model),
		attribute.String("generation.resolution", cfg.Resolution),
	))
	defer span.End()

	art, err := o.generate(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return art, nil
}

func (o *Orchestrator) generate(ctx context.Context, cfg Config) (*Artifact, error) {
	apiKey := ""
	if o.keys != nil {
		apiKey = o.keys.APIKey()
	}
	if apiKey == "" {
		return nil, &MissingCredentialError{}
	}

	payload, err := o.builder.Build(cfg)
	if err != nil {
		return nil, err
	}

	op, err := o.remote.Submit(ctx, apiKey, payload)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, ErrNoOperation
	}
	o.logger.InfoContext(ctx, "generation submitted",
		slog.String("operation", op.Name),
		slog.String("mode", string(cfg.Mode())),
		slog.String("model", cfg.Model),
	)

	op, err = o.await(ctx, apiKey, op)
	if err != nil {
		return nil, err
	}

	if len(op.Videos) == 0 || op.Videos[0].URI == "" {
		empty := &EmptyResultError{FilteredCount: op.FilteredCount, FilteredReasons: op.FilteredReasons}
		if op.ErrorMessage != "" {
			empty.Err = &RemoteError{Code: op.ErrorCode, Message: op.ErrorMessage}
		}
		return nil, empty
	}
	video := op.Videos[0]

	data, contentType, err := o.fetcher.Fetch(ctx, DownloadURL(video.URI, apiKey))
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = video.MIMEType
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	handle := o.objects.Create(data, contentType)
	o.logger.InfoContext(ctx, "generation completed",
		slog.String("operation", op.Name),
		slog.String("handle", handle),
		slog.Int("bytes", len(data)),
	)

	return &Artifact{
		Handle:      handle,
		Data:        data,
		ContentType: contentType,
		RemoteURI:   video.URI,
		Video:       video,
	}, nil
}

// await polls op until it is done.
func (o *Orchestrator) await(ctx context.Context, apiKey string, op *Operation) (*Operation, error) {
	polls := 0
	for !op.Done {
		if o.maxPolls > 0 && polls >= o.maxPolls {
			return nil, fmt.Errorf("%w: %s after %d checks", ErrPollLimitExceeded, op.Name, polls)
		}

		timer := time.NewTimer(o.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("generation: waiting for %s: %w", op.Name, ctx.Err())
		case <-timer.C:
		}

		next, err := o.remote.Poll(ctx, apiKey, op)
		polls++
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, ErrNoOperation
		}
		op = next
		o.logger.DebugContext(ctx, "operation polled",
			slog.String("operation", op.Name),
			slog.Bool("done", op.Done),
			slog.Int("polls", polls),
		)
	}
	return op, nil
}

// DownloadURL percent-decodes uri and sets the key query parameter.
// A uri that fails to decode is used as is.
func DownloadURL(uri, apiKey string) string {
	decoded, err := url.PathUnescape(uri)
	if err != nil {
		decoded = uri
	}
	u, err := url.Parse(decoded)
	if err != nil {
		sep := "?"
		if strings.Contains(decoded, "?") {
			sep = "&"
		}
		return decoded + sep + "key=" + url.QueryEscape(apiKey)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()
	return u.String()
}
