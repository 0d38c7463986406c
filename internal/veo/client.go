// Package veo adapts the Gemini API video generation endpoints
// (google.golang.org/genai) to the generation.Remote and
// generation.Fetcher ports.
package veo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/generation"
)

// Compile-time check that Client implements generation.Remote.
var _ generation.Remote = (*Client)(nil)

const tracerName = "github.com/r3gb0b2/VIDEO-RAFAEL/internal/veo"

// ErrEmptyAPIKey is returned when a call is made without an API key.
var ErrEmptyAPIKey = errors.New("veo: API key is missing")

// Backend is the part of the genai SDK the Client uses.
type Backend interface {
	GenerateVideos(ctx context.Context, model string, source *genai.GenerateVideosSource, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

// BackendFactory creates a Backend bound to apiKey.
type BackendFactory func(ctx context.Context, apiKey string) (Backend, error)

// sdkBackend is the Backend over a real *genai.Client.
type sdkBackend struct {
	client *genai.Client
}

func (b *sdkBackend) GenerateVideos(ctx context.Context, model string, source *genai.GenerateVideosSource, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return b.client.Models.GenerateVideosFromSource(ctx, model, source, config)
}

func (b *sdkBackend) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return b.client.Operations.GetVideosOperation(ctx, op, nil)
}

// NewSDKBackend creates a Gemini API backed Backend for apiKey.
func NewSDKBackend(ctx context.Context, apiKey string) (Backend, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("veo: create genai client: %w", err)
	}
	return &sdkBackend{client: c}, nil
}

// Client submits and polls video generation operations.
// The backend for the most recently used API key is kept and reused;
// switching keys replaces it.
type Client struct {
	mu      sync.Mutex
	key     string
	current Backend
	factory BackendFactory
	limiter  *rate.Limiter
	logger   *slog.Logger
	tracer   trace.Tracer
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBackendFactory replaces the genai backend factory.
func WithBackendFactory(f BackendFactory) ClientOption {
	return func(c *Client) {
		if f != nil {
			c.factory = f
		}
	}
}

// WithSubmitRate limits submissions to perMinute requests per minute.
// Zero or less disables the limit.
func WithSubmitRate(perMinute int) ClientOption {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		factory: NewSDKBackend,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit starts a generation for payload.
func (c *Client) Submit(ctx context.Context, apiKey string, payload generation.RequestPayload) (*generation.Operation, error) {
	ctx, span := c.tracer.Start(ctx, "veo.Submit", trace.WithAttributes(
		attribute.String("veo.model", payload.Model),
	))
	defer span.End()

	op, err := c.submit(ctx, apiKey, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("veo.operation", op.Name))
	return op, nil
}

func (c *Client) submit(ctx context.Context, apiKey string, payload generation.RequestPayload) (*generation.Operation, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("veo: submit rate limit: %w", err)
		}
	}

	b, err := c.backend(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	op, err := b.GenerateVideos(ctx, payload.Model, ToSource(payload), ToConfig(payload))
	if err != nil {
		return nil, MapError(err)
	}
	if op == nil {
		return nil, generation.ErrNoOperation
	}

	c.logger.DebugContext(ctx, "veo operation started", slog.String("operation", op.Name))
	return FromOperation(op), nil
}

// Poll fetches the current state of op.
func (c *Client) Poll(ctx context.Context, apiKey string, op *generation.Operation) (*generation.Operation, error) {
	ctx, span := c.tracer.Start(ctx, "veo.Poll", trace.WithAttributes(
		attribute.String("veo.operation", op.Name),
	))
	defer span.End()

	b, err := c.backend(ctx, apiKey)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	next, err := b.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: op.Name})
	if err != nil {
		err = MapError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if next == nil {
		return nil, generation.ErrNoOperation
	}
	span.SetAttributes(attribute.Bool("veo.done", next.Done))
	return FromOperation(next), nil
}

// backend returns the backend for apiKey. A key other than the cached one
// gets a new backend, which replaces the cached one once created.
func (c *Client) backend(ctx context.Context, apiKey string) (Backend, error) {
	if apiKey == "" {
		return nil, ErrEmptyAPIKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.key == apiKey {
		return c.current, nil
	}
	b, err := c.factory(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if c.current != nil {
		c.logger.Debug("API key changed, replacing genai client")
	}
	c.key, c.current = apiKey, b
	return b, nil
}
