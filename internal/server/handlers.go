package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/blob"
	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/credential"
	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/session"
	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/storage"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	session            *session.Session
	creds              *credential.Store
	blobs              *blob.Store
	storage            storage.Storage
	defaults           Defaults
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool

	// attempts tracks attempts running in the background.
	attempts sync.WaitGroup

	mu      sync.Mutex
	exports []string // local export files, removed on reset and shutdown
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, an attempt runs to completion before the response is written.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithDefaults sets the generation settings used when a request omits them.
func WithDefaults(d Defaults) HandlerOption {
	return func(h *Handlers) {
		h.defaults = d
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sess *session.Session, creds *credential.Store, blobs *blob.Store, store storage.Storage, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		session:            sess,
		creds:              creds,
		blobs:              blobs,
		storage:            store,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// GetSession handles GET /session requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSessionResponse(h.session.Snapshot(), h.creds.HasSelectedKey()))
}

// Generate handles POST /generate requests.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !h.decode(w, r, &req) {
		return
	}

	cfg, err := toConfig(req, h.defaults)
	if err != nil {
		h.logger.Warn("invalid generation request", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	a, err := h.session.Begin(cfg, false)
	if err != nil {
		h.writeBeginError(w, err)
		return
	}
	h.start(w, r, a)
}

// Retry handles POST /retry requests.
func (h *Handlers) Retry(w http.ResponseWriter, r *http.Request) {
	a, err := h.session.Retry()
	if err != nil {
		h.writeBeginError(w, err)
		return
	}
	h.start(w, r, a)
}

// Extend handles POST /extend requests.
func (h *Handlers) Extend(w http.ResponseWriter, r *http.Request) {
	var req ExtendRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	a, err := h.session.Extend(req.Prompt)
	if err != nil {
		h.writeBeginError(w, err)
		return
	}
	h.start(w, r, a)
}

// Reset handles POST /reset requests.
// Local export files of the previous video are removed.
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	h.session.Reset()
	if err := h.cleanupExports(r.Context()); err != nil {
		h.logger.Warn("failed to remove exported files", slog.String("error", err.Error()))
	}
	h.GetSession(w, r)
}

// SelectCredential handles POST /credential requests. A configuration that
// was waiting for a key is started right away.
func (h *Handlers) SelectCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.creds.Select(req.APIKey); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	h.logger.Info("API key selected")

	a, err := h.session.CredentialSelected()
	switch {
	case err == nil:
		h.run(r.Context(), a)
		writeJSON(w, http.StatusAccepted, CredentialResponse{Selected: true, Resumed: true})
	case errors.Is(err, session.ErrNothingPending), errors.Is(err, session.ErrAttemptInFlight):
		writeJSON(w, http.StatusOK, CredentialResponse{Selected: true})
	default:
		h.writeBeginError(w, err)
	}
}

// ClearCredential handles DELETE /credential requests. The key is forgotten
// and the selection prompt opens.
func (h *Handlers) ClearCredential(w http.ResponseWriter, r *http.Request) {
	h.creds.Clear()
	h.session.SwitchCredential()
	h.logger.Info("API key cleared")
	h.GetSession(w, r)
}

// GetBlob handles GET /blobs/{id} requests.
func (h *Handlers) GetBlob(w http.ResponseWriter, r *http.Request) {
	obj, err := h.blobs.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, "video not found", "VIDEO_NOT_FOUND")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get video", "VIDEO_FETCH_FAILED")
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	http.ServeContent(w, r, "", obj.CreatedAt, bytes.NewReader(obj.Data))
}

// RevokeBlob handles DELETE /blobs/{id} requests.
func (h *Handlers) RevokeBlob(w http.ResponseWriter, r *http.Request) {
	if err := h.blobs.Revoke(r.PathValue("id")); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, "video not found", "VIDEO_NOT_FOUND")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to revoke video", "VIDEO_REVOKE_FAILED")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportVideo handles POST /video/export requests.
func (h *Handlers) ExportVideo(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	art := h.session.Artifact()
	if art == nil {
		writeError(w, http.StatusConflict, "no generated video to export", "NO_VIDEO")
		return
	}

	target, err := storage.ParseTarget(req.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	exp, err := storage.ExportVideo(r.Context(), h.storage, target, art.ContentType, art.Data)
	if err != nil {
		if errors.Is(err, storage.ErrS3NotConfigured) {
			writeError(w, http.StatusBadRequest, "S3 export is not configured", "S3_NOT_CONFIGURED")
			return
		}
		h.logger.Error("failed to export video",
			slog.String("target", string(target)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to export video", "EXPORT_FAILED")
		return
	}

	if exp.Target == storage.TargetLocal {
		h.mu.Lock()
		h.exports = append(h.exports, exp.Location)
		h.mu.Unlock()
	}

	h.logger.Info("video exported",
		slog.String("target", string(exp.Target)),
		slog.String("location", exp.Location),
		slog.Int("size", exp.Size),
	)

	writeJSON(w, http.StatusOK, ExportResponse{
		Target:   string(exp.Target),
		Location: exp.Location,
		Size:     exp.Size,
	})
}

// decode reads and validates a JSON body, writing the error response on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// start runs an attempt and answers 202 Accepted.
func (h *Handlers) start(w http.ResponseWriter, r *http.Request, a *session.Attempt) {
	h.run(r.Context(), a)
	writeJSON(w, http.StatusAccepted, AttemptResponse{
		Status: string(h.session.GetStatus()),
		Mode:   string(a.Config().Mode()),
	})
}

// run executes the attempt, in the background when async processing is on.
// The background context is detached so the attempt outlives the request.
func (h *Handlers) run(ctx context.Context, a *session.Attempt) {
	if !h.enableAsyncProcess {
		h.finish(ctx, a)
		return
	}
	h.attempts.Add(1)
	go func() {
		defer h.attempts.Done()
		h.finish(context.WithoutCancel(ctx), a)
	}()
}

func (h *Handlers) finish(ctx context.Context, a *session.Attempt) {
	defer func() {
		if err := recover(); err != nil {
			h.logger.ErrorContext(ctx, "panic in generation attempt",
				slog.Any("error", err),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	outcome, err := a.Run(ctx)
	if err != nil {
		h.logger.Error("generation attempt ended with error",
			slog.String("outcome", string(outcome)),
			slog.String("error", err.Error()),
		)
	}
}

// Shutdown waits for background attempts to finish, then removes local
// export files. It gives up waiting when ctx is done.
func (h *Handlers) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.attempts.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("wait for generation attempts: %w", ctx.Err())
	}

	return h.cleanupExports(ctx)
}

func (h *Handlers) cleanupExports(ctx context.Context) error {
	h.mu.Lock()
	paths := h.exports
	h.exports = nil
	h.mu.Unlock()

	if len(paths) == 0 {
		return nil
	}
	if err := h.storage.CleanupTemp(ctx, paths); err != nil {
		return fmt.Errorf("remove exported files: %w", err)
	}
	h.logger.Info("exported files removed", slog.Int("count", len(paths)))
	return nil
}

func (h *Handlers) writeBeginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrAttemptInFlight):
		writeError(w, http.StatusConflict, err.Error(), "ATTEMPT_IN_FLIGHT")
	case errors.Is(err, session.ErrCredentialRequired):
		writeError(w, http.StatusPreconditionRequired, err.Error(), "CREDENTIAL_REQUIRED")
	case errors.Is(err, session.ErrNothingToRetry):
		writeError(w, http.StatusConflict, err.Error(), "NOTHING_TO_RETRY")
	case errors.Is(err, session.ErrNothingToExtend):
		writeError(w, http.StatusConflict, err.Error(), "NOTHING_TO_EXTEND")
	case errors.Is(err, session.ErrNothingPending):
		writeError(w, http.StatusConflict, err.Error(), "NOTHING_PENDING")
	default:
		h.logger.Error("failed to start generation", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to start generation", "GENERATION_START_FAILED")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
