// Package session holds the single-user generation state: the current
// status, the last and pending configurations, the credential prompt flow
// and the artifact on display.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/generation"
)

// Status represents the current state of the session.
type Status string

const (
	// StatusIdle means no attempt is running and nothing failed.
	StatusIdle Status = "IDLE"
	// StatusLoading means an attempt is in flight.
	StatusLoading Status = "LOADING"
	// StatusSuccess means the last attempt produced a video.
	StatusSuccess Status = "SUCCESS"
	// StatusError means the last attempt failed with a surfaced error.
	StatusError Status = "ERROR"
)

// ExtendResolution is the resolution used for extensions; the remote
// service only extends 720p videos.
const ExtendResolution = "720p"

// Static errors for session operations.
var (
	// ErrInvalidTransition is returned when an invalid state transition is attempted.
	ErrInvalidTransition = errors.New("session: invalid state transition")
	// ErrAttemptInFlight is returned when a generation is started while another runs.
	ErrAttemptInFlight = errors.New("session: a generation is already in progress")
	// ErrCredentialRequired is returned when no API key is selected; the prompt was opened.
	ErrCredentialRequired = errors.New("session: select an API key to continue")
	// ErrNothingPending is returned when a key is selected but no configuration awaits it.
	ErrNothingPending = errors.New("session: no configuration is waiting for an API key")
	// ErrNothingToRetry is returned when there is no previous configuration.
	ErrNothingToRetry = errors.New("session: no previous configuration to retry")
	// ErrNothingToExtend is returned when there is no generated video to extend.
	ErrNothingToExtend = errors.New("session: no generated video to extend")
	// ErrGenerationPanicked is returned when the generator panics during an attempt.
	ErrGenerationPanicked = errors.New("session: generation attempt panicked")
)

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusIdle:    {StatusLoading},
	StatusLoading: {StatusSuccess, StatusError, StatusIdle},
	StatusSuccess: {StatusLoading, StatusIdle},
	StatusError:   {StatusLoading, StatusIdle},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Generator runs one generation attempt.
type Generator interface {
	Generate(ctx context.Context, cfg generation.Config) (*generation.Artifact, error)
}

// Credentials is the credential provider seen by the session.
type Credentials interface {
	HasSelectedKey() bool
	OpenSelectKey()
	Prompting() bool
}

// Revoker releases local video handles.
type Revoker interface {
	Revoke(handle string) error
}

// Outcome is how an attempt ended.
type Outcome string

const (
	// OutcomeSucceeded means a new artifact is on display.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means the error is surfaced in the ERROR state.
	OutcomeFailed Outcome = "failed"
	// OutcomeCredentialRequired means the key prompt was opened and the
	// configuration is waiting for a new key.
	OutcomeCredentialRequired Outcome = "credential_required"
	// OutcomeSuppressed means a missing key right after selection was treated
	// as a propagation race: back to IDLE, configuration kept.
	OutcomeSuppressed Outcome = "suppressed"
	// OutcomeStale means the session moved on while the attempt ran; its result was dropped.
	OutcomeStale Outcome = "stale"
)

// Session is the state machine around generation attempts.
// It allows a single attempt in flight.
type Session struct {
	mu sync.Mutex

	gen     Generator
	creds   Credentials
	objects Revoker
	logger  *slog.Logger

	status    Status
	errMsg    string
	errKind   generation.Kind
	last      *generation.Config
	pending   *generation.Config
	artifact  *generation.Artifact
	seq       uint64
	updatedAt time.Time
}

// New creates an idle Session.
func New(gen Generator, creds Credentials, objects Revoker, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		gen:       gen,
		creds:     creds,
		objects:   objects,
		logger:    logger,
		status:    StatusIdle,
		updatedAt: time.Now(),
	}
}

// Attempt is a started generation. Run it exactly once.
type Attempt struct {
	s              *Session
	seq            uint64
	cfg            generation.Config
	afterSelection bool
}

// Config returns the configuration being generated.
func (a *Attempt) Config() generation.Config {
	return a.cfg
}

// Run executes the attempt and applies its result to the session.
// The returned error is the generation failure for OutcomeFailed and
// OutcomeCredentialRequired, nil otherwise.
//
// A panic in the generator fails the attempt with ErrGenerationPanicked
// instead of leaving the session LOADING.
func (a *Attempt) Run(ctx context.Context) (Outcome, error) {
	art, err := a.generate(ctx)
	return a.s.finish(a, art, err)
}

func (a *Attempt) generate(ctx context.Context) (art *generation.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.s.logger.ErrorContext(ctx, "generation panicked",
				slog.Uint64("attempt", a.seq),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			art, err = nil, fmt.Errorf("%w: %v", ErrGenerationPanicked, r)
		}
	}()
	return a.s.gen.Generate(ctx, a.cfg)
}

// Begin starts an attempt for cfg. Unless afterSelection is set, a missing
// key opens the credential prompt, parks cfg as pending and returns
// ErrCredentialRequired without contacting the remote service.
func (s *Session) Begin(cfg generation.Config, afterSelection bool) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked(cfg, afterSelection)
}

func (s *Session) beginLocked(cfg generation.Config, afterSelection bool) (*Attempt, error) {
	if s.status == StatusLoading {
		return nil, ErrAttemptInFlight
	}

	if !afterSelection && !s.creds.HasSelectedKey() {
		s.pending = &cfg
		s.creds.OpenSelectKey()
		s.touch()
		return nil, ErrCredentialRequired
	}

	if err := s.transitionLocked(StatusLoading); err != nil {
		return nil, err
	}
	s.errMsg = ""
	s.errKind = generation.KindNone
	s.last = &cfg
	s.pending = nil
	s.seq++

	s.logger.Info("generation started",
		slog.String("mode", string(cfg.Mode())),
		slog.Uint64("attempt", s.seq),
		slog.Bool("after_key_selection", afterSelection),
	)

	return &Attempt{s: s, seq: s.seq, cfg: cfg, afterSelection: afterSelection}, nil
}

// Generate begins and runs an attempt for cfg.
func (s *Session) Generate(ctx context.Context, cfg generation.Config) (Outcome, error) {
	a, err := s.Begin(cfg, false)
	if err != nil {
		return "", err
	}
	return a.Run(ctx)
}

// CredentialSelected starts the pending configuration after the user picked
// a key. The credential precheck is skipped for this attempt.
func (s *Session) CredentialSelected() (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil, ErrNothingPending
	}
	return s.beginLocked(*s.pending, true)
}

// Retry starts the last configuration again.
func (s *Session) Retry() (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return nil, ErrNothingToRetry
	}
	return s.beginLocked(*s.last, false)
}

// Extend starts a continuation of the video on display.
func (s *Session) Extend(prompt string) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.artifact == nil {
		return nil, ErrNothingToExtend
	}

	video := s.artifact.Video
	cfg := generation.Config{
		Prompt:     prompt,
		Resolution: ExtendResolution,
		Variant:    generation.ExtendVideo{Input: &video},
	}
	if s.last != nil {
		cfg.Model = s.last.Model
		cfg.AspectRatio = s.last.AspectRatio
	}
	return s.beginLocked(cfg, false)
}

// SwitchCredential opens the key prompt so the user can pick another key.
// After a failure the last configuration becomes pending, so selecting a key
// resubmits it.
func (s *Session) SwitchCredential() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusError && s.last != nil {
		cfg := *s.last
		s.pending = &cfg
	}
	s.creds.OpenSelectKey()
	s.touch()
}

// Reset goes back to an empty IDLE session ("new video"). The video on
// display is revoked and an attempt still in flight becomes stale.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revokeLocked(s.artifact)
	s.artifact = nil
	if s.status != StatusIdle {
		_ = s.transitionLocked(StatusIdle)
	}
	s.seq++
	s.errMsg = ""
	s.errKind = generation.KindNone
	s.last = nil
	s.pending = nil
	s.touch()
}

func (s *Session) finish(a *Attempt, art *generation.Artifact, err error) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.seq != s.seq || s.status != StatusLoading {
		if art != nil {
			s.revokeLocked(art)
		}
		s.logger.Info("stale generation result dropped", slog.Uint64("attempt", a.seq))
		return OutcomeStale, nil
	}

	if err == nil {
		s.revokeLocked(s.artifact)
		s.artifact = art
		_ = s.transitionLocked(StatusSuccess)
		s.logger.Info("generation succeeded",
			slog.Uint64("attempt", a.seq),
			slog.String("handle", art.Handle),
		)
		return OutcomeSucceeded, nil
	}

	kind := generation.Classify(err)
	switch {
	case kind == generation.KindMissingCredential && a.afterSelection:
		_ = s.transitionLocked(StatusIdle)
		s.logger.Warn("API key not visible yet after selection, returning to idle",
			slog.Uint64("attempt", a.seq),
		)
		return OutcomeSuppressed, nil

	case kind.NeedsCredential():
		cfg := a.cfg
		s.pending = &cfg
		s.errKind = kind
		s.creds.OpenSelectKey()
		_ = s.transitionLocked(StatusIdle)
		s.logger.Warn("generation needs a different API key",
			slog.Uint64("attempt", a.seq),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return OutcomeCredentialRequired, err

	default:
		s.errMsg = err.Error()
		s.errKind = kind
		_ = s.transitionLocked(StatusError)
		s.logger.Error("generation failed",
			slog.Uint64("attempt", a.seq),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return OutcomeFailed, err
	}
}

func (s *Session) transitionLocked(to Status) error {
	if !canTransition(s.status, to) {
		return ErrInvalidTransition
	}
	s.status = to
	s.touch()
	return nil
}

func (s *Session) revokeLocked(art *generation.Artifact) {
	if art == nil || s.objects == nil {
		return
	}
	if err := s.objects.Revoke(art.Handle); err != nil {
		s.logger.Warn("failed to revoke video handle",
			slog.String("handle", art.Handle),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Session) touch() {
	s.updatedAt = time.Now()
}
