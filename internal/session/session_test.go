package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/generation"
)

type generatorFunc func(ctx context.Context, cfg generation.Config) (*generation.Artifact, error)

func (f generatorFunc) Generate(ctx context.Context, cfg generation.Config) (*generation.Artifact, error) {
	return f(ctx, cfg)
}

type fakeCreds struct {
	mu        sync.Mutex
	has       bool
	prompting bool
	opened    int
}

func (c *fakeCreds) HasSelectedKey() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.has
}

func (c *fakeCreds) OpenSelectKey() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompting = true
	c.opened++
}

func (c *fakeCreds) Prompting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompting
}

type recordingRevoker struct {
	mu      sync.Mutex
	revoked []string
}

func (r *recordingRevoker) Revoke(handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, handle)
	return nil
}

func (r *recordingRevoker) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.revoked...)
}

func artifact(handle string) *generation.Artifact {
	return &generation.Artifact{
		Handle:      handle,
		Data:        []byte("video"),
		ContentType: "video/mp4",
		RemoteURI:   "https://example.com/" + handle,
		Video:       generation.VideoHandle{URI: "https://example.com/" + handle, MIMEType: "video/mp4"},
	}
}

var promptCfg = generation.Config{
	Prompt:      "a fox in the snow",
	Model:       "veo-3.1-fast-generate-preview",
	Resolution:  "1080p",
	AspectRatio: "9:16",
}

func TestSession_PrecheckOpensPrompt(t *testing.T) {
	calls := 0
	gen := generatorFunc(func(context.Context, generation.Config) (*generation.Artifact, error) {
		calls++
		return artifact("a"), nil
	})
	creds := &fakeCreds{}
	s := New(gen, creds, &recordingRevoker{}, nil)

	_, err := s.Generate(context.Background(), promptCfg)
	require.ErrorIs(t, err, ErrCredentialRequired)
	assert.Equal(t, 0, calls)

	st := s.Snapshot()
	assert.Equal(t, StatusIdle, st.Status)
	assert.True(t, st.Prompting)
	require.NotNil(t, st.Pending)
	assert.Equal(t, promptCfg, *st.Pending)
}

func TestSession_Success(t *testing.T) {
	gen := generatorFunc(func(_ context.Context, cfg generation.Config) (*generation.Artifact, error) {
		assert.Equal(t, promptCfg, cfg)
		return artifact("a"), nil
	})
	s := New(gen, &fakeCreds{has: true}, &recordingRevoker{}, nil)

	outcome, err := s.Generate(context.Background(), promptCfg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)

	st := s.Snapshot()
	assert.Equal(t, StatusSuccess, st.Status)
	require.NotNil(t, st.Video)
	assert.Equal(t, "a", st.Video.Handle)
	assert.Equal(t, 5, st.Video.Size)
	require.NotNil(t, st.Last)
	assert.Equal(t, promptCfg, *st.Last)
}

func TestSession_NewSuccessRevokesPreviousHandle(t *testing.T) {
	handles := []string{"a", "b"}
	gen := generatorFunc(func(context.Context, generation.Config) (*generation.Artifact, error) {
		h := handles[0]
		handles = handles[1:]
		return artifact(h), nil
	})
	revoker := &recordingRevoker{}
	s := New(gen, &fakeCreds{has: true}, revoker, nil)

	_, err := s.Generate(context.Background(), promptCfg)
	require.NoError(t, err)
	_, err = s.Generate(context.Background(), promptCfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, revoker.list())
	assert.Equal(t, "b", s.Artifact().Handle)
}

func TestSession_CredentialFailureParksConfig(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"rejected", &generation.AuthRejectedError{Reason: generation.AuthInvalidKey, Message: "API key not valid"}},
		{"entity", errors.New("Requested entity was not found.")},
		{"permission", errors.New("PERMISSION_DENIED")},
		{"missing on normal attempt", &generation.MissingCredentialError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := generatorFunc(func(context.Context, generation.Config) (*generation.Artifact, error) {
				return nil, tt.err
			})
			creds := &fakeCreds{has: true}
			s := New(gen, creds, &recordingRevoker{}, nil)

			outcome, err := s.Generate(context.Background(), promptCfg)
			assert.Equal(t, OutcomeCredentialRequired, outcome)
			assert.Same(t, tt.err, err)

			st := s.Snapshot()
			assert.Equal(t, StatusIdle, st.Status)
			assert.True(t, st.Prompting)
			assert.Empty(t, st.Error)
			require.NotNil(t, st.Pending)
			assert.Equal(t, promptCfg, *st.Pending)
		})
	}
}

func TestSession_MissingKeyAfterSelectionIsSuppressed(t *testing.T) {
	calls := 0
	gen := generatorFunc(func(context.Context, generation.Config) (*generation.Artifact, error) {
		calls++
		return nil, &generation.MissingCredentialError{}
	})
	creds := &fakeCreds{}
	s := New(gen, creds, &recordingRevoker{}, nil)

	_, err := s.Generate(context.Background(), promptCfg)
	require.ErrorIs(t, err, ErrCredentialRequired)

	// the key is "selected" but not visible to the generator yet
	a, err := s.CredentialSelected()
	require.NoError(t, err)
	outcome, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, outcome)
	assert.Equal(t, 1, calls)

	st := s.Snapshot()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Empty(t, st.Error)
	require.NotNil(t, st.Last)
	assert.Equal(t, promptCfg, *st.Last)

	// one-click resubmission of the preserved configuration
	creds.has = true
	gen2 := 0
	s.gen = generatorFunc(func(_ context.Context, cfg generation.Config) (*generation.Artifact, error) {
		gen2++
		assert.Equal(t, promptCfg, cfg)
		return artifact("a"), nil
	})
	a, err = s.Retry()
	require.NoError(t, err)
	outcome, err = a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)
	assert.Equal(t, 1, gen2)
}

func TestSession_CredentialSelectedRunsPending(t *testing.T) {
	var got generation.Config
	gen := generatorFunc(func(_ context.Context, cfg generation.Config) (*generation.Artifact, error) {
		got = cfg
		return artifact("a"), nil
	})
	creds := &fakeCreds{}
	s := New(gen, creds, &recordingRevoker{}, nil)

	_, err := s.CredentialSelected()
	require.ErrorIs(t, err, ErrNothingPending)

	_, err = s.Generate(context.Background(), promptCfg)
	require.ErrorIs(t, err, ErrCredentialRequired)

	creds.has = true
	a, err := s.CredentialSelected()
	require.NoError(t, err)
	outcome, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, outcome)
	assert.Equal(t, promptCfg, got)
	assert.Nil(t, s.Snapshot().Pending)
}

func TestSession_GenericFailure(t *testing.T) {
	gen := generatorFunc(func(context.Context, generation.Config) (*generation.Artifact, error) {
		return nil, &generation.DownloadError{StatusCode: 403}
	})
	creds := &fakeCreds{has: true}
	s := New(gen, creds, &recordingRevoker{}, nil)

	outcome, err := s.Generate(context.Background(), promptCfg)
	assert.Equal(t, OutcomeFailed, outcome)
	require.Error(t, err)

	st := s.Snapshot()
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, generation.KindDownload, st.ErrorKind)
	assert.Contains(t, st.Error, "403")
	assert.False(t, st.Prompting)
	require.NotNil(t, st.Last)
	assert.Equal(t, promptCfg, *st.Last)
}

func TestSession_GeneratorPanicFailsAttempt(t *testing.T) {
	gen := generatorFunc(func(context.Context, generation.Config) (*generation.Artifact, error) {
		panic("nil operation")
	})
	s := New(gen, &fakeCreds{has: true}, &recordingRevoker{}, nil)

	outcome, err := s.Generate(context.Background(), promptCfg)
	assert.Equal(t, OutcomeFailed, outcome)
	require.ErrorIs(t, err, ErrGenerationPanicked)

	st := s.Snapshot()
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, generation.KindGeneric, st.ErrorKind)
	assert.Contains(t, st.Error, "nil operation")

	// The session is usable again.
	s.gen = generatorFunc(func(context.Context, generation.Config) (*generation.Artifact, error) {
		return artifact("after-panic"), nil
	})
	outcome, err = s.Generate(context.Background(), promptCfg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)
}

func TestSession_SwitchCredentialAfterFailure(t *testing.T) {
	gen := generatorFunc(func(context.Context, generation.Config) (*generation.Artifact, error) {
		return nil, errors.New("quota exceeded")
	})
	creds := &fakeCreds{has: true}
	s := New(gen, creds, &recordingRevoker{}, nil)

	_, _ = s.Generate(context.Background(), promptCfg)
	s.SwitchCredential()

	st := s.Snapshot()
	assert.True(t, st.Prompting)
	require.NotNil(t, st.Pending)
	assert.Equal(t, promptCfg, *st.Pending)
}

func TestSession_SingleAttemptInFlight(t *testing.T) {
	release := make(chan struct{})
	gen := generatorFunc(func(context.Context, generation.Config) (*generation.Artifact, error) {
		<-release
		return artifact("a"), nil
	})
	s := New(gen, &fakeCreds{has: true}, &recordingRevoker{}, nil)

	a, err := s.Begin(promptCfg, false)
	require.NoError(t, err)
	assert.Equal(t, StatusLoading, s.GetStatus())

	_, err = s.Begin(promptCfg, false)
	assert.ErrorIs(t, err, ErrAttemptInFlight)
	_, err = s.Retry()
	assert.ErrorIs(t, err, ErrAttemptInFlight)

	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := a.Run(context.Background())
		done <- outcome
	}()
	close(release)
	assert.Equal(t, OutcomeSucceeded, <-done)
}

func TestSession_ResetMakesInFlightAttemptStale(t *testing.T) {
	release := make(chan struct{})
	gen := generatorFunc(func(context.Context, generation.Config) (*generation.Artifact, error) {
		<-release
		return artifact("late"), nil
	})
	revoker := &recordingRevoker{}
	s := New(gen, &fakeCreds{has: true}, revoker, nil)

	a, err := s.Begin(promptCfg, false)
	require.NoError(t, err)

	s.Reset()
	assert.Equal(t, StatusIdle, s.GetStatus())

	close(release)
	outcome, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, outcome)

	assert.Equal(t, []string{"late"}, revoker.list())
	st := s.Snapshot()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Nil(t, st.Video)
	assert.Nil(t, st.Last)
}

func TestSession_ResetRevokesDisplayedVideo(t *testing.T) {
	gen := generatorFunc(func(context.Context, generation.Config) (*generation.Artifact, error) {
		return artifact("a"), nil
	})
	revoker := &recordingRevoker{}
	s := New(gen, &fakeCreds{has: true}, revoker, nil)

	_, err := s.Generate(context.Background(), promptCfg)
	require.NoError(t, err)

	s.Reset()
	assert.Equal(t, []string{"a"}, revoker.list())
	assert.Nil(t, s.Artifact())

	// reset on an idle session is a no-op
	s.Reset()
	assert.Equal(t, StatusIdle, s.GetStatus())
}

func TestSession_RetryWithoutHistory(t *testing.T) {
	s := New(nil, &fakeCreds{has: true}, &recordingRevoker{}, nil)
	_, err := s.Retry()
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

func TestSession_Extend(t *testing.T) {
	var got generation.Config
	gen := generatorFunc(func(_ context.Context, cfg generation.Config) (*generation.Artifact, error) {
		got = cfg
		return artifact("next"), nil
	})
	s := New(gen, &fakeCreds{has: true}, &recordingRevoker{}, nil)

	_, err := s.Extend("")
	require.ErrorIs(t, err, ErrNothingToExtend)

	_, err = s.Generate(context.Background(), promptCfg)
	require.NoError(t, err)
	first := s.Artifact()

	a, err := s.Extend("the fox runs off")
	require.NoError(t, err)
	_, err = a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, generation.ModeExtendVideo, got.Mode())
	assert.Equal(t, "the fox runs off", got.Prompt)
	assert.Equal(t, promptCfg.Model, got.Model)
	assert.Equal(t, ExtendResolution, got.Resolution)
	ext := got.Variant.(generation.ExtendVideo)
	require.NotNil(t, ext.Input)
	assert.Equal(t, first.Video, *ext.Input)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusIdle, StatusLoading, true},
		{StatusIdle, StatusSuccess, false},
		{StatusIdle, StatusIdle, false},
		{StatusLoading, StatusSuccess, true},
		{StatusLoading, StatusError, true},
		{StatusLoading, StatusIdle, true},
		{StatusLoading, StatusLoading, false},
		{StatusSuccess, StatusLoading, true},
		{StatusSuccess, StatusError, false},
		{StatusError, StatusLoading, true},
		{StatusError, StatusIdle, true},
		{Status("UNKNOWN"), StatusIdle, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, canTransition(tt.from, tt.to))
		})
	}
}
