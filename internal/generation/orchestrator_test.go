package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockRemote implements Remote for testing.
type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) Submit(ctx context.Context, apiKey string, payload RequestPayload) (*Operation, error) {
	args := m.Called(ctx, apiKey, payload)
	op, _ := args.Get(0).(*Operation)
	return op, args.Error(1)
}

func (m *mockRemote) Poll(ctx context.Context, apiKey string, op *Operation) (*Operation, error) {
	args := m.Called(ctx, apiKey, op)
	next, _ := args.Get(0).(*Operation)
	return next, args.Error(1)
}

// mockFetcher implements Fetcher for testing.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	args := m.Called(ctx, rawURL)
	data, _ := args.Get(0).([]byte)
	return data, args.String(1), args.Error(2)
}

type staticKey string

func (k staticKey) APIKey() string { return string(k) }

// recordingStore implements ObjectStore for testing.
type recordingStore struct {
	mu      sync.Mutex
	created map[string][]byte
}

func (s *recordingStore) Create(data []byte, _ string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created == nil {
		s.created = make(map[string][]byte)
	}
	handle := "blob:test-" + string(rune('a'+len(s.created)))
	s.created[handle] = data
	return handle
}

const videoURI = "https://generativelanguage.googleapis.com/v1beta/files/abc%3Adownload?alt=media"

func newTestOrchestrator(remote Remote, key string, fetcher Fetcher, store ObjectStore, opts ...Option) *Orchestrator {
	opts = append([]Option{WithPollInterval(time.Millisecond)}, opts...)
	return NewOrchestrator(remote, staticKey(key), fetcher, store, opts...)
}

func doneOperation() *Operation {
	return &Operation{
		Name:   "models/veo/operations/1",
		Done:   true,
		Videos: []VideoHandle{{URI: videoURI, MIMEType: "video/mp4"}},
	}
}

func TestGenerate_PollsUntilDone(t *testing.T) {
	remote := new(mockRemote)
	fetcher := new(mockFetcher)
	store := &recordingStore{}

	pending := &Operation{Name: "models/veo/operations/1"}
	remote.On("Submit", mock.Anything, "secret", mock.AnythingOfType("generation.RequestPayload")).Return(pending, nil).Once()
	remote.On("Poll", mock.Anything, "secret", mock.Anything).Return(&Operation{Name: pending.Name}, nil).Once()
	remote.On("Poll", mock.Anything, "secret", mock.Anything).Return(doneOperation(), nil).Once()

	wantURL := "https://generativelanguage.googleapis.com/v1beta/files/abc:download?alt=media&key=secret"
	fetcher.On("Fetch", mock.Anything, wantURL).Return([]byte("mp4-bytes"), "video/mp4", nil).Once()

	o := newTestOrchestrator(remote, "secret", fetcher, store)
	art, err := o.Generate(context.Background(), baseConfig(nil))
	require.NoError(t, err)

	remote.AssertNumberOfCalls(t, "Poll", 2)
	fetcher.AssertExpectations(t)

	assert.Equal(t, []byte("mp4-bytes"), art.Data)
	assert.Equal(t, "video/mp4", art.ContentType)
	assert.Equal(t, videoURI, art.RemoteURI)
	assert.Equal(t, VideoHandle{URI: videoURI, MIMEType: "video/mp4"}, art.Video)
	assert.Equal(t, []byte("mp4-bytes"), store.created[art.Handle])
}

func TestGenerate_SubmitsBuiltPayload(t *testing.T) {
	remote := new(mockRemote)
	fetcher := new(mockFetcher)

	cfg := baseConfig(FramesToVideo{StartFrame: startFrame, Looping: true})
	want, err := Build(cfg)
	require.NoError(t, err)

	remote.On("Submit", mock.Anything, "secret", want).Return(doneOperation(), nil).Once()
	fetcher.On("Fetch", mock.Anything, mock.Anything).Return([]byte("x"), "", nil)

	o := newTestOrchestrator(remote, "secret", fetcher, &recordingStore{})
	art, err := o.Generate(context.Background(), cfg)
	require.NoError(t, err)

	remote.AssertExpectations(t)
	remote.AssertNumberOfCalls(t, "Poll", 0)
	// falls back to the descriptor's MIME type
	assert.Equal(t, "video/mp4", art.ContentType)
}

func TestGenerate_MissingCredential(t *testing.T) {
	remote := new(mockRemote)
	fetcher := new(mockFetcher)

	o := newTestOrchestrator(remote, "", fetcher, &recordingStore{})
	_, err := o.Generate(context.Background(), baseConfig(nil))

	var missing *MissingCredentialError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, err.Error(), "API key is missing")
	remote.AssertNumberOfCalls(t, "Submit", 0)
	remote.AssertNumberOfCalls(t, "Poll", 0)
	fetcher.AssertNumberOfCalls(t, "Fetch", 0)
}

func TestGenerate_NilKeySource(t *testing.T) {
	remote := new(mockRemote)
	o := NewOrchestrator(remote, nil, new(mockFetcher), &recordingStore{})

	_, err := o.Generate(context.Background(), baseConfig(nil))
	assert.Equal(t, KindMissingCredential, Classify(err))
	remote.AssertNumberOfCalls(t, "Submit", 0)
}

func TestGenerate_ExtendWithoutInputFailsBeforeSubmit(t *testing.T) {
	remote := new(mockRemote)

	o := newTestOrchestrator(remote, "secret", new(mockFetcher), &recordingStore{})
	_, err := o.Generate(context.Background(), baseConfig(ExtendVideo{}))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	remote.AssertNumberOfCalls(t, "Submit", 0)
}

func TestGenerate_EmptyResult(t *testing.T) {
	tests := []struct {
		name string
		op   *Operation
	}{
		{"no videos", &Operation{Name: "op", Done: true}},
		{"empty list", &Operation{Name: "op", Done: true, Videos: []VideoHandle{}}},
		{"filtered", &Operation{Name: "op", Done: true, FilteredCount: 1, FilteredReasons: []string{"celebrity likeness"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := new(mockRemote)
			fetcher := new(mockFetcher)
			remote.On("Submit", mock.Anything, "secret", mock.Anything).Return(tt.op, nil)

			o := newTestOrchestrator(remote, "secret", fetcher, &recordingStore{})
			_, err := o.Generate(context.Background(), baseConfig(nil))

			var empty *EmptyResultError
			require.ErrorAs(t, err, &empty)
			assert.Contains(t, err.Error(), "no videos generated")
			assert.Equal(t, KindEmptyResult, Classify(err))
			fetcher.AssertNumberOfCalls(t, "Fetch", 0)
		})
	}
}

func TestGenerate_DownloadError(t *testing.T) {
	remote := new(mockRemote)
	fetcher := new(mockFetcher)
	store := &recordingStore{}

	remote.On("Submit", mock.Anything, "secret", mock.Anything).Return(doneOperation(), nil)
	fetcher.On("Fetch", mock.Anything, mock.Anything).Return(nil, "", &DownloadError{StatusCode: 403})

	o := newTestOrchestrator(remote, "secret", fetcher, store)
	_, err := o.Generate(context.Background(), baseConfig(nil))

	var derr *DownloadError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 403, derr.StatusCode)
	assert.Equal(t, KindDownload, Classify(err))
	assert.Empty(t, store.created)
}

func TestGenerate_RemoteErrorsPropagateUnchanged(t *testing.T) {
	remote := new(mockRemote)
	submitErr := errors.New("Requested entity was not found.")
	remote.On("Submit", mock.Anything, "secret", mock.Anything).Return(nil, submitErr)

	o := newTestOrchestrator(remote, "secret", new(mockFetcher), &recordingStore{})
	_, err := o.Generate(context.Background(), baseConfig(nil))

	assert.Same(t, submitErr, err)
	assert.Equal(t, KindEntityNotFound, Classify(err))
}

func TestGenerate_PollErrorPropagates(t *testing.T) {
	remote := new(mockRemote)
	pollErr := errors.New("PERMISSION_DENIED: caller lacks access")
	remote.On("Submit", mock.Anything, "secret", mock.Anything).Return(&Operation{Name: "op"}, nil)
	remote.On("Poll", mock.Anything, "secret", mock.Anything).Return(nil, pollErr)

	o := newTestOrchestrator(remote, "secret", new(mockFetcher), &recordingStore{})
	_, err := o.Generate(context.Background(), baseConfig(nil))

	assert.Same(t, pollErr, err)
	assert.Equal(t, KindPermissionDenied, Classify(err))
}

func TestGenerate_OperationError(t *testing.T) {
	tests := []struct {
		name     string
		op       *Operation
		wantCode int
		wantKind Kind
	}{
		{
			name:     "internal failure",
			op:       &Operation{Name: "op", Done: true, ErrorCode: 13, ErrorMessage: "Internal error encountered."},
			wantCode: 13,
			wantKind: KindEmptyResult,
		},
		{
			name:     "permission failure",
			op:       &Operation{Name: "op", Done: true, ErrorCode: 7, ErrorMessage: "The caller does not have permission"},
			wantCode: 7,
			wantKind: KindPermissionDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := new(mockRemote)
			fetcher := new(mockFetcher)
			remote.On("Submit", mock.Anything, "secret", mock.Anything).Return(tt.op, nil)

			o := newTestOrchestrator(remote, "secret", fetcher, &recordingStore{})
			_, err := o.Generate(context.Background(), baseConfig(nil))

			var empty *EmptyResultError
			require.ErrorAs(t, err, &empty)
			var rerr *RemoteError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tt.wantCode, rerr.Code)
			assert.Contains(t, err.Error(), tt.op.ErrorMessage)
			assert.Equal(t, tt.wantKind, Classify(err))
			fetcher.AssertNumberOfCalls(t, "Fetch", 0)
		})
	}
}

func TestGenerate_NilOperation(t *testing.T) {
	remote := new(mockRemote)
	remote.On("Submit", mock.Anything, "secret", mock.Anything).Return(nil, nil)

	o := newTestOrchestrator(remote, "secret", new(mockFetcher), &recordingStore{})
	_, err := o.Generate(context.Background(), baseConfig(nil))
	assert.ErrorIs(t, err, ErrNoOperation)
}

func TestGenerate_MaxPolls(t *testing.T) {
	remote := new(mockRemote)
	remote.On("Submit", mock.Anything, "secret", mock.Anything).Return(&Operation{Name: "op"}, nil)
	remote.On("Poll", mock.Anything, "secret", mock.Anything).Return(&Operation{Name: "op"}, nil)

	o := newTestOrchestrator(remote, "secret", new(mockFetcher), &recordingStore{}, WithMaxPolls(3))
	_, err := o.Generate(context.Background(), baseConfig(nil))

	assert.ErrorIs(t, err, ErrPollLimitExceeded)
	remote.AssertNumberOfCalls(t, "Poll", 3)
}

func TestGenerate_ContextCancelledWhileWaiting(t *testing.T) {
	remote := new(mockRemote)
	remote.On("Submit", mock.Anything, "secret", mock.Anything).Return(&Operation{Name: "op"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	o := NewOrchestrator(remote, staticKey("secret"), new(mockFetcher), &recordingStore{}, WithPollInterval(time.Hour))

	errCh := make(chan error, 1)
	go func() {
		_, err := o.Generate(ctx, baseConfig(nil))
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Generate did not return after cancellation")
	}
	remote.AssertNumberOfCalls(t, "Poll", 0)
}

func TestNewOrchestrator_Defaults(t *testing.T) {
	o := NewOrchestrator(new(mockRemote), staticKey("k"), new(mockFetcher), &recordingStore{},
		WithPollInterval(0), WithMaxPolls(-1))

	assert.Equal(t, DefaultPollInterval, o.pollInterval)
	assert.Equal(t, 0, o.maxPolls)
	assert.NotNil(t, o.builder)
	assert.NotNil(t, o.logger)
	assert.NotNil(t, o.tracer)
}

func TestDownloadURL(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{
			name: "encoded with query",
			uri:  videoURI,
			want: "https://generativelanguage.googleapis.com/v1beta/files/abc:download?alt=media&key=k%2B1",
		},
		{
			name: "no query",
			uri:  "https://example.com/video.mp4",
			want: "https://example.com/video.mp4?key=k%2B1",
		},
		{
			name: "existing key replaced",
			uri:  "https://example.com/video.mp4?key=old",
			want: "https://example.com/video.mp4?key=k%2B1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DownloadURL(tt.uri, "k+1"))
		})
	}
}
