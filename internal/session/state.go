package session

import (
	"time"

	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/generation"
)

// VideoInfo describes the artifact on display.
type VideoInfo struct {
	Handle      string
	ContentType string
	Size        int
	RemoteURI   string
	Video       generation.VideoHandle
}

// State is a point-in-time copy of the session for safe reads.
type State struct {
	Status    Status
	Error     string
	ErrorKind generation.Kind
	// Prompting is true while the key selection prompt is open.
	Prompting bool
	// Pending is the configuration waiting for a key, if any.
	Pending *generation.Config
	// Last is the configuration of the latest attempt, used to pre-fill the form.
	Last      *generation.Config
	Video     *VideoInfo
	UpdatedAt time.Time
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Status:    s.status,
		Error:     s.errMsg,
		ErrorKind: s.errKind,
		Prompting: s.creds.Prompting(),
		Pending:   cloneConfig(s.pending),
		Last:      cloneConfig(s.last),
		UpdatedAt: s.updatedAt,
	}
	if s.artifact != nil {
		st.Video = &VideoInfo{
			Handle:      s.artifact.Handle,
			ContentType: s.artifact.ContentType,
			Size:        len(s.artifact.Data),
			RemoteURI:   s.artifact.RemoteURI,
			Video:       s.artifact.Video,
		}
	}
	return st
}

// Artifact returns the artifact on display, or nil.
func (s *Session) Artifact() *generation.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact == nil {
		return nil
	}
	art := *s.artifact
	return &art
}

// GetStatus returns the current status.
func (s *Session) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func cloneConfig(cfg *generation.Config) *generation.Config {
	if cfg == nil {
		return nil
	}
	c := *cfg
	return &c
}
