package generation

import (
	"errors"
	"fmt"
	"strings"
)

// Static errors for generation.
var (
	// ErrPollLimitExceeded is returned when WithMaxPolls is set and the
	// operation is still running after that many status checks.
	ErrPollLimitExceeded = errors.New("generation: operation still running after the maximum number of status checks")
	// ErrNoOperation is returned when the remote service answers without an operation.
	ErrNoOperation = errors.New("generation: remote service returned no operation")
)

// ValidationError reports mode-specific input that cannot be sent.
// It is raised before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "generation: " + e.Message
}

// MissingCredentialError means no API key was available for the attempt.
type MissingCredentialError struct{}

func (e *MissingCredentialError) Error() string {
	return "generation: API key is missing, select an API key to continue"
}

// AuthReason narrows down why the remote service rejected a credential.
type AuthReason string

const (
	// AuthInvalidKey means the key is malformed, expired or unknown.
	AuthInvalidKey AuthReason = "invalid-key"
	// AuthEntityNotFound usually means the key belongs to a project without access to the model.
	AuthEntityNotFound AuthReason = "entity-not-found"
	// AuthPermissionDenied covers permission and authentication denials.
	AuthPermissionDenied AuthReason = "permission-denied"
)

// AuthRejectedError means the remote service refused the credential.
// Message keeps the remote wording.
type AuthRejectedError struct {
	Reason  AuthReason
	Code    int
	Message string
	Err     error
}

func (e *AuthRejectedError) Error() string {
	return "generation: credential rejected: " + e.Message
}

func (e *AuthRejectedError) Unwrap() error {
	return e.Err
}

// EmptyResultError means the operation finished without a usable video.
type EmptyResultError struct {
	// FilteredCount is the number of videos removed by safety filters, when reported.
	FilteredCount int
	// FilteredReasons are the filter explanations, when reported.
	FilteredReasons []string
	// Err is the failure the operation reported alongside the missing
	// response, usually a *RemoteError.
	Err error
}

func (e *EmptyResultError) Error() string {
	msg := "generation: no videos generated"
	if e.FilteredCount > 0 || len(e.FilteredReasons) > 0 {
		msg = fmt.Sprintf("%s (%d filtered: %s)", msg, e.FilteredCount, strings.Join(e.FilteredReasons, "; "))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EmptyResultError) Unwrap() error {
	return e.Err
}

// DownloadError means fetching the finished video returned a non-2xx status.
type DownloadError struct {
	StatusCode int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("generation: video download failed with status %d", e.StatusCode)
}

// RemoteError is a failure reported inside a finished operation.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("generation: operation failed (code %d): %s", e.Code, e.Message)
	}
	return "generation: operation failed: " + e.Message
}

// Kind is the classification of a generation failure.
type Kind string

const (
	KindNone              Kind = ""
	KindValidation        Kind = "validation"
	KindMissingCredential Kind = "missing_credential"
	KindInvalidCredential Kind = "invalid_credential"
	KindEntityNotFound    Kind = "entity_not_found"
	KindPermissionDenied  Kind = "permission_denied"
	KindEmptyResult       Kind = "empty_result"
	KindDownload          Kind = "download"
	KindGeneric           Kind = "generic"
)

// NeedsCredential reports whether the failure should send the user back to
// credential selection instead of showing an error.
func (k Kind) NeedsCredential() bool {
	switch k {
	case KindMissingCredential, KindInvalidCredential, KindEntityNotFound, KindPermissionDenied:
		return true
	default:
		return false
	}
}

var (
	missingFragments    = []string{"api key is missing"}
	credentialFragments = []string{"api key not valid", "api_key_invalid", "api key expired"}
	entityFragments     = []string{"requested entity was not found"}
	permissionFragments = []string{"permission denied", "permission_denied", "unauthenticated", "the caller does not have permission"}
)

// Classify maps err onto a Kind. Typed errors are checked first; anything
// else falls back to matching well-known fragments of the message, since
// remote failures often only carry text. An empty result is only reported
// when its message carries no credential failure.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var (
		missing  *MissingCredentialError
		rejected *AuthRejectedError
		invalid  *ValidationError
		empty    *EmptyResultError
		download *DownloadError
	)
	switch {
	case errors.As(err, &missing):
		return KindMissingCredential
	case errors.As(err, &rejected):
		switch rejected.Reason {
		case AuthEntityNotFound:
			return KindEntityNotFound
		case AuthPermissionDenied:
			return KindPermissionDenied
		default:
			return KindInvalidCredential
		}
	case errors.As(err, &invalid):
		return KindValidation
	case errors.As(err, &download):
		return KindDownload
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, missingFragments):
		return KindMissingCredential
	case containsAny(msg, credentialFragments):
		return KindInvalidCredential
	case containsAny(msg, entityFragments):
		return KindEntityNotFound
	case containsAny(msg, permissionFragments):
		return KindPermissionDenied
	case errors.As(err, &empty):
		return KindEmptyResult
	default:
		return KindGeneric
	}
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}
