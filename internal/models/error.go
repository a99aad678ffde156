package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for flow preconditions
var (
	ErrFlowBusy              = errors.New("another request is already in progress")
	ErrInvalidTransition     = errors.New("operation not allowed in the current flow state")
	ErrResendCooldown        = errors.New("resend is not available until the current code expires")
	ErrNoActiveSession       = errors.New("no active verification session")
	ErrSessionExpiredOnIssue = errors.New("issued session is already expired")
	ErrUnsupportedVariant    = errors.New("unsupported flow variant")
)

// Sentinel errors used by the development authority
var (
	ErrNotFound             = errors.New("resource not found")
	ErrConflict             = errors.New("resource already exists")
	ErrInvalidCode          = errors.New("invalid code")
	ErrChallengeExpired     = errors.New("challenge expired")
	ErrTokenInvalid         = errors.New("invalid or expired token")
	ErrTooManyAttempts      = errors.New("too many attempts")
	ErrResendTooSoon        = errors.New("current code is still valid")
	ErrChallengeNotVerified = errors.New("challenge not verified")
	ErrEmailNotVerified     = errors.New("email address not verified")
	ErrCredentialMismatch   = errors.New("credentials do not match")
	ErrCredentialTooShort   = errors.New("credential too short")
	ErrInvalidCredentials   = errors.New("invalid credentials")
)

// LocalValidationError is raised before any remote call.
// Flow state and session are never touched when it is returned.
type LocalValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *LocalValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *LocalValidationError) Unwrap() error {
	return e.Err
}

// RemoteRejection carries the authority's verdict verbatim
type RemoteRejection struct {
	Status int    // HTTP status, 0 when not transported over HTTP
	Code   string // machine-readable code, may be empty
	Detail string // human-readable message from the authority
}

func (e *RemoteRejection) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Code != "" {
		return e.Code
	}
	return "request rejected"
}

// TransportFailure covers an unreachable authority or an unusable response
type TransportFailure struct {
	Op  string
	Err error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("%s failed: service unavailable, please try again", e.Op)
}

func (e *TransportFailure) Unwrap() error {
	return e.Err
}

// IsLocal reports whether err was produced without contacting the authority
func IsLocal(err error) bool {
	var lv *LocalValidationError
	if errors.As(err, &lv) {
		return true
	}
	return errors.Is(err, ErrFlowBusy) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrResendCooldown) ||
		errors.Is(err, ErrNoActiveSession)
}

// UserMessage renders err the way it should be shown to a person
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var rr *RemoteRejection
	if errors.As(err, &rr) {
		return rr.Error()
	}
	var tf *TransportFailure
	if errors.As(err, &tf) {
		return tf.Error()
	}
	return err.Error()
}
