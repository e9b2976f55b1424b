package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
)

var (
	ErrContainerCreation     = errors.New("container creation failed")
	ErrContainerNotReady     = errors.New("container not ready")
	ErrPublish               = errors.New("publish failed")
	ErrRemoteRequest         = errors.New("remote request failed")
	ErrPreconditionViolation = errors.New("attempt precondition violated")
	ErrPostNotFound          = errors.New("post not found")
	ErrNoPublisher           = errors.New("no publisher configured for platform")
	ErrInvalidCredentials    = errors.New("invalid username or password")
)

// ConfigurationError means a publisher cannot be built at all.
type ConfigurationError struct {
	Platform models.Platform
	Missing  []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s publisher not configured: missing %s", e.Platform, strings.Join(e.Missing, ", "))
}

// RemoteError is a failed step of a platform protocol. Err is one of the
// step sentinels; Cause is the underlying transport or API error, if any.
type RemoteError struct {
	Platform   models.Platform
	Step       string
	StatusCode int
	Err        error
	Cause      error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Platform, e.Step, e.Err)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func remoteError(platform models.Platform, step string, sentinel, cause error) *RemoteError {
	re := &RemoteError{Platform: platform, Step: step, Err: sentinel, Cause: cause}
	var ge *GraphError
	if errors.As(cause, &ge) {
		re.StatusCode = ge.StatusCode
	}
	return re
}

// PreconditionError is a caller bug: the post's attempts contradict the intent.
type PreconditionError struct {
	PostID   string
	Platform models.Platform
	Intent   Intent
	Attempts int
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s attempt on post %s for %s with attempts=%d",
		ErrPreconditionViolation, e.Intent, e.PostID, e.Platform, e.Attempts)
}

func (e *PreconditionError) Unwrap() error {
	return ErrPreconditionViolation
}
