package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation    = errors.New("login rejected")
	ErrTransport     = errors.New("login transport failure")
	ErrServerFailure = errors.New("login failed")
	ErrTimeout       = errors.New("login timed out")
	ErrCanceled      = errors.New("login canceled")
)

// Credentials are sent once to start a login and never stored.
type Credentials struct {
	Username string
	Password string
}

// SessionHandle identifies one queued login on the backend.
type SessionHandle string

// State is the lifecycle position of a Poller.
type State int32

const (
	StateIdle State = iota
	StateInitiating
	StatePolling
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitiating:
		return "initiating"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// StatusKind classifies a login status. Pending is the only non-terminal kind.
type StatusKind int

const (
	StatusPending StatusKind = iota
	StatusSuccess
	StatusFailure
	StatusTransportError
	StatusValidationError
	StatusTimeout
)

func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusTransportError:
		return "transport_error"
	case StatusValidationError:
		return "validation_error"
	case StatusTimeout:
		return "timeout"
	}
	return fmt.Sprintf("StatusKind(%d)", int(k))
}

func (k StatusKind) Terminal() bool { return k != StatusPending }

// Status is the parsed answer to one poll.
type Status struct {
	Kind    StatusKind
	Message string
	// Result is set when Kind is StatusSuccess.
	Result *Result
}

// Result is the credential delivered on success. The poller keeps no reference to it.
type Result struct {
	Token     string    `json:"token"`
	AccountID int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// Expired reports whether the token carried an expiry that has passed.
func (r *Result) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Update is delivered to an Observer for every step of a login session.
type Update struct {
	Status StatusKind
	Handle SessionHandle
	// Attempt is the poll number, 0 for the notification sent right after initiation.
	Attempt int
	Message string
	Result  *Result
	// Err is set for every terminal kind except StatusSuccess.
	Err error
}

func (u Update) Terminal() bool { return u.Status.Terminal() }

// Observer receives session updates, in order, from the session's goroutine. The
// terminal update is always the last one.
type Observer func(Update)

// CancelFunc stops a session. It is idempotent, and once it returns no further update
// is delivered for that session.
type CancelFunc func()

// ValidationError means the backend refused to start a login.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%v: %s", ErrValidation, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
func (e *ValidationError) Unwrap() error        { return e.Err }

// TransportError means the backend could not be reached or answered with something
// other than a well formed status.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v during %s: %v", ErrTransport, e.Op, e.Err)
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
func (e *TransportError) Unwrap() error        { return e.Err }

func serverFailure(msg string) error {
	if msg == "" {
		return ErrServerFailure
	}
	return fmt.Errorf("%w: %s", ErrServerFailure, msg)
}

func kindOf(err error) StatusKind {
	switch {
	case errors.Is(err, ErrValidation):
		return StatusValidationError
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	case errors.Is(err, ErrServerFailure):
		return StatusFailure
	}
	return StatusTransportError
}
