package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrBatchLimit             = errors.New("batch limit exceeded")
	ErrTransport              = errors.New("transport failure")
	ErrAccountNotFound        = errors.New("account not found")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrParse                  = errors.New("failed to parse response")
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")
)

type TimeoutPhase string

const (
	TimeoutPhaseNone    TimeoutPhase = ""
	TimeoutPhaseConnect TimeoutPhase = "connect"
	TimeoutPhaseRead    TimeoutPhase = "read"
)

// A failure below the HTTP layer. Phase is set when one of the configured bounds expired.
type TransportError struct {
	Phase          TimeoutPhase
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Err            error
}

func (e *TransportError) Error() string {
	if e.Phase != TimeoutPhaseNone {
		return fmt.Sprintf(
			"%s: %s timed out (connect timeout %s, read timeout %s): %v",
			ErrTransport, e.Phase, e.ConnectTimeout, e.ReadTimeout, e.Err,
		)
	}
	return fmt.Sprintf("%s: %v", ErrTransport, e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

func (e *TransportError) TimedOut() bool {
	return e.Phase != TimeoutPhaseNone
}

// The directory had no content for Key (a username, a uuid or a batch of usernames)
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no content returned for %s", ErrAccountNotFound, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrAccountNotFound
}

// The directory rejected the request. Message is the message returned by the
// service when it sent one.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return ErrInvalidRequest
}
