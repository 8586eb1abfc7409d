package auth

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrTimeout                = errors.New("login timed out")
	ErrCancelled              = errors.New("login cancelled")
	ErrListenerAlreadyStarted = errors.New("redirect listener already started")
	ErrBodyConsumed           = errors.New("response body already consumed")
	ErrDeviceSessionClosed    = errors.New("device authorization session is closed")
	ErrNoFlowEnabled          = errors.New("none of the supported OAuth flows are enabled for this client")
)

// SetupError is a local misconfiguration or resource failure. It is never
// retried and stops orchestration.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// NetworkError is a transport failure talking to the authorization server.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ProtocolError is an OAuth error returned by the authorization server, or a
// response that could not be understood.
type ProtocolError struct {
	Code        ErrorCode
	Description string
	StatusCode  int
}

func (e *ProtocolError) Error() string {
	msg := string(e.Code)
	if msg == "" {
		msg = "invalid response"
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	return msg
}

func isSetupError(err error) bool {
	var setupErr *SetupError
	return errors.As(err, &setupErr)
}

// fallbackAllowed reports whether a failed flow may hand over to the next one.
func fallbackAllowed(err error) bool {
	var netErr *NetworkError
	var protoErr *ProtocolError
	return errors.As(err, &netErr) || errors.As(err, &protoErr)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled)
}
