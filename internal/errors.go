package internal

import (
	"errors"
	"fmt"
)

var (
	// Returned when submitting work to a driver that was
	// already requested to shutdown.
	ErrDriverShutdown = errors.New("driver shutdown")

	// Returned when the configured reconnection budget is
	// exhausted and the driver gives up.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// A response payload failed to parse against the schema expected
// for its command. Surfaced only to the pending callback whose
// response failed, other in-flight requests are untouched.
type DecodeError struct {
	Command byte
	Cause   error
}

func (d *DecodeError) Error() string {
	return fmt.Sprintf("failed decoding payload for command %#x: %v", d.Command, d.Cause)
}

func (d *DecodeError) Unwrap() error {
	return d.Cause
}

// The server answered a request with a command different from the
// one registered for its correlation identifier.
type UnexpectedResponseError struct {
	Expected byte
	Actual   byte
}

func (u *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("expected response command %#x, server answered %#x", u.Expected, u.Actual)
}

// A well-formed response carrying a failure decided by the server,
// access denied or a wrong expected version for example. Delivered
// as a value to the waiting callback, never as a fault.
type ServerFailure struct {
	Command byte
	Reason  string
}

func (s *ServerFailure) Error() string {
	return fmt.Sprintf("server reported failure on command %#x: %s", s.Command, s.Reason)
}

// The server answered the request properly but decided the
// operation failed, a wrong expected version or a denied access
// for example. Carries the typed outcome, never raised as a
// fault.
type OperationFailure struct {
	Result Result
	Reason string
}

func (o *OperationFailure) Error() string {
	if o.Reason == "" {
		return fmt.Sprintf("operation failed with result %d", o.Result)
	}
	return fmt.Sprintf("operation failed with result %d: %s", o.Result, o.Reason)
}

// The connection carrying the request died before a response
// arrived. Every pending operation and subscription receives
// this failure during teardown.
type ConnectionError struct {
	Cause error
}

func (c *ConnectionError) Error() string {
	if c.Cause == nil {
		return "connection closed"
	}
	return fmt.Sprintf("connection closed: %v", c.Cause)
}

func (c *ConnectionError) Unwrap() error {
	return c.Cause
}
