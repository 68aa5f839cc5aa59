package comfyui

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a client failure so callers can distinguish
// recoverable connectivity problems from hard rejections.
type ErrorKind string

const (
	// KindConnectivity covers unreachable server and request timeouts.
	KindConnectivity ErrorKind = "connectivity"
	// KindRejected covers submissions the server refused.
	KindRejected ErrorKind = "rejected"
	// KindExecution covers graphs the server accepted but failed to run.
	KindExecution ErrorKind = "execution"
	// KindTimeout covers an exhausted polling budget.
	KindTimeout ErrorKind = "timeout"
	// KindArtifactShape covers completed executions missing the
	// expected video output.
	KindArtifactShape ErrorKind = "artifact_shape"
	// KindProtocol covers unparseable or unexpected responses.
	KindProtocol ErrorKind = "protocol"
)

// ClientError is the only error type the client lets escape.
type ClientError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

func clientErr(kind ErrorKind, err error, format string, args ...interface{}) *ClientError {
	return &ClientError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the error kind of a client error, or false for any
// other error.
func KindOf(err error) (ErrorKind, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// IsTimeout reports whether the error is an exhausted polling budget.
func IsTimeout(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindTimeout
}
