package duespay

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthorized marks a 401 on an authenticated call, or a missing
// credential. The client clears the stored credential before returning it, so
// one top-level coordinator can prompt for re-authentication.
var ErrUnauthorized = errors.New("credential missing or rejected")

// ErrAssociationNotFound marks a 404 from the public association endpoint.
var ErrAssociationNotFound = errors.New("association not found")

// ErrReceiptNotFound marks a receipt lookup miss. A success response with no
// receipt identifier is treated identically to a 404.
var ErrReceiptNotFound = errors.New("receipt not found")

// APIError surfaces non-successful HTTP responses from the portal backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("duespay api error: status=%d body=%s", e.StatusCode, e.Body)
}

// FieldErrors maps request field names to server-side validation messages.
type FieldErrors map[string]string

// RequestRejected marks an HTTP-success response whose envelope carries
// success=false. Distinct from transport failure and from HTTP error status.
type RequestRejected struct {
	Message string
	Fields  FieldErrors
}

func (e *RequestRejected) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	return fmt.Sprintf("%s (fields: %s)", e.Message, strings.Join(keys, ", "))
}

// TransportError wraps network-level failures, distinguishing timeouts so
// callers can word the retry message by cause.
type TransportError struct {
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("request timed out: %v", e.Err)
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
