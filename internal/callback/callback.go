// Package callback handles the external payment provider's redirect back to
// the portal. Its sole job is to re-enter the payment-status route with the
// reference and status preserved.
package callback

import (
	"errors"
	"net/url"
	"strings"
)

// ErrMissingReference marks a redirect without a usable payment reference.
// The attempt is terminal; the caller redirects to the flow entry instead.
var ErrMissingReference = errors.New("callback missing payment reference")

const defaultStatus = "pending"

// Redirect is a validated provider callback.
type Redirect struct {
	ReferenceID string
	Status      string
}

// Parse extracts the payment reference and optional status from the
// provider's query string. Providers have used three parameter names for the
// reference; only the reference is required.
func Parse(query url.Values) (*Redirect, error) {
	reference := firstNonEmpty(
		query.Get("reference_id"),
		query.Get("reference"),
		query.Get("ref"),
	)
	if reference == "" {
		return nil, ErrMissingReference
	}

	status := strings.TrimSpace(query.Get("status"))
	if status == "" {
		status = defaultStatus
	}
	return &Redirect{ReferenceID: reference, Status: status}, nil
}

// StatusURL is the portal payment-status route for this callback.
func (r *Redirect) StatusURL(portalBase string) string {
	q := url.Values{}
	q.Set("reference", r.ReferenceID)
	q.Set("status", r.Status)
	return strings.TrimSuffix(portalBase, "/") + "/pay?" + q.Encode()
}

// EntryURL is the flow's entry route, the destination for invalid callbacks.
func EntryURL(portalBase string) string {
	return strings.TrimSuffix(portalBase, "/") + "/pay"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
