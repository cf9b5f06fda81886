package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind categorizes request failures. The kind drives recovery:
// transient failures are absorbed locally (cache fallback or queueing),
// everything else is surfaced to the caller.
type ErrorKind string

const (
	// KindTransient is a timeout, connection failure, or 5xx - recoverable
	// by queueing (writes) or cache fallback (reads).
	KindTransient ErrorKind = "TRANSIENT"

	// KindPermanent is a definitive server rejection (4xx other than auth).
	// Never queued or retried: the request would never succeed.
	KindPermanent ErrorKind = "PERMANENT"

	// KindAuth is a missing or expired credential. Surfaced distinctly so
	// the screen layer can re-authenticate instead of queueing a doomed write.
	KindAuth ErrorKind = "AUTH"

	// KindNotAvailableOffline is a read with no cache entry while offline.
	// Screens show an explicit "unavailable offline" state for this kind.
	KindNotAvailableOffline ErrorKind = "NOT_AVAILABLE_OFFLINE"
)

// RequestError is a classified gateway failure.
type RequestError struct {
	// Kind identifies the failure category.
	Kind ErrorKind

	// Endpoint is the request path, for diagnostics.
	Endpoint string

	// Status is the HTTP status, or 0 for transport-level failures.
	Status int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s returned %d", e.Kind, e.Endpoint, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Endpoint)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsTransient returns true for failures recoverable by queue or cache.
// Uses errors.As to handle wrapped errors.
func IsTransient(err error) bool {
	return kindOf(err) == KindTransient
}

// IsPermanent returns true for definitive server rejections.
func IsPermanent(err error) bool {
	return kindOf(err) == KindPermanent
}

// IsAuth returns true for credential failures.
func IsAuth(err error) bool {
	return kindOf(err) == KindAuth
}

// IsNotAvailableOffline returns true for offline reads with no cache.
func IsNotAvailableOffline(err error) bool {
	return kindOf(err) == KindNotAvailableOffline
}

func kindOf(err error) ErrorKind {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// classifyStatus maps an HTTP status to an error kind.
//
//   - 401: auth (expired or missing credentials)
//   - 408, 429: transient (the server asked for a retry)
//   - other 4xx: permanent
//   - 5xx and everything unexpected: transient
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return KindTransient
	case status >= 400 && status < 500:
		return KindPermanent
	default:
		return KindTransient
	}
}
