package descriptor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"syscall"
)

// ErrNoDevice is returned for a description without a friendly name.
// Callers treat it as "nothing found", not as a failure.
var ErrNoDevice = errors.New("device description has no friendly name")

// Kind is the category of a fetch failure.
type Kind int

const (
	// KindNetwork covers connection-level failures.
	KindNetwork Kind = iota
	// KindTimeout indicates the request did not complete in time.
	KindTimeout
	// KindNotFound is an HTTP 404. It is terminal.
	KindNotFound
	// KindHTTP is any other non-200 status.
	KindHTTP
	// KindParse indicates a malformed description document.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "Network Error"
	case KindTimeout:
		return "Timeout"
	case KindNotFound:
		return "Not Found"
	case KindHTTP:
		return "HTTP Error"
	case KindParse:
		return "Parse Error"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// FetchError describes a failed description fetch.
type FetchError struct {
	Kind       Kind
	Location   string
	Message    string
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s (caused by: %v)", e.Kind, e.Message, e.Location, e.Err)
	}
	return fmt.Sprintf("%s: %s %s", e.Kind, e.Message, e.Location)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError wraps a transport error in a *FetchError.
func ClassifyNetworkError(err error, location string) *FetchError {
	if err == nil {
		return nil
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}

	if os.IsTimeout(err) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, Location: location, Message: "request timed out", Err: err, Retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &FetchError{Kind: KindNetwork, Location: location, Message: "dns lookup failed for " + dnsErr.Name, Err: err, Retryable: true}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return &FetchError{Kind: KindNetwork, Location: location, Message: "connection refused", Err: err, Retryable: true}
	}

	return &FetchError{Kind: KindNetwork, Location: location, Message: "request failed", Err: err, Retryable: true}
}

// NewHTTPError builds the error for a non-200 response.
func NewHTTPError(statusCode int, location string) *FetchError {
	if statusCode == http.StatusNotFound {
		return &FetchError{Kind: KindNotFound, Location: location, Message: "description not found", StatusCode: statusCode}
	}
	return &FetchError{
		Kind:       KindHTTP,
		Location:   location,
		Message:    fmt.Sprintf("unexpected status code %d", statusCode),
		StatusCode: statusCode,
		Retryable:  true,
	}
}

// NewParseError builds the error for an undecodable description.
func NewParseError(location string, err error) *FetchError {
	return &FetchError{Kind: KindParse, Location: location, Message: "malformed description", Err: err, Retryable: true}
}

// IsNotFound reports whether err is a terminal 404.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindNotFound
}

// IsRetryable reports whether another attempt may succeed. Errors that are
// not *FetchError are treated as transport failures and retried.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrNoDevice) || errors.Is(err, context.Canceled) {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return true
}
