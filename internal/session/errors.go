package session

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionExpired is returned when a request still lands on the login
// page after one re-authentication.
var ErrSessionExpired = errors.New("session expired")

// ErrNotAuthenticated is returned by Get when Login has not succeeded.
var ErrNotAuthenticated = errors.New("session not authenticated")

// AuthError indicates that the portal rejected the credentials or that
// login could not complete. It is terminal and never retried.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error: %s: %v", e.Message, e.Err)
	}
	return "auth error: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// TransientNetworkError wraps a connection failure or timeout. Login
// retries these; other callers treat them as ordinary failures.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error during %s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientNetworkError.
func IsTransient(err error) bool {
	var netErr *TransientNetworkError
	return errors.As(err, &netErr)
}

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d on %s %s", e.StatusCode, e.Method, e.Path)
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// classifyTransportError turns an error from http.Client.Do into a
// TransientNetworkError unless it is a cancellation or a certificate
// problem, which retrying cannot fix.
func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		invalidCert      x509.CertificateInvalidError
		hostnameErr      x509.HostnameError
	)
	if errors.As(err, &unknownAuthority) || errors.As(err, &invalidCert) || errors.As(err, &hostnameErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return &TransientNetworkError{Op: op, Err: err}
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
