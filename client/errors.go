package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoConnections is returned when Xero lists no tenants for the token.
var ErrNoConnections = errors.New("no Xero connections found for this token")

// AuthRefreshError is returned when the OAuth token endpoint rejects a refresh.
type AuthRefreshError struct {
	Status int
	Body   string
}

func (e *AuthRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed with status %d: %s", e.Status, e.Body)
}

// InvalidRequestError is returned for HTTP 400 responses; the request is never retried.
type InvalidRequestError struct {
	Status int
	Body   string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request (status %d): %s", e.Status, e.Body)
}

// AuthError is returned when the API keeps answering 401 after a forced refresh.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (status %d) after refreshing the access token", e.Status)
}

// MaxRetriesExceededError is returned when transient failures or rate limiting
// outlast the retry budget.
type MaxRetriesExceededError struct {
	Attempts   int
	LastStatus int
	Err        error
}

func (e *MaxRetriesExceededError) Error() string {
	if e.LastStatus != 0 {
		return fmt.Sprintf("max retries exceeded after %d attempts (last status %d %s)",
			e.Attempts, e.LastStatus, http.StatusText(e.LastStatus))
	}
	if e.Err != nil {
		return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("max retries exceeded after %d attempts", e.Attempts)
}

func (e *MaxRetriesExceededError) Unwrap() error { return e.Err }

// HTTPError covers any other non-success status.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: %d %s. Body: %s", e.Status, http.StatusText(e.Status), e.Body)
}
