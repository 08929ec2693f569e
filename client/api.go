package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout applies to every HTTP call unless the caller supplies its own client.
const DefaultTimeout = 30 * time.Second

// DefaultRetryAfter is used when a 429 response has no usable Retry-After header.
const DefaultRetryAfter = 60 * time.Second

const bodyPreviewLimit = 512

// --- HTTP Helper Functions (kept private) ---

// createRequest creates an HTTP request with bearer authorization and JSON accept header.
func createRequest(ctx context.Context, method, urlStr, accessToken string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("url", urlStr).Msg("Failed to create HTTP request object")
		return nil, err
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer closeResponseBody(resp)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Int("status", resp.StatusCode).Msg("Failed to read response body")
		return nil, err
	}
	return body, nil
}

func closeResponseBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	if err := resp.Body.Close(); err != nil {
		log.Debug().Err(err).Msg("Failed to close response body")
	}
}

func preview(body []byte) string {
	if len(body) > bodyPreviewLimit {
		return string(body[:bodyPreviewLimit])
	}
	return string(body)
}

// parseRetryAfter understands both delta-seconds and HTTP-date values.
func parseRetryAfter(value string, now time.Time, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}

// sleep blocks on the clock, returning early when ctx is done.
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}

// backoff returns 2^attempt seconds.
func backoff(attempt int) time.Duration {
	if attempt > 10 {
		attempt = 10
	}
	return time.Duration(1<<attempt) * time.Second
}

// isAbsoluteURL reports whether s has a scheme and host.
func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// buildURL joins base and endpoint and appends params. Absolute endpoints are used as-is.
func buildURL(base, endpoint string, params url.Values) (string, error) {
	target := endpoint
	if !isAbsoluteURL(endpoint) {
		if base == "" {
			return "", fmt.Errorf("no base URL configured for endpoint %q", endpoint)
		}
		target = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", target, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// NewHTTPClient returns an http.Client with an explicit timeout (DefaultTimeout when zero).
func NewHTTPClient(timeout time.Duration) *http.Client {
	return newHTTPClient(timeout)
}
