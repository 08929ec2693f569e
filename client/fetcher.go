package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPageSize      = 100
	DefaultMaxIterations = 1000
	DefaultMaxRetries    = 5
	// DefaultMaxRateLimitWait bounds the total time one operation may spend waiting on 429s.
	DefaultMaxRateLimitWait = 30 * time.Minute
)

// TokenSource hands out bearer tokens. auth.Service implements it.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Fetcher issues authenticated requests against one API and pages through results.
type Fetcher struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	// Headers are sent with every request, e.g. Xero-tenant-id.
	Headers http.Header
	Clock   clockwork.Clock
	Limiter RateLimiter

	MaxRetries        int
	MaxRateLimitWait  time.Duration
	DefaultRetryAfter time.Duration

	// OnPage is called after every page with the page number and the running record count.
	OnPage func(page, total int)
}

// NewFetcher creates a Fetcher with the default retry policy.
func NewFetcher(baseURL string, tokens TokenSource, httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = newHTTPClient(DefaultTimeout)
	}
	return &Fetcher{
		BaseURL:           baseURL,
		Tokens:            tokens,
		HTTPClient:        httpClient,
		Headers:           http.Header{},
		Clock:             clockwork.NewRealClock(),
		MaxRetries:        DefaultMaxRetries,
		MaxRateLimitWait:  DefaultMaxRateLimitWait,
		DefaultRetryAfter: DefaultRetryAfter,
	}
}

// Request is a single API call.
type Request struct {
	Method      string
	Endpoint    string
	Params      url.Values
	Body        []byte
	ContentType string
}

// FetchRequest describes a paginated fetch.
type FetchRequest struct {
	Endpoint string
	// ResultKey is the top-level field holding the records; defaults to the
	// last path segment of Endpoint.
	ResultKey string
	Query     map[string]string
	// Cursor advances the position between pages. A nil cursor fetches one page.
	Cursor        Cursor
	PageSize      int
	MaxIterations int
}

// FetchResult is the aggregated output of FetchAll, in provider order.
type FetchResult struct {
	Endpoint  string
	Records   []Record
	Pages     int
	Truncated bool
}

// retryState is shared by all requests of one operation.
type retryState struct {
	refreshed bool
	rateWait  time.Duration
}

// FetchAll pages through an endpoint until an empty or short page, or until the
// iteration cap. Reaching the cap is not an error: the partial result is returned
// with Truncated set.
//
// A page shorter than PageSize is taken as the last one. Neither QuickBooks nor
// Xero guarantees that, so a provider returning short pages mid-stream will end
// the fetch early.
func (f *Fetcher) FetchAll(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	key := req.ResultKey
	if key == "" {
		key = resultKey(req.Endpoint)
	}

	result := &FetchResult{Endpoint: req.Endpoint}
	state := &retryState{}
	offset := 0

	for i := 0; i < maxIter; i++ {
		params := url.Values{}
		for k, v := range req.Query {
			params.Set(k, v)
		}
		if req.Cursor != nil {
			req.Cursor.Apply(params, offset, pageSize)
		}

		body, err := f.do(ctx, Request{Method: http.MethodGet, Endpoint: req.Endpoint, Params: params}, state)
		if err != nil {
			return nil, err
		}
		page, err := ParsePage(body, key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse page %d of %s: %w", i+1, req.Endpoint, err)
		}

		n := len(page.Records)
		result.Records = append(result.Records, page.Records...)
		result.Pages++
		log.Debug().Str("endpoint", req.Endpoint).Int("page", result.Pages).Int("records", n).Msg("Fetched page")
		if f.OnPage != nil {
			f.OnPage(result.Pages, len(result.Records))
		}

		if n == 0 || n < pageSize || req.Cursor == nil {
			log.Info().Str("endpoint", req.Endpoint).Int("records", len(result.Records)).Int("pages", result.Pages).Msg("Fetch complete")
			return result, nil
		}
		offset += n
	}

	log.Warn().Str("endpoint", req.Endpoint).Int("max_iterations", maxIter).Int("records", len(result.Records)).
		Msg("Iteration cap reached, returning partial results")
	result.Truncated = true
	return result, nil
}

// Do performs one request under the same retry policy as FetchAll and returns the body.
func (f *Fetcher) Do(ctx context.Context, req Request) ([]byte, error) {
	return f.do(ctx, req, &retryState{})
}

func (f *Fetcher) do(ctx context.Context, r Request, state *retryState) ([]byte, error) {
	if f.Tokens == nil {
		return nil, errors.New("fetcher has no token source")
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	target, err := buildURL(f.BaseURL, r.Endpoint, r.Params)
	if err != nil {
		return nil, err
	}

	clock := f.clock()
	maxRetries := f.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	maxWait := f.MaxRateLimitWait
	if maxWait <= 0 {
		maxWait = DefaultMaxRateLimitWait
	}
	fallback := f.DefaultRetryAfter
	if fallback <= 0 {
		fallback = DefaultRetryAfter
	}
	httpClient := f.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(DefaultTimeout)
	}

	failures := 0
	attempts := 0
	for {
		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		// Fetched on every call so a long fetch picks up a refreshed token.
		token, err := f.Tokens.GetAccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get access token: %w", err)
		}

		var body io.Reader
		if r.Body != nil {
			body = bytes.NewReader(r.Body)
		}
		req, err := createRequest(ctx, method, target, token, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request for %s: %w", r.Endpoint, err)
		}
		if r.ContentType != "" {
			req.Header.Set("Content-Type", r.ContentType)
		}
		for k, vs := range f.Headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		attempts++
		log.Debug().Str("method", method).Str("url", target).Int("attempt", attempts).Msg("Sending HTTP request")
		resp, err := httpClient.Do(req)
		var data []byte
		if err == nil {
			data, err = readResponseBody(resp)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			if failures > maxRetries {
				return nil, &MaxRetriesExceededError{Attempts: attempts, Err: err}
			}
			wait := backoff(failures - 1)
			log.Warn().Err(err).Str("url", target).Dur("wait", wait).Int("attempt", attempts).Msg("Request failed, backing off")
			if err := sleep(ctx, clock, wait); err != nil {
				return nil, err
			}
			continue
		}

		status := resp.StatusCode
		switch {
		case status >= 200 && status < 300:
			log.Debug().Str("url", target).Int("status", status).Msg("HTTP request successful")
			return data, nil

		case status == http.StatusTooManyRequests:
			wait := parseRetryAfter(resp.Header.Get("Retry-After"), clock.Now(), fallback)
			if state.rateWait+wait > maxWait {
				return nil, &MaxRetriesExceededError{Attempts: attempts, LastStatus: status}
			}
			log.Warn().Str("endpoint", r.Endpoint).Dur("wait", wait).Msg("Rate limited, waiting before retrying the same page")
			if err := sleep(ctx, clock, wait); err != nil {
				return nil, err
			}
			state.rateWait += wait

		case status == http.StatusUnauthorized:
			if state.refreshed {
				log.Error().Str("endpoint", r.Endpoint).Msg("Still unauthorized after refreshing the access token")
				return nil, &AuthError{Status: status}
			}
			state.refreshed = true
			log.Warn().Str("endpoint", r.Endpoint).Msg("Unauthorized, forcing a token refresh")
			if _, err := f.Tokens.ForceRefresh(ctx); err != nil {
				return nil, fmt.Errorf("failed to refresh access token after 401: %w", err)
			}

		case status == http.StatusBadRequest:
			log.Error().Str("endpoint", r.Endpoint).Str("body", preview(data)).Msg("Invalid request")
			return nil, &InvalidRequestError{Status: status, Body: string(data)}

		case isTransient(status):
			failures++
			if failures > maxRetries {
				log.Error().Str("endpoint", r.Endpoint).Int("status", status).Int("attempts", attempts).Msg("Giving up after server errors")
				return nil, &MaxRetriesExceededError{Attempts: attempts, LastStatus: status}
			}
			wait := backoff(failures - 1)
			log.Warn().Str("endpoint", r.Endpoint).Int("status", status).Dur("wait", wait).Msg("Server error, backing off")
			if err := sleep(ctx, clock, wait); err != nil {
				return nil, err
			}

		default:
			log.Error().Str("url", target).Int("status", status).Str("body", preview(data)).Msg("HTTP request returned non-OK status")
			return nil, &HTTPError{Status: status, Body: string(data)}
		}
	}
}

func (f *Fetcher) clock() clockwork.Clock {
	if f.Clock == nil {
		return clockwork.NewRealClock()
	}
	return f.Clock
}

func isTransient(status int) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// resultKey turns "api.xro/2.0/Invoices" into "Invoices".
func resultKey(endpoint string) string {
	p := endpoint
	if u, err := url.Parse(endpoint); err == nil {
		p = u.Path
	}
	base := path.Base(strings.TrimRight(p, "/"))
	if base == "." || base == "/" {
		return ""
	}
	return base
}
