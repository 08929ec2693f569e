package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/habedi/booksync/auth"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	defaultRefreshMaxAttempts = 5
	defaultRefreshMaxWait     = 10 * time.Minute
)

// Refresher exchanges a refresh token at the provider's OAuth token endpoint.
// It implements auth.TokenRefresher.
type Refresher struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Clock        clockwork.Clock

	// DefaultRetryAfter is used for 429 responses without a Retry-After header.
	DefaultRetryAfter time.Duration
	// MaxWait bounds the total time spent sleeping on 429 responses.
	MaxWait     time.Duration
	MaxAttempts int
}

// NewRefresher creates a Refresher with default timeouts and retry budget.
func NewRefresher(tokenURL, clientID, clientSecret string, httpClient *http.Client) *Refresher {
	if httpClient == nil {
		httpClient = newHTTPClient(DefaultTimeout)
	}
	return &Refresher{
		TokenURL:          tokenURL,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		HTTPClient:        httpClient,
		Clock:             clockwork.NewRealClock(),
		DefaultRetryAfter: DefaultRetryAfter,
		MaxWait:           defaultRefreshMaxWait,
		MaxAttempts:       defaultRefreshMaxAttempts,
	}
}

// PerformTokenRefresh posts grant_type=refresh_token and returns the new token set
// with an absolute expiry. Persisting it is left to the caller.
func (r *Refresher) PerformTokenRefresh(ctx context.Context, refreshToken string) (*auth.TokenSet, error) {
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultRefreshMaxAttempts
	}
	maxWait := r.MaxWait
	if maxWait <= 0 {
		maxWait = defaultRefreshMaxWait
	}
	fallback := r.DefaultRetryAfter
	if fallback <= 0 {
		fallback = DefaultRetryAfter
	}

	var waited time.Duration
	for attempt := 1; ; attempt++ {
		resp, body, err := r.post(ctx, refreshToken)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return r.parse(body, refreshToken, clock.Now())

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := parseRetryAfter(resp.Header.Get("Retry-After"), clock.Now(), fallback)
			if attempt >= maxAttempts || waited+wait > maxWait {
				log.Error().Int("attempt", attempt).Dur("waited", waited).Msg("Token endpoint kept rate limiting")
				return nil, &AuthRefreshError{Status: resp.StatusCode, Body: preview(body)}
			}
			log.Warn().Dur("wait", wait).Int("attempt", attempt).Msg("Token endpoint rate limited, waiting before retry")
			if err := sleep(ctx, clock, wait); err != nil {
				return nil, err
			}
			waited += wait

		default:
			log.Error().Int("status", resp.StatusCode).Str("body", preview(body)).Msg("Token refresh rejected")
			return nil, &AuthRefreshError{Status: resp.StatusCode, Body: string(body)}
		}
	}
}

func (r *Refresher) post(ctx context.Context, refreshToken string) (*http.Response, []byte, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token refresh request: %w", err)
	}
	req.SetBasicAuth(r.ClientID, r.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	httpClient := r.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(DefaultTimeout)
	}
	log.Debug().Str("url", r.TokenURL).Msg("Requesting token refresh")
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("token refresh request failed: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read token refresh response: %w", err)
	}
	return resp, body, nil
}

func (r *Refresher) parse(body []byte, previousRefresh string, now time.Time) (*auth.TokenSet, error) {
	var tokens auth.TokenSet
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode token refresh response: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, &AuthRefreshError{Status: http.StatusOK, Body: "response did not contain an access_token"}
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = previousRefresh
	}
	tokens.ExpiresAt = now.Unix() + tokens.ExpiresIn
	return &tokens, nil
}
