package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/habedi/booksync/auth"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var (
	QuickBooksScopes = []string{"com.intuit.quickbooks.accounting"}
	XeroScopes       = []string{
		"offline_access",
		"accounting.transactions",
		"accounting.contacts",
		"accounting.settings",
		"accounting.journals.read",
	}
)

// ErrStateMismatch is returned when the redirect carries a different state than was sent.
var ErrStateMismatch = errors.New("authorization response state does not match the request")

// Authorizer runs the initial authorization-code flow that creates the token file.
type Authorizer struct {
	Config     *oauth2.Config
	HTTPClient *http.Client
	Clock      clockwork.Clock
	// Timeout bounds how long the browser waits for the user to finish consenting.
	Timeout time.Duration
}

// NewAuthorizer creates an Authorizer that sends client credentials in the Basic auth header.
func NewAuthorizer(clientID, clientSecret, authURL, tokenURL, redirectURL string, scopes []string) *Authorizer {
	return &Authorizer{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		Clock:   clockwork.NewRealClock(),
		Timeout: 4 * time.Minute,
	}
}

// AuthCodeURL is the consent page the user has to visit.
func (a *Authorizer) AuthCodeURL(state string) string {
	return a.Config.AuthCodeURL(state)
}

// CaptureCode opens the consent page in Chrome and waits until the browser is
// redirected to the configured redirect URL with a code.
func (a *Authorizer) CaptureCode(ctx context.Context, state string, headless bool) (string, error) {
	browserCtx, cancel, err := createChromeContext(ctx, headless)
	if err != nil {
		return "", err
	}
	defer cancel()

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Minute
	}
	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, timeout)
	defer cancelTimeout()

	log.Info().Msg("Opening the provider consent page in Chrome")
	var finalURL string
	err = chromedp.Run(timeoutCtx,
		chromedp.Navigate(a.AuthCodeURL(state)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for {
				var currentURL string
				if err := chromedp.Location(&currentURL).Do(ctx); err != nil {
					return err
				}
				if strings.HasPrefix(currentURL, a.Config.RedirectURL) && strings.Contains(currentURL, "code=") {
					finalURL = currentURL
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(500 * time.Millisecond):
				}
			}
		}),
	)
	if err != nil {
		return "", fmt.Errorf("browser authorization failed: %w", err)
	}
	return ExtractAuthCode(finalURL, state)
}

// ExtractAuthCode pulls the code out of a redirect URL and checks its state.
// An empty state skips the check.
func ExtractAuthCode(redirected, state string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(redirected))
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	q := parsed.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s %s", e, q.Get("error_description"))
	}
	if state != "" && q.Get("state") != state {
		return "", ErrStateMismatch
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("authorization code not found in the URL")
	}
	return code, nil
}

// Exchange trades an authorization code for a token set with an absolute expiry.
func (a *Authorizer) Exchange(ctx context.Context, code string) (*auth.TokenSet, error) {
	if a.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
	}
	tok, err := a.Config.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, &AuthRefreshError{Status: re.Response.StatusCode, Body: string(re.Body)}
		}
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	clock := a.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	set := &auth.TokenSet{
		AccessToken:           tok.AccessToken,
		RefreshToken:          tok.RefreshToken,
		TokenType:             tok.TokenType,
		ExpiresIn:             extraInt(tok, "expires_in"),
		RefreshTokenExpiresIn: extraInt(tok, "x_refresh_token_expires_in"),
	}
	if set.ExpiresIn > 0 {
		set.ExpiresAt = clock.Now().Unix() + set.ExpiresIn
	} else if !tok.Expiry.IsZero() {
		set.ExpiresAt = tok.Expiry.Unix()
	}
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		set.SetExtra("id_token", idToken)
	}
	return set, nil
}

func extraInt(tok *oauth2.Token, key string) int64 {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		var n int64
		if _, err := fmt.Sscan(v, &n); err == nil {
			return n
		}
	}
	return 0
}

func createChromeContext(parent context.Context, headless bool) (context.Context, context.CancelFunc, error) {
	var execPath string
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			execPath = p
			break
		}
	}
	if execPath == "" {
		return nil, nil, fmt.Errorf("no Chrome or Chromium executable found in PATH")
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.ExecPath(execPath))
	if !headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocatorCtx, cancelAllocator := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancelContext := chromedp.NewContext(allocatorCtx, chromedp.WithLogf(log.Debug().Msgf))
	return ctx, func() {
		cancelContext()
		cancelAllocator()
	}, nil
}
