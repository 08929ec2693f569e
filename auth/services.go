package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// SafetyMargin is how long before expiry an access token is proactively refreshed.
const SafetyMargin = 300 * time.Second

// ErrNoTokenSet is returned when the storer has no token set at all.
var ErrNoTokenSet = errors.New("no token set stored; run 'booksync authorize' first")

// ErrNoRefreshToken is returned when the stored token set cannot be refreshed.
var ErrNoRefreshToken = errors.New("stored token set has no refresh token; run 'booksync authorize' first")

// Service hands out valid access tokens, refreshing them through its Refresher
// and persisting the result through its Storer.
type Service struct {
	Storer    TokenStorer
	Refresher TokenRefresher
	Clock     clockwork.Clock
	Margin    time.Duration
}

// NewService is the constructor for the auth service.
func NewService(storer TokenStorer, refresher TokenRefresher) *Service {
	return &Service{
		Storer:    storer,
		Refresher: refresher,
		Clock:     clockwork.NewRealClock(),
		Margin:    SafetyMargin,
	}
}

// GetAccessToken returns the stored access token while it is outside the safety
// margin, otherwise it refreshes, saves and returns the new one.
func (s *Service) GetAccessToken(ctx context.Context) (string, error) {
	token, err := s.Storer.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load token set: %w", err)
	}
	if token == nil {
		return "", ErrNoTokenSet
	}
	if s.isTokenValid(token) {
		return token.AccessToken, nil
	}

	log.Info().Time("expires_at", token.Expiry()).Msg("Access token expired or about to expire, refreshing...")
	refreshed, err := s.refresh(ctx, false)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// ForceRefresh refreshes the token set regardless of its expiry.
func (s *Service) ForceRefresh(ctx context.Context) (string, error) {
	log.Info().Msg("Forcing access token refresh")
	refreshed, err := s.refresh(ctx, true)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (s *Service) refresh(ctx context.Context, force bool) (*TokenSet, error) {
	if locker, ok := s.Storer.(TokenLocker); ok {
		unlock, err := locker.Lock(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to lock token store: %w", err)
		}
		defer unlock()
	}

	// Reload under the lock: another process may have refreshed in the meantime.
	current, err := s.Storer.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load token set: %w", err)
	}
	if current == nil {
		return nil, ErrNoTokenSet
	}
	if !force && s.isTokenValid(current) {
		log.Debug().Msg("Token set was refreshed by another process")
		return current, nil
	}
	if current.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	refreshed, err := s.Refresher.PerformTokenRefresh(ctx, current.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to perform token refresh: %w", err)
	}
	if err := s.Storer.Save(refreshed); err != nil {
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}
	log.Info().Time("expires_at", refreshed.Expiry()).Msg("Token refreshed and saved successfully.")
	return refreshed, nil
}

func (s *Service) isTokenValid(token *TokenSet) bool {
	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	margin := s.Margin
	if margin <= 0 {
		margin = SafetyMargin
	}
	return token.ValidAt(clock.Now(), margin)
}
