package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/habedi/booksync/auth"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStorer struct {
	tokenToReturn *auth.TokenSet
	errToReturn   error
	saveCalls     int
	lockCalls     int
}

func (m *mockStorer) Load() (*auth.TokenSet, error) {
	if m.errToReturn != nil {
		return nil, m.errToReturn
	}
	if m.tokenToReturn == nil {
		return nil, nil
	}
	cp := *m.tokenToReturn
	return &cp, nil
}

func (m *mockStorer) Save(token *auth.TokenSet) error {
	m.saveCalls++
	m.tokenToReturn = token
	return nil
}

func (m *mockStorer) Lock(ctx context.Context) (func(), error) {
	m.lockCalls++
	return func() {}, nil
}

type mockRefresher struct {
	errToReturn  error
	calls        int
	lastRefresh  string
	expiresAtNow time.Time
}

func (m *mockRefresher) PerformTokenRefresh(ctx context.Context, refreshToken string) (*auth.TokenSet, error) {
	m.calls++
	m.lastRefresh = refreshToken
	if m.errToReturn != nil {
		return nil, m.errToReturn
	}
	return &auth.TokenSet{
		AccessToken:  "new-access-token",
		RefreshToken: "new-refresh-token",
		ExpiresIn:    3600,
		ExpiresAt:    m.expiresAtNow.Add(time.Hour).Unix(),
	}, nil
}

func newTestService(storer *mockStorer, refresher *mockRefresher, clock clockwork.Clock) *auth.Service {
	svc := auth.NewService(storer, refresher)
	svc.Clock = clock
	return svc
}

func TestGetAccessToken_WhenTokenIsValid(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC))
	storer := &mockStorer{tokenToReturn: &auth.TokenSet{
		AccessToken:  "valid-access",
		RefreshToken: "valid-refresh",
		ExpiresAt:    clock.Now().Add(301 * time.Second).Unix(),
	}}
	refresher := &mockRefresher{}

	token, err := newTestService(storer, refresher, clock).GetAccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "valid-access", token)
	assert.Zero(t, refresher.calls, "no refresh should happen for a valid token")
	assert.Zero(t, storer.saveCalls, "Save should not be called for a valid token")
}

func TestGetAccessToken_RefreshesInsideSafetyMargin(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC))
	for _, remaining := range []time.Duration{300 * time.Second, 299 * time.Second, 0, -time.Hour} {
		storer := &mockStorer{tokenToReturn: &auth.TokenSet{
			AccessToken:  "old-access",
			RefreshToken: "old-refresh",
			ExpiresAt:    clock.Now().Add(remaining).Unix(),
		}}
		refresher := &mockRefresher{expiresAtNow: clock.Now()}

		token, err := newTestService(storer, refresher, clock).GetAccessToken(context.Background())

		require.NoError(t, err, "remaining=%s", remaining)
		assert.Equal(t, "new-access-token", token)
		assert.Equal(t, 1, refresher.calls, "exactly one refresh expected for remaining=%s", remaining)
		assert.Equal(t, "old-refresh", refresher.lastRefresh)
		assert.Equal(t, 1, storer.saveCalls)
		assert.Equal(t, 1, storer.lockCalls)
	}
}

func TestGetAccessToken_WhenRefreshFails(t *testing.T) {
	clock := clockwork.NewFakeClock()
	storer := &mockStorer{tokenToReturn: &auth.TokenSet{
		AccessToken:  "expired-access",
		RefreshToken: "expired-refresh",
		ExpiresAt:    clock.Now().Add(-time.Hour).Unix(),
	}}
	refreshErr := errors.New("network error")
	refresher := &mockRefresher{errToReturn: refreshErr}

	_, err := newTestService(storer, refresher, clock).GetAccessToken(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, refreshErr)
	assert.Zero(t, storer.saveCalls, "Save should not be called if refresh fails")
}

func TestGetAccessToken_PropagatesLoadError(t *testing.T) {
	loadErr := errors.New("tokens not found")
	storer := &mockStorer{errToReturn: loadErr}

	_, err := newTestService(storer, &mockRefresher{}, clockwork.NewFakeClock()).GetAccessToken(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, loadErr)
}

func TestGetAccessToken_WhenNoTokenStored(t *testing.T) {
	storer := &mockStorer{}

	_, err := newTestService(storer, &mockRefresher{}, clockwork.NewFakeClock()).GetAccessToken(context.Background())

	assert.ErrorIs(t, err, auth.ErrNoTokenSet)
}

func TestGetAccessToken_WithoutRefreshToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	storer := &mockStorer{tokenToReturn: &auth.TokenSet{
		AccessToken: "expired-access",
		ExpiresAt:   clock.Now().Add(-time.Minute).Unix(),
	}}
	refresher := &mockRefresher{}

	_, err := newTestService(storer, refresher, clock).GetAccessToken(context.Background())

	assert.ErrorIs(t, err, auth.ErrNoRefreshToken)
	assert.Zero(t, refresher.calls)
}

func TestForceRefresh_IgnoresExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	storer := &mockStorer{tokenToReturn: &auth.TokenSet{
		AccessToken:  "still-valid",
		RefreshToken: "refresh",
		ExpiresAt:    clock.Now().Add(time.Hour).Unix(),
	}}
	refresher := &mockRefresher{expiresAtNow: clock.Now()}

	token, err := newTestService(storer, refresher, clock).ForceRefresh(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "new-access-token", token)
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, "new-refresh-token", storer.tokenToReturn.RefreshToken)
}
