package auth

import "context"

// TokenStorer defines the contract for any component that can store and retrieve a token set.
type TokenStorer interface {
	Load() (*TokenSet, error)
	Save(tokens *TokenSet) error
}

// TokenLocker is implemented by storers that can serialise refreshes across processes.
type TokenLocker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// TokenRefresher defines the contract for any component that can perform a token refresh action.
type TokenRefresher interface {
	PerformTokenRefresh(ctx context.Context, refreshToken string) (*TokenSet, error)
}
