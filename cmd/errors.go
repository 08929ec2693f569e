package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/habedi/booksync/auth"
	"github.com/habedi/booksync/client"
	"github.com/habedi/booksync/config"
	"github.com/habedi/booksync/pkg/clierr"
	"github.com/habedi/booksync/tokenstore"
)

// toCLIError classifies domain errors so the process exits with a code that
// says what went wrong.
func toCLIError(err error) error {
	if err == nil {
		return nil
	}
	var (
		ce         *clierr.Error
		cfgErr     *config.ConfigError
		corrupt    *tokenstore.CorruptDataError
		refreshErr *client.AuthRefreshError
		authErr    *client.AuthError
		invalidErr *client.InvalidRequestError
		retriesErr *client.MaxRetriesExceededError
		httpErr    *client.HTTPError
	)
	switch {
	case errors.As(err, &ce):
		return err
	case errors.As(err, &cfgErr):
		return clierr.New(clierr.Config, cfgErr.Error(), err)
	case errors.Is(err, tokenstore.ErrNotFound), errors.Is(err, auth.ErrNoTokenSet):
		return clierr.New(clierr.Auth, "no stored tokens; run 'booksync authorize' first", err)
	case errors.Is(err, auth.ErrNoRefreshToken):
		return clierr.New(clierr.Auth, err.Error(), err)
	case errors.As(err, &corrupt):
		return clierr.New(clierr.Auth, fmt.Sprintf("token file %s is corrupt; run 'booksync authorize' again", corrupt.Path), err)
	case errors.As(err, &refreshErr):
		return clierr.New(clierr.Auth, fmt.Sprintf("token refresh rejected (HTTP %d); run 'booksync authorize' again", refreshErr.Status), err)
	case errors.As(err, &authErr):
		return clierr.New(clierr.Auth, "request unauthorized after refreshing the token", err)
	case errors.Is(err, client.ErrStateMismatch):
		return clierr.New(clierr.Auth, err.Error(), err)
	case errors.As(err, &invalidErr):
		return clierr.New(clierr.Validation, fmt.Sprintf("request rejected by the provider: %s", invalidErr.Body), err)
	case errors.Is(err, client.ErrNoConnections):
		return clierr.New(clierr.NotFound, "no Xero organisations are connected to this token", err)
	case errors.As(err, &retriesErr), errors.As(err, &httpErr):
		return clierr.New(clierr.Fetch, err.Error(), err)
	case errors.Is(err, context.Canceled):
		return clierr.New(clierr.Internal, "interrupted", err)
	case errors.Is(err, context.DeadlineExceeded):
		return clierr.New(clierr.Fetch, "timed out", err)
	}
	return clierr.New(clierr.Internal, err.Error(), err)
}
