package cmd

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/habedi/booksync/client"
	"github.com/habedi/booksync/config"
	"github.com/habedi/booksync/pkg/clierr"
	"github.com/habedi/booksync/tokenstore"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// authorizeCmd runs the authorization-code flow once and writes the token file
// that every other command refreshes from.
func authorizeCmd() *cobra.Command {
	var (
		code      string
		headless  bool
		noBrowser bool
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "authorize [qb|xero]",
		Short: "Authorize booksync with QuickBooks or Xero and store the tokens",
		Long: "Opens the provider consent page in Chrome and captures the authorization code from the redirect.\n" +
			"With --no-browser the consent URL is printed and the redirect URL is read from the terminal;\n" +
			"with --code an already obtained code (or redirect URL) is exchanged directly.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"qb", "quickbooks", "xero"},
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := config.ParseProvider(args[0])
			if err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			cfg, err := config.LoadForAuthorize(provider, lookupEnv)
			if err != nil {
				return toCLIError(err)
			}

			authz := newAuthorizer(cfg)
			authz.Timeout = timeout
			state := uuid.NewString()

			var redirected string
			switch {
			case code != "":
				if strings.Contains(code, "code=") {
					redirected = code
					code, err = client.ExtractAuthCode(code, "")
				}
			case noBrowser:
				cmd.Println("Open this URL in a browser and approve access:")
				cmd.Println(authz.AuthCodeURL(state))
				redirected, err = promptForInput(cmd, "Paste the full URL you were redirected to", "")
				if err == nil {
					code, err = client.ExtractAuthCode(redirected, state)
				}
			default:
				code, err = authz.CaptureCode(cmd.Context(), state, headless)
			}
			if err != nil {
				return toCLIError(err)
			}

			tokens, err := authz.Exchange(cmd.Context(), code)
			if err != nil {
				return toCLIError(err)
			}

			store := tokenstore.New(cfg.TokenFile)
			unlock, err := store.Lock(cmd.Context())
			if err != nil {
				return toCLIError(err)
			}
			err = store.Save(tokens)
			unlock()
			if err != nil {
				return clierr.New(clierr.Internal, "failed to save tokens", err)
			}

			log.Info().Str("provider", string(provider)).Str("path", cfg.TokenFile).Msg("Authorization complete")
			cmd.Printf("Authorization was successful. Tokens saved to %s\n", cfg.TokenFile)
			if realm := realmFromRedirect(redirected); provider == config.QuickBooks && realm != "" {
				cmd.Printf("QuickBooks company (realm) ID: %s; set QB_REALM_ID to use it.\n", realm)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code or full redirect URL to exchange without opening a browser")
	cmd.Flags().BoolVarP(&headless, "headless", "n", false, "Run Chrome without a window? [true, false]")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the consent URL and read the redirect URL from the terminal")
	cmd.Flags().DurationVar(&timeout, "timeout", 4*time.Minute, "How long to wait for consent in the browser")
	return cmd
}

func newAuthorizer(cfg *config.Config) *client.Authorizer {
	scopes := client.XeroScopes
	if cfg.Provider == config.QuickBooks {
		scopes = client.QuickBooksScopes
	}
	authz := client.NewAuthorizer(cfg.ClientID, cfg.ClientSecret, cfg.AuthURL, cfg.TokenURL, cfg.RedirectURL, scopes)
	authz.HTTPClient = client.NewHTTPClient(cfg.HTTPTimeout)
	return authz
}

// realmFromRedirect returns the realmId QuickBooks appends to its redirect.
func realmFromRedirect(redirected string) string {
	if redirected == "" {
		return ""
	}
	u, err := url.Parse(redirected)
	if err != nil {
		return ""
	}
	return u.Query().Get("realmId")
}
