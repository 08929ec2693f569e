// Package config builds the per-provider settings once at startup from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/habedi/booksync/client"
	"github.com/habedi/booksync/tokenstore"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Provider string

const (
	QuickBooks Provider = "quickbooks"
	Xero       Provider = "xero"
)

const (
	DefaultRedirectURL = "http://localhost:8080/callback"

	defaultQuickBooksCallsPerMinute = 500
	defaultXeroCallsPerMinute       = 60

	quickBooksTokenDir = ".quickbooks_app"
	xeroTokenDir       = ".xero_app"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Config holds everything a provider client needs. It is passed by pointer to
// every component; nothing reads the environment after it is built.
type Config struct {
	Provider     Provider
	ClientID     string
	ClientSecret string

	// QuickBooks only.
	RealmID     string
	Environment string

	// Xero only. TenantID may be empty, in which case it is discovered.
	TenantID       string
	ConnectionsURL string

	BaseURL     string
	TokenURL    string
	AuthURL     string
	RedirectURL string
	TokenFile   string

	CallsPerMinute int
	HTTPTimeout    time.Duration
	MaxRetries     int
	PageSize       int

	// Optional tokens used to create the token file when it does not exist yet.
	SeedAccessToken  string
	SeedRefreshToken string
}

// ConfigError lists every missing or malformed variable at once.
type ConfigError struct {
	Missing []string
	Invalid map[string]string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required environment variables: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		keys := make([]string, 0, len(e.Invalid))
		for k := range e.Invalid {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var inv []string
		for _, k := range keys {
			inv = append(inv, fmt.Sprintf("%s (%s)", k, e.Invalid[k]))
		}
		parts = append(parts, "invalid environment variables: "+strings.Join(inv, ", "))
	}
	return strings.Join(parts, "; ")
}

func (e *ConfigError) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

func (e *ConfigError) invalid(key, reason string) {
	if e.Invalid == nil {
		e.Invalid = map[string]string{}
	}
	e.Invalid[key] = reason
}

// LoadDotEnv loads the given .env files (".env" when none are given) without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
		log.Debug().Str("path", p).Msg("Loaded environment file")
	}
	return nil
}

type reader struct {
	lookup LookupFunc
	errs   *ConfigError
	// optional keys are read but not reported when missing.
	optional map[string]bool
}

func (r reader) get(key string) string {
	v, _ := r.lookup(key)
	return strings.TrimSpace(v)
}

func (r reader) required(key string) string {
	v := r.get(key)
	if v == "" && !r.optional[key] {
		r.errs.Missing = append(r.errs.Missing, key)
	}
	return v
}

func (r reader) str(key, def string) string {
	if v := r.get(key); v != "" {
		return v
	}
	return def
}

func (r reader) positiveInt(key string, def int) int {
	v := r.get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.errs.invalid(key, "must be a positive integer")
		return def
	}
	return n
}

// pageSize is positiveInt with an upper bound the provider enforces.
func (r reader) pageSize(key string, def, max int) int {
	n := r.positiveInt(key, def)
	if n > max {
		r.errs.invalid(key, fmt.Sprintf("must not exceed %d", max))
		return def
	}
	return n
}

func (r reader) duration(key string, def time.Duration) time.Duration {
	v := r.get(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		if secs, convErr := strconv.Atoi(v); convErr == nil {
			d, err = time.Duration(secs)*time.Second, nil
		}
	}
	if err != nil || d <= 0 {
		r.errs.invalid(key, "must be a positive duration such as 30s")
		return def
	}
	return d
}

func (r reader) tokenFile(key, dir string) string {
	if v := r.get(key); v != "" {
		return v
	}
	p, err := tokenstore.DefaultPath(dir)
	if err != nil {
		r.errs.invalid(key, err.Error())
		return ""
	}
	return p
}

// LoadQuickBooks reads the QB_* variables.
func LoadQuickBooks(lookup LookupFunc) (*Config, error) {
	return loadQuickBooks(lookup, nil)
}

func loadQuickBooks(lookup LookupFunc, optional map[string]bool) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	errs := &ConfigError{}
	r := reader{lookup: lookup, errs: errs, optional: optional}

	cfg := &Config{
		Provider:     QuickBooks,
		ClientID:     r.required("QB_CLIENT_ID"),
		ClientSecret: r.required("QB_CLIENT_SECRET"),
		RealmID:      r.required("QB_REALM_ID"),
		Environment:  strings.ToLower(r.str("QB_ENV", "sandbox")),
		TokenURL:     r.str("QB_TOKEN_URL", client.QuickBooksTokenURL),
		AuthURL:      r.str("QB_AUTH_URL", client.QuickBooksAuthURL),
		RedirectURL:  r.str("QB_REDIRECT_URI", DefaultRedirectURL),
		TokenFile:    r.tokenFile("QB_TOKEN_FILE", quickBooksTokenDir),
		HTTPTimeout:  r.duration("QB_HTTP_TIMEOUT", client.DefaultTimeout),
		MaxRetries:   r.positiveInt("QB_MAX_RETRIES", client.DefaultMaxRetries),
		PageSize:     r.pageSize("QB_PAGE_SIZE", client.DefaultPageSize, client.QuickBooksMaxResults),
	}
	cfg.CallsPerMinute = r.positiveInt("QB_CALLS_PER_MINUTE", defaultQuickBooksCallsPerMinute)

	switch cfg.Environment {
	case "sandbox":
		cfg.BaseURL = client.QuickBooksSandboxURL
	case "production":
		cfg.BaseURL = client.QuickBooksProductionURL
	default:
		errs.invalid("QB_ENV", "must be sandbox or production")
	}
	cfg.BaseURL = r.str("QB_BASE_URL", cfg.BaseURL)

	if !errs.empty() {
		return nil, errs
	}
	return cfg, nil
}

// LoadXero reads the XERO_* variables. A malformed XERO_CALLS_PER_MINUTE falls
// back to 60 instead of failing.
func LoadXero(lookup LookupFunc) (*Config, error) {
	return loadXero(lookup, nil)
}

func loadXero(lookup LookupFunc, optional map[string]bool) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	errs := &ConfigError{}
	r := reader{lookup: lookup, errs: errs, optional: optional}

	cfg := &Config{
		Provider:         Xero,
		ClientID:         r.required("XERO_CLIENT_ID"),
		ClientSecret:     r.required("XERO_CLIENT_SECRET"),
		BaseURL:          r.required("XERO_BASE_URL"),
		TenantID:         r.get("XERO_TENANT_ID"),
		TokenURL:         r.str("XERO_TOKEN_URL", client.XeroTokenURL),
		AuthURL:          r.str("XERO_AUTH_URL", client.XeroAuthURL),
		ConnectionsURL:   r.str("XERO_CONNECTIONS_URL", client.XeroConnectionsURL),
		RedirectURL:      r.str("XERO_REDIRECT_URI", DefaultRedirectURL),
		TokenFile:        r.tokenFile("XERO_TOKEN_FILE", xeroTokenDir),
		HTTPTimeout:      r.duration("XERO_HTTP_TIMEOUT", client.DefaultTimeout),
		MaxRetries:       r.positiveInt("XERO_MAX_RETRIES", client.DefaultMaxRetries),
		PageSize:         r.pageSize("XERO_PAGE_SIZE", client.DefaultPageSize, client.XeroMaxPageSize),
		SeedAccessToken:  r.get("XERO_ACCESS_TOKEN"),
		SeedRefreshToken: r.get("XERO_REFRESH_TOKEN"),
	}

	cfg.CallsPerMinute = defaultXeroCallsPerMinute
	if v := r.get("XERO_CALLS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CallsPerMinute = n
		} else {
			log.Warn().Str("value", v).Int("default", defaultXeroCallsPerMinute).Msg("Invalid XERO_CALLS_PER_MINUTE, using default")
		}
	}

	if !errs.empty() {
		return nil, errs
	}
	return cfg, nil
}

// Load dispatches on provider.
func Load(p Provider, lookup LookupFunc) (*Config, error) {
	switch p {
	case QuickBooks:
		return LoadQuickBooks(lookup)
	case Xero:
		return LoadXero(lookup)
	default:
		return nil, fmt.Errorf("unknown provider %q", p)
	}
}

// LoadForAuthorize is Load without the variables only API calls need
// (QB_REALM_ID, XERO_BASE_URL), since authorization happens before they are known.
func LoadForAuthorize(p Provider, lookup LookupFunc) (*Config, error) {
	switch p {
	case QuickBooks:
		return loadQuickBooks(lookup, map[string]bool{"QB_REALM_ID": true})
	case Xero:
		return loadXero(lookup, map[string]bool{"XERO_BASE_URL": true})
	default:
		return nil, fmt.Errorf("unknown provider %q", p)
	}
}

// ParseProvider accepts the names used on the command line.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "qb", "quickbooks":
		return QuickBooks, nil
	case "xero":
		return Xero, nil
	}
	return "", errors.New("provider must be 'qb' or 'xero'")
}
