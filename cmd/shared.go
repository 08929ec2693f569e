package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/habedi/booksync/auth"
	"github.com/habedi/booksync/client"
	"github.com/habedi/booksync/config"
	"github.com/habedi/booksync/db"
	"github.com/habedi/booksync/export"
	"github.com/habedi/booksync/pkg/clierr"
	"github.com/habedi/booksync/pkg/hasher"
	"github.com/habedi/booksync/pkg/operations"
	"github.com/habedi/booksync/pkg/validation"
	"github.com/habedi/booksync/tokenstore"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// lookupEnv is swapped in tests.
var lookupEnv config.LookupFunc = os.LookupEnv

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	return config.LoadDotEnv(path)
}

func loadConfig(p config.Provider) (*config.Config, error) {
	cfg, err := config.Load(p, lookupEnv)
	if err != nil {
		return nil, toCLIError(err)
	}
	return cfg, nil
}

// session bundles what one provider command needs to talk to the API.
type session struct {
	cfg     *config.Config
	store   *tokenstore.FileStore
	service *auth.Service
	fetcher *client.Fetcher
	limiter *client.RequestLimiter
}

func newSession(cfg *config.Config) (*session, error) {
	store := tokenstore.New(cfg.TokenFile)
	if err := seedTokens(store, cfg, time.Now()); err != nil {
		return nil, toCLIError(err)
	}

	httpClient := client.NewHTTPClient(cfg.HTTPTimeout)
	refresher := client.NewRefresher(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, httpClient)
	service := auth.NewService(store, refresher)

	fetcher := client.NewFetcher(cfg.BaseURL, service, httpClient)
	fetcher.MaxRetries = cfg.MaxRetries

	limiter, err := client.NewRateLimiter(cfg.CallsPerMinute)
	if err != nil {
		return nil, clierr.New(clierr.Internal, err.Error(), err)
	}
	if limiter != nil {
		fetcher.Limiter = limiter
	}

	log.Debug().Str("provider", string(cfg.Provider)).Str("base_url", cfg.BaseURL).
		Int("calls_per_minute", cfg.CallsPerMinute).Str("token_file", cfg.TokenFile).
		Msg("Session ready")
	return &session{cfg: cfg, store: store, service: service, fetcher: fetcher, limiter: limiter}, nil
}

func (s *session) close(ctx context.Context) {
	if err := s.limiter.Close(ctx); err != nil {
		log.Debug().Err(err).Msg("Failed to close rate limiter")
	}
}

// seedTokens writes the token file from the configured seed tokens when it
// does not exist yet. The seeded access token is marked expired so the first
// call refreshes it.
func seedTokens(store *tokenstore.FileStore, cfg *config.Config, now time.Time) error {
	if cfg.SeedRefreshToken == "" && cfg.SeedAccessToken == "" {
		return nil
	}
	_, err := store.Load()
	if err == nil {
		return nil
	}
	if !errors.Is(err, tokenstore.ErrNotFound) {
		return err
	}
	log.Info().Str("path", store.Path).Msg("Creating token file from environment tokens")
	return store.Save(&auth.TokenSet{
		AccessToken:  cfg.SeedAccessToken,
		RefreshToken: cfg.SeedRefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    now.Unix(),
	})
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// pageProgress shows a spinner with the running record count on terminals.
// On anything else it only logs.
func pageProgress(w io.Writer, description string) (onPage func(page, total int), finish func()) {
	if !isTerminal(w) {
		onPage = func(page, total int) {
			log.Debug().Int("page", page).Int("records", total).Msg(description)
		}
		return onPage, func() {}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	onPage = func(page, total int) {
		bar.Describe(fmt.Sprintf("%s page %d, %d records", description, page, total))
		_ = bar.Add(1)
	}
	finish = func() { _ = bar.Finish() }
	return onPage, finish
}

// outputOptions are the flags shared by every command that exports records.
type outputOptions struct {
	format   string
	dir      string
	noTable  bool
	noFile   bool
	limit    int
	hashAlgo string
}

func (o *outputOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, "format", "f", "csv", "Output file format [csv, json]")
	cmd.Flags().StringVarP(&o.dir, "output-dir", "o", "", "Base output directory (defaults to $"+export.OutputDirEnv+", then OneDrive, then the current directory)")
	cmd.Flags().BoolVar(&o.noTable, "no-table", false, "Do not print the records as a table")
	cmd.Flags().BoolVar(&o.noFile, "no-file", false, "Do not write an output file")
	cmd.Flags().IntVar(&o.limit, "limit", export.DisplayLimit, "Maximum rows to print in the table (0 for all)")
	cmd.Flags().StringVar(&o.hashAlgo, "hash", hasher.DefaultAlgorithm, "Checksum algorithm for written files [md5, sha1, sha256, sha512]")
}

func (o *outputOptions) validate() error {
	if err := validation.ValidateFormat(o.format); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	if !hasher.IsValidHashAlgo(o.hashAlgo) {
		return clierr.New(clierr.Validation, fmt.Sprintf("unsupported hash algorithm: %s", o.hashAlgo), nil)
	}
	return nil
}

// exportRun describes the records one command fetched.
type exportRun struct {
	provider  config.Provider
	folder    string
	entity    string
	records   []client.Record
	pages     int
	truncated bool
}

// emit prints the records and writes them to disk, recording the file in the
// export history.
func (o *outputOptions) emit(cmd *cobra.Command, run exportRun) error {
	out := cmd.OutOrStdout()
	if len(run.records) == 0 {
		fmt.Fprintln(out, "No records returned.")
		return nil
	}
	if run.truncated {
		fmt.Fprintf(out, "Warning: stopped after %d pages; the result is incomplete.\n", run.pages)
	}

	var table *export.Table
	if !o.noTable {
		table = export.BuildTable(run.records)
		export.RenderTable(out, table, o.limit)
	}
	if o.noFile {
		return nil
	}

	base := o.dir
	if base == "" {
		base = os.Getenv(export.OutputDirEnv)
	}
	dir, err := export.ResolveOutputDir(base, run.folder)
	if err != nil {
		return clierr.New(clierr.Export, err.Error(), err)
	}

	var repo db.ExportRepository
	if gdb := db.GetDB(); gdb != nil {
		repo = db.NewExportRepository(gdb)
	}
	res, err := operations.ExportRecords(cmd.Context(), repo, operations.ExportParams{
		Provider:  string(run.provider),
		Entity:    run.entity,
		Records:   run.records,
		Pages:     run.pages,
		Truncated: run.truncated,
		Format:    o.format,
		Dir:       dir,
		HashAlgo:  o.hashAlgo,
	})
	if err != nil {
		return clierr.New(clierr.Export, "failed to write export file", err)
	}
	fmt.Fprintf(out, "Saved %d records to %s\n", len(run.records), res.Path)
	return nil
}

// promptForInput reads one trimmed line, returning def for an empty answer.
func promptForInput(cmd *cobra.Command, prompt, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ", prompt)
	}
	line, err := readLine(cmd.InOrStdin())
	if err != nil {
		return "", clierr.New(clierr.Internal, "failed to read input", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// readLine reads up to and excluding the next newline without buffering past
// it, so several prompts can share one reader.
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return sb.String(), nil
			}
			sb.WriteByte(buf[0])
		}
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
	}
}
