package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/habedi/booksync/client"
	"github.com/habedi/booksync/config"
	"github.com/habedi/booksync/export"
	"github.com/habedi/booksync/pkg/clierr"
	"github.com/habedi/booksync/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// qbCmd groups the QuickBooks Online commands. Run without a subcommand it
// asks which kind of call to make.
func qbCmd() *cobra.Command {
	var out outputOptions

	cmd := &cobra.Command{
		Use:   "qb",
		Short: "Query QuickBooks Online and export the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println("QuickBooks API Options:")
			cmd.Println("1. Run Query (SQL-like queries)")
			cmd.Println("2. Complete Endpoint (Full URL path)")
			choice, err := promptForInput(cmd, "Select option (1-2)", "")
			if err != nil {
				return err
			}
			switch choice {
			case "1":
				return runQBQuery(cmd, &out, "", "", false, 0, 0)
			case "2":
				return runQBEndpoint(cmd, &out, "", "", "")
			}
			return clierr.New(clierr.Validation, fmt.Sprintf("invalid choice %q", choice), nil)
		},
	}
	out.addFlags(cmd)

	cmd.AddCommand(qbQueryCmd(), qbEndpointCmd())
	return cmd
}

func qbQueryCmd() *cobra.Command {
	var (
		out      outputOptions
		sql      string
		method   string
		all      bool
		pageSize int
		maxPages int
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a SQL-like query against the QuickBooks query endpoint",
		Example: `  booksync qb query --sql "SELECT * FROM Customer"
  booksync qb query --sql "SELECT * FROM Invoice WHERE TotalAmt > '100'" --all --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQBQuery(cmd, &out, sql, method, all, pageSize, maxPages)
		},
	}

	cmd.Flags().StringVarP(&sql, "sql", "q", "", "Query to run; prompted for when empty")
	cmd.Flags().StringVarP(&method, "method", "m", "", "HTTP method [GET, POST]; prompted for when empty")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Page through every result with STARTPOSITION/MAXRESULTS")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Records per page with --all (defaults to QB_PAGE_SIZE)")
	cmd.Flags().IntVar(&maxPages, "max-pages", client.DefaultMaxIterations, "Stop paging after this many pages with --all")
	out.addFlags(cmd)
	return cmd
}

func runQBQuery(cmd *cobra.Command, out *outputOptions, sql, method string, all bool, pageSize, maxPages int) error {
	if err := out.validate(); err != nil {
		return err
	}
	if err := validation.ValidatePageSize(pageSize); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	var err error
	if !all && method == "" {
		if method, err = promptForInput(cmd, "Enter HTTP method (GET/POST/PUT/DELETE)", "GET"); err != nil {
			return err
		}
	}
	if method != "" {
		if method, err = validation.ValidateMethod(method); err != nil {
			return clierr.New(clierr.Validation, err.Error(), err)
		}
	}
	if sql == "" {
		if sql, err = promptForInput(cmd, "Enter complete SQL query", ""); err != nil {
			return err
		}
	}
	if err := validation.ValidateNonEmptyString("query", sql); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}

	cfg, err := loadConfig(config.QuickBooks)
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer s.close(cmd.Context())
	qb := client.NewQuickBooks(s.fetcher, cfg.RealmID)

	run := exportRun{provider: config.QuickBooks, folder: export.QuickBooksFolder}
	if all {
		if pageSize <= 0 {
			pageSize = cfg.PageSize
		}
		onPage, finish := pageProgress(os.Stderr, "Fetching")
		s.fetcher.OnPage = onPage
		res, err := qb.QueryAll(cmd.Context(), sql, pageSize, maxPages)
		finish()
		if err != nil {
			return toCLIError(err)
		}
		run.entity, run.records, run.pages, run.truncated = res.Endpoint, res.Records, res.Pages, res.Truncated
	} else {
		records, entity, err := qb.Query(cmd.Context(), method, sql)
		if err != nil {
			return toCLIError(err)
		}
		run.entity, run.records, run.pages = entity, records, 1
	}
	run.entity = strings.ToLower(run.entity)

	log.Info().Str("entity", run.entity).Int("records", len(run.records)).Msg("QuickBooks query finished")
	return out.emit(cmd, run)
}

func qbEndpointCmd() *cobra.Command {
	var (
		out      outputOptions
		path     string
		method   string
		bodyFile string
	)

	cmd := &cobra.Command{
		Use:   "endpoint",
		Short: "Call a QuickBooks endpoint by path ({realm_id} is substituted)",
		Example: `  booksync qb endpoint --path "/v3/company/{realm_id}/companyinfo/{realm_id}"
  booksync qb endpoint --path "/v3/company/{realm_id}/reports/ProfitAndLoss"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQBEndpoint(cmd, &out, path, method, bodyFile)
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", "", "Endpoint path or absolute URL; prompted for when empty")
	cmd.Flags().StringVarP(&method, "method", "m", "", "HTTP method [GET, POST, PUT, DELETE]; prompted for when empty")
	cmd.Flags().StringVar(&bodyFile, "body", "", "File with a JSON request body")
	out.addFlags(cmd)
	return cmd
}

func runQBEndpoint(cmd *cobra.Command, out *outputOptions, path, method, bodyFile string) error {
	if err := out.validate(); err != nil {
		return err
	}
	var err error
	if path == "" {
		if path, err = promptForInput(cmd, "Enter complete endpoint", ""); err != nil {
			return err
		}
	}
	if err := validation.ValidateNonEmptyString("endpoint", path); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	if method == "" {
		if method, err = promptForInput(cmd, "Enter HTTP method (GET/POST/PUT/DELETE)", "GET"); err != nil {
			return err
		}
	}
	if method, err = validation.ValidateMethod(method); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	var body []byte
	if bodyFile != "" {
		if body, err = os.ReadFile(bodyFile); err != nil {
			return clierr.New(clierr.Validation, fmt.Sprintf("failed to read request body %s", bodyFile), err)
		}
	}

	cfg, err := loadConfig(config.QuickBooks)
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer s.close(cmd.Context())
	qb := client.NewQuickBooks(s.fetcher, cfg.RealmID)

	records, entity, err := qb.Invoke(cmd.Context(), method, path, body)
	if err != nil {
		return toCLIError(err)
	}
	return out.emit(cmd, exportRun{
		provider: config.QuickBooks,
		folder:   export.QuickBooksFolder,
		entity:   strings.ToLower(entity),
		records:  records,
		pages:    1,
	})
}
