package cmd

import (
	"os"
	"strconv"

	"github.com/habedi/booksync/client"
	"github.com/habedi/booksync/config"
	"github.com/habedi/booksync/export"
	"github.com/habedi/booksync/pkg/clierr"
	"github.com/habedi/booksync/pkg/validation"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const defaultXeroEndpoint = "Invoices"

func xeroCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xero",
		Short: "Fetch Xero accounting data and export it",
	}
	cmd.AddCommand(xeroFetchCmd(), xeroTenantsCmd())
	return cmd
}

func xeroFetchCmd() *cobra.Command {
	var (
		out      outputOptions
		endpoint string
		params   []string
		tenant   string
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch every page of a Xero endpoint such as Invoices, Contacts or Journals",
		Example: `  booksync xero fetch --endpoint Contacts
  booksync xero fetch --endpoint Invoices --param 'where=Status=="AUTHORISED"'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.validate(); err != nil {
				return err
			}
			if err := validation.ValidatePageSize(pageSize); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			query, err := validation.ParseParams(params)
			if err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			if endpoint == "" {
				cmd.Println("Available Xero endpoints: Journals, Invoices, Contacts, Items, Accounts, BankTransactions, etc.")
				if endpoint, err = promptForInput(cmd, "Enter endpoint to fetch", defaultXeroEndpoint); err != nil {
					return err
				}
			}

			cfg, err := loadConfig(config.Xero)
			if err != nil {
				return err
			}
			if tenant != "" {
				cfg.TenantID = tenant
			}
			if pageSize > 0 {
				cfg.PageSize = pageSize
			}
			s, err := newSession(cfg)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			x := newXero(s)
			onPage, finish := pageProgress(os.Stderr, "Fetching "+endpoint)
			s.fetcher.OnPage = onPage
			res, err := x.FetchEndpoint(cmd.Context(), endpoint, query)
			finish()
			if err != nil {
				return toCLIError(err)
			}
			return out.emit(cmd, exportRun{
				provider:  config.Xero,
				folder:    export.XeroFolder,
				entity:    res.Endpoint,
				records:   res.Records,
				pages:     res.Pages,
				truncated: res.Truncated,
			})
		},
	}

	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "Endpoint to fetch; prompted for when empty (default "+defaultXeroEndpoint+")")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Extra query parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID (overrides XERO_TENANT_ID)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Records per page (defaults to XERO_PAGE_SIZE)")
	out.addFlags(cmd)
	return cmd
}

func xeroTenantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tenants",
		Short: "List the Xero organisations connected to the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config.Xero)
			if err != nil {
				return err
			}
			s, err := newSession(cfg)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			conns, err := newXero(s).Connections(cmd.Context())
			if err != nil {
				return toCLIError(err)
			}
			if len(conns) == 0 {
				return toCLIError(client.ErrNoConnections)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"#", "Tenant ID", "Name", "Type"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAutoWrapText(false)
			for i, c := range conns {
				table.Append([]string{strconv.Itoa(i + 1), c.TenantID, c.TenantName, c.TenantType})
			}
			table.Render()
			return nil
		},
	}
}

func newXero(s *session) *client.Xero {
	x := client.NewXero(s.fetcher, s.cfg.TenantID)
	x.ConnectionsURL = s.cfg.ConnectionsURL
	x.PageSize = s.cfg.PageSize
	return x
}
