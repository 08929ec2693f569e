package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/habedi/booksync/db"
	"github.com/habedi/booksync/pkg/clierr"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the record of written export files",
	}
	cmd.AddCommand(historyListCmd(), historyClearCmd())
	return cmd
}

func historyRepo() (db.ExportRepository, error) {
	gdb := db.GetDB()
	if gdb == nil {
		return nil, clierr.New(clierr.Internal, "history database is not open", nil)
	}
	return db.NewExportRepository(gdb), nil
}

func historyListCmd() *cobra.Command {
	var (
		provider string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := historyRepo()
			if err != nil {
				return err
			}
			exports, err := repo.List(cmd.Context(), provider, limit)
			if err != nil {
				return clierr.New(clierr.Internal, "failed to read export history", err)
			}
			if len(exports) == 0 {
				cmd.Println("No exports recorded yet.")
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"When", "Provider", "Entity", "Records", "File", "Checksum"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAutoWrapText(false)
			table.SetRowLine(false)
			for _, e := range exports {
				records := strconv.Itoa(e.Records)
				if e.Truncated {
					records += " (partial)"
				}
				table.Append([]string{
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					e.Provider,
					e.Endpoint,
					records,
					e.FilePath,
					shortChecksum(e.Checksum),
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Only show exports from this provider [quickbooks, xero, reformat]")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Number of exports to show (0 for all)")
	return cmd
}

func historyClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every entry from the export history (files are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				answer, err := promptForInput(cmd, "Clear the export history? [y/N]", "n")
				if err != nil {
					return err
				}
				if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
					cmd.Println("Aborted.")
					return nil
				}
			}
			repo, err := historyRepo()
			if err != nil {
				return err
			}
			if err := repo.Clear(cmd.Context()); err != nil {
				return clierr.New(clierr.Internal, "failed to clear export history", err)
			}
			log.Info().Msg("Export history cleared")
			cmd.Println("Export history cleared.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// shortChecksum keeps the algorithm prefix and the first 12 hex digits.
func shortChecksum(sum string) string {
	algo, hex, ok := strings.Cut(sum, ":")
	if !ok {
		algo, hex = "", sum
	}
	if len(hex) > 12 {
		hex = hex[:12]
	}
	if algo == "" {
		return hex
	}
	return fmt.Sprintf("%s:%s", algo, hex)
}
