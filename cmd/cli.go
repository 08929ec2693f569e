package cmd

import (
	"context"
	"os"

	"github.com/habedi/booksync/db"
	"github.com/habedi/booksync/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func Execute(ctx context.Context) {
	rootCmd := createRootCmd()
	initializeDatabase()

	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")

	err := rootCmd.ExecuteContext(ctx)
	closeDatabase()
	if err != nil {
		log.Error().Err(err).Msg("Command execution failed.")
		os.Exit(clierr.ExitCode(err))
	}
}

func createRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "booksync",
		Short:         "Fetch and export accounting data from QuickBooks Online and Xero",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return clierr.New(clierr.Config, err.Error(), err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading QB_*/XERO_* variables")

	rootCmd.AddCommand(
		qbCmd(),
		xeroCmd(),
		authorizeCmd(),
		historyCmd(),
		reformatCmd(),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd
}

func initializeDatabase() {
	if err := db.InitDB(); err != nil {
		log.Error().Err(err).Msg("Failed to initialize database")
		os.Exit(1)
	}
}

func closeDatabase() {
	if err := db.CloseDB(); err != nil {
		log.Error().Err(err).Msg("Failed to close the database.")
		os.Exit(1)
	}
}
