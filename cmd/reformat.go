package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/habedi/booksync/db"
	"github.com/habedi/booksync/pkg/clierr"
	"github.com/habedi/booksync/pkg/hasher"
	"github.com/habedi/booksync/pkg/pool"
	"github.com/habedi/booksync/pkg/reformat"
	"github.com/habedi/booksync/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const reformatProvider = "reformat"

func reformatCmd() *cobra.Command {
	var (
		outDir     string
		tz         string
		source     string
		numThreads int
	)

	cmd := &cobra.Command{
		Use:   "reformat [file.csv]...",
		Short: "Clean up contact CSV exports (column names, source, number validation, local dates)",
		Long: "Renames columns, fills empty cells with \"Not available\", inserts a Source column and a\n" +
			"Contact_Number_Validate column, and converts Updated_Date_U_T_C to the chosen timezone.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateThreadCount(numThreads); err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return clierr.New(clierr.Validation, fmt.Sprintf("unknown timezone %q", tz), err)
			}
			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return clierr.New(clierr.Export, err.Error(), err)
				}
			}
			opts := reformat.Options{Source: source, Location: loc}

			var repo db.ExportRepository
			if gdb := db.GetDB(); gdb != nil {
				repo = db.NewExportRepository(gdb)
			}

			var mu sync.Mutex
			worker := func(ctx context.Context, in string) error {
				now := time.Now()
				outPath, stats, err := reformat.ProcessFile(in, outDir, opts, now)
				if err != nil {
					return err
				}
				// sqlite takes one writer at a time.
				mu.Lock()
				defer mu.Unlock()
				cmd.Printf("%s -> %s (%d rows, %d invalid contact numbers)\n", in, outPath, stats.Rows, stats.Invalid)
				recordReformat(ctx, repo, outPath, stats.Rows, now)
				return nil
			}

			errs := pool.Run(cmd.Context(), args, numThreads, worker)
			for _, e := range errs {
				log.Error().Err(e).Msg("Reformat failed")
				cmd.PrintErrln("Error:", e)
			}
			if len(errs) > 0 {
				return clierr.New(clierr.Export, fmt.Sprintf("%d of %d files failed", len(errs), len(args)), errs[0])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Directory for the reformatted files (defaults to next to each input)")
	cmd.Flags().StringVar(&tz, "tz", reformat.DefaultTimezone, "Timezone for Updated_Date_U_T_C")
	cmd.Flags().StringVar(&source, "source", reformat.DefaultSource, "Value of the inserted Source column")
	cmd.Flags().IntVarP(&numThreads, "threads", "t", 4, "Number of files to process at once [1-20]")
	return cmd
}

func recordReformat(ctx context.Context, repo db.ExportRepository, path string, rows int, now time.Time) {
	if repo == nil {
		return
	}
	sum, err := hasher.GenerateHash(path, hasher.DefaultAlgorithm)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to checksum reformatted file")
		return
	}
	err = repo.Put(ctx, &db.Export{
		Provider:  reformatProvider,
		Endpoint:  "contacts",
		Records:   rows,
		FilePath:  path,
		Format:    "csv",
		Checksum:  hasher.DefaultAlgorithm + ":" + sum,
		CreatedAt: now,
	})
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to record reformatted file in history")
	}
}
