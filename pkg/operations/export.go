package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/habedi/booksync/db"
	"github.com/habedi/booksync/export"
	"github.com/habedi/booksync/pkg/hasher"
	"github.com/rs/zerolog/log"
)

// ExportParams describes one record set to be written to disk.
type ExportParams struct {
	Provider  string
	Entity    string
	Records   []map[string]any
	Pages     int
	Truncated bool
	Format    string // csv or json
	Dir       string
	HashAlgo  string
	Now       time.Time
}

// ExportResult is what was written and, when a repository was given, recorded.
type ExportResult struct {
	Path     string
	Checksum string
	Table    *export.Table
	History  *db.Export
}

// ExportRecords writes the records as CSV or JSON under Dir, checksums the
// file, and records it in repo when repo is not nil. Nothing is written for an
// empty record set.
func ExportRecords(ctx context.Context, repo db.ExportRepository, p ExportParams) (*ExportResult, error) {
	table := export.BuildTable(p.Records)
	res := &ExportResult{Table: table}
	if len(p.Records) == 0 {
		log.Info().Str("entity", p.Entity).Msg("No records to export")
		return res, nil
	}

	format := strings.ToLower(p.Format)
	if format == "" {
		format = "csv"
	}
	algo := p.HashAlgo
	if algo == "" {
		algo = hasher.DefaultAlgorithm
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	path := filepath.Join(p.Dir, export.FileName(p.Entity, now, format))
	if err := writeFile(path, format, table, p.Records); err != nil {
		return nil, err
	}
	res.Path = path

	sum, err := hasher.GenerateHash(path, algo)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum %s: %w", path, err)
	}
	res.Checksum = sum
	log.Info().Str("path", path).Int("records", len(p.Records)).Str(algo, sum).Msg("Export written")

	if repo == nil {
		return res, nil
	}
	entry := &db.Export{
		Provider:  p.Provider,
		Endpoint:  p.Entity,
		Records:   len(p.Records),
		Pages:     p.Pages,
		Truncated: p.Truncated,
		FilePath:  path,
		Format:    format,
		Checksum:  algo + ":" + sum,
		CreatedAt: now,
	}
	if err := repo.Put(ctx, entry); err != nil {
		// The file is already on disk; a history failure is not fatal.
		log.Warn().Err(err).Str("path", path).Msg("Failed to record export in history")
		return res, nil
	}
	res.History = entry
	return res, nil
}

func writeFile(path, format string, table *export.Table, records []map[string]any) (err error) {
	if format != "csv" && format != "json" {
		return fmt.Errorf("unsupported export format: %s", format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	switch format {
	case "csv":
		err = export.WriteCSV(f, table)
	case "json":
		err = export.WriteJSON(f, records)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
