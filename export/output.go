package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	OutputDirEnv = "BOOKSYNC_OUTPUT_DIR"

	QuickBooksFolder = "QB_CSV_Files"
	XeroFolder       = "Xero_Data"

	timestampLayout = "20060102_150405"
)

// cloudFolders are tried in order under the home directory.
var cloudFolders = []string{
	"OneDrive",
	filepath.Join("Library", "CloudStorage", "OneDrive-Personal"),
}

// ResolveOutputDir picks the base directory (the override, else the first
// OneDrive folder that exists, else the working directory) and creates sub in it.
func ResolveOutputDir(override, sub string) (string, error) {
	base := override
	if base == "" {
		base = "."
		if home, err := os.UserHomeDir(); err == nil {
			for _, c := range cloudFolders {
				candidate := filepath.Join(home, c)
				if info, err := os.Stat(candidate); err == nil && info.IsDir() {
					base = candidate
					break
				}
			}
		}
		if base == "." {
			log.Warn().Msg("OneDrive not found, saving to the current directory")
		}
	}

	dir := filepath.Join(base, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return dir, nil
}

// FileName returns <entity>_<YYYYmmdd_HHMMSS>.<ext>.
func FileName(entity string, now time.Time, ext string) string {
	entity = sanitize(entity)
	if entity == "" {
		entity = "export"
	}
	return fmt.Sprintf("%s_%s.%s", entity, now.Format(timestampLayout), strings.TrimPrefix(ext, "."))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
}
