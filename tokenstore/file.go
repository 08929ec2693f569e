// Package tokenstore persists a provider's OAuth token set in a single JSON file
// readable only by the owning user.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/habedi/booksync/auth"
	"github.com/rs/zerolog/log"
)

const (
	fileMode = 0o600
	dirMode  = 0o700

	lockRetryDelay = 100 * time.Millisecond
	lockTimeout    = 30 * time.Second
)

// ErrNotFound is matched by errors.Is when the credential file does not exist.
var ErrNotFound = errors.New("token file not found")

// NotFoundError reports a missing credential file.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("token file not found at %s; run 'booksync authorize' to create it", e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// CorruptDataError reports a credential file that does not hold valid JSON.
type CorruptDataError struct {
	Path string
	Err  error
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("invalid JSON in token file %s: %v", e.Path, e.Err)
}

func (e *CorruptDataError) Unwrap() error { return e.Err }

// FileStore implements auth.TokenStorer and auth.TokenLocker on top of one JSON file.
type FileStore struct {
	Path string
}

// New creates a FileStore for the given path.
func New(path string) *FileStore {
	return &FileStore{Path: path}
}

// DefaultPath returns ~/<dirName>/tokens.json, e.g. ~/.xero_app/tokens.json.
func DefaultPath(dirName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, dirName, "tokens.json"), nil
}

// Load reads the token set from disk.
func (s *FileStore) Load() (*auth.TokenSet, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: s.Path}
		}
		return nil, fmt.Errorf("failed to read token file %s: %w", s.Path, err)
	}

	var tokens auth.TokenSet
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, &CorruptDataError{Path: s.Path, Err: err}
	}
	return &tokens, nil
}

// Save replaces the whole token file. The content is written to a temporary
// file in the same directory and renamed into place, so readers never see a
// half-written record.
func (s *FileStore) Save(tokens *auth.TokenSet) error {
	if tokens == nil {
		return errors.New("refusing to save an empty token set")
	}
	if err := s.ensureDir(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token set: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".tokens-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary token file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to restrict token file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("failed to replace token file %s: %w", s.Path, err)
	}
	if err := os.Chmod(s.Path, fileMode); err != nil {
		return fmt.Errorf("failed to restrict token file permissions: %w", err)
	}

	log.Info().Str("path", s.Path).Msg("Tokens saved securely")
	return nil
}

// Lock takes an advisory lock on <path>.lock so that concurrent invocations
// do not refresh the same token set at once.
func (s *FileStore) Lock(ctx context.Context) (func(), error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	fl := flock.New(s.Path + ".lock")
	locked, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("timed out waiting for lock on %s", fl.Path())
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			log.Warn().Err(err).Str("path", fl.Path()).Msg("Failed to release token file lock")
		}
	}, nil
}

// ensureDir creates the parent directory with owner-only access when it is missing.
// Existing directories are left alone.
func (s *FileStore) ensureDir() error {
	dir := filepath.Dir(s.Path)
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat token directory %s: %w", dir, err)
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("failed to create token directory %s: %w", dir, err)
	}
	if err := os.Chmod(dir, dirMode); err != nil {
		return fmt.Errorf("failed to restrict token directory permissions: %w", err)
	}
	return nil
}
