// Package scratch stores comparison content in a shared scratch
// directory. Artifact names follow a documented convention so that the
// scheduled per-job cleanup and the teardown sweep agree on ownership:
//
//	bridge-diff-<stem>-<token>.<side><ext>
//
// where <stem> is the sanitized base name of the logical file, <token> is
// a per-job uniqueness token, <side> is "orig" or "mod" and <ext> is the
// logical file's extension (kept so the host can syntax-highlight the
// comparison).
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ArtifactPrefix marks every file this store owns. The sweep deletes by
// this prefix and nothing else.
const ArtifactPrefix = "bridge-diff-"

// Artifact sides.
const (
	SideOriginal = "orig"
	SideModified = "mod"
)

// invalidNameChars covers path separators and characters invalid in
// Windows filenames.
var invalidNameChars = regexp.MustCompile(`[/\\:*?"<>|]`)

// Store writes and removes scratch artifacts under one directory. It is
// stateless apart from the directory path; concurrent jobs are isolated
// by their tokens, not by locking.
type Store struct {
	dir string
}

// NewStore creates the scratch directory if needed. An empty dir selects
// the default location under the system temp directory.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "bridge-diffs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the scratch directory.
func (s *Store) Dir() string {
	return s.dir
}

// NewToken returns a fresh per-job uniqueness token.
func NewToken() string {
	return uuid.New().String()[:8]
}

// Path returns the artifact path for a logical file, token and side,
// without touching the disk.
func (s *Store) Path(logicalPath, token, side string) string {
	base := filepath.Base(filepath.ToSlash(logicalPath))
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stem = invalidNameChars.ReplaceAllString(stem, "_")
	stem = strings.TrimLeft(stem, "._")
	if stem == "" {
		stem = "file"
	}
	name := fmt.Sprintf("%s%s-%s.%s%s", ArtifactPrefix, stem, token, side, ext)
	return filepath.Join(s.dir, name)
}

// Write stores content for one side of a comparison, overwriting any
// previous content, and returns the artifact path.
func (s *Store) Write(logicalPath, token, side, content string) (string, error) {
	path := s.Path(logicalPath, token, side)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write scratch artifact: %w", err)
	}
	return path, nil
}

// Remove deletes an artifact. Removing a file that is already gone is
// not an error: cleanup is idempotent.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Sweep deletes every remaining artifact matching the naming convention.
// It is the backstop for jobs whose retention timer never fired; failures
// are reported but never fatal.
func (s *Store) Sweep() (removed int, err error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to scan scratch dir: %w", err)
	}

	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), ArtifactPrefix) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			if firstErr == nil {
				firstErr = rmErr
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
