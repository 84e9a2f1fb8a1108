// Package staging manages scoped temporary directories and content-addressed
// file writes for the ingestion pipeline.
package staging

import (
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/incidentops/geolayers/internal/errs"
)

// ScopedDir is a uniquely named directory tied to one ingestion request.
type ScopedDir struct {
	Path string
}

// Join resolves a file name inside the scoped directory.
func (d *ScopedDir) Join(name string) string {
	return filepath.Join(d.Path, name)
}

// Acquire creates a uniquely suffixed directory under baseDir and returns it
// together with a cleanup function. The caller defers cleanup so the
// directory is removed on every exit path; cleanup is recursive and safe to
// call even when the directory has already been removed.
func Acquire(baseDir, prefix string) (*ScopedDir, func(), error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, nil, errs.Tagf(errs.ErrIO, "create staging base %s: %w", baseDir, err)
	}

	dir := filepath.Join(baseDir, prefix+"_"+uuid.New().String())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, nil, errs.Tagf(errs.ErrIO, "create staging dir: %w", err)
	}

	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("Warning: failed to remove staging dir %s: %v", dir, err)
		}
	}
	return &ScopedDir{Path: dir}, cleanup, nil
}
