// Package kmz unpacks KMZ containers: a zip archive holding one KML document
// plus auxiliary resources such as icons.
package kmz

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/incidentops/geolayers/internal/errs"
	"github.com/incidentops/geolayers/internal/kml"
)

// Extract unpacks the archive at archivePath into destDir, creating it and
// any nested entry directories as needed. The single .kml member (matched
// case-insensitively) is routed through the KML repair filter; every other
// entry is copied verbatim and zero-size entries are skipped. Returns the
// KML member's path relative to destDir.
//
// On any failure the destination directory is removed entirely, so a partial
// archive is never left behind.
func Extract(archivePath, destDir string) (string, error) {
	entryPoint, err := extract(archivePath, destDir)
	if err != nil {
		os.RemoveAll(destDir)
		return "", errs.Tagf(errs.ErrFormat, "extract %s: %w", filepath.Base(archivePath), err)
	}
	return entryPoint, nil
}

func extract(archivePath, destDir string) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	root := filepath.Clean(destDir)
	entryPoint := ""
	for _, f := range zr.File {
		if f.UncompressedSize64 == 0 {
			continue
		}

		rel := filepath.FromSlash(f.Name)
		out := filepath.Join(root, rel)
		if !strings.HasPrefix(out, root+string(os.PathSeparator)) {
			return "", fmt.Errorf("entry %q escapes archive root", f.Name)
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return "", err
		}

		isKML := strings.HasSuffix(strings.ToLower(f.Name), ".kml")
		if isKML {
			if entryPoint != "" {
				return "", fmt.Errorf("multiple .kml members (%s, %s)", entryPoint, rel)
			}
			entryPoint = rel
		}

		if err := writeEntry(f, out, isKML); err != nil {
			return "", err
		}
	}

	if entryPoint == "" {
		return "", fmt.Errorf("no .kml member found")
	}
	return entryPoint, nil
}

func writeEntry(f *zip.File, out string, repair bool) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	w, err := os.Create(out)
	if err != nil {
		return err
	}

	if repair {
		err = kml.Repair(w, rc)
	} else {
		_, err = io.Copy(w, rc)
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}
