package kmz

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/incidentops/geolayers/internal/errs"
	"github.com/incidentops/geolayers/internal/kml"
)

func writeArchive(t *testing.T, members map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip member %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write zip member %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}

	path := filepath.Join(t.TempDir(), "upload.kmz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func TestExtract(t *testing.T) {
	archive := writeArchive(t, map[string]string{
		"doc.kml":        `<kml><Document><name>overlay</name></Document></kml>`,
		"files/icon.png": "png-bytes",
		"empty.txt":      "",
	})
	dest := filepath.Join(t.TempDir(), "batch")

	entry, err := Extract(archive, dest)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if entry != "doc.kml" {
		t.Fatalf("entry point = %q, want doc.kml", entry)
	}

	data, err := os.ReadFile(filepath.Join(dest, "doc.kml"))
	if err != nil {
		t.Fatalf("read kml member: %v", err)
	}
	if string(data) != `<kml><Document><name>overlay</name></Document></kml>` {
		t.Fatalf("well-formed kml member was modified: %q", data)
	}

	icon, err := os.ReadFile(filepath.Join(dest, "files", "icon.png"))
	if err != nil {
		t.Fatalf("read nested member: %v", err)
	}
	if string(icon) != "png-bytes" {
		t.Fatalf("nested member content = %q", icon)
	}

	if _, err := os.Stat(filepath.Join(dest, "empty.txt")); !os.IsNotExist(err) {
		t.Fatalf("zero-size entry was extracted")
	}
}

func TestExtractRepairsMalformedKML(t *testing.T) {
	malformed := `<?xml version="1.0" encoding="UTF-8"?><Document><name>p</name></Document>`
	archive := writeArchive(t, map[string]string{"map.kml": malformed})
	dest := filepath.Join(t.TempDir(), "batch")

	entry, err := Extract(archive, dest)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, entry))
	if err != nil {
		t.Fatalf("read kml member: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, kml.RootStartTag) || !strings.HasSuffix(out, "</kml>") {
		t.Fatalf("kml member was not repaired: %q", out)
	}
}

func TestExtractNoKMLMember(t *testing.T) {
	archive := writeArchive(t, map[string]string{"readme.txt": "no layers here"})
	dest := filepath.Join(t.TempDir(), "batch")

	_, err := Extract(archive, dest)
	if !errors.Is(err, errs.ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
	if _, serr := os.Stat(dest); !os.IsNotExist(serr) {
		t.Fatalf("failed extraction left destination directory behind")
	}
}

func TestExtractMultipleKMLMembers(t *testing.T) {
	archive := writeArchive(t, map[string]string{
		"a.kml": "<kml/>",
		"b.kml": "<kml/>",
	})
	dest := filepath.Join(t.TempDir(), "batch")

	_, err := Extract(archive, dest)
	if !errors.Is(err, errs.ErrFormat) {
		t.Fatalf("expected format error for ambiguous archive, got %v", err)
	}
	if _, serr := os.Stat(dest); !os.IsNotExist(serr) {
		t.Fatalf("failed extraction left destination directory behind")
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.kmz")
	if err := os.WriteFile(path, []byte("not a zip archive"), 0o644); err != nil {
		t.Fatalf("write corrupt archive: %v", err)
	}
	dest := filepath.Join(t.TempDir(), "batch")

	_, err := Extract(path, dest)
	if !errors.Is(err, errs.ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
}
