package staging

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/incidentops/geolayers/internal/errs"
)

// Filter transforms a byte stream on its way to durable storage. The filter
// runs before the digest accumulator, so the stored bytes and their digest
// always agree.
type Filter func(dst io.Writer, src io.Reader) error

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	}
	return nil, errs.Tagf(errs.ErrDigest, "unknown digest algorithm %q", algorithm)
}

// WriteContentAddressed streams src into dir, optionally through filter,
// while computing a digest of the bytes actually written. The temporary file
// is then renamed to <hex-digest>[.<ext>], overwriting any file already
// stored under that name. Returns the final path and the raw digest.
func WriteContentAddressed(src io.Reader, dir, ext, algorithm string, filter Filter) (string, []byte, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, errs.Tagf(errs.ErrIO, "create upload dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "upload_")
	if err != nil {
		return "", nil, errs.Tagf(errs.ErrIO, "create temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := io.MultiWriter(tmp, h)
	if filter != nil {
		err = filter(w, src)
	} else {
		_, err = io.Copy(w, src)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return "", nil, errs.Tag(errs.ErrIO, err)
	}

	digest := h.Sum(nil)
	name := hex.EncodeToString(digest)
	if ext != "" {
		name += "." + ext
	}

	// Content-derived name plus atomic rename: no reader ever observes a
	// partially written file at the final path, and a duplicate upload is an
	// idempotent overwrite.
	final := filepath.Join(dir, name)
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", nil, errs.Tagf(errs.ErrIO, "finalize %s: %w", name, err)
	}

	return final, digest, nil
}
