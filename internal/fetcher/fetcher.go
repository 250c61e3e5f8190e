// Package fetcher downloads the input datasets of a run over HTTP(S) or
// FTP and unpacks ZIP archives.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Fetcher downloads one URL to a local file.
type Fetcher interface {
	// DownloadToFile fetches url into path and returns the bytes written.
	// path is only replaced once the download completes.
	DownloadToFile(ctx context.Context, url, path string) (int64, error)
}

// Mux dispatches downloads by URL scheme.
type Mux struct {
	HTTP Fetcher
	FTP  Fetcher
}

// DownloadToFile implements Fetcher.
func (m *Mux) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, eris.Wrapf(err, "fetch: parse url %q", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		if m.HTTP != nil {
			return m.HTTP.DownloadToFile(ctx, rawURL, path)
		}
	case "ftp":
		if m.FTP != nil {
			return m.FTP.DownloadToFile(ctx, rawURL, path)
		}
	}
	return 0, eris.Errorf("fetch: unsupported url scheme %q", u.Scheme)
}

// writeAtomic streams r into a temp file next to path and renames it into
// place on success. commit, when non-nil, runs between the copy and the
// rename; its error discards the download.
func writeAtomic(path string, r io.Reader, commit func() error) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, eris.Wrapf(err, "fetch: create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".part-*")
	if err != nil {
		return 0, eris.Wrap(err, "fetch: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return n, eris.Wrap(err, "fetch: write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "fetch: close temp file")
	}
	if commit != nil {
		if err := commit(); err != nil {
			return n, err
		}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, eris.Wrapf(err, "fetch: rename to %s", path)
	}
	return n, nil
}
