package fetcher

import (
	"archive/zip"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// PrimaryExts are the file kinds a dataset download is reported by, in
// preference order.
var PrimaryExts = []string{".shp", ".tif", ".tiff"}

// Unzip unpacks a dataset archive into destDir and returns the written
// files in archive order. Directory entries and macOS metadata are skipped;
// an entry whose name would land outside destDir fails the whole archive.
func Unzip(archive, destDir string) ([]string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer zr.Close() //nolint:errcheck

	var files []string
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || isArchiveJunk(entry.Name) {
			continue
		}
		if !filepath.IsLocal(entry.Name) {
			return files, eris.Errorf("zip: illegal path %q in %s", entry.Name, filepath.Base(archive))
		}
		dst := filepath.Join(destDir, filepath.FromSlash(entry.Name))
		if err := unzipEntry(entry, dst); err != nil {
			return files, err
		}
		files = append(files, dst)
	}
	return files, nil
}

func unzipEntry(entry *zip.File, dst string) error {
	src, err := entry.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open entry %s", entry.Name)
	}
	defer src.Close() //nolint:errcheck
	if _, err := writeAtomic(dst, src, nil); err != nil {
		return eris.Wrapf(err, "zip: extract %s", entry.Name)
	}
	return nil
}

// isArchiveJunk matches resource forks and Finder files that archives built
// on macOS carry alongside the data.
func isArchiveJunk(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	base := path.Base(name)
	return base == ".DS_Store" || strings.HasPrefix(base, "._")
}

// FindPrimary returns the first path whose extension is in PrimaryExts,
// honouring their order, or "".
func FindPrimary(paths []string) string {
	for _, ext := range PrimaryExts {
		for _, p := range paths {
			if strings.EqualFold(filepath.Ext(p), ext) {
				return p
			}
		}
	}
	return ""
}

// listFiles returns every regular file under dir, sorted.
func listFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && !isArchiveJunk(filepath.ToSlash(p)) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "zip: list %s", dir)
	}
	sort.Strings(out)
	return out, nil
}
