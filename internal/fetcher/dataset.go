package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/wildfire-exposure/internal/config"
)

// Result reports one fetched dataset.
type Result struct {
	Name string
	// Path is the downloaded file.
	Path    string
	Bytes   int64
	Skipped bool
	// Extracted lists the archive contents when Path is a ZIP.
	Extracted []string
	// Primary is the first shapefile or GeoTIFF of the dataset.
	Primary string
}

// FetchAll downloads every dataset into dataDir, at most concurrency at a
// time. Files already present are not downloaded again. ZIP archives are
// extracted into a directory named after the archive.
func FetchAll(ctx context.Context, f Fetcher, datasets []config.DatasetConfig, dataDir string, concurrency int) ([]Result, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "fetch: create %s", dataDir)
	}

	results := make([]Result, len(datasets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, ds := range datasets {
		g.Go(func() error {
			res, err := fetchOne(gctx, f, ds, dataDir)
			if err != nil {
				return eris.Wrapf(err, "fetch: dataset %s", ds.Name)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func fetchOne(ctx context.Context, f Fetcher, ds config.DatasetConfig, dataDir string) (Result, error) {
	name, err := fileName(ds)
	if err != nil {
		return Result{}, err
	}
	res := Result{Name: ds.Name, Path: filepath.Join(dataDir, name)}
	log := zap.L().With(zap.String("component", "fetch"), zap.String("dataset", ds.Name))

	if fi, err := os.Stat(res.Path); err == nil && fi.Size() > 0 {
		res.Skipped = true
		res.Bytes = fi.Size()
		log.Info("fetch: already present, skipping", zap.String("path", res.Path))
	} else {
		n, err := f.DownloadToFile(ctx, ds.URL, res.Path)
		if err != nil {
			return res, err
		}
		res.Bytes = n
		log.Info("fetch: downloaded", zap.String("path", res.Path), zap.Int64("bytes", n))
	}

	if !strings.EqualFold(filepath.Ext(res.Path), ".zip") {
		res.Primary = FindPrimary([]string{res.Path})
		return res, nil
	}

	dest := strings.TrimSuffix(res.Path, filepath.Ext(res.Path))
	if _, err := os.Stat(dest); err == nil {
		if res.Extracted, err = listFiles(dest); err != nil {
			return res, err
		}
	} else if res.Extracted, err = Unzip(res.Path, dest); err != nil {
		_ = os.RemoveAll(dest)
		return res, err
	} else {
		log.Info("fetch: extracted archive", zap.String("dir", dest), zap.Int("files", len(res.Extracted)))
	}
	res.Primary = FindPrimary(res.Extracted)
	return res, nil
}

// fileName is the configured file name, or the last URL path element.
func fileName(ds config.DatasetConfig) (string, error) {
	if ds.File != "" {
		return ds.File, nil
	}
	u, err := url.Parse(ds.URL)
	if err != nil {
		return "", eris.Wrapf(err, "fetch: parse url %q", ds.URL)
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "", eris.Errorf("fetch: cannot derive a file name from %q; set file", ds.URL)
	}
	return base, nil
}
