package fetcher

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-exposure/internal/resilience"
)

// FTPOptions controls FTP downloads. Timeout bounds the dial and each
// control exchange; it defaults to 30s.
type FTPOptions struct {
	Timeout time.Duration
	Retry   resilience.Policy
}

// FTPFetcher downloads files over FTP, anonymously unless the URL carries
// credentials. Each attempt uses its own control connection.
type FTPFetcher struct {
	timeout time.Duration
	retry   resilience.Policy
}

// NewFTPFetcher returns an FTPFetcher for opts.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	f := &FTPFetcher{timeout: opts.Timeout, retry: opts.Retry}
	if f.timeout <= 0 {
		f.timeout = 30 * time.Second
	}
	return f
}

type ftpTarget struct {
	host, path string
	user, pass string
}

// parseFTPURL extracts host (with port), path and login from an FTP URL.
func parseFTPURL(rawURL string) (ftpTarget, error) {
	var t ftpTarget
	u, err := url.Parse(rawURL)
	if err != nil {
		return t, eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return t, eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}

	t.host = u.Host
	if _, _, splitErr := net.SplitHostPort(t.host); splitErr != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	t.path = u.Path
	if t.path == "" || t.path == "/" {
		return t, eris.New("empty path in ftp url")
	}

	t.user, t.pass = "anonymous", "anonymous@"
	if u.User != nil {
		t.user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			t.pass = p
		}
	}
	return t, nil
}

// retrieve runs one login-RETR-QUIT session, streaming the file to path.
func (f *FTPFetcher) retrieve(ctx context.Context, t ftpTarget, path string) (int64, error) {
	zap.L().Debug("ftp: connecting", zap.String("host", t.host), zap.String("path", t.path))

	conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return 0, eris.Wrap(err, "ftp dial")
	}
	defer func() {
		if qerr := conn.Quit(); qerr != nil {
			zap.L().Debug("ftp: quit", zap.String("host", t.host), zap.Error(qerr))
		}
	}()

	if err := conn.Login(t.user, t.pass); err != nil {
		return 0, eris.Wrapf(err, "ftp login as %s", t.user)
	}
	resp, err := conn.Retr(t.path)
	if err != nil {
		return 0, eris.Wrapf(err, "ftp retrieve %s", t.path)
	}
	closed := false
	defer func() {
		if !closed {
			_ = resp.Close()
		}
	}()
	// The transfer-complete reply arrives on close; a 4xx there means the
	// server aborted mid-file and the partial copy is dropped.
	return writeAtomic(path, resp, func() error {
		closed = true
		return eris.Wrap(resp.Close(), "ftp transfer")
	})
}

// DownloadToFile implements Fetcher.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, ftpURL, path string) (int64, error) {
	t, err := parseFTPURL(ftpURL)
	if err != nil {
		return 0, err
	}
	policy := f.retry
	policy.Label = ftpURL
	n, err := resilience.Retry(ctx, policy, func(ctx context.Context) (int64, error) {
		return f.retrieve(ctx, t, path)
	})
	if err != nil {
		return 0, eris.Wrapf(err, "fetch: download %s", ftpURL)
	}
	return n, nil
}
