package resilience

import (
	"time"

	"github.com/sells-group/wildfire-exposure/internal/config"
)

// FromFetchConfig builds the download policy. max_retries counts retries,
// so the attempt budget is one more, and no single wait exceeds a tenth of
// the per-download timeout.
func FromFetchConfig(cfg config.FetchConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxRetries >= 0 {
		p.Attempts = cfg.MaxRetries + 1
	}
	if cfg.TimeoutSecs > 0 {
		p.Cap = min(p.Cap, time.Duration(cfg.TimeoutSecs)*time.Second/10)
	}
	return p
}
