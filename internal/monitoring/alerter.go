package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-exposure/internal/config"
	"github.com/sells-group/wildfire-exposure/internal/model"
	"github.com/sells-group/wildfire-exposure/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailed      AlertType = "run_failed"
	AlertRunPartial     AlertType = "run_partial"
	AlertBufferFailures AlertType = "buffer_failures"
	AlertHighExposure   AlertType = "high_exposure"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	RunID     string         `json:"run_id"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunSnapshot is the end-of-run state the alerter evaluates.
type RunSnapshot struct {
	RunID          string
	Status         model.RunStatus
	FailedPhase    string
	Error          string
	Segments       int
	BufferFailures int
	Exposed        int
	ExposedShare   float64
	FinishedAt     time.Time
}

// Batch is the webhook payload: every alert one run raised.
type Batch struct {
	RunID  string          `json:"run_id"`
	Status model.RunStatus `json:"status"`
	Alerts []Alert         `json:"alerts"`
}

// Alerter turns the end-of-run snapshot into alerts and posts them to a
// webhook in a single request.
type Alerter struct {
	cfg    config.AlertsConfig
	client *http.Client
	retry  resilience.Policy
}

// NewAlerter creates a new Alerter with the given alert config.
func NewAlerter(cfg config.AlertsConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.Policy{
			Attempts: 3,
			Base:     500 * time.Millisecond,
			Cap:      5 * time.Second,
			Label:    "alert webhook",
		},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *RunSnapshot) []Alert {
	var alerts []Alert
	raise := func(typ AlertType, severity, msg string, details map[string]any) {
		alerts = append(alerts, Alert{
			Type:      typ,
			Severity:  severity,
			RunID:     snap.RunID,
			Message:   msg,
			Details:   details,
			Timestamp: snap.FinishedAt.UTC(),
		})
	}
	phase := map[string]any{"phase": snap.FailedPhase, "error": snap.Error}

	switch snap.Status {
	case model.RunStatusFailed:
		raise(AlertRunFailed, "high",
			fmt.Sprintf("Exposure run failed in phase %s: %s", snap.FailedPhase, snap.Error), phase)
	case model.RunStatusPartial:
		raise(AlertRunPartial, "medium",
			fmt.Sprintf("Exposure run exported results but phase %s failed: %s", snap.FailedPhase, snap.Error), phase)
	}

	if limit := a.cfg.MaxBufferFailures; snap.BufferFailures > limit {
		raise(AlertBufferFailures, "medium",
			fmt.Sprintf("%d of %d segments could not be buffered (threshold %d)", snap.BufferFailures, snap.Segments, limit),
			map[string]any{"buffer_failures": snap.BufferFailures, "segments": snap.Segments, "threshold": limit})
	}

	// A zero threshold disables the exposure alert.
	if limit := a.cfg.ExposedShareThreshold; limit > 0 && snap.ExposedShare > limit {
		raise(AlertHighExposure, "low",
			fmt.Sprintf("%.1f%% of segments intersect burned cells, above %.1f%%", snap.ExposedShare*100, limit*100),
			map[string]any{"exposed": snap.Exposed, "exposed_share": snap.ExposedShare, "threshold": limit})
	}
	return alerts
}

// Notify evaluates snap and posts the resulting alerts. It returns how many
// alerts were delivered; delivery failures are logged, never returned, so a
// flaky webhook cannot change a run's outcome.
func (a *Alerter) Notify(ctx context.Context, snap *RunSnapshot) int {
	alerts := a.Evaluate(snap)
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}
	log := zap.L().With(zap.String("run_id", snap.RunID), zap.Int("alerts", len(alerts)))
	if err := a.Post(ctx, Batch{RunID: snap.RunID, Status: snap.Status, Alerts: alerts}); err != nil {
		log.Error("monitoring: alert delivery failed", zap.Error(err))
		return 0
	}
	log.Info("monitoring: alerts sent")
	return len(alerts)
}

type webhookStatus int

func (s webhookStatus) Error() string   { return fmt.Sprintf("webhook returned status %d", int(s)) }
func (s webhookStatus) Retryable() bool { return resilience.RetryableHTTPStatus(int(s)) }

// Post delivers one batch to the webhook, retrying busy replies.
func (a *Alerter) Post(ctx context.Context, b Batch) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alerts")
	}
	_, err = resilience.Retry(ctx, a.retry, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := a.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode >= 300 {
			return struct{}{}, webhookStatus(resp.StatusCode)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return eris.Wrap(err, "monitoring: post alerts")
	}
	return nil
}
