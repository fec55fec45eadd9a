// Package notify implements outbound alert channel integrations.
package notify

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/logwarden/logwarden/internal/config"
	"github.com/logwarden/logwarden/internal/types"
)

// Notifier is the common interface for all outbound alert channels.
type Notifier interface {
	NotifyAlert(a *types.Alert, created bool)
}

// webhookPayload is the JSON body posted to the configured webhook URL.
type webhookPayload struct {
	Event     string              `json:"event"` // "alert_created" or "alert_merged"
	Timestamp string              `json:"timestamp"`
	Alert     webhookAlertPayload `json:"alert"`
}

type webhookAlertPayload struct {
	ID           int64   `json:"id"`
	Type         string  `json:"type"`
	Level        string  `json:"level"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	RelatedIP    string  `json:"related_ip,omitempty"`
	RelatedUser  string  `json:"related_user,omitempty"`
	RelatedLogs  []int64 `json:"related_log_ids,omitempty"`
	TriggerCount int     `json:"trigger_count"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at"`
}

// WebhookNotifier sends JSON POST requests to an arbitrary HTTP endpoint.
type WebhookNotifier struct {
	cfg    config.WebhookConfig
	client *http.Client
	logger zerolog.Logger
}

func NewWebhookNotifier(cfg config.WebhookConfig, logger zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "webhook").Logger(),
	}
}

// NotifyAlert posts the alert to the configured webhook URL.
func (w *WebhookNotifier) NotifyAlert(a *types.Alert, created bool) {
	event := "alert_merged"
	if created {
		event = "alert_created"
	}
	w.post(webhookPayload{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Alert: webhookAlertPayload{
			ID:           a.ID,
			Type:         string(a.AlertType),
			Level:        string(a.AlertLevel),
			Title:        a.Title,
			Description:  a.Description,
			RelatedIP:    a.RelatedIP,
			RelatedUser:  a.RelatedUser,
			RelatedLogs:  a.RelatedLogIDs,
			TriggerCount: a.TriggerCount,
			Status:       string(a.Status),
			CreatedAt:    a.CreatedAt.Format(time.RFC3339),
		},
	})
}

// post marshals the payload and sends it. It retries once on failure.
func (w *WebhookNotifier) post(payload webhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to marshal webhook payload")
		return
	}

	if w.doPost(body) {
		return
	}
	w.logger.Warn().Msg("webhook delivery failed, retrying once")
	if !w.doPost(body) {
		w.logger.Error().Msg("webhook delivery failed after retry")
	}
}

// doPost performs a single HTTP POST and returns true on success (2xx).
func (w *WebhookNotifier) doPost(body []byte) bool {
	req, err := http.NewRequest(http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to create webhook request")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	// HMAC-SHA256 signature when a secret is configured.
	if secret := config.ResolveEnv(w.cfg.Secret); secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		req.Header.Set("X-Logwarden-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Error().Err(err).Str("url", w.cfg.URL).Msg("webhook request failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.logger.Error().Int("status", resp.StatusCode).Str("url", w.cfg.URL).Msg("webhook returned non-2xx")
		return false
	}
	return true
}
