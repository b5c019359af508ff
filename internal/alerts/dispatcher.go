package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nocliffcapital/alithos/internal/logger"
	"github.com/nocliffcapital/alithos/internal/models"
)

// PreferenceStore resolves the user's notification preferences and email
// address. Failures mean "use defaults", never abort.
type PreferenceStore interface {
	FetchNotificationPreferences(ctx context.Context) (models.NotificationPreferences, error)
	FetchUserEmail(ctx context.Context) (string, error)
}

// PushSink delivers a short push notification (the Telegram channel in this
// service).
type PushSink interface {
	Push(ctx context.Context, title, message string) error
}

// EmailSender delivers an outbound email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// TradeExecutor places an order for an order action. The default executor is
// a logged no-op; real execution lives in an external trading capability.
type TradeExecutor interface {
	PlaceOrder(ctx context.Context, marketID string, params models.OrderParams) error
}

// NoopExecutor logs order actions without placing trades.
type NoopExecutor struct{}

// PlaceOrder implements TradeExecutor.
func (NoopExecutor) PlaceOrder(_ context.Context, marketID string, params models.OrderParams) error {
	logger.Info("Order action (not executed): market=%s side=%s outcome=%s size=%.2f",
		marketID, params.Side, params.Outcome, params.Size)
	return nil
}

// WebhookConfig tunes webhook delivery retry behavior.
type WebhookConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DefaultWebhookConfig matches the delivery contract: 3 attempts, 1s backoff,
// 10s per-attempt timeout.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		MaxRetries: 3,
		RetryDelay: time.Second,
		Timeout:    10 * time.Second,
	}
}

// Dispatcher executes the actions of triggered alerts. Actions are
// independent; one action's failure never blocks its siblings.
type Dispatcher struct {
	prefs      PreferenceStore
	push       PushSink
	email      EmailSender
	executor   TradeExecutor
	httpClient *http.Client
	webhookCfg WebhookConfig
}

// NewDispatcher wires a dispatcher. Any of prefs, push, email may be nil;
// the corresponding channel is then skipped. A nil executor falls back to the
// logged no-op.
func NewDispatcher(prefs PreferenceStore, push PushSink, email EmailSender, executor TradeExecutor, cfg WebhookConfig) *Dispatcher {
	if cfg.MaxRetries <= 0 {
		cfg = DefaultWebhookConfig()
	}
	if executor == nil {
		executor = NoopExecutor{}
	}
	return &Dispatcher{
		prefs:      prefs,
		push:       push,
		email:      email,
		executor:   executor,
		httpClient: &http.Client{},
		webhookCfg: cfg,
	}
}

// webhookPayload is the JSON body POSTed for webhook actions.
type webhookPayload struct {
	Alert      string             `json:"alert"`
	AlertID    string             `json:"alertId"`
	Timestamp  time.Time          `json:"timestamp"`
	MarketID   string             `json:"marketId,omitempty"`
	Message    string             `json:"message,omitempty"`
	Conditions []models.Condition `json:"conditions"`
}

// Dispatch executes every action of a triggered alert. Preferences are
// fetched once per trigger cycle, not cached across ticks.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert) {
	prefs := models.DefaultPreferences()
	if d.prefs != nil {
		fetched, err := d.prefs.FetchNotificationPreferences(ctx)
		if err != nil {
			logger.Warn("Preference fetch failed, using defaults: %v", err)
		} else {
			prefs = fetched
		}
	}

	for _, action := range alert.Actions {
		switch action.Type {
		case models.ActionNotify:
			d.notify(ctx, alert, action, prefs)
		case models.ActionOrder:
			d.order(ctx, alert, action)
		case models.ActionWebhook:
			d.webhook(ctx, alert, action, prefs)
		default:
			logger.Warn("Skipping unknown action type %q on alert %s", action.Type, alert.ID)
		}
	}
}

func (d *Dispatcher) notify(ctx context.Context, alert *models.Alert, action models.Action, prefs models.NotificationPreferences) {
	message := action.Config.Message
	if message == "" {
		message = fmt.Sprintf("Alert %q triggered", alert.Name)
	}

	if d.push != nil && prefs.Browser {
		if err := d.push.Push(ctx, alert.Name, message); err != nil {
			logger.Error("Push notification failed for alert %s: %v", alert.ID, err)
		}
	}

	if d.email == nil || !prefs.Email || d.prefs == nil {
		return
	}
	to, err := d.prefs.FetchUserEmail(ctx)
	if err != nil || to == "" {
		if err != nil {
			logger.Warn("User email fetch failed: %v", err)
		}
		return
	}
	subject := fmt.Sprintf("Alithos alert: %s", alert.Name)
	if err := d.email.Send(ctx, to, subject, message); err != nil {
		logger.Error("Email send failed for alert %s: %v", alert.ID, err)
	}
}

func (d *Dispatcher) order(ctx context.Context, alert *models.Alert, action models.Action) {
	params := models.OrderParams{}
	if action.Config.OrderParams != nil {
		params = *action.Config.OrderParams
	}
	if err := d.executor.PlaceOrder(ctx, alert.MarketID, params); err != nil {
		logger.Error("Order action failed for alert %s: %v", alert.ID, err)
	}
}

// webhook POSTs the trigger payload with bounded retry. The user's preferred
// webhook URL overrides the per-alert URL when webhooks are enabled in
// preferences. A failure after all retries is logged, not escalated.
func (d *Dispatcher) webhook(ctx context.Context, alert *models.Alert, action models.Action, prefs models.NotificationPreferences) {
	targetURL := action.Config.WebhookURL
	if prefs.Webhook && prefs.WebhookURL != "" {
		targetURL = prefs.WebhookURL
	}
	if targetURL == "" {
		logger.Warn("Webhook action on alert %s has no target URL", alert.ID)
		return
	}

	payload := webhookPayload{
		Alert:      alert.Name,
		AlertID:    alert.ID,
		Timestamp:  time.Now(),
		MarketID:   alert.MarketID,
		Message:    action.Config.Message,
		Conditions: alert.Conditions,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to encode webhook payload for alert %s: %v", alert.ID, err)
		return
	}

	var lastErr error
	for i := 0; i < d.webhookCfg.MaxRetries; i++ {
		if err := d.post(ctx, targetURL, body); err == nil {
			return
		} else {
			lastErr = err
		}
		if i == d.webhookCfg.MaxRetries-1 || ctx.Err() != nil {
			break
		}
		time.Sleep(d.webhookCfg.RetryDelay)
	}
	logger.Error("Webhook delivery failed for alert %s after %d attempts: %v",
		alert.ID, d.webhookCfg.MaxRetries, lastErr)
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.webhookCfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
