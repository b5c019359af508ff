package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nocliffcapital/alithos/internal/models"
)

type fakePrefs struct {
	prefs    models.NotificationPreferences
	prefsErr error
	email    string
	emailErr error
}

func (f *fakePrefs) FetchNotificationPreferences(context.Context) (models.NotificationPreferences, error) {
	return f.prefs, f.prefsErr
}

func (f *fakePrefs) FetchUserEmail(context.Context) (string, error) {
	return f.email, f.emailErr
}

type fakePush struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (f *fakePush) Push(_ context.Context, _, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message)
	return f.err
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeEmail) Send(_ context.Context, to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return nil
}

func testWebhookConfig() WebhookConfig {
	return WebhookConfig{MaxRetries: 3, RetryDelay: time.Millisecond, Timeout: time.Second}
}

func notifyAlert() *models.Alert {
	return &models.Alert{
		ID:       "a1",
		Name:     "price move",
		MarketID: "mkt-1",
		Conditions: []models.Condition{
			{Type: models.ConditionPrice, Operator: models.OpGreater, Value: 60},
		},
		Actions: []models.Action{
			{Type: models.ActionNotify, Config: models.ActionConfig{Message: "price crossed 60"}},
		},
		IsActive: true,
	}
}

func TestDispatchNotifyPushAndEmail(t *testing.T) {
	prefs := &fakePrefs{
		prefs: models.NotificationPreferences{Browser: true, Email: true},
		email: "user@example.com",
	}
	push := &fakePush{}
	email := &fakeEmail{}
	d := NewDispatcher(prefs, push, email, nil, testWebhookConfig())

	d.Dispatch(context.Background(), notifyAlert())

	if len(push.msgs) != 1 || push.msgs[0] != "price crossed 60" {
		t.Errorf("push not delivered: %v", push.msgs)
	}
	if len(email.sent) != 1 || email.sent[0] != "user@example.com" {
		t.Errorf("email not delivered: %v", email.sent)
	}
}

func TestDispatchNotifyEmailGatedByPrefs(t *testing.T) {
	prefs := &fakePrefs{
		prefs: models.NotificationPreferences{Browser: true, Email: false},
		email: "user@example.com",
	}
	push := &fakePush{}
	email := &fakeEmail{}
	d := NewDispatcher(prefs, push, email, nil, testWebhookConfig())

	d.Dispatch(context.Background(), notifyAlert())

	if len(push.msgs) != 1 {
		t.Error("push should still fire")
	}
	if len(email.sent) != 0 {
		t.Error("email must be gated by preferences")
	}
}

func TestDispatchPrefsFetchFailureUsesDefaults(t *testing.T) {
	prefs := &fakePrefs{prefsErr: errors.New("db down"), email: "user@example.com"}
	push := &fakePush{}
	email := &fakeEmail{}
	d := NewDispatcher(prefs, push, email, nil, testWebhookConfig())

	d.Dispatch(context.Background(), notifyAlert())

	// Defaults: browser on, email off.
	if len(push.msgs) != 1 {
		t.Error("push should fire with default preferences")
	}
	if len(email.sent) != 0 {
		t.Error("email must stay off with default preferences")
	}
}

func TestDispatchWebhook(t *testing.T) {
	var mu sync.Mutex
	var payloads []webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
	}))
	defer srv.Close()

	alert := notifyAlert()
	alert.Actions = []models.Action{
		{Type: models.ActionWebhook, Config: models.ActionConfig{
			WebhookURL: srv.URL,
			Message:    "hook message",
		}},
	}
	d := NewDispatcher(&fakePrefs{}, nil, nil, nil, testWebhookConfig())
	d.Dispatch(context.Background(), alert)

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(payloads))
	}
	p := payloads[0]
	if p.Alert != "price move" || p.AlertID != "a1" || p.MarketID != "mkt-1" {
		t.Errorf("unexpected payload: %+v", p)
	}
	if p.Message != "hook message" || len(p.Conditions) != 1 {
		t.Errorf("unexpected payload body: %+v", p)
	}
}

func TestDispatchWebhookPreferredURLOverride(t *testing.T) {
	var hits int
	var mu sync.Mutex
	preferred := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
	}))
	defer preferred.Close()

	alert := notifyAlert()
	alert.Actions = []models.Action{
		{Type: models.ActionWebhook, Config: models.ActionConfig{WebhookURL: "http://127.0.0.1:1/never"}},
	}
	prefs := &fakePrefs{prefs: models.NotificationPreferences{
		Webhook:    true,
		WebhookURL: preferred.URL,
	}}
	d := NewDispatcher(prefs, nil, nil, nil, testWebhookConfig())
	d.Dispatch(context.Background(), alert)

	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Errorf("preferred webhook URL not used: %d hits", hits)
	}
}

func TestDispatchWebhookRetriesBounded(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	alert := notifyAlert()
	alert.Actions = []models.Action{
		{Type: models.ActionWebhook, Config: models.ActionConfig{WebhookURL: srv.URL}},
	}
	d := NewDispatcher(&fakePrefs{}, nil, nil, nil, testWebhookConfig())
	d.Dispatch(context.Background(), alert)

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDispatchWebhookNoDelayAfterFinalAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	alert := notifyAlert()
	alert.Actions = []models.Action{
		{Type: models.ActionWebhook, Config: models.ActionConfig{WebhookURL: srv.URL}},
	}
	d := NewDispatcher(&fakePrefs{}, nil, nil, nil,
		WebhookConfig{MaxRetries: 2, RetryDelay: 200 * time.Millisecond, Timeout: time.Second})

	start := time.Now()
	d.Dispatch(context.Background(), alert)
	elapsed := time.Since(start)

	// One sleep between the two attempts, none after the last one.
	if elapsed >= 380*time.Millisecond {
		t.Errorf("delivery took %v, should not back off after the final attempt", elapsed)
	}
}

func TestDispatchActionsIndependent(t *testing.T) {
	// The failing webhook must not block the notify action that follows it.
	push := &fakePush{}
	alert := notifyAlert()
	alert.Actions = []models.Action{
		{Type: models.ActionWebhook, Config: models.ActionConfig{WebhookURL: "http://127.0.0.1:1/never"}},
		{Type: models.ActionNotify, Config: models.ActionConfig{Message: "still here"}},
	}
	d := NewDispatcher(&fakePrefs{prefs: models.NotificationPreferences{Browser: true}}, push, nil, nil,
		WebhookConfig{MaxRetries: 1, RetryDelay: time.Millisecond, Timeout: 100 * time.Millisecond})
	d.Dispatch(context.Background(), alert)

	if len(push.msgs) != 1 {
		t.Error("notify action should run despite webhook failure")
	}
}

func TestDispatchOrderIsLoggedNoop(t *testing.T) {
	alert := notifyAlert()
	alert.Actions = []models.Action{
		{Type: models.ActionOrder, Config: models.ActionConfig{
			OrderParams: &models.OrderParams{Side: "BUY", Outcome: "YES", Size: 10},
		}},
	}
	d := NewDispatcher(&fakePrefs{}, nil, nil, nil, testWebhookConfig())
	// Must not panic or error; the default executor only logs.
	d.Dispatch(context.Background(), alert)
}
