package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nocliffcapital/alithos/internal/models"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, alert *models.Alert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, alert.ID)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func priceAlert(id string, threshold float64, cooldownMin int) *models.Alert {
	return &models.Alert{
		ID:       id,
		Name:     "price alert",
		MarketID: "mkt-1",
		Conditions: []models.Condition{
			{Type: models.ConditionPrice, Operator: models.OpGreater, Value: threshold},
		},
		IsActive:              true,
		CooldownPeriodMinutes: cooldownMin,
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	s := NewScheduler(NewEvaluator(nil), &recordingDispatcher{}, nil, time.Hour)
	if s.Running() {
		t.Error("scheduler should be dormant before first Add")
	}

	s.Add(priceAlert("a1", 60, 0))
	if !s.Running() {
		t.Error("scheduler should run after Add")
	}

	s.Add(priceAlert("a2", 70, 0))
	s.Remove("a1")
	if !s.Running() {
		t.Error("scheduler should keep running while registry is non-empty")
	}

	s.Remove("a2")
	if s.Running() {
		t.Error("scheduler should stop when registry empties")
	}
}

func TestTickTriggersAndCooldown(t *testing.T) {
	f := newFakeFetcher()
	f.price = 65
	d := &recordingDispatcher{}
	s := NewScheduler(NewEvaluator(f), d, nil, time.Hour)

	alert := priceAlert("a1", 60, 10)
	s.Add(alert)
	defer s.Shutdown()

	ctx := context.Background()

	// First tick triggers and stamps LastTriggered.
	s.tick(ctx)
	if d.count() != 1 {
		t.Fatalf("expected 1 dispatch, got %d", d.count())
	}
	if alert.LastTriggered == nil {
		t.Fatal("LastTriggered not set")
	}
	first := *alert.LastTriggered

	// Immediate second tick is suppressed by cooldown even though the
	// condition still holds.
	f.price = 70
	s.tick(ctx)
	if d.count() != 1 {
		t.Errorf("cooldown violated: %d dispatches", d.count())
	}
	if !alert.LastTriggered.Equal(first) {
		t.Error("LastTriggered must not change during cooldown")
	}

	// After the cooldown window passes, the alert re-triggers.
	past := time.Now().Add(-11 * time.Minute)
	alert.LastTriggered = &past
	s.tick(ctx)
	if d.count() != 2 {
		t.Errorf("expected re-trigger after cooldown, got %d dispatches", d.count())
	}
}

func TestTickANDSemanticsShortCircuit(t *testing.T) {
	f := newFakeFetcher()
	f.price = 80
	f.volume = 10
	d := &recordingDispatcher{}
	s := NewScheduler(NewEvaluator(f), d, nil, time.Hour)

	alert := &models.Alert{
		ID:       "a1",
		Name:     "conjunction",
		MarketID: "mkt-1",
		Conditions: []models.Condition{
			{Type: models.ConditionVolume, Operator: models.OpGreater, Value: 1e9},
			{Type: models.ConditionPrice, Operator: models.OpGreater, Value: 70},
		},
		IsActive: true,
	}
	s.Add(alert)
	defer s.Shutdown()

	s.tick(context.Background())
	if d.count() != 0 {
		t.Error("alert must not trigger when any condition fails")
	}
	// First condition fails, so the second is never evaluated.
	if f.calls["price"] != 0 {
		t.Errorf("expected short-circuit, price fetched %d times", f.calls["price"])
	}
}

func TestTickSkipsInactive(t *testing.T) {
	f := newFakeFetcher()
	f.price = 99
	d := &recordingDispatcher{}
	s := NewScheduler(NewEvaluator(f), d, nil, time.Hour)

	alert := priceAlert("a1", 60, 0)
	alert.IsActive = false
	s.Add(alert)
	defer s.Shutdown()

	s.tick(context.Background())
	if d.count() != 0 {
		t.Error("inactive alert must not trigger")
	}
	if f.calls["price"] != 0 {
		t.Error("inactive alert must not be evaluated")
	}
}

func TestTestDryRun(t *testing.T) {
	f := newFakeFetcher()
	f.price = 80
	f.volume = 10
	d := &recordingDispatcher{}
	s := NewScheduler(NewEvaluator(f), d, nil, time.Hour)

	alert := &models.Alert{
		ID:       "a1",
		Name:     "preview",
		MarketID: "mkt-1",
		Conditions: []models.Condition{
			{Type: models.ConditionPrice, Operator: models.OpGreater, Value: 70},
			{Type: models.ConditionVolume, Operator: models.OpGreater, Value: 1e9},
		},
		IsActive:              true,
		CooldownPeriodMinutes: 10,
	}

	result := s.Test(context.Background(), alert)
	if result.WouldTrigger {
		t.Error("WouldTrigger should be false")
	}
	if len(result.Conditions) != 2 {
		t.Fatalf("expected both conditions evaluated, got %d", len(result.Conditions))
	}
	if !result.Conditions[0].Passed {
		t.Error("first condition should pass")
	}
	if result.Conditions[1].Passed {
		t.Error("second condition should fail")
	}
	if result.Conditions[0].CurrentValue != 80 {
		t.Errorf("unexpected current value: %v", result.Conditions[0].CurrentValue)
	}
	if result.Conditions[1].Description == "" {
		t.Error("expected a description")
	}

	// Dry run has no side effects.
	if d.count() != 0 {
		t.Error("Test must not dispatch")
	}
	if alert.LastTriggered != nil {
		t.Error("Test must not touch LastTriggered")
	}
}

func TestUpdateMergesFields(t *testing.T) {
	s := NewScheduler(NewEvaluator(nil), &recordingDispatcher{}, nil, time.Hour)
	s.Add(priceAlert("a1", 60, 0))
	defer s.Shutdown()

	name := "renamed"
	inactive := false
	cooldown := 30
	if !s.Update("a1", AlertPatch{Name: &name, IsActive: &inactive, CooldownPeriodMinutes: &cooldown}) {
		t.Fatal("Update reported alert not found")
	}

	got, ok := s.Get("a1")
	if !ok {
		t.Fatal("alert missing after update")
	}
	if got.Name != "renamed" || got.IsActive || got.CooldownPeriodMinutes != 30 {
		t.Errorf("patch not applied: %+v", got)
	}
	// Untouched fields survive.
	if got.MarketID != "mkt-1" || len(got.Conditions) != 1 {
		t.Errorf("unrelated fields changed: %+v", got)
	}

	if s.Update("missing", AlertPatch{Name: &name}) {
		t.Error("Update of unknown alert should report false")
	}
}

// Exercises tick against concurrent registry mutation; run with -race.
func TestTickConcurrentWithUpdate(t *testing.T) {
	f := newFakeFetcher()
	f.price = 65
	s := NewScheduler(NewEvaluator(f), &recordingDispatcher{}, nil, time.Hour)
	s.Add(priceAlert("a1", 60, 0))
	defer s.Shutdown()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.tick(context.Background())
		}
	}()

	for i := 0; i < 200; i++ {
		active := i%2 == 0
		conds := []models.Condition{
			{Type: models.ConditionPrice, Operator: models.OpGreater, Value: float64(50 + i%20)},
		}
		if !s.Update("a1", AlertPatch{Conditions: conds, IsActive: &active}) {
			t.Fatal("Update lost the registered alert")
		}
	}
	<-done

	if _, ok := s.Get("a1"); !ok {
		t.Error("alert missing after concurrent updates")
	}
}

type recordingStore struct {
	mu       sync.Mutex
	patched  []string
	recorded []models.TriggerRecord
}

func (r *recordingStore) PatchAlertTriggerTimestamp(_ context.Context, alertID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patched = append(r.patched, alertID)
	return nil
}

func (r *recordingStore) RecordTrigger(_ context.Context, rec models.TriggerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, rec)
	return nil
}

func TestTriggerPersistsAsync(t *testing.T) {
	f := newFakeFetcher()
	f.price = 65
	store := &recordingStore{}
	s := NewScheduler(NewEvaluator(f), &recordingDispatcher{}, store, time.Hour)

	s.Add(priceAlert("a1", 60, 0))
	s.tick(context.Background())
	s.Shutdown() // waits for the async persist

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.patched) != 1 || store.patched[0] != "a1" {
		t.Errorf("trigger timestamp not persisted: %v", store.patched)
	}
	if len(store.recorded) != 1 || store.recorded[0].AlertID != "a1" {
		t.Errorf("trigger history not recorded: %+v", store.recorded)
	}
	if store.recorded[0].ID == "" {
		t.Error("trigger record should carry an id")
	}
}
