package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nocliffcapital/alithos/internal/logger"
	"github.com/nocliffcapital/alithos/internal/models"
)

// TriggerStore persists trigger side effects. The in-memory registry remains
// the runtime source of truth; persistence is a one-way write-through and its
// failures are non-fatal.
type TriggerStore interface {
	PatchAlertTriggerTimestamp(ctx context.Context, alertID string, ts time.Time) error
	RecordTrigger(ctx context.Context, rec models.TriggerRecord) error
}

// ActionDispatcher executes all actions of a triggered alert.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, alert *models.Alert)
}

// ConditionCheck is the dry-run outcome for a single condition.
type ConditionCheck struct {
	Condition    models.Condition `json:"condition"`
	CurrentValue float64          `json:"current_value"`
	Passed       bool             `json:"passed"`
	Description  string           `json:"description"`
}

// TestResult is the outcome of a side-effect-free alert dry run.
type TestResult struct {
	WouldTrigger bool             `json:"would_trigger"`
	Conditions   []ConditionCheck `json:"conditions"`
}

// Scheduler owns the runtime alert registry and the periodic tick loop. The
// loop starts when the first alert is registered and stops when the registry
// empties; at most one loop runs at a time. Registry mutations take effect on
// the next tick, not retroactively.
type Scheduler struct {
	evaluator  *Evaluator
	dispatcher ActionDispatcher
	store      TriggerStore
	interval   time.Duration

	mu       sync.Mutex
	registry map[string]*models.Alert
	stopCh   chan struct{}
	wg       sync.WaitGroup

	now func() time.Time
}

// NewScheduler creates a dormant scheduler; the tick loop starts on the
// first Add.
func NewScheduler(evaluator *Evaluator, dispatcher ActionDispatcher, store TriggerStore, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{
		evaluator:  evaluator,
		dispatcher: dispatcher,
		store:      store,
		interval:   interval,
		registry:   make(map[string]*models.Alert),
		now:        time.Now,
	}
}

// Add upserts an alert into the registry and ensures the tick loop is
// running.
func (s *Scheduler) Add(alert *models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[alert.ID] = alert
	s.startLocked()
}

// Remove deletes an alert; the tick loop stops when the registry becomes
// empty.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registry, id)
	if len(s.registry) == 0 {
		s.stopLocked()
	}
}

// AlertPatch carries the fields an Update merges into a registered alert.
// Nil fields are left untouched.
type AlertPatch struct {
	Name                  *string
	MarketID              *string
	Conditions            []models.Condition
	Actions               []models.Action
	IsActive              *bool
	CooldownPeriodMinutes *int
}

// Update merges fields into a registered alert without restarting the loop.
// It reports whether the alert was found.
func (s *Scheduler) Update(id string, patch AlertPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.registry[id]
	if !ok {
		return false
	}
	if patch.Name != nil {
		alert.Name = *patch.Name
	}
	if patch.MarketID != nil {
		alert.MarketID = *patch.MarketID
	}
	if patch.Conditions != nil {
		alert.Conditions = patch.Conditions
	}
	if patch.Actions != nil {
		alert.Actions = patch.Actions
	}
	if patch.IsActive != nil {
		alert.IsActive = *patch.IsActive
	}
	if patch.CooldownPeriodMinutes != nil {
		alert.CooldownPeriodMinutes = *patch.CooldownPeriodMinutes
	}
	alert.UpdatedAt = s.now()
	return true
}

// Get returns a copy of the registered alert with the given id, if any.
// Mutations go through Update so they stay under the registry lock.
func (s *Scheduler) Get(id string) (*models.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.registry[id]
	if !ok {
		return nil, false
	}
	c := *a
	return &c, true
}

// List returns copies of all registered alerts, safe to read without the
// registry lock.
func (s *Scheduler) List() []*models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Alert, 0, len(s.registry))
	for _, a := range s.registry {
		c := *a
		out = append(out, &c)
	}
	return out
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

// Shutdown stops the tick loop and waits for an in-flight tick to finish.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) startLocked() {
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.wg.Add(1)
	go s.loop(stop)
	logger.Debug("Alert scheduler started (interval: %v)", s.interval)
}

func (s *Scheduler) stopLocked() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	logger.Debug("Alert scheduler stopped")
}

func (s *Scheduler) loop(stop <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick(context.Background())
		}
	}
}

// tick evaluates every active alert once, sequentially. Alerts inside their
// cooldown window are skipped before any evaluation happens. The registry is
// copied under the lock so a concurrent Update never races the evaluation;
// mutations land on the next tick.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	snapshot := make([]models.Alert, 0, len(s.registry))
	for _, a := range s.registry {
		snapshot = append(snapshot, *a)
	}
	s.mu.Unlock()

	now := s.now()
	for i := range snapshot {
		alert := &snapshot[i]
		if !alert.IsActive {
			continue
		}
		if alert.InCooldown(now) {
			continue
		}
		if len(alert.Conditions) == 0 {
			continue
		}

		passed := true
		for _, cond := range alert.Conditions {
			value := s.evaluator.Resolve(ctx, cond, alert.MarketID)
			if !Compare(value, cond.Operator, cond.Value) {
				passed = false
				break
			}
		}
		if !passed {
			continue
		}

		s.trigger(ctx, alert)
	}
}

// trigger dispatches all actions, marks the registered alert triggered, and
// persists the new timestamp asynchronously. A persistence failure is logged
// and does not roll back the in-memory trigger. alert is the tick's private
// copy; the timestamp is written back through the registry under the lock.
func (s *Scheduler) trigger(ctx context.Context, alert *models.Alert) {
	logger.Info("Alert triggered: %s (%s)", alert.Name, alert.ID)

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, alert)
	}

	ts := s.now()
	s.mu.Lock()
	if live, ok := s.registry[alert.ID]; ok {
		live.LastTriggered = &ts
	}
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	rec := models.TriggerRecord{
		ID:          uuid.New().String(),
		AlertID:     alert.ID,
		AlertName:   alert.Name,
		MarketID:    alert.MarketID,
		TriggeredAt: ts,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.store.PatchAlertTriggerTimestamp(context.Background(), alert.ID, ts); err != nil {
			logger.Warn("Failed to persist trigger timestamp for alert %s: %v", alert.ID, err)
		}
		if err := s.store.RecordTrigger(context.Background(), rec); err != nil {
			logger.Warn("Failed to record trigger history for alert %s: %v", alert.ID, err)
		}
	}()
}

// Test performs a side-effect-free dry run of an alert: every condition is
// evaluated (no short-circuit) so the caller sees all outcomes; cooldown and
// dispatch are never touched.
func (s *Scheduler) Test(ctx context.Context, alert *models.Alert) TestResult {
	result := TestResult{WouldTrigger: len(alert.Conditions) > 0}
	for _, cond := range alert.Conditions {
		value := s.evaluator.Resolve(ctx, cond, alert.MarketID)
		passed := Compare(value, cond.Operator, cond.Value)
		if !passed {
			result.WouldTrigger = false
		}
		result.Conditions = append(result.Conditions, ConditionCheck{
			Condition:    cond,
			CurrentValue: value,
			Passed:       passed,
			Description:  describe(cond, value, passed),
		})
	}
	return result
}
