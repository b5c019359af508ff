// Package models defines the core domain entities: alerts, research sources,
// analysis results, and market snapshots.
package models

import (
	"errors"
	"fmt"
	"time"
)

// ConditionType identifies which market signal a condition compares against.
type ConditionType string

const (
	ConditionPrice  ConditionType = "price"
	ConditionVolume ConditionType = "volume"
	ConditionDepth  ConditionType = "depth"
	ConditionFlow   ConditionType = "flow"
	ConditionSpread ConditionType = "spread"
)

// Operator is the comparison applied between a resolved signal value and the
// condition threshold.
type Operator string

const (
	OpGreater      Operator = "gt"
	OpLess         Operator = "lt"
	OpGreaterEqual Operator = "gte"
	OpLessEqual    Operator = "lte"
	OpEqual        Operator = "eq"
)

// EqualityEpsilon is the tolerance used for "eq" comparisons on float signals.
const EqualityEpsilon = 0.001

// Condition is a single threshold check against a live market signal.
// Price and spread are percentages (0-100), volume and depth are absolute
// currency units, flow is a signed trade-flow proxy.
type Condition struct {
	Type     ConditionType `json:"type"`
	Operator Operator      `json:"operator"`
	Value    float64       `json:"value"`
}

// Validate checks condition field constraints.
func (c Condition) Validate() error {
	switch c.Type {
	case ConditionPrice, ConditionVolume, ConditionDepth, ConditionFlow, ConditionSpread:
	default:
		return fmt.Errorf("unknown condition type: %q", c.Type)
	}
	switch c.Operator {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual:
	default:
		return fmt.Errorf("unknown operator: %q", c.Operator)
	}
	return nil
}

// ActionType identifies what happens when an alert triggers.
type ActionType string

const (
	ActionNotify  ActionType = "notify"
	ActionOrder   ActionType = "order"
	ActionWebhook ActionType = "webhook"
)

// OrderParams describes the trade an order action would place. Execution is
// delegated to an external trading capability.
type OrderParams struct {
	Side    string  `json:"side,omitempty"`
	Outcome string  `json:"outcome,omitempty"`
	Size    float64 `json:"size,omitempty"`
	Price   float64 `json:"price,omitempty"`
}

// ActionConfig holds the per-type action payload.
type ActionConfig struct {
	Message     string       `json:"message,omitempty"`
	OrderParams *OrderParams `json:"order_params,omitempty"`
	WebhookURL  string       `json:"webhook_url,omitempty"`
}

// Action is executed when an alert triggers. All actions of a triggered alert
// run independently; one failure never blocks siblings.
type Action struct {
	Type   ActionType   `json:"type"`
	Config ActionConfig `json:"config"`
}

// Validate checks action field constraints.
func (a Action) Validate() error {
	switch a.Type {
	case ActionNotify, ActionOrder:
	case ActionWebhook:
		if a.Config.WebhookURL == "" {
			return errors.New("webhook action requires a webhook URL")
		}
	default:
		return fmt.Errorf("unknown action type: %q", a.Type)
	}
	return nil
}

// Alert is a user-defined multi-condition alert. Conditions are evaluated as
// a logical AND. MarketID is empty for global alerts.
type Alert struct {
	ID                    string      `json:"id"`
	Name                  string      `json:"name"`
	MarketID              string      `json:"market_id,omitempty"`
	Conditions            []Condition `json:"conditions"`
	Actions               []Action    `json:"actions"`
	IsActive              bool        `json:"is_active"`
	CooldownPeriodMinutes int         `json:"cooldown_period_minutes,omitempty"`
	LastTriggered         *time.Time  `json:"last_triggered,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// Validate checks alert field constraints.
func (a *Alert) Validate() error {
	if a.ID == "" {
		return errors.New("alert ID must not be empty")
	}
	if a.Name == "" {
		return errors.New("alert name must not be empty")
	}
	if len(a.Conditions) == 0 {
		return errors.New("alert must have at least one condition")
	}
	for i, c := range a.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	for i, act := range a.Actions {
		if err := act.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	if a.CooldownPeriodMinutes < 0 {
		return errors.New("cooldown period must not be negative")
	}
	return nil
}

// InCooldown reports whether the alert triggered within its cooldown window
// relative to now. Alerts without a cooldown period are never in cooldown.
func (a *Alert) InCooldown(now time.Time) bool {
	if a.CooldownPeriodMinutes <= 0 || a.LastTriggered == nil {
		return false
	}
	window := time.Duration(a.CooldownPeriodMinutes) * time.Minute
	return now.Sub(*a.LastTriggered) < window
}

// NotificationPreferences are the user's externally persisted delivery
// preferences, fetched once per trigger cycle.
type NotificationPreferences struct {
	Browser    bool   `json:"browser"`
	Email      bool   `json:"email"`
	Webhook    bool   `json:"webhook"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// DefaultPreferences is used when the preference fetch fails or no row exists.
func DefaultPreferences() NotificationPreferences {
	return NotificationPreferences{Browser: true}
}

// TriggerRecord is one historical firing of an alert.
type TriggerRecord struct {
	ID          string    `json:"id"`
	AlertID     string    `json:"alert_id"`
	AlertName   string    `json:"alert_name"`
	MarketID    string    `json:"market_id,omitempty"`
	TriggeredAt time.Time `json:"triggered_at"`
}
