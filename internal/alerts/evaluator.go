// Package alerts implements the alert engine: condition evaluation, the
// polling scheduler, and action dispatch.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/nocliffcapital/alithos/internal/logger"
	"github.com/nocliffcapital/alithos/internal/models"
)

// ErrUnavailable signals that the upstream has no data for the requested
// signal (as opposed to a transport failure). Evaluators substitute the
// per-signal default instead of zero.
var ErrUnavailable = errors.New("market data unavailable")

// MarketDataFetcher provides live market signals for condition evaluation.
// Price is the YES probability as a percentage (0-100); Spread is a 0-1
// fraction; Volume and Depth are currency units; Flow is a signed trade-flow
// proxy.
type MarketDataFetcher interface {
	Price(ctx context.Context, marketID string) (float64, error)
	Volume(ctx context.Context, marketID string) (float64, error)
	Depth(ctx context.Context, marketID, outcome string) (float64, error)
	Spread(ctx context.Context, marketID, outcome string) (float64, error)
	Flow(ctx context.Context, marketID, outcome string) (float64, error)
}

// Fallback constants returned when no market id or no fetcher is configured.
// This is a deliberate degraded mode, not an error.
const (
	fallbackPrice  = 50
	fallbackVolume = 1000
	fallbackDepth  = 500
	fallbackFlow   = 100
	fallbackSpread = 0.02
)

// Evaluator resolves abstract conditions to concrete signal values.
type Evaluator struct {
	fetcher MarketDataFetcher
}

// NewEvaluator creates an evaluator backed by the given fetcher. A nil
// fetcher puts the evaluator in degraded mode where every condition type
// resolves to its fallback constant.
func NewEvaluator(fetcher MarketDataFetcher) *Evaluator {
	return &Evaluator{fetcher: fetcher}
}

// Resolve returns the current value for a condition's signal. Fetcher
// failures are swallowed and resolve to 0 so that alert evaluation never
// crashes on transient market-data gaps.
func (e *Evaluator) Resolve(ctx context.Context, cond models.Condition, marketID string) float64 {
	if marketID == "" || e.fetcher == nil {
		return fallback(cond.Type)
	}

	var (
		value float64
		err   error
	)
	switch cond.Type {
	case models.ConditionPrice:
		value, err = e.fetcher.Price(ctx, marketID)
		if errors.Is(err, ErrUnavailable) {
			return fallbackPrice
		}
	case models.ConditionVolume:
		value, err = e.fetcher.Volume(ctx, marketID)
	case models.ConditionDepth:
		value, err = e.fetcher.Depth(ctx, marketID, "YES")
	case models.ConditionSpread:
		value, err = e.fetcher.Spread(ctx, marketID, "YES")
		value *= 100 // report as a percentage
	case models.ConditionFlow:
		value, err = e.fetcher.Flow(ctx, marketID, "YES")
	default:
		return 0
	}

	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			logger.Debug("Signal fetch failed for market %s (%s): %v", marketID, cond.Type, err)
		}
		return 0
	}
	return value
}

func fallback(t models.ConditionType) float64 {
	switch t {
	case models.ConditionPrice:
		return fallbackPrice
	case models.ConditionVolume:
		return fallbackVolume
	case models.ConditionDepth:
		return fallbackDepth
	case models.ConditionFlow:
		return fallbackFlow
	case models.ConditionSpread:
		return fallbackSpread
	default:
		return 0
	}
}

// Compare applies a condition operator to a resolved value and threshold.
// Equality uses an epsilon to absorb floating-point noise.
func Compare(value float64, op models.Operator, threshold float64) bool {
	switch op {
	case models.OpGreater:
		return value > threshold
	case models.OpLess:
		return value < threshold
	case models.OpGreaterEqual:
		return value >= threshold
	case models.OpLessEqual:
		return value <= threshold
	case models.OpEqual:
		return math.Abs(value-threshold) < models.EqualityEpsilon
	default:
		return false
	}
}

// describe renders a human-readable outcome for one condition check, used by
// the dry-run preview.
func describe(cond models.Condition, value float64, passed bool) string {
	status := "failed"
	if passed {
		status = "passed"
	}
	return fmt.Sprintf("%s %s %.4g (current: %.4g): %s",
		cond.Type, cond.Operator, cond.Value, value, status)
}
