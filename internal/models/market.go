package models

import "time"

// MarketSnapshot is the research-facing view of a prediction market: the
// question being asked plus whatever pricing and resolution metadata the
// Gamma API exposes.
type MarketSnapshot struct {
	ID                 string     `json:"id"`
	Question           string     `json:"question"`
	Category           string     `json:"category,omitempty"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	YesPrice           float64    `json:"yes_price"`
	NoPrice            float64    `json:"no_price"`
	HasPrices          bool       `json:"has_prices"`
	Volume24hr         float64    `json:"volume_24hr"`
	Liquidity          float64    `json:"liquidity"`
	ResolutionSource   string     `json:"resolution_source,omitempty"`
	ResolutionCriteria string     `json:"resolution_criteria,omitempty"`
}

// DaysToResolution returns the whole days until the market's end date, or
// -1 when no deadline is known.
func (m *MarketSnapshot) DaysToResolution(now time.Time) int {
	if m.EndDate == nil {
		return -1
	}
	d := m.EndDate.Sub(now)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}
