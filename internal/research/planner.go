// Package research implements the market research pipeline: strategy
// planning, source grading, multi-agent analysis, and Bayesian fusion.
package research

import (
	"fmt"
	"strings"
	"time"

	"github.com/nocliffcapital/alithos/internal/models"
)

// stopwords excluded when extracting key terms from a market question.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "in": true, "is": true, "it": true,
	"of": true, "on": true, "or": true, "the": true, "to": true, "was": true,
	"what": true, "when": true, "which": true, "who": true, "will": true,
	"with": true,
}

// maxSearchQueries caps the derived query list.
const maxSearchQueries = 5

// Plan derives a research strategy from a market snapshot. Pure function:
// no state, regenerated per research run.
func Plan(market *models.MarketSnapshot, now time.Time) models.ResearchStrategy {
	question := market.Question
	lower := strings.ToLower(question)
	category := strings.ToLower(market.Category)
	days := market.DaysToResolution(now)

	needs := []string{
		"Current status and latest developments",
		"Expert opinions and analysis",
		"Historical context and precedents",
	}
	switch category {
	case "politics":
		needs = append(needs, "Polling data and trends", "Key endorsements and coalition shifts")
	case "sports":
		needs = append(needs, "Team and player statistics", "Injury reports and availability")
	case "crypto", "finance":
		needs = append(needs, "Technical indicators and on-chain data", "Regulatory news and filings")
	case "tech", "technology":
		needs = append(needs, "Product launch timelines", "Company financials and guidance")
	}
	if strings.Contains(lower, "will") {
		needs = append(needs, "Forecasts and predictions from credible analysts")
	}
	if strings.Contains(lower, "exceed") || strings.Contains(lower, "above") || strings.Contains(lower, "below") {
		needs = append(needs, "Benchmark and threshold data")
	}
	if days >= 0 && days <= 7 {
		needs = append(needs, "Breaking news and last-minute developments")
	} else if days >= 0 && days <= 30 {
		needs = append(needs, "Recent trend data")
	}

	keyTerms := extractKeyTerms(question)

	var queries []string
	queries = appendQuery(queries, question)
	queries = appendQuery(queries, keyTerms)
	switch category {
	case "politics":
		queries = appendQuery(queries, keyTerms+" latest polls")
	case "sports":
		queries = appendQuery(queries, keyTerms+" odds analysis")
	case "crypto", "finance":
		queries = appendQuery(queries, keyTerms+" price forecast")
	case "tech", "technology":
		queries = appendQuery(queries, keyTerms+" announcement news")
	}
	for i := 0; i < len(needs) && i < 3; i++ {
		queries = appendQuery(queries, keyTerms+" "+strings.ToLower(needs[i]))
	}
	if len(queries) > maxSearchQueries {
		queries = queries[:maxSearchQueries]
	}

	factors := []string{
		fmt.Sprintf("Current market probability (%.0f%% YES)", impliedYesPercent(market)),
		"Trading volume and liquidity",
		"Recent price action and momentum",
	}
	if strings.Contains(lower, "by ") || strings.Contains(lower, "before") {
		factors = append(factors, "Deadline feasibility given current pace")
	}
	switch category {
	case "politics":
		factors = append(factors, "Electoral math and turnout scenarios")
	case "sports":
		factors = append(factors, "Head-to-head record and venue")
	case "crypto", "finance":
		factors = append(factors, "Macro conditions and market sentiment")
	case "tech", "technology":
		factors = append(factors, "Execution track record of the company")
	}

	return models.ResearchStrategy{
		MarketQuestion:         question,
		KeyInformationNeeded:   needs,
		SearchQueries:          queries,
		ImportantFactors:       factors,
		TimelineConsiderations: timelineStatement(days),
	}
}

func impliedYesPercent(market *models.MarketSnapshot) float64 {
	if !market.HasPrices {
		return 50
	}
	return market.YesPrice * 100
}

// extractKeyTerms strips stopwords and punctuation from the question.
func extractKeyTerms(question string) string {
	words := strings.Fields(question)
	var terms []string
	for _, w := range words {
		cleaned := strings.ToLower(strings.Trim(w, ".,!?\"'()[]{}:;"))
		if cleaned == "" || stopwords[cleaned] {
			continue
		}
		terms = append(terms, cleaned)
	}
	return strings.Join(terms, " ")
}

// appendQuery adds q unless empty or already present.
func appendQuery(queries []string, q string) []string {
	q = strings.TrimSpace(q)
	if q == "" {
		return queries
	}
	for _, existing := range queries {
		if strings.EqualFold(existing, q) {
			return queries
		}
	}
	return append(queries, q)
}

// timelineStatement buckets days-to-resolution into an urgency statement.
func timelineStatement(days int) string {
	switch {
	case days < 0:
		return "No resolution deadline known; weigh structural factors over news flow"
	case days <= 7:
		return fmt.Sprintf("Resolves in %d day(s): immediate-term signals dominate, prioritize breaking news", days)
	case days <= 30:
		return fmt.Sprintf("Resolves in %d days: short-term developments matter most", days)
	case days <= 90:
		return fmt.Sprintf("Resolves in %d days: balance short-term news against medium-term trends", days)
	default:
		return fmt.Sprintf("Resolves in %d days: long-term structural factors dominate", days)
	}
}
