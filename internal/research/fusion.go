package research

import (
	"fmt"
	"strings"

	"github.com/nocliffcapital/alithos/internal/models"
)

// Grade multipliers used when weighting source evidence.
const (
	weightGradeA = 4.0
	weightGradeB = 2.0
	weightGradeC = 1.0
	weightGradeD = 0.5
)

// yesIndicators and noIndicators classify a source's sentiment toward a YES
// resolution by simple keyword counting over title+content.
var yesIndicators = []string{
	"will happen", "likely", "expected", "confirmed", "on track", "approved",
	"ahead", "leading", "favored", "progress", "succeed", "positive",
	"momentum", "surge", "wins",
}

var noIndicators = []string{
	"unlikely", "denied", "rejected", "delayed", "behind", "failed",
	"trailing", "doubt", "cancelled", "setback", "negative", "collapse",
	"stalled", "loses", "blocked",
}

// Blend weights for the posterior computation.
const (
	priorBlendWeight      = 0.7
	likelihoodBlendWeight = 0.3
)

// Fuse combines the market's implied probability (prior), grade-weighted
// source sentiment (likelihood), and agent confidence into posterior
// YES/NO/UNCERTAIN probabilities plus an overall confidence score.
func Fuse(sources []models.GradedSource, analysis *models.AnalysisResult, market *models.MarketSnapshot) models.BayesianResult {
	prior := 0.5
	if market != nil && market.HasPrices {
		prior = clamp01(market.YesPrice)
	}

	weights, totalWeight := gradeWeights(sources)
	likeYes, likeNo, likeUncertain := sourceLikelihood(sources)

	agentWeight := 0.5
	if analysis != nil {
		agentWeight = clamp01(analysis.OverallConfidence)
	}
	sourceWeight := 1 - agentWeight

	posterior := func(priorP, like float64) float64 {
		return (priorP*sourceWeight+like*agentWeight)*priorBlendWeight + like*likelihoodBlendWeight
	}
	yes := clamp01(posterior(prior, likeYes))
	no := clamp01(posterior(1-prior, likeNo))
	uncertain := clamp01(posterior(0, likeUncertain))

	yes, no, uncertain = normalize(yes, no, uncertain)

	spread := maxOf(yes, no, uncertain) - minOf(yes, no, uncertain)
	confidence := 0.3*averageGradeValue(sources) + 0.4*agentWeight + 0.3*spread

	return models.BayesianResult{
		Probabilities:    models.Probabilities{Yes: yes, No: no, Uncertain: uncertain},
		Confidence:       clamp01(confidence),
		WeightedEvidence: weights,
		Explanation:      explain(prior, totalWeight, len(sources), agentWeight, yes, no, uncertain),
	}
}

// gradeWeights counts sources per grade and normalizes their multipliers to
// sum to 1. With no sources all weights are 0 (the denominator guard).
func gradeWeights(sources []models.GradedSource) (models.GradeWeights, float64) {
	var a, b, c, d int
	for _, s := range sources {
		switch s.Grade {
		case models.GradeA:
			a++
		case models.GradeB:
			b++
		case models.GradeC:
			c++
		default:
			d++
		}
	}
	wa := float64(a) * weightGradeA
	wb := float64(b) * weightGradeB
	wc := float64(c) * weightGradeC
	wd := float64(d) * weightGradeD
	total := wa + wb + wc + wd
	if total == 0 {
		return models.GradeWeights{}, 0
	}
	return models.GradeWeights{
		GradeA: wa / total,
		GradeB: wb / total,
		GradeC: wc / total,
		GradeD: wd / total,
	}, total
}

// sourceLikelihood accumulates grade-weighted sentiment mass into yes/no/
// uncertain buckets and normalizes. With no mass it contributes nothing, so
// after normalization the posterior collapses onto the prior.
func sourceLikelihood(sources []models.GradedSource) (yes, no, uncertain float64) {
	for _, s := range sources {
		weight := gradeMultiplier(s.Grade)
		switch classifySentiment(s.Source) {
		case models.VerdictYes:
			yes += weight
		case models.VerdictNo:
			no += weight
		default:
			uncertain += weight
		}
	}
	total := yes + no + uncertain
	if total == 0 {
		return 0, 0, 0
	}
	return yes / total, no / total, uncertain / total
}

func classifySentiment(source models.Source) models.Verdict {
	text := strings.ToLower(source.Title + " " + source.Content)
	yesCount, noCount := 0, 0
	for _, kw := range yesIndicators {
		yesCount += strings.Count(text, kw)
	}
	for _, kw := range noIndicators {
		noCount += strings.Count(text, kw)
	}
	switch {
	case yesCount > noCount:
		return models.VerdictYes
	case noCount > yesCount:
		return models.VerdictNo
	default:
		return models.VerdictUncertain
	}
}

func gradeMultiplier(g models.SourceGrade) float64 {
	switch g {
	case models.GradeA:
		return weightGradeA
	case models.GradeB:
		return weightGradeB
	case models.GradeC:
		return weightGradeC
	default:
		return weightGradeD
	}
}

func averageGradeValue(sources []models.GradedSource) float64 {
	if len(sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sources {
		sum += s.Grade.GradeValue()
	}
	return sum / float64(len(sources))
}

// normalize clamps each probability to [0,1] and divides by their sum so the
// three always total 1.
func normalize(yes, no, uncertain float64) (float64, float64, float64) {
	sum := yes + no + uncertain
	if sum == 0 {
		third := 1.0 / 3
		return third, third, third
	}
	return yes / sum, no / sum, uncertain / sum
}

func explain(prior, totalWeight float64, sourceCount int, agentWeight, yes, no, uncertain float64) string {
	return fmt.Sprintf(
		"Prior (market-implied YES) %.1f%%; %d graded source(s) with total evidence weight %.1f; "+
			"agent confidence %.2f. Posterior: YES %.1f%%, NO %.1f%%, UNCERTAIN %.1f%%.",
		prior*100, sourceCount, totalWeight, agentWeight, yes*100, no*100, uncertain*100)
}

func maxOf(vals ...float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(vals ...float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
