package research

import (
	"math"
	"testing"

	"github.com/nocliffcapital/alithos/internal/models"
)

func fusionMarket(yesPrice float64) *models.MarketSnapshot {
	return &models.MarketSnapshot{
		ID:        "mkt-1",
		Question:  "Will X happen?",
		YesPrice:  yesPrice,
		NoPrice:   1 - yesPrice,
		HasPrices: true,
	}
}

func gradedSource(grade models.SourceGrade, title, content string) models.GradedSource {
	return models.GradedSource{
		Source: models.Source{Title: title, Content: content},
		Grade:  grade,
	}
}

func assertNormalized(t *testing.T, p models.Probabilities) {
	t.Helper()
	sum := p.Yes + p.No + p.Uncertain
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("probabilities sum to %.12f, want 1", sum)
	}
	for _, v := range []float64{p.Yes, p.No, p.Uncertain} {
		if v < 0 || v > 1 {
			t.Errorf("probability %.4f out of [0,1]", v)
		}
	}
}

func TestFuseProbabilitiesNormalized(t *testing.T) {
	analysis := &models.AnalysisResult{OverallConfidence: 0.7}
	sources := []models.GradedSource{
		gradedSource(models.GradeA, "Plan confirmed and on track", ""),
		gradedSource(models.GradeC, "Proposal rejected and delayed", ""),
		gradedSource(models.GradeD, "Mixed signals", ""),
	}

	result := Fuse(sources, analysis, fusionMarket(0.55))
	assertNormalized(t, result.Probabilities)
}

func TestFuseNoSourcesLeansOnPrior(t *testing.T) {
	const prior = 0.7
	result := Fuse(nil, &models.AnalysisResult{OverallConfidence: 0.5}, fusionMarket(prior))
	assertNormalized(t, result.Probabilities)

	p := result.Probabilities
	// Without evidence the posterior must stay closer to the market prior
	// than to an unweighted 1/3 split.
	if math.Abs(p.Yes-prior) >= math.Abs(p.Yes-1.0/3) {
		t.Errorf("posterior yes %.4f drifted from prior %.2f toward the uniform split", p.Yes, prior)
	}
	if math.Abs(p.Yes-prior) > 1e-9 || math.Abs(p.No-(1-prior)) > 1e-9 {
		t.Errorf("no evidence should collapse the posterior onto the prior: %+v", p)
	}
	if p.Yes <= p.No || p.Yes <= p.Uncertain {
		t.Errorf("prior %.2f should make YES the leading outcome: %+v", prior, p)
	}
	if result.WeightedEvidence != (models.GradeWeights{}) {
		t.Errorf("no sources should yield zero evidence weights, got %+v", result.WeightedEvidence)
	}
}

func TestFuseMissingPricesDefaultsPrior(t *testing.T) {
	market := fusionMarket(0.9)
	market.HasPrices = false

	result := Fuse(nil, nil, market)
	assertNormalized(t, result.Probabilities)

	// Prior falls back to 0.5 and no evidence contributes, so YES and NO
	// stay balanced.
	if math.Abs(result.Probabilities.Yes-result.Probabilities.No) > 1e-9 {
		t.Errorf("flat prior with no evidence should balance YES/NO: %+v", result.Probabilities)
	}
}

func TestGradeWeightsNormalized(t *testing.T) {
	sources := []models.GradedSource{
		gradedSource(models.GradeA, "", ""),
		gradedSource(models.GradeA, "", ""),
		gradedSource(models.GradeB, "", ""),
		gradedSource(models.GradeD, "", ""),
	}
	weights, total := gradeWeights(sources)

	wantTotal := 2*weightGradeA + weightGradeB + weightGradeD
	if math.Abs(total-wantTotal) > 1e-9 {
		t.Errorf("total weight = %.2f, want %.2f", total, wantTotal)
	}
	sum := weights.GradeA + weights.GradeB + weights.GradeC + weights.GradeD
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("normalized weights sum to %.4f, want 1", sum)
	}
	if weights.GradeA <= weights.GradeB || weights.GradeB <= weights.GradeD {
		t.Errorf("higher grades should carry more weight: %+v", weights)
	}
}

func TestClassifySentiment(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.Verdict
	}{
		{"positive", "Project approved and on track, momentum building", models.VerdictYes},
		{"negative", "Proposal rejected, timeline delayed, growing doubt", models.VerdictNo},
		{"neutral", "Officials met on Tuesday to discuss the plan", models.VerdictUncertain},
		{"balanced", "Approved in the house but rejected in the senate", models.VerdictUncertain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifySentiment(models.Source{Title: tt.text})
			if got != tt.want {
				t.Errorf("classifySentiment(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestFuseStrongYesEvidenceBeatsWeakPrior(t *testing.T) {
	analysis := &models.AnalysisResult{OverallConfidence: 0.9}
	sources := []models.GradedSource{
		gradedSource(models.GradeA, "Deal confirmed and approved, on track to close", ""),
		gradedSource(models.GradeA, "Strong momentum, widely expected to succeed", ""),
		gradedSource(models.GradeB, "Analysts say it is likely", ""),
	}

	result := Fuse(sources, analysis, fusionMarket(0.35))
	assertNormalized(t, result.Probabilities)

	if result.Verdict() != models.VerdictYes {
		t.Errorf("unanimous A/B yes evidence with high agent confidence should flip verdict to YES, got %s (%+v)",
			result.Verdict(), result.Probabilities)
	}
}

func TestFuseConfidenceBlend(t *testing.T) {
	analysis := &models.AnalysisResult{OverallConfidence: 0.8}
	sources := []models.GradedSource{
		gradedSource(models.GradeA, "confirmed", ""),
		gradedSource(models.GradeB, "likely", ""),
	}

	result := Fuse(sources, analysis, fusionMarket(0.6))
	if result.Confidence <= 0 || result.Confidence > 1 {
		t.Fatalf("confidence %.4f out of range", result.Confidence)
	}

	// All-D evidence with an indifferent agent should score lower.
	weak := Fuse([]models.GradedSource{gradedSource(models.GradeD, "meeting held", "")},
		&models.AnalysisResult{OverallConfidence: 0.5}, fusionMarket(0.6))
	if weak.Confidence >= result.Confidence {
		t.Errorf("weak evidence confidence %.4f should be below strong evidence %.4f",
			weak.Confidence, result.Confidence)
	}
}
