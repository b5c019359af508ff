package models

import "time"

// Source is a raw retrieved document before grading.
type Source struct {
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	Content       string     `json:"content"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	Author        string     `json:"author,omitempty"`
	Domain        string     `json:"domain,omitempty"`
}

// SourceGrade is the letter grade derived from the four quality scores.
type SourceGrade string

const (
	GradeA SourceGrade = "A"
	GradeB SourceGrade = "B"
	GradeC SourceGrade = "C"
	GradeD SourceGrade = "D"
)

// GradedSource wraps a source with four 0-1 quality scores and the letter
// grade derived from their unweighted average: A>=0.8, B>=0.6, C>=0.4, else D.
type GradedSource struct {
	Source      Source      `json:"source"`
	Credibility float64     `json:"credibility"`
	Recency     float64     `json:"recency"`
	Bias        float64     `json:"bias"`
	Clarity     float64     `json:"clarity"`
	Grade       SourceGrade `json:"grade"`
}

// AverageScore is the unweighted mean of the four quality scores.
func (g GradedSource) AverageScore() float64 {
	return (g.Credibility + g.Recency + g.Bias + g.Clarity) / 4
}

// GradeValue maps letter grades onto a 0-1 scale for confidence weighting.
func (g SourceGrade) GradeValue() float64 {
	switch g {
	case GradeA:
		return 1.0
	case GradeB:
		return 0.75
	case GradeC:
		return 0.5
	default:
		return 0.25
	}
}

// ResearchStrategy is the derived research plan for a market question. Pure
// data, regenerated per research run.
type ResearchStrategy struct {
	MarketQuestion         string   `json:"market_question"`
	KeyInformationNeeded   []string `json:"key_information_needed"`
	SearchQueries          []string `json:"search_queries"`
	ImportantFactors       []string `json:"important_factors"`
	TimelineConsiderations string   `json:"timeline_considerations"`
}

// StageResult is the parsed output of one agent stage.
type StageResult struct {
	Stage      string  `json:"stage"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	RawOutput  string  `json:"raw_output"`
}

// AnalysisResult is the combined outcome of the analyst/critic/aggregator
// pipeline. OverallConfidence = 0.3*analyst + 0.2*critic + 0.5*aggregator.
type AnalysisResult struct {
	Analyst           StageResult `json:"analyst"`
	Critic            StageResult `json:"critic"`
	Aggregator        StageResult `json:"aggregator"`
	OverallConfidence float64     `json:"overall_confidence"`
}

// Probabilities holds the three posterior outcome probabilities. They are
// normalized to sum to 1.
type Probabilities struct {
	Yes       float64 `json:"yes"`
	No        float64 `json:"no"`
	Uncertain float64 `json:"uncertain"`
}

// GradeWeights is the normalized contribution of each source grade tier to
// the fused evidence.
type GradeWeights struct {
	GradeA float64 `json:"grade_a"`
	GradeB float64 `json:"grade_b"`
	GradeC float64 `json:"grade_c"`
	GradeD float64 `json:"grade_d"`
}

// BayesianResult is the fused probabilistic verdict for a market question.
type BayesianResult struct {
	Probabilities    Probabilities `json:"probabilities"`
	Confidence       float64       `json:"confidence"`
	WeightedEvidence GradeWeights  `json:"weighted_evidence"`
	Explanation      string        `json:"explanation"`
}

// Verdict labels the highest posterior probability.
type Verdict string

const (
	VerdictYes       Verdict = "YES"
	VerdictNo        Verdict = "NO"
	VerdictUncertain Verdict = "UNCERTAIN"
)

// Verdict returns the outcome with the highest posterior probability.
func (r *BayesianResult) Verdict() Verdict {
	p := r.Probabilities
	if p.Yes >= p.No && p.Yes >= p.Uncertain {
		return VerdictYes
	}
	if p.No >= p.Uncertain {
		return VerdictNo
	}
	return VerdictUncertain
}

// ResearchRun is one completed execution of the research pipeline.
type ResearchRun struct {
	ID          string         `json:"id"`
	MarketID    string         `json:"market_id"`
	Question    string         `json:"question"`
	Verdict     Verdict        `json:"verdict"`
	Result      BayesianResult `json:"result"`
	SourceCount int            `json:"source_count"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}
