package research

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nocliffcapital/alithos/internal/models"
)

// ErrAuthentication marks an upstream auth failure (missing or rejected API
// key). It is surfaced to the caller distinctly from generic stage failures.
var ErrAuthentication = errors.New("llm authentication failed")

// AgentConfig identifies one analysis agent and its instructions.
type AgentConfig struct {
	Name         string
	SystemPrompt string
}

// AgentRunner executes a single agent invocation. The pipeline depends only
// on this narrow interface, never on a vendor SDK.
type AgentRunner interface {
	Run(ctx context.Context, agent AgentConfig, prompt string) (string, error)
}

// Stage weights for the overall confidence blend.
const (
	analystWeight    = 0.3
	criticWeight     = 0.2
	aggregatorWeight = 0.5
)

const outputContract = `End your response with exactly two blocks:
CONFIDENCE: <a number between 0 and 1>
REASONING: <your reasoning>`

var (
	analystAgent = AgentConfig{
		Name: "analyst",
		SystemPrompt: "You are a prediction market analyst. Assess the evidence for the " +
			"market question and estimate how confident you are in a YES resolution. " + outputContract,
	}
	criticAgent = AgentConfig{
		Name: "critic",
		SystemPrompt: "You are a critical reviewer. Challenge the analyst's assessment: " +
			"identify weak evidence, missing considerations, and overconfidence. Give your own " +
			"confidence estimate. " + outputContract,
	}
	aggregatorAgent = AgentConfig{
		Name: "aggregator",
		SystemPrompt: "You are a forecasting aggregator. Synthesize the analyst's assessment " +
			"and the critic's review into a final judgment. " + outputContract,
	}
)

var (
	confidenceRe = regexp.MustCompile(`(?i)CONFIDENCE:\s*([0-9]*\.?[0-9]+)`)
	reasoningRe  = regexp.MustCompile(`(?is)REASONING:\s*(.+)`)
)

// Analyzer runs the three-stage agent pipeline: analyst, critic, aggregator.
// Each stage's full output is handed verbatim to the next stage.
type Analyzer struct {
	runner AgentRunner
}

// NewAnalyzer creates an analyzer backed by the given runner.
func NewAnalyzer(runner AgentRunner) *Analyzer {
	return &Analyzer{runner: runner}
}

// Analyze executes all three stages sequentially. Any stage failure aborts
// the whole analysis; there is no partial-stage fallback.
func (a *Analyzer) Analyze(ctx context.Context, question string, sources []models.GradedSource) (*models.AnalysisResult, error) {
	analystPrompt := buildAnalystPrompt(question, sources)
	analyst, err := a.runStage(ctx, analystAgent, analystPrompt)
	if err != nil {
		return nil, err
	}

	criticPrompt := fmt.Sprintf("Market question: %s\n\nAnalyst assessment:\n%s", question, analyst.RawOutput)
	critic, err := a.runStage(ctx, criticAgent, criticPrompt)
	if err != nil {
		return nil, err
	}

	aggregatorPrompt := fmt.Sprintf(
		"Market question: %s\n\nAnalyst assessment:\n%s\n\nCritic review:\n%s",
		question, analyst.RawOutput, critic.RawOutput)
	aggregator, err := a.runStage(ctx, aggregatorAgent, aggregatorPrompt)
	if err != nil {
		return nil, err
	}

	return &models.AnalysisResult{
		Analyst:    analyst,
		Critic:     critic,
		Aggregator: aggregator,
		OverallConfidence: analystWeight*analyst.Confidence +
			criticWeight*critic.Confidence +
			aggregatorWeight*aggregator.Confidence,
	}, nil
}

func (a *Analyzer) runStage(ctx context.Context, agent AgentConfig, prompt string) (models.StageResult, error) {
	output, err := a.runner.Run(ctx, agent, prompt)
	if err != nil {
		if errors.Is(err, ErrAuthentication) {
			return models.StageResult{}, fmt.Errorf("stage %s: %w", agent.Name, err)
		}
		return models.StageResult{}, fmt.Errorf("analysis stage %s failed: %w", agent.Name, err)
	}

	confidence, reasoning := parseStageOutput(output)
	return models.StageResult{
		Stage:      agent.Name,
		Confidence: confidence,
		Reasoning:  reasoning,
		RawOutput:  output,
	}, nil
}

// parseStageOutput extracts the CONFIDENCE and REASONING blocks from
// free-text agent output. A missing or unparseable confidence defaults to
// 0.5; parsed values are clamped to [0,1].
func parseStageOutput(output string) (float64, string) {
	confidence := 0.5
	if m := confidenceRe.FindStringSubmatch(output); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			confidence = clamp01(v)
		}
	}

	reasoning := strings.TrimSpace(output)
	if m := reasoningRe.FindStringSubmatch(output); m != nil {
		reasoning = strings.TrimSpace(m[1])
	}
	return confidence, reasoning
}

func buildAnalystPrompt(question string, sources []models.GradedSource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market question: %s\n\nGraded sources (%d):\n", question, len(sources))
	for i, gs := range sources {
		excerpt := gs.Source.Content
		if len(excerpt) > 500 {
			excerpt = excerpt[:500] + "..."
		}
		fmt.Fprintf(&b, "\n[%d] (%s) %s\n%s\n", i+1, gs.Grade, gs.Source.Title, excerpt)
	}
	if len(sources) == 0 {
		b.WriteString("\n(no sources retrieved; reason from general knowledge and the market itself)\n")
	}
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
