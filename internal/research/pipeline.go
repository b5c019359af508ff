package research

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nocliffcapital/alithos/internal/logger"
	"github.com/nocliffcapital/alithos/internal/models"
)

// MarketProvider supplies the market snapshot a research run starts from.
type MarketProvider interface {
	FetchMarket(ctx context.Context, marketID string) (*models.MarketSnapshot, error)
}

// SourceProvider retrieves raw sources for a research strategy. The actual
// search backend is external; tests inject fakes.
type SourceProvider interface {
	Search(ctx context.Context, strategy models.ResearchStrategy) ([]models.Source, error)
}

// RunStore persists completed research runs. Failures are logged and
// non-fatal; the verdict is still returned to the caller.
type RunStore interface {
	SaveResearchRun(ctx context.Context, run models.ResearchRun) error
}

// Pipeline orchestrates one research run: plan, search, grade, analyze,
// fuse. Fully sequential; latency is dominated by the three agent calls, so
// the whole run is bounded by a single timeout.
type Pipeline struct {
	markets    MarketProvider
	sources    SourceProvider
	grader     *Grader
	analyzer   *Analyzer
	store      RunStore
	timeout    time.Duration
	maxSources int
}

// NewPipeline wires a research pipeline. store may be nil (verdicts are then
// not persisted); sources may be nil (analysis proceeds without evidence).
func NewPipeline(markets MarketProvider, sources SourceProvider, analyzer *Analyzer, store RunStore, timeout time.Duration, maxSources int) *Pipeline {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	if maxSources <= 0 {
		maxSources = 12
	}
	return &Pipeline{
		markets:    markets,
		sources:    sources,
		grader:     NewGrader(),
		analyzer:   analyzer,
		store:      store,
		timeout:    timeout,
		maxSources: maxSources,
	}
}

// Run executes the full pipeline for a market. Any stage failure aborts the
// run with no partial result; the caller treats a timeout as retryable.
func (p *Pipeline) Run(ctx context.Context, marketID string) (*models.ResearchRun, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	startedAt := time.Now()

	market, err := p.markets.FetchMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market %s: %w", marketID, err)
	}

	strategy := Plan(market, startedAt)
	logger.Debug("Research strategy for %s: %d queries, %d information needs",
		marketID, len(strategy.SearchQueries), len(strategy.KeyInformationNeeded))

	var raw []models.Source
	if p.sources != nil {
		raw, err = p.sources.Search(ctx, strategy)
		if err != nil {
			return nil, fmt.Errorf("source search failed: %w", err)
		}
	}
	if len(raw) > p.maxSources {
		raw = raw[:p.maxSources]
	}

	graded := p.grader.GradeAll(raw)
	logger.Debug("Graded %d sources for %s", len(graded), marketID)

	analysis, err := p.analyzer.Analyze(ctx, market.Question, graded)
	if err != nil {
		return nil, err
	}

	result := Fuse(graded, analysis, market)

	run := &models.ResearchRun{
		ID:          uuid.New().String(),
		MarketID:    marketID,
		Question:    market.Question,
		Verdict:     result.Verdict(),
		Result:      result,
		SourceCount: len(graded),
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}

	if p.store != nil {
		if err := p.store.SaveResearchRun(ctx, *run); err != nil {
			logger.Warn("Failed to persist research run %s: %v", run.ID, err)
		}
	}

	logger.Info("Research run %s for market %s: verdict=%s confidence=%.2f",
		run.ID, marketID, run.Verdict, result.Confidence)
	return run, nil
}
