package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	analytics "energyiq/internal/analytics/domain/aggregate"
	insights "energyiq/internal/insights/domain"
	"energyiq/internal/observability/metrics"
)

// Result summarizes one generator run.
type Result struct {
	BatchID      uuid.UUID
	FactsScanned int
	Generated    int
}

// Generator recomputes ranked insights from the full aggregate history.
type Generator struct {
	history insights.HistoryReader
	repo    insights.Repository
	rules   insights.RuleSet
	clock   analytics.Clock
	logger  *zap.Logger
}

// NewGenerator constructs the generator.
func NewGenerator(history insights.HistoryReader, repo insights.Repository, rules insights.RuleSet, clock analytics.Clock, logger *zap.Logger) (*Generator, error) {
	if history == nil {
		return nil, errors.New("insight generator: nil history reader")
	}
	if repo == nil {
		return nil, errors.New("insight generator: nil repository")
	}
	if clock == nil {
		clock = analytics.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{history: history, repo: repo, rules: rules, clock: clock, logger: logger}, nil
}

// Run scans every aggregate, ranks one insight per device and replaces the
// active insight set with the new batch.
func (g *Generator) Run(ctx context.Context) (Result, error) {
	started := g.clock.Now()
	result, err := g.run(ctx)
	elapsed := g.clock.Now().Sub(started)
	if err != nil {
		metrics.ObserveInsightRun(metrics.ResultError, elapsed, 0)
		g.logger.Warn("insight generation failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return Result{}, err
	}

	metrics.ObserveInsightRun(metrics.ResultSuccess, elapsed, result.Generated)
	g.logger.Info("insights generated",
		zap.String("batch_id", result.BatchID.String()),
		zap.Int("facts", result.FactsScanned),
		zap.Int("generated", result.Generated),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

func (g *Generator) run(ctx context.Context) (Result, error) {
	facts, err := g.history.ListFacts(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("insight generator: load history: %w", err)
	}

	ranked := insights.Rank(g.rules, facts)
	batchID := uuid.New()
	batch := insights.NewBatch(batchID, ranked, g.clock.Now().UTC())
	if err := g.repo.ReplaceActive(ctx, batchID, batch); err != nil {
		return Result{}, fmt.Errorf("insight generator: persist batch: %w", err)
	}
	return Result{BatchID: batchID, FactsScanned: len(facts), Generated: len(batch)}, nil
}
