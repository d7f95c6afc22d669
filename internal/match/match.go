// Package match implements the tiered comparable-sale lookup: an exact
// tier over the normalized keys, a fuzzy fallback over subject-key
// similarity, and a terminal no-match state.
//
// The fallback is an explicit state machine rather than nested
// conditionals so each tier tests in isolation:
//
//	Start -> Tier1Exact -> (rows) Matched(exact)
//	                    -> (none) Tier2Fuzzy -> (rows) Matched(fuzzy)
//	                                         -> (none) NoMatch
package match

import (
	"context"
	"fmt"

	"github.com/gdxemberai/gmm-tools/internal/corpus"
	"github.com/gdxemberai/gmm-tools/internal/model"
	"github.com/gdxemberai/gmm-tools/internal/slug"
)

// Match tiers. None is the terminal state when both tiers come up empty.
const (
	TierExact = "exact"
	TierFuzzy = "fuzzy"
	TierNone  = "none"
)

// DefaultSimilarityThreshold is the Tier-2 subject similarity floor.
// 0.3 is the pg_trgm default; tune via Config for corpora with shorter
// or noisier subject keys.
const DefaultSimilarityThreshold = 0.3

// DefaultMaxComparables caps how many sales either tier returns.
const DefaultMaxComparables = 10

// Config holds the engine tunables.
type Config struct {
	SimilarityThreshold float64
	MaxComparables      int
}

// Engine runs the tiered lookup against a corpus.
type Engine struct {
	querier corpus.Querier
	cfg     Config
}

// NewEngine creates a match engine. Zero config fields fall back to the
// package defaults.
func NewEngine(querier corpus.Querier, cfg Config) *Engine {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.MaxComparables <= 0 {
		cfg.MaxComparables = DefaultMaxComparables
	}
	return &Engine{querier: querier, cfg: cfg}
}

// Result is the outcome of one lookup: the tier that produced the
// comparables and the ordered comparables themselves. Ephemeral, scoped to
// one request.
type Result struct {
	Tier  string
	Sales []model.ComparableSale
}

// Match resolves comparables for a parsed record. Tier 2 runs if and only
// if Tier 1 returns zero rows.
func (e *Engine) Match(ctx context.Context, card *model.ParsedCard, keys slug.Keys) (Result, error) {
	exact := corpus.ExactQuery{
		SubjectID: keys.Subject,
		LineID:    keys.Line,
		VariantID: keys.Variant,
		Limit:     e.cfg.MaxComparables,
	}
	// Grade and grader constrain Tier 1 only when the record provides them.
	if card.Grade != nil {
		exact.Grade = card.Grade
	}
	if card.GradingCompany != nil {
		exact.Grader = card.GradingCompany
	}

	sales, err := e.querier.QueryExact(ctx, exact)
	if err != nil {
		return Result{}, fmt.Errorf("match: tier 1: %w", err)
	}
	if len(sales) > 0 {
		return Result{Tier: TierExact, Sales: sales}, nil
	}

	sales, err = e.querier.QueryFuzzy(ctx, corpus.FuzzyQuery{
		SubjectID: keys.Subject,
		LineID:    keys.Line,
		Year:      card.Year,
		Threshold: e.cfg.SimilarityThreshold,
		Limit:     e.cfg.MaxComparables,
	})
	if err != nil {
		return Result{}, fmt.Errorf("match: tier 2: %w", err)
	}
	if len(sales) > 0 {
		return Result{Tier: TierFuzzy, Sales: sales}, nil
	}

	return Result{Tier: TierNone}, nil
}
