// Package analyze provides the listing analysis pipeline and its HTTP
// handlers: cache lookup, structured extraction with retry, key
// normalization, tiered comparable matching, pricing, and verdict.
//
// All monetary values use shopspring/decimal — never float64 for money.
package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gdxemberai/gmm-tools/internal/cache"
	"github.com/gdxemberai/gmm-tools/internal/corpus"
	"github.com/gdxemberai/gmm-tools/internal/extract"
	"github.com/gdxemberai/gmm-tools/internal/match"
	"github.com/gdxemberai/gmm-tools/internal/metrics"
	"github.com/gdxemberai/gmm-tools/internal/model"
	"github.com/gdxemberai/gmm-tools/internal/pricing"
	"github.com/gdxemberai/gmm-tools/internal/slug"
)

var (
	// ErrEmptyDescription is returned when the listing description is
	// empty after trimming.
	ErrEmptyDescription = errors.New("analyze: description must not be empty")

	// ErrInvalidPrice is returned when asking_price is zero or negative.
	ErrInvalidPrice = errors.New("analyze: asking_price must be greater than zero")
)

// Config holds the pipeline tunables.
type Config struct {
	// CacheTTL is how long a parsed record stays cached. Default 1 hour.
	CacheTTL time.Duration

	// FairBand is the relative price band treated as FAIR PRICE.
	// Default 0.10.
	FairBand decimal.Decimal
}

// DefaultConfig returns the production pipeline configuration.
func DefaultConfig() Config {
	return Config{
		CacheTTL: time.Hour,
		FairBand: pricing.DefaultFairBand,
	}
}

// Service runs the analysis pipeline. Each request is handled
// independently: the only shared state is the cache and the corpus, both
// behind concurrency-safe interfaces, so the pipeline takes no locks.
// Two concurrent cache misses for the same text may both invoke
// extraction; that duplication is accepted for simplicity (no
// single-flight coalescing).
type Service struct {
	cache     cache.Cache
	extractor extract.Extractor
	engine    *match.Engine
	corpus    corpus.Store
	cfg       Config
	wsHub     *WSHub // optional feed of completed analyses
}

// NewService creates the analysis service. All collaborators are injected;
// pass nil for hub if the WebSocket feed is not needed.
func NewService(c cache.Cache, ex extract.Extractor, eng *match.Engine, st corpus.Store, cfg Config, hub *WSHub) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.FairBand.LessThanOrEqual(decimal.Zero) {
		cfg.FairBand = pricing.DefaultFairBand
	}
	return &Service{
		cache:     c,
		extractor: ex,
		engine:    eng,
		corpus:    st,
		cfg:       cfg,
		wsHub:     hub,
	}
}

// Request is the input to one analysis.
type Request struct {
	Description string
	AskingPrice decimal.Decimal
}

// Analyze runs the full pipeline for one listing. A cached parsed record
// skips extraction but matching, pricing, and the verdict are always
// recomputed against the current asking price — a cached record must never
// replay a stale profit/loss.
func (s *Service) Analyze(ctx context.Context, req Request) (*model.AnalysisResult, error) {
	start := time.Now()

	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return nil, ErrEmptyDescription
	}
	if !req.AskingPrice.IsPositive() {
		return nil, ErrInvalidPrice
	}

	key := cache.Key(desc)
	card, hit := s.lookupCached(ctx, key)
	if !hit {
		var err error
		card, err = s.extractor.Extract(ctx, desc)
		if err != nil {
			return nil, err
		}
	}

	keys := slug.Keys{
		Subject: slug.Make(card.PlayerName),
		Line:    slug.Make(card.Brand),
		Variant: slug.Make(deref(card.Variation)),
	}

	matched, err := s.engine.Match(ctx, card, keys)
	if err != nil {
		return nil, err
	}

	var estimate *decimal.Decimal
	if len(matched.Sales) > 0 {
		prices := make([]decimal.Decimal, len(matched.Sales))
		for i, sale := range matched.Sales {
			prices[i] = sale.Price
		}
		e := pricing.Estimate(prices)
		estimate = &e
	}

	appraisal := pricing.Appraise(req.AskingPrice, estimate, s.cfg.FairBand)

	if !hit {
		// Best-effort write: failures are logged and swallowed, and an
		// in-flight write may outlive a cancelled request since the entry
		// is idempotent.
		s.writeCache(context.WithoutCancel(ctx), key, card)
	}

	result := &model.AnalysisResult{
		ParsedData:     card,
		EstimatedValue: estimate,
		ProfitLoss:     appraisal.ProfitLoss,
		Verdict:        appraisal.Summary,
		MatchTier:      matched.Tier,
		SalesCount:     len(matched.Sales),
		Cached:         hit,
	}

	metrics.AnalysesTotal.WithLabelValues(appraisal.Verdict, matched.Tier).Inc()
	metrics.AnalysisLatency.Observe(time.Since(start).Seconds())

	slog.Info("analysis completed",
		"subject", keys.Subject,
		"line", keys.Line,
		"tier", matched.Tier,
		"sales_count", len(matched.Sales),
		"verdict", appraisal.Verdict,
		"cached", hit,
	)

	if s.wsHub != nil {
		msg := WSMessage{
			Type:       "analysis_completed",
			Subject:    keys.Subject,
			Verdict:    appraisal.Verdict,
			MatchTier:  matched.Tier,
			SalesCount: len(matched.Sales),
			Cached:     hit,
		}
		if estimate != nil {
			msg.EstimatedValue = estimate.StringFixedBank(pricing.PriceScale)
		}
		s.wsHub.Broadcast(msg)
	}

	return result, nil
}

// lookupCached returns the cached parsed record for key, treating read
// errors and undecodable entries as misses.
func (s *Service) lookupCached(ctx context.Context, key string) (*model.ParsedCard, bool) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		slog.Warn("cache read failed, treating as miss", "key", key, "err", err)
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var card model.ParsedCard
	if err := json.Unmarshal(data, &card); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		slog.Warn("cache entry undecodable, treating as miss", "key", key, "err", err)
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &card, true
}

func (s *Service) writeCache(ctx context.Context, key string, card *model.ParsedCard) {
	data, err := json.Marshal(card)
	if err != nil {
		slog.Warn("cache entry marshal failed", "key", key, "err", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cfg.CacheTTL); err != nil {
		slog.Warn("cache write failed", "key", key, "err", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// --- HTTP layer ---

// AnalyzeRequest is the JSON body for POST /api/v1/analyze.
type AnalyzeRequest struct {
	Description string          `json:"description"`
	AskingPrice decimal.Decimal `json:"asking_price"`
}

// HandleAnalyze handles POST /api/v1/analyze.
func (s *Service) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.Analyze(r.Context(), Request{
		Description: req.Description,
		AskingPrice: req.AskingPrice,
	})
	if err != nil {
		writeAnalyzeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleClearCache handles DELETE /api/v1/cache.
func (s *Service) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.cache.Clear(r.Context())
	if err != nil {
		slog.Error("cache clear failed", "err", err)
		writeError(w, "failed to clear cache", http.StatusInternalServerError)
		return
	}

	slog.Info("cache cleared", "deleted", deleted)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"deleted": deleted})
}

// HandleCacheStats handles GET /api/v1/cache/stats.
func (s *Service) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		slog.Error("cache stats failed", "err", err)
		writeError(w, "failed to load cache stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// HandleCorpusStats handles GET /api/v1/comparables/stats.
func (s *Service) HandleCorpusStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.corpus.Stats(r.Context())
	if err != nil {
		slog.Error("corpus stats failed", "err", err)
		writeError(w, "failed to load corpus stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// analyzeErrorResponse maps pipeline errors onto the fixed error taxonomy:
// validation (400 with a precise message), extraction failure (502 with a
// distinct message), everything else a generic internal error with the
// detail kept server-side.
func analyzeErrorResponse(err error) (string, int) {
	switch {
	case errors.Is(err, ErrEmptyDescription), errors.Is(err, ErrInvalidPrice):
		return strings.TrimPrefix(err.Error(), "analyze: "), http.StatusBadRequest
	case errors.Is(err, extract.ErrFailed):
		return "listing could not be parsed", http.StatusBadGateway
	default:
		slog.Error("analysis failed", "err", err)
		return "internal error", http.StatusInternalServerError
	}
}

func writeAnalyzeError(w http.ResponseWriter, err error) {
	message, status := analyzeErrorResponse(err)
	writeError(w, message, status)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
