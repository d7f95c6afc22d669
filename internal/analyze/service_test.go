package analyze_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/gdxemberai/gmm-tools/internal/analyze"
	"github.com/gdxemberai/gmm-tools/internal/cache"
	"github.com/gdxemberai/gmm-tools/internal/corpus"
	"github.com/gdxemberai/gmm-tools/internal/extract"
	"github.com/gdxemberai/gmm-tools/internal/match"
	"github.com/gdxemberai/gmm-tools/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

// stubExtractor returns a fixed card (or error) and counts calls.
type stubExtractor struct {
	card  *model.ParsedCard
	err   error
	calls int
}

func (s *stubExtractor) Extract(context.Context, string) (*model.ParsedCard, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.card, nil
}

func jordanCard() *model.ParsedCard {
	return &model.ParsedCard{
		PlayerName: "Michael Jordan",
		Brand:      "Fleer",
		Year:       intp(1986),
		Confidence: model.ConfidenceHigh,
		Warnings:   []string{},
	}
}

// newTestEnv wires a Service onto in-memory collaborators and a chi router.
func newTestEnv(t *testing.T, ex extract.Extractor) (*corpus.MemoryStore, chi.Router) {
	t.Helper()
	ms := corpus.NewMemoryStore()
	mc := cache.NewMemoryCache()
	eng := match.NewEngine(ms, match.Config{})
	svc := analyze.NewService(mc, ex, eng, ms, analyze.DefaultConfig(), nil)

	r := chi.NewRouter()
	r.Post("/api/v1/analyze", svc.HandleAnalyze)
	r.Post("/api/v1/analyze/bulk", svc.HandleBulkAnalyze)
	r.Delete("/api/v1/cache", svc.HandleClearCache)
	r.Get("/api/v1/cache/stats", svc.HandleCacheStats)
	r.Get("/api/v1/comparables/stats", svc.HandleCorpusStats)

	return ms, r
}

func seedComparable(t *testing.T, ms *corpus.MemoryStore, price float64, soldAt time.Time) {
	t.Helper()
	sale := &model.ComparableSale{
		SubjectID: "michael-jordan",
		LineID:    "fleer",
		VariantID: strp("base"),
		Year:      intp(1986),
		Price:     d(price),
		SoldAt:    soldAt,
	}
	if err := ms.InsertSale(context.Background(), sale); err != nil {
		t.Fatalf("seed comparable: %v", err)
	}
}

func doAnalyze(t *testing.T, router chi.Router, description string, price float64) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(analyze.AnalyzeRequest{
		Description: description,
		AskingPrice: d(price),
	})
	req := httptest.NewRequest("POST", "/api/v1/analyze", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) model.AnalysisResult {
	t.Helper()
	var res model.AnalysisResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return res
}

func TestAnalyze_FairPriceScenario(t *testing.T) {
	ex := &stubExtractor{card: jordanCard()}
	ms, router := newTestEnv(t, ex)
	now := time.Now().UTC()
	for i, p := range []float64{140, 160, 180} {
		seedComparable(t, ms, p, now.Add(time.Duration(i)*time.Hour))
	}

	w := doAnalyze(t, router, "1986 Fleer Michael Jordan", 150)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decodeResult(t, w)

	// Three comparables trim to the middle value: estimate 160.
	if res.EstimatedValue == nil || !res.EstimatedValue.Equal(d(160)) {
		t.Errorf("expected estimate 160, got %v", res.EstimatedValue)
	}
	if res.ProfitLoss == nil || !res.ProfitLoss.Equal(d(-10)) {
		t.Errorf("expected profit/loss -10, got %v", res.ProfitLoss)
	}
	if res.Verdict != "FAIR PRICE - Listing matches market value" {
		t.Errorf("unexpected verdict %q", res.Verdict)
	}
	if res.MatchTier != match.TierExact {
		t.Errorf("expected exact tier, got %s", res.MatchTier)
	}
	if res.SalesCount != 3 {
		t.Errorf("expected 3 sales, got %d", res.SalesCount)
	}
	if res.Cached {
		t.Error("first request must not be a cache hit")
	}
}

func TestAnalyze_GoodDealScenario(t *testing.T) {
	ex := &stubExtractor{card: jordanCard()}
	ms, router := newTestEnv(t, ex)
	now := time.Now().UTC()
	for _, p := range []float64{140, 160, 180} {
		seedComparable(t, ms, p, now)
	}

	w := doAnalyze(t, router, "1986 Fleer Michael Jordan", 100)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decodeResult(t, w)

	if res.ProfitLoss == nil || !res.ProfitLoss.Equal(d(-60)) {
		t.Errorf("expected profit/loss -60, got %v", res.ProfitLoss)
	}
	if res.Verdict != "GOOD DEAL - Potential profit: $60.00" {
		t.Errorf("unexpected verdict %q", res.Verdict)
	}
}

func TestAnalyze_CacheHitRepricesAgainstCurrentAsk(t *testing.T) {
	ex := &stubExtractor{card: jordanCard()}
	ms, router := newTestEnv(t, ex)
	now := time.Now().UTC()
	for _, p := range []float64{140, 160, 180} {
		seedComparable(t, ms, p, now)
	}

	first := decodeResult(t, doAnalyze(t, router, "1986 Fleer Michael Jordan", 150))
	second := decodeResult(t, doAnalyze(t, router, "1986 Fleer Michael Jordan", 100))

	if ex.calls != 1 {
		t.Errorf("second request should hit the cache, extractor called %d times", ex.calls)
	}
	if first.Cached || !second.Cached {
		t.Errorf("expected cached=false then true, got %v then %v", first.Cached, second.Cached)
	}
	if second.ProfitLoss == nil || !second.ProfitLoss.Equal(d(-60)) {
		t.Errorf("cached record must reprice against the new ask, got %v", second.ProfitLoss)
	}
	if second.Verdict != "GOOD DEAL - Potential profit: $60.00" {
		t.Errorf("unexpected verdict on cache hit %q", second.Verdict)
	}

	a, _ := json.Marshal(first.ParsedData)
	b, _ := json.Marshal(second.ParsedData)
	if !bytes.Equal(a, b) {
		t.Errorf("parsed_data must be identical across cache hit: %s vs %s", a, b)
	}
}

func TestAnalyze_NoMatchIsInsufficientData(t *testing.T) {
	ex := &stubExtractor{card: jordanCard()}
	_, router := newTestEnv(t, ex)

	w := doAnalyze(t, router, "1986 Fleer Michael Jordan", 50)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decodeResult(t, w)

	if res.MatchTier != match.TierNone {
		t.Errorf("expected tier none, got %s", res.MatchTier)
	}
	if res.EstimatedValue != nil {
		t.Errorf("tier none implies null estimate, got %v", res.EstimatedValue)
	}
	if res.ProfitLoss != nil {
		t.Errorf("tier none implies null profit/loss, got %v", res.ProfitLoss)
	}
	if res.Verdict != "INSUFFICIENT DATA - No comparable sales found" {
		t.Errorf("unexpected verdict %q", res.Verdict)
	}
}

func TestAnalyze_ValidationErrors(t *testing.T) {
	ex := &stubExtractor{card: jordanCard()}
	_, router := newTestEnv(t, ex)

	cases := []struct {
		name        string
		description string
		price       float64
	}{
		{"empty description", "", 100},
		{"whitespace description", "   ", 100},
		{"zero price", "1986 Fleer Michael Jordan", 0},
		{"negative price", "1986 Fleer Michael Jordan", -5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doAnalyze(t, router, tc.description, tc.price)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if ex.calls != 0 {
				t.Errorf("validation failures must not reach the extractor")
			}
		})
	}
}

func TestAnalyze_ExtractionFailureSurfacesDistinctly(t *testing.T) {
	ex := &stubExtractor{err: extract.ErrFailed}
	_, router := newTestEnv(t, ex)

	w := doAnalyze(t, router, "total gibberish", 100)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "listing could not be parsed" {
		t.Errorf("unexpected error message %q", body["error"])
	}
}

// failingCache errors on every operation; analyses must still succeed.
type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("redis down")
}
func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("redis down")
}
func (failingCache) Clear(context.Context) (int64, error) {
	return 0, errors.New("redis down")
}
func (failingCache) Stats(context.Context) (cache.Stats, error) {
	return cache.Stats{}, errors.New("redis down")
}

func TestAnalyze_CacheFailuresNeverFailTheRequest(t *testing.T) {
	ex := &stubExtractor{card: jordanCard()}
	ms := corpus.NewMemoryStore()
	eng := match.NewEngine(ms, match.Config{})
	svc := analyze.NewService(failingCache{}, ex, eng, ms, analyze.DefaultConfig(), nil)

	res, err := svc.Analyze(context.Background(), analyze.Request{
		Description: "1986 Fleer Michael Jordan",
		AskingPrice: d(100),
	})
	if err != nil {
		t.Fatalf("cache failure must not fail the request: %v", err)
	}
	if res.Cached {
		t.Error("failed cache read must count as a miss")
	}
	if ex.calls != 1 {
		t.Errorf("expected one extraction, got %d", ex.calls)
	}
}

func TestAnalyze_FuzzyFallback(t *testing.T) {
	ex := &stubExtractor{card: jordanCard()}
	ms, router := newTestEnv(t, ex)

	// Misspelled subject in the corpus: tier 1 misses, tier 2 matches.
	sale := &model.ComparableSale{
		SubjectID: "michael-jordon",
		LineID:    "fleer",
		VariantID: strp("base"),
		Year:      intp(1986),
		Price:     d(200),
		SoldAt:    time.Now().UTC(),
	}
	if err := ms.InsertSale(context.Background(), sale); err != nil {
		t.Fatal(err)
	}

	res := decodeResult(t, doAnalyze(t, router, "1986 Fleer Michael Jordan", 150))
	if res.MatchTier != match.TierFuzzy {
		t.Errorf("expected fuzzy tier, got %s", res.MatchTier)
	}
	if res.EstimatedValue == nil || !res.EstimatedValue.Equal(d(200)) {
		t.Errorf("expected estimate 200, got %v", res.EstimatedValue)
	}
}

func TestHandleClearCache(t *testing.T) {
	ex := &stubExtractor{card: jordanCard()}
	ms, router := newTestEnv(t, ex)
	seedComparable(t, ms, 100, time.Now().UTC())

	doAnalyze(t, router, "1986 Fleer Michael Jordan", 90)

	req := httptest.NewRequest("DELETE", "/api/v1/cache", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]int64
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["deleted"] != 1 {
		t.Errorf("expected 1 deleted entry, got %d", body["deleted"])
	}

	// Post-clear, the same description is a miss again.
	doAnalyze(t, router, "1986 Fleer Michael Jordan", 90)
	if ex.calls != 2 {
		t.Errorf("expected re-extraction after clear, got %d calls", ex.calls)
	}
}

func TestHandleBulkAnalyze(t *testing.T) {
	ex := &stubExtractor{card: jordanCard()}
	ms, router := newTestEnv(t, ex)
	now := time.Now().UTC()
	for _, p := range []float64{140, 160, 180} {
		seedComparable(t, ms, p, now)
	}

	body, _ := json.Marshal(analyze.BulkAnalyzeRequest{
		Listings: []analyze.AnalyzeRequest{
			{Description: "1986 Fleer Michael Jordan", AskingPrice: d(150)},
			{Description: "1986 Fleer Michael Jordan", AskingPrice: d(100)},
			{Description: "", AskingPrice: d(100)},
		},
	})
	req := httptest.NewRequest("POST", "/api/v1/analyze/bulk", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp analyze.BulkAnalyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 3 || resp.Successful != 2 || resp.Failed != 1 {
		t.Fatalf("expected total=3 successful=2 failed=1, got %+v", resp)
	}

	first, second, third := resp.Results[0], resp.Results[1], resp.Results[2]
	if !first.Success || first.Data == nil || first.Data.Verdict != "FAIR PRICE - Listing matches market value" {
		t.Errorf("unexpected first result: %+v", first)
	}
	if !second.Success || second.Data == nil || second.Data.Verdict != "GOOD DEAL - Potential profit: $60.00" {
		t.Errorf("unexpected second result: %+v", second)
	}
	// The repeated description within one batch hits the cache but still
	// reprices against its own asking price.
	if second.Data != nil && !second.Data.Cached {
		t.Error("second listing with the same description should be a cache hit")
	}
	if ex.calls != 1 {
		t.Errorf("expected one extraction for the batch, got %d", ex.calls)
	}
	if third.Success || third.Error != "description must not be empty" {
		t.Errorf("unexpected third result: %+v", third)
	}

	// One item's failure must not abort the batch; indexes stay aligned.
	if first.Index != 0 || second.Index != 1 || third.Index != 2 {
		t.Errorf("result indexes out of order: %d %d %d", first.Index, second.Index, third.Index)
	}
}

func TestHandleBulkAnalyze_Validation(t *testing.T) {
	ex := &stubExtractor{card: jordanCard()}
	_, router := newTestEnv(t, ex)

	post := func(body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/v1/analyze/bulk", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	empty, _ := json.Marshal(analyze.BulkAnalyzeRequest{})
	if w := post(empty); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty batch, got %d", w.Code)
	}

	oversized := analyze.BulkAnalyzeRequest{Listings: make([]analyze.AnalyzeRequest, 51)}
	for i := range oversized.Listings {
		oversized.Listings[i] = analyze.AnalyzeRequest{Description: "card", AskingPrice: d(10)}
	}
	body, _ := json.Marshal(oversized)
	if w := post(body); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized batch, got %d", w.Code)
	}
	if ex.calls != 0 {
		t.Errorf("rejected batches must not reach the extractor, got %d calls", ex.calls)
	}
}

func TestHandleCacheStats(t *testing.T) {
	ex := &stubExtractor{card: jordanCard()}
	ms, router := newTestEnv(t, ex)
	seedComparable(t, ms, 100, time.Now().UTC())

	doAnalyze(t, router, "1986 Fleer Michael Jordan", 90)

	req := httptest.NewRequest("GET", "/api/v1/cache/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats cache.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Entries != 1 {
		t.Errorf("expected 1 cached entry, got %d", stats.Entries)
	}
}

func TestHandleCorpusStats(t *testing.T) {
	ex := &stubExtractor{card: jordanCard()}
	ms, router := newTestEnv(t, ex)
	seedComparable(t, ms, 100, time.Now().UTC())

	req := httptest.NewRequest("GET", "/api/v1/comparables/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats corpus.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalSales != 1 {
		t.Errorf("expected 1 sale, got %d", stats.TotalSales)
	}
}
