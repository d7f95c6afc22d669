package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/gdxemberai/gmm-tools/internal/analyze"
	"github.com/gdxemberai/gmm-tools/internal/cache"
	"github.com/gdxemberai/gmm-tools/internal/corpus"
	"github.com/gdxemberai/gmm-tools/internal/extract"
	"github.com/gdxemberai/gmm-tools/internal/marketplace"
	"github.com/gdxemberai/gmm-tools/internal/match"
	"github.com/gdxemberai/gmm-tools/internal/metrics"
	"github.com/gdxemberai/gmm-tools/internal/purchase"
)

func main() {
	// .env is optional; real deployments inject the environment directly.
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Storage ---
	var (
		corpusStore   corpus.Store
		purchaseStore purchase.Store
		cleanup       []func()
	)

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		corpusStore = corpus.NewPostgresStore(pool)
		purchaseStore = purchase.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory stores (data will not persist)")
		mem := corpus.NewMemoryStore()
		corpusStore = mem
		purchaseStore = purchase.NewMemoryStore(mem)
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Cache ---
	var analysisCache cache.Cache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		analysisCache = cache.NewRedisCache(rdb)
		slog.Info("Redis cache enabled")
	} else {
		slog.Warn("REDIS_URL not set, using in-memory cache")
		analysisCache = cache.NewMemoryCache()
	}

	// --- Extraction ---
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		slog.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	extractor := extract.NewRetrier(
		extract.NewOpenAIExtractor(apiKey, os.Getenv("OPENAI_MODEL")),
		extract.DefaultPolicy(),
	)

	// --- Match engine ---
	matchCfg := match.Config{}
	if v := os.Getenv("MATCH_SIMILARITY_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f >= 1 {
			slog.Error("invalid MATCH_SIMILARITY_THRESHOLD", "value", v)
			os.Exit(1)
		}
		matchCfg.SimilarityThreshold = f
	}
	engine := match.NewEngine(corpusStore, matchCfg)

	// --- Analysis pipeline ---
	analyzeCfg := analyze.DefaultConfig()
	if v := os.Getenv("ANALYZE_FAIR_BAND"); v != "" {
		band, err := decimal.NewFromString(v)
		if err != nil || band.IsNegative() {
			slog.Error("invalid ANALYZE_FAIR_BAND", "value", v)
			os.Exit(1)
		}
		analyzeCfg.FairBand = band
	}
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			slog.Error("invalid CACHE_TTL_SECONDS", "value", v)
			os.Exit(1)
		}
		analyzeCfg.CacheTTL = time.Duration(secs) * time.Second
	}

	wsHub := analyze.NewWSHub()
	go wsHub.Run()

	analyzeSvc := analyze.NewService(analysisCache, extractor, engine, corpusStore, analyzeCfg, wsHub)
	purchaseSvc := purchase.NewService(purchaseStore)

	// Marketplace search degrades to 503 when credentials are absent.
	ebayHandler := marketplace.NewHandler(
		marketplace.NewClient(os.Getenv("EBAY_CLIENT_ID"), os.Getenv("EBAY_CLIENT_SECRET")),
	)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(90 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"gmm-analyzer"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket feed of completed analyses.
		r.Get("/ws", wsHub.HandleWS)

		// Listing analysis.
		r.Post("/analyze", analyzeSvc.HandleAnalyze)
		r.Post("/analyze/bulk", analyzeSvc.HandleBulkAnalyze)
		r.Delete("/cache", analyzeSvc.HandleClearCache)
		r.Get("/cache/stats", analyzeSvc.HandleCacheStats)
		r.Get("/comparables/stats", analyzeSvc.HandleCorpusStats)

		// Purchase tracking.
		r.Post("/purchases", purchaseSvc.HandleCreate)
		r.Get("/purchases", purchaseSvc.HandleList)

		// Live marketplace search.
		r.Get("/listings/search", ebayHandler.HandleSearch)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second, // analysis waits on the extraction retry budget
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("gmm-analyzer listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down gmm-analyzer...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("gmm-analyzer stopped")
}
