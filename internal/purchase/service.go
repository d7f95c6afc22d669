package purchase

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gdxemberai/gmm-tools/internal/metrics"
	"github.com/gdxemberai/gmm-tools/internal/model"
	"github.com/gdxemberai/gmm-tools/internal/slug"
)

const defaultPageSize = 100

// Service handles purchase recording and listing.
type Service struct {
	store Store
}

// NewService creates a purchase service. Every recorded purchase also
// lands in the corpus as a comparable sale, via the store's atomic insert.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateRequest is the JSON body for POST /api/v1/purchases.
type CreateRequest struct {
	ListingTitle   string           `json:"listing_title"`
	ListingPrice   decimal.Decimal  `json:"listing_price"`
	PlayerName     *string          `json:"player_name"`
	Year           *int             `json:"year"`
	Brand          *string          `json:"brand"`
	Variation      *string          `json:"variation"`
	Grade          *decimal.Decimal `json:"grade"`
	Grader         *string          `json:"grader"`
	EstimatedValue *decimal.Decimal `json:"estimated_value"`
	ProfitLoss     *decimal.Decimal `json:"profit_loss"`
	MatchTier      *string          `json:"match_tier"`
	SalesCount     *int             `json:"sales_count"`
}

// ListResponse is the JSON body for GET /api/v1/purchases.
type ListResponse struct {
	Total     int64            `json:"total"`
	Purchases []model.Purchase `json:"purchases"`
}

// HandleCreate handles POST /api/v1/purchases.
// The purchase is stored and a comparable sale is appended to the corpus
// at the purchase price, so the corpus grows with every recorded buy.
func (s *Service) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ListingTitle == "" {
		writeError(w, "listing_title is required", http.StatusBadRequest)
		return
	}
	if !req.ListingPrice.IsPositive() {
		writeError(w, "listing_price must be greater than zero", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	p := &model.Purchase{
		ID:             uuid.New().String(),
		ListingTitle:   req.ListingTitle,
		ListingPrice:   req.ListingPrice,
		PlayerName:     req.PlayerName,
		Year:           req.Year,
		Brand:          req.Brand,
		Variation:      req.Variation,
		Grade:          req.Grade,
		Grader:         req.Grader,
		EstimatedValue: req.EstimatedValue,
		ProfitLoss:     req.ProfitLoss,
		MatchTier:      req.MatchTier,
		SalesCount:     req.SalesCount,
		PurchasedAt:    now,
	}

	// Keys are always re-derived from the display fields, never trusted
	// from the client.
	subjectKey := slug.Make(deref(req.PlayerName))
	lineKey := slug.Make(deref(req.Brand))
	variantKey := slug.Make(deref(req.Variation))
	if subjectKey != "" {
		p.SubjectID = &subjectKey
	}
	if lineKey != "" {
		p.LineID = &lineKey
	}
	if variantKey != "" {
		p.VariantID = &variantKey
	}

	sale := &model.ComparableSale{
		SubjectID: subjectKey,
		LineID:    lineKey,
		VariantID: p.VariantID,
		Year:      req.Year,
		Grade:     req.Grade,
		Grader:    req.Grader,
		Price:     req.ListingPrice,
		SoldAt:    now,
	}
	if err := s.store.Insert(r.Context(), p, sale); err != nil {
		slog.Error("purchase insert failed", "err", err)
		writeError(w, "failed to record purchase", http.StatusInternalServerError)
		return
	}

	metrics.PurchasesTotal.Inc()
	slog.Info("purchase recorded",
		"id", p.ID,
		"subject", subjectKey,
		"line", lineKey,
		"price", req.ListingPrice.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(p)
}

// HandleList handles GET /api/v1/purchases?limit=&offset=.
func (s *Service) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	offset := queryInt(r, "offset", 0)
	if limit <= 0 || limit > 1000 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	purchases, total, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		slog.Error("purchase list failed", "err", err)
		writeError(w, "failed to list purchases", http.StatusInternalServerError)
		return
	}
	if purchases == nil {
		purchases = []model.Purchase{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListResponse{Total: total, Purchases: purchases})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
