// Package corpus defines the historical sales store the match engine reads
// and the purchase recorder appends to. Implementations include PostgreSQL
// (source of truth, pg_trgm for fuzzy subject matching) and in-memory
// (for testing).
package corpus

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gdxemberai/gmm-tools/internal/model"
)

// ExactQuery selects sales whose keys equal the normalized listing keys.
// Empty string keys and nil grade/grader mean "no constraint", not an
// equality filter against the empty value.
type ExactQuery struct {
	SubjectID string
	LineID    string
	VariantID string
	Grade     *decimal.Decimal
	Grader    *string
	Limit     int
}

// FuzzyQuery selects sales whose subject key is similar (trigram
// similarity >= Threshold) to the listing's subject key, with the line key
// matched exactly and the year matched exactly when present.
type FuzzyQuery struct {
	SubjectID string
	LineID    string
	Year      *int
	Threshold float64
	Limit     int
}

// Stats summarizes the corpus contents.
type Stats struct {
	TotalSales   int64      `json:"total_sales"`
	LatestSoldAt *time.Time `json:"latest_sold_at"`
}

// Querier is the read capability the match engine consumes.
// Both queries return rows ordered per query semantics: exact matches most
// recent first, fuzzy matches by descending similarity then recency, with
// insertion order as the final tie-break for determinism.
type Querier interface {
	QueryExact(ctx context.Context, q ExactQuery) ([]model.ComparableSale, error)
	QueryFuzzy(ctx context.Context, q FuzzyQuery) ([]model.ComparableSale, error)
}

// Store is the full corpus interface: read queries plus the append path
// used when purchases are recorded.
type Store interface {
	Querier

	// InsertSale appends an immutable sale record. The store assigns ID.
	InsertSale(ctx context.Context, sale *model.ComparableSale) error

	// Stats returns corpus-level counters.
	Stats(ctx context.Context) (Stats, error)
}
