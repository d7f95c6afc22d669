// Package model defines the core domain types shared across the analyzer.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Confidence levels reported by the extractor.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

var (
	// ErrRookieProspectConflict is returned when a record flags a card as
	// both a rookie and a prospect. The two categories are mutually
	// exclusive.
	ErrRookieProspectConflict = errors.New("model: is_rookie and is_prospect are mutually exclusive")

	// ErrGradingInconsistent is returned when is_graded disagrees with the
	// presence of grading_company/grade.
	ErrGradingInconsistent = errors.New("model: is_graded must match grading_company and grade")

	// ErrInvalidConfidence is returned for a confidence value outside
	// {high, medium, low}.
	ErrInvalidConfidence = errors.New("model: confidence must be high, medium, or low")
)

// ParsedCard is the structured record the extractor produces from a
// free-text listing description. Immutable once produced; requests sharing
// the same cache key re-use the same ParsedCard.
type ParsedCard struct {
	PlayerName     string  `json:"player_name"`
	Year           *int    `json:"year"`
	Brand          string  `json:"brand"`
	CardNumber     *string `json:"card_number"`
	CardType       *string `json:"card_type"`
	Variation      *string `json:"variation"`
	SerialNumbered *int    `json:"serial_numbered"`

	IsRookie      bool `json:"is_rookie"`
	IsProspect    bool `json:"is_prospect"`
	IsFirstBowman bool `json:"is_first_bowman"`

	IsAutograph bool `json:"is_autograph"`
	HasPatch    bool `json:"has_patch"`

	IsGraded           bool             `json:"is_graded"`
	GradingCompany     *string          `json:"grading_company"`
	Grade              *decimal.Decimal `json:"grade"`
	HasPerfectSubgrade bool             `json:"has_perfect_subgrade"`

	IsReprint    bool `json:"is_reprint"`
	IsRedemption bool `json:"is_redemption"`

	Sport      *string  `json:"sport"`
	Confidence string   `json:"confidence"`
	Warnings   []string `json:"warnings"`
}

// Validate checks the structural invariants of a parsed record. A record
// that fails validation is treated as a parse failure by the extraction
// layer, never accepted silently.
func (c *ParsedCard) Validate() error {
	if c.IsRookie && c.IsProspect {
		return ErrRookieProspectConflict
	}

	hasGrading := c.GradingCompany != nil && c.Grade != nil
	if c.IsGraded != hasGrading {
		return ErrGradingInconsistent
	}

	switch c.Confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		return ErrInvalidConfidence
	}

	return nil
}

// ComparableSale is one historical transaction used as pricing evidence.
// Immutable once recorded.
type ComparableSale struct {
	ID        int64            `json:"id"`
	SubjectID string           `json:"subject_id"`
	LineID    string           `json:"line_id"`
	VariantID *string          `json:"variant_id"`
	Year      *int             `json:"year"`
	Grade     *decimal.Decimal `json:"grade"`
	Grader    *string          `json:"grader"`
	Price     decimal.Decimal  `json:"price"`
	SoldAt    time.Time        `json:"sold_at"`
}

// Purchase is a recorded buy. Recording a purchase also appends a
// ComparableSale so future analyses price against it.
type Purchase struct {
	ID             string           `json:"id"`
	ListingTitle   string           `json:"listing_title"`
	ListingPrice   decimal.Decimal  `json:"listing_price"`
	PlayerName     *string          `json:"player_name"`
	Year           *int             `json:"year"`
	Brand          *string          `json:"brand"`
	Variation      *string          `json:"variation"`
	Grade          *decimal.Decimal `json:"grade"`
	Grader         *string          `json:"grader"`
	SubjectID      *string          `json:"subject_id"`
	LineID         *string          `json:"line_id"`
	VariantID      *string          `json:"variant_id"`
	EstimatedValue *decimal.Decimal `json:"estimated_value"`
	ProfitLoss     *decimal.Decimal `json:"profit_loss"`
	MatchTier      *string          `json:"match_tier"`
	SalesCount     *int             `json:"sales_count"`
	PurchasedAt    time.Time        `json:"purchased_at"`
}

// AnalysisResult is the output of one analysis request. Ephemeral —
// computed per request, never persisted.
type AnalysisResult struct {
	ParsedData     *ParsedCard      `json:"parsed_data"`
	EstimatedValue *decimal.Decimal `json:"estimated_value"`
	ProfitLoss     *decimal.Decimal `json:"profit_loss"`
	Verdict        string           `json:"verdict"`
	MatchTier      string           `json:"match_tier"`
	SalesCount     int              `json:"sales_count"`
	Cached         bool             `json:"cached"`
}
