package analyze

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/gdxemberai/gmm-tools/internal/model"
)

// maxBulkListings bounds one bulk request.
const maxBulkListings = 50

// BulkAnalyzeRequest is the JSON body for POST /api/v1/analyze/bulk.
type BulkAnalyzeRequest struct {
	Listings []AnalyzeRequest `json:"listings"`
}

// BulkResultItem is the outcome for one listing in a bulk request.
type BulkResultItem struct {
	Index       int                   `json:"index"`
	Description string                `json:"description"`
	AskingPrice decimal.Decimal       `json:"asking_price"`
	Success     bool                  `json:"success"`
	Data        *model.AnalysisResult `json:"data,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// BulkAnalyzeResponse is the JSON body returned by the bulk endpoint.
type BulkAnalyzeResponse struct {
	Results    []BulkResultItem `json:"results"`
	Total      int              `json:"total"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
}

// HandleBulkAnalyze handles POST /api/v1/analyze/bulk. Each listing runs
// through the same pipeline as a single analysis, so repeated descriptions
// within one batch hit the cache; one listing's failure never aborts the
// rest of the batch.
func (s *Service) HandleBulkAnalyze(w http.ResponseWriter, r *http.Request) {
	var req BulkAnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Listings) == 0 {
		writeError(w, "listings must not be empty", http.StatusBadRequest)
		return
	}
	if len(req.Listings) > maxBulkListings {
		writeError(w, fmt.Sprintf("at most %d listings per request", maxBulkListings), http.StatusBadRequest)
		return
	}

	resp := BulkAnalyzeResponse{
		Results: make([]BulkResultItem, len(req.Listings)),
		Total:   len(req.Listings),
	}
	for i, listing := range req.Listings {
		item := BulkResultItem{
			Index:       i,
			Description: listing.Description,
			AskingPrice: listing.AskingPrice,
		}
		result, err := s.Analyze(r.Context(), Request{
			Description: listing.Description,
			AskingPrice: listing.AskingPrice,
		})
		if err != nil {
			item.Error, _ = analyzeErrorResponse(err)
			resp.Failed++
		} else {
			item.Success = true
			item.Data = result
			resp.Successful++
		}
		resp.Results[i] = item
	}

	slog.Info("bulk analysis completed",
		"total", resp.Total,
		"successful", resp.Successful,
		"failed", resp.Failed,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
