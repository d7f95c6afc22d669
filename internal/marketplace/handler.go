package marketplace

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
)

// Handler exposes the marketplace search proxy over HTTP.
type Handler struct {
	client *Client
}

// NewHandler creates the search handler.
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// HandleSearch handles GET /api/v1/listings/search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, "q is required", http.StatusBadRequest)
		return
	}

	params := SearchParams{
		Query:    query,
		MinPrice: r.URL.Query().Get("min_price"),
		MaxPrice: r.URL.Query().Get("max_price"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		params.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		params.Offset, _ = strconv.Atoi(v)
	}

	result, err := h.client.Search(r.Context(), params)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			writeError(w, "marketplace search is not configured", http.StatusServiceUnavailable)
			return
		}
		slog.Error("marketplace search failed", "query", query, "err", err)
		writeError(w, "marketplace search failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
