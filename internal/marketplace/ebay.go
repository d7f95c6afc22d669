// Package marketplace proxies listing search against the eBay Browse API.
// The analyzer does not discover listings itself; this is a thin read-only
// surface for downstream consumers.
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultBrowseURL = "https://api.ebay.com/buy/browse/v1"
	defaultTokenURL  = "https://api.ebay.com/identity/v1/oauth2/token"
)

// ErrNotConfigured is returned when the client has no access token and no
// credentials to mint one.
var ErrNotConfigured = errors.New("marketplace: ebay credentials not configured")

// Listing is the simplified view of one marketplace item.
type Listing struct {
	ItemID    string `json:"item_id"`
	Title     string `json:"title"`
	Price     string `json:"price,omitempty"`
	Currency  string `json:"currency,omitempty"`
	Condition string `json:"condition,omitempty"`
	WebURL    string `json:"web_url,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

// SearchResult is one page of marketplace search results.
type SearchResult struct {
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
	Listings []Listing `json:"listings"`
}

// SearchParams describes a paginated marketplace search.
type SearchParams struct {
	Query    string
	Limit    int
	Offset   int
	MinPrice string
	MaxPrice string
}

// Client talks to the eBay Browse API. Access tokens are minted with the
// OAuth client-credentials grant and cached until shortly before expiry.
type Client struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
	browseURL    string
	tokenURL     string

	mu          sync.Mutex // guards token state across concurrent searches
	token       string
	tokenExpiry time.Time
}

// NewClient creates a marketplace client from application credentials.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		browseURL:    defaultBrowseURL,
		tokenURL:     defaultTokenURL,
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// Search runs an item-summary search against the Browse API.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := url.Values{}
	q.Set("q", strings.TrimSpace(params.Query))
	q.Set("limit", strconv.Itoa(limit))
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	if params.MinPrice != "" || params.MaxPrice != "" {
		q.Set("filter", fmt.Sprintf("price:[%s..%s],priceCurrency:USD", params.MinPrice, params.MaxPrice))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.browseURL+"/item_summary/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", "EBAY_US")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketplace: search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("marketplace: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketplace: search returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var raw struct {
		Total         int `json:"total"`
		Limit         int `json:"limit"`
		Offset        int `json:"offset"`
		ItemSummaries []struct {
			ItemID string `json:"itemId"`
			Title  string `json:"title"`
			Price  *struct {
				Value    string `json:"value"`
				Currency string `json:"currency"`
			} `json:"price"`
			Condition  string `json:"condition"`
			ItemWebURL string `json:"itemWebUrl"`
			Image      *struct {
				ImageURL string `json:"imageUrl"`
			} `json:"image"`
		} `json:"itemSummaries"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("marketplace: decode response: %w", err)
	}

	result := &SearchResult{
		Total:    raw.Total,
		Limit:    raw.Limit,
		Offset:   raw.Offset,
		Listings: make([]Listing, 0, len(raw.ItemSummaries)),
	}
	for _, item := range raw.ItemSummaries {
		l := Listing{
			ItemID:    item.ItemID,
			Title:     item.Title,
			Condition: item.Condition,
			WebURL:    item.ItemWebURL,
		}
		if item.Price != nil {
			l.Price = item.Price.Value
			l.Currency = item.Price.Currency
		}
		if item.Image != nil {
			l.ImageURL = item.Image.ImageURL
		}
		result.Listings = append(result.Listings, l)
	}
	return result, nil
}

// accessToken returns a valid token, minting a new one when the cached
// token is missing or within a minute of expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "https://api.ebay.com/oauth/api_scope")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("marketplace: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("marketplace: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("marketplace: token request returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", errors.New("marketplace: malformed token response")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
