package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kalambet/caiarchive/internal/config"
)

type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return clientFor(cfg), nil
}

func clientFor(cfg config.Config) *apiClient {
	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is caiarchive serve running? (%w)", err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// searchQuery encodes the search filters the API understands. Zero values
// are left out.
func searchQuery(q string, year int, org string, page, limit int) string {
	v := url.Values{}
	if q != "" {
		v.Set("q", q)
	}
	if year > 0 {
		v.Set("year", fmt.Sprint(year))
	}
	if org != "" {
		v.Set("organization", org)
	}
	if page > 1 {
		v.Set("page", fmt.Sprint(page))
	}
	if limit > 0 {
		v.Set("limit", fmt.Sprint(limit))
	}
	return "/api/decisions/search?" + v.Encode()
}

type decision struct {
	ID             int64   `json:"id"`
	DecisionNumber string  `json:"decision_number"`
	DecisionDate   string  `json:"decision_date"`
	Subject        string  `json:"subject"`
	Organization   string  `json:"organization"`
	DocumentTitle  string  `json:"document_title"`
	DocumentURL    string  `json:"document_url"`
	DecisionURL    string  `json:"decision_url"`
	Year           int     `json:"year"`
	PDFText        *string `json:"pdf_text"`
}

type searchResult struct {
	Decisions []decision `json:"decisions"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	Limit     int        `json:"limit"`
	Pages     int        `json:"pages"`
}

type stats struct {
	Total                int     `json:"total"`
	WithExtractedText    int     `json:"withExtractedText"`
	ExtractionPercentage float64 `json:"extractionPercentage"`
	YearBreakdown        []struct {
		Year  int `json:"year"`
		Count int `json:"count"`
	} `json:"yearBreakdown"`
}

type run struct {
	RunID          string `json:"run_id"`
	ScrapedAt      string `json:"scraped_at"`
	RecordsAdded   int    `json:"records_added"`
	RecordsUpdated int    `json:"records_updated"`
	RecordsSkipped int    `json:"records_skipped"`
	Status         string `json:"status"`
}
