package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/caiarchive/internal/storage"
)

const (
	apiVersion          = "1.0.0"
	defaultHistoryLimit = 20
)

type AppDeps struct {
	Store  *storage.Store
	Logger *slog.Logger // optional; defaults to slog.Default()
}

// NewHandler returns the read-only query API over the decision archive.
func NewHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))
	r.Use(corsPolicy())
	r.Use(answerPreflight)

	r.Get("/api", handleIndex)
	r.Get("/api/health", handleHealth)

	r.Route("/api/decisions", func(r chi.Router) {
		r.Get("/search", handleSearch(deps))
		r.Get("/filters/options", handleFilterOptions(deps))
		r.Get("/stats/summary", handleStats(deps))
		r.Get("/admin/stats", handleStats(deps))
		r.Get("/history", handleHistory(deps))
		r.Get("/{id}", handleGetDecision(deps))
	})

	return r
}

type decisionView struct {
	ID             int64  `json:"id"`
	DecisionNumber string `json:"decision_number"`
	DecisionDate   string `json:"decision_date"`
	Subject        string `json:"subject"`
	Organization   string `json:"organization"`
	DocumentTitle  string `json:"document_title"`
	DocumentURL    string `json:"document_url"`
	DecisionURL    string `json:"decision_url"`
	Year           int    `json:"year"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// decisionDetail adds the extracted text; pdf_text is null when extraction
// was never attempted.
type decisionDetail struct {
	decisionView
	PDFText *string `json:"pdf_text"`
}

func toView(d storage.Decision) decisionView {
	return decisionView{
		ID:             d.ID,
		DecisionNumber: d.DecisionNumber,
		DecisionDate:   d.DecisionDate,
		Subject:        d.Subject,
		Organization:   d.Organization,
		DocumentTitle:  d.DocumentTitle,
		DocumentURL:    d.DocumentURL,
		DecisionURL:    d.DecisionURL,
		Year:           d.Year,
		CreatedAt:      formatTimestamp(d.CreatedAt),
		UpdatedAt:      formatTimestamp(d.UpdatedAt),
	}
}

func toDetail(d storage.Decision) decisionDetail {
	out := decisionDetail{decisionView: toView(d)}
	if d.PDFText.Valid {
		text := d.PDFText.String
		out.PDFText = &text
	}
	return out
}

type searchResponse struct {
	Decisions []decisionView `json:"decisions"`
	Total     int            `json:"total"`
	Page      int            `json:"page"`
	Limit     int            `json:"limit"`
	Pages     int            `json:"pages"`
}

func toSearchResponse(res storage.SearchResult) searchResponse {
	views := make([]decisionView, len(res.Decisions))
	for i, d := range res.Decisions {
		views[i] = toView(d)
	}
	return searchResponse{
		Decisions: views,
		Total:     res.Total,
		Page:      res.Page,
		Limit:     res.Limit,
		Pages:     res.Pages,
	}
}

type statsResponse struct {
	Total                int                 `json:"total"`
	WithExtractedText    int                 `json:"withExtractedText"`
	ExtractionPercentage float64             `json:"extractionPercentage"`
	YearBreakdown        []storage.YearCount `json:"yearBreakdown"`
}

func toStatsResponse(st storage.Stats) statsResponse {
	years := st.YearBreakdown
	if years == nil {
		years = []storage.YearCount{}
	}
	return statsResponse{
		Total:                st.Total,
		WithExtractedText:    st.WithExtractedText,
		ExtractionPercentage: st.ExtractionPercentage,
		YearBreakdown:        years,
	}
}

type runView struct {
	ID             int64  `json:"id"`
	RunID          string `json:"run_id"`
	ScrapedAt      string `json:"scraped_at"`
	RecordsAdded   int    `json:"records_added"`
	RecordsUpdated int    `json:"records_updated"`
	RecordsSkipped int    `json:"records_skipped"`
	Status         string `json:"status"`
}

func toRunViews(runs []storage.RunRecord) []runView {
	out := make([]runView, len(runs))
	for i, r := range runs {
		out[i] = runView{
			ID:             r.ID,
			RunID:          r.RunID,
			ScrapedAt:      formatTimestamp(r.ScrapedAt),
			RecordsAdded:   r.RecordsAdded,
			RecordsUpdated: r.RecordsUpdated,
			RecordsSkipped: r.RecordsSkipped,
			Status:         r.Status,
		}
	}
	return out
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"message": "CAI Decisions API",
		"version": apiVersion,
		"endpoints": map[string]string{
			"search":   "/api/decisions/search?q=&year=&organization=&startDate=&endDate=&page=1&limit=20",
			"decision": "/api/decisions/{id}",
			"filters":  "/api/decisions/filters/options",
			"stats":    "/api/decisions/stats/summary",
			"history":  "/api/decisions/history?limit=20",
			"health":   "/api/health",
		},
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// searchParams reads search filters from the query string. Malformed values
// are treated as absent.
func searchParams(r *http.Request) storage.SearchParams {
	q := r.URL.Query()
	return storage.SearchParams{
		Query:        strings.TrimSpace(q.Get("q")),
		Year:         parseIntParam(r, "year", 0, 0),
		Organization: strings.TrimSpace(q.Get("organization")),
		StartDate:    strings.TrimSpace(q.Get("startDate")),
		EndDate:      strings.TrimSpace(q.Get("endDate")),
		Page:         parseIntParam(r, "page", 1, 0),
		Limit:        parseIntParam(r, "limit", 20, 100),
	}
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Store.Search(r.Context(), searchParams(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to search decisions: %v", err)
			return
		}
		writeJSON(w, toSearchResponse(res))
	}
}

func handleGetDecision(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpError(w, http.StatusNotFound, "not_found", "decision not found")
			return
		}

		d, err := deps.Store.GetDecision(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "decision not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get decision: %v", err)
			return
		}
		writeJSON(w, toDetail(d))
	}
}

func handleFilterOptions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := deps.Store.FilterOptions(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load filter options: %v", err)
			return
		}
		years, orgs := opts.Years, opts.Organizations
		if years == nil {
			years = []int{}
		}
		if orgs == nil {
			orgs = []string{}
		}
		writeJSON(w, map[string]any{
			"years":         years,
			"organizations": orgs,
		})
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Store.Stats(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute statistics: %v", err)
			return
		}
		writeJSON(w, toStatsResponse(st))
	}
}

func handleHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", defaultHistoryLimit, 100)
		if limit == 0 {
			limit = defaultHistoryLimit
		}
		runs, err := deps.Store.RecentRuns(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}
		writeJSON(w, toRunViews(runs))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
