package storage

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses recorded in scraping_history.
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// Decision is one published ruling.
type Decision struct {
	ID             int64
	DecisionNumber string
	DecisionDate   string
	Subject        string
	Organization   string
	DocumentTitle  string
	DocumentURL    string
	DecisionURL    string
	Year           int
	// PDFText is the extracted document text. On write, a null value means
	// "leave the stored text alone"; on read it means extraction was never
	// attempted. An empty valid string means extraction ran and found nothing.
	PDFText   sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasDocument reports whether the decision links to a downloadable PDF.
func (d Decision) HasDocument() bool {
	return d.DocumentURL != ""
}

// RunRecord is one row of the append-only ingestion history.
type RunRecord struct {
	ID             int64
	RunID          string
	ScrapedAt      time.Time
	RecordsAdded   int
	RecordsUpdated int
	RecordsSkipped int
	Status         string
}

// UpsertOutcome describes what a single upsert did to the decisions table.
type UpsertOutcome struct {
	Inserted bool
	Changed  bool
}

// RecordFailure is a decision whose write was rejected inside a batch.
type RecordFailure struct {
	DecisionNumber string
	Err            error
}

// BatchResult summarizes one SaveBatch transaction.
type BatchResult struct {
	Added    int // rows inserted or changed
	Updated  int // subset of Added that already existed
	Skipped  int // rows whose write failed
	Failures []RecordFailure
}

// SearchParams filters and paginates decision searches. Zero values mean
// "no filter"; Page and Limit are normalized by Search.
type SearchParams struct {
	Query        string
	Year         int
	Organization string
	StartDate    string
	EndDate      string
	Page         int
	Limit        int
}

// SearchResult is one page of matching decisions. Decisions carry no PDFText.
type SearchResult struct {
	Decisions []Decision
	Total     int
	Page      int
	Limit     int
	Pages     int
}

// FilterOptions lists the distinct values available for filtering.
type FilterOptions struct {
	Years         []int
	Organizations []string
}

// YearCount is the number of decisions published in one year.
type YearCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// Stats summarizes the archive contents.
type Stats struct {
	Total                int
	WithExtractedText    int
	ExtractionPercentage float64
	YearBreakdown        []YearCount
}
