package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/caiarchive/internal/scraper"
	"github.com/kalambet/caiarchive/internal/storage"
)

const (
	DefaultWorkers     = 4
	DefaultRepairLimit = 500
)

// ErrNoListings aborts a run when none of the listing pages could be fetched.
var ErrNoListings = errors.New("no listing page could be fetched")

// Store is the persistence surface the coordinator needs.
type Store interface {
	Migrate() error
	HasText(ctx context.Context, decisionNumber string) (bool, error)
	SaveBatch(ctx context.Context, runID string, decisions []storage.Decision) (storage.BatchResult, error)
	RecordRun(ctx context.Context, r storage.RunRecord) error
	ListMissingText(ctx context.Context, limit int) ([]storage.Decision, error)
	SetText(ctx context.Context, decisionNumber, text string) (bool, error)
}

// Fetcher retrieves listing pages and documents.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
	FetchBinary(ctx context.Context, url string) ([]byte, error)
}

// TextExtractor turns PDF bytes into text, returning "" on failure.
type TextExtractor interface {
	Extract(name string, data []byte) string
}

// Options configures a Coordinator.
type Options struct {
	ListingURLs []string
	// Workers bounds concurrent PDF downloads. 1 resolves documents
	// strictly one after another.
	Workers     int
	RepairLimit int
	Logger      *slog.Logger
}

// Coordinator runs the ingestion pipeline: listings, records, PDF text,
// then one batch write and a history row.
type Coordinator struct {
	store       Store
	fetcher     Fetcher
	extractor   TextExtractor
	listingURLs []string
	workers     int
	repairLimit int
	logger      *slog.Logger
}

// NewCoordinator creates a Coordinator. Zero option values fall back to
// DefaultWorkers, DefaultRepairLimit and slog.Default().
func NewCoordinator(store Store, fetcher Fetcher, extractor TextExtractor, opts Options) *Coordinator {
	c := &Coordinator{
		store:       store,
		fetcher:     fetcher,
		extractor:   extractor,
		listingURLs: opts.ListingURLs,
		workers:     opts.Workers,
		repairLimit: opts.RepairLimit,
		logger:      opts.Logger,
	}
	if c.workers <= 0 {
		c.workers = DefaultWorkers
	}
	if c.repairLimit <= 0 {
		c.repairLimit = DefaultRepairLimit
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Result summarizes one ingestion run.
type Result struct {
	RunID      string
	Pages      int // listing pages fetched
	Extracted  int // records read from the listings
	Duplicates int // repeated decision numbers dropped before writing
	Added      int // rows inserted or changed
	Updated    int // subset of Added that already existed
	Skipped    int // records whose write failed
	Downloaded int
	Deduped    int // documents not downloaded because text was already stored
	// FetchFailed counts documents that could not be downloaded. Their
	// stored text, if any, is left untouched.
	FetchFailed int
	// EmptyText counts downloaded documents that yielded no text.
	EmptyText int
}

type resolution int

const (
	resolvedNone resolution = iota
	resolvedDeduped
	resolvedFetchFailed
	resolvedText
	resolvedEmpty
)

// Run executes one ingestion pass. The only error paths are a schema
// failure, ErrNoListings, and a batch that could not be committed; every
// per-record problem is logged and counted in the Result instead.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	logger := c.logger.With("run_id", res.RunID)

	if err := c.store.Migrate(); err != nil {
		return res, fmt.Errorf("migrating schema: %w", err)
	}

	pages := c.fetchListings(ctx, logger)
	res.Pages = len(pages)
	if len(pages) == 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		logger.Error("ingestion aborted", "listing_urls", len(c.listingURLs), "error", ErrNoListings)
		return res, ErrNoListings
	}

	records := scraper.Extract(pages...)
	res.Extracted = len(records)
	records, res.Duplicates = uniqueByNumber(records, logger)

	decisions := make([]storage.Decision, len(records))
	for i, r := range records {
		decisions[i] = toDecision(r)
	}
	outcomes := c.resolveTexts(ctx, records, decisions, logger)
	for _, o := range outcomes {
		switch o {
		case resolvedDeduped:
			res.Deduped++
		case resolvedFetchFailed:
			res.FetchFailed++
		case resolvedText:
			res.Downloaded++
		case resolvedEmpty:
			res.Downloaded++
			res.EmptyText++
		}
	}

	batch, err := c.store.SaveBatch(ctx, res.RunID, decisions)
	if err != nil {
		c.recordFailedRun(ctx, res.RunID, logger)
		return res, fmt.Errorf("saving batch: %w", err)
	}
	res.Added, res.Updated, res.Skipped = batch.Added, batch.Updated, batch.Skipped
	for _, f := range batch.Failures {
		logger.Warn("decision not saved", "decision_number", f.DecisionNumber, "error", f.Err)
	}

	logger.Info("ingestion run complete",
		"pages", res.Pages,
		"records", res.Extracted,
		"added", res.Added,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"downloaded", res.Downloaded,
		"deduped", res.Deduped,
		"fetch_failed", res.FetchFailed,
		"empty_text", res.EmptyText,
	)
	return res, nil
}

func (c *Coordinator) fetchListings(ctx context.Context, logger *slog.Logger) []scraper.Page {
	var pages []scraper.Page
	for _, u := range c.listingURLs {
		html, err := c.fetcher.FetchText(ctx, u)
		if err != nil {
			continue
		}
		logger.Debug("listing fetched", "url", u, "bytes", len(html))
		pages = append(pages, scraper.Page{URL: u, HTML: html})
	}
	return pages
}

// uniqueByNumber keeps the first record for each decision number so a row
// is written at most once per run.
func uniqueByNumber(records []scraper.Record, logger *slog.Logger) ([]scraper.Record, int) {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	dropped := 0
	for _, r := range records {
		if seen[r.DecisionNumber] {
			dropped++
			logger.Debug("duplicate decision in listings", "decision_number", r.DecisionNumber)
			continue
		}
		seen[r.DecisionNumber] = true
		out = append(out, r)
	}
	return out, dropped
}

// resolveTexts downloads and extracts the documents of decisions that have
// none stored yet, filling decisions[i].PDFText. Each worker writes only its
// own slot.
func (c *Coordinator) resolveTexts(ctx context.Context, records []scraper.Record, decisions []storage.Decision, logger *slog.Logger) []resolution {
	outcomes := make([]resolution, len(records))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, r := range records {
		if !decisions[i].HasDocument() {
			continue
		}
		g.Go(func() error {
			decisions[i].PDFText, outcomes[i] = c.resolveText(ctx, r, logger)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (c *Coordinator) resolveText(ctx context.Context, r scraper.Record, logger *slog.Logger) (sql.NullString, resolution) {
	has, err := c.store.HasText(ctx, r.DecisionNumber)
	if err != nil {
		logger.Warn("dedup probe failed, downloading anyway", "decision_number", r.DecisionNumber, "error", err)
	}
	if has {
		return sql.NullString{}, resolvedDeduped
	}

	text, ok := c.download(ctx, r.DecisionNumber, r.PDFFilename, r.DocumentURL)
	if !ok {
		return sql.NullString{}, resolvedFetchFailed
	}
	if text == "" {
		return sql.NullString{String: "", Valid: true}, resolvedEmpty
	}
	return sql.NullString{String: text, Valid: true}, resolvedText
}

// download fetches one document and extracts its text. ok is false only
// when the fetch failed; an unreadable document yields ("", true).
func (c *Coordinator) download(ctx context.Context, number, filename, url string) (string, bool) {
	data, err := c.fetcher.FetchBinary(ctx, url)
	if err != nil {
		return "", false
	}
	name := filename
	if name == "" {
		name = number
	}
	return c.extractor.Extract(name, data), true
}

func (c *Coordinator) recordFailedRun(ctx context.Context, runID string, logger *slog.Logger) {
	err := c.store.RecordRun(context.WithoutCancel(ctx), storage.RunRecord{
		RunID:  runID,
		Status: storage.RunStatusFailed,
	})
	if err != nil {
		logger.Error("could not record failed run", "error", err)
	}
}

// toDecision leaves PDFText null, the "unchanged" sentinel.
func toDecision(r scraper.Record) storage.Decision {
	return storage.Decision{
		DecisionNumber: r.DecisionNumber,
		DecisionDate:   r.DecisionDate,
		Subject:        r.Subject,
		Organization:   r.Organization,
		DocumentTitle:  r.DocumentTitle,
		DocumentURL:    r.DocumentURL,
		DecisionURL:    r.DecisionURL,
		Year:           r.Year,
	}
}
