package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// execer is the subset of *sql.DB and *sql.Tx used by the write paths, so a
// single upsert can run standalone or inside a batch transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// pdf_text merge: stored non-empty text always wins, a null argument never
// replaces anything, and an empty stored text may be upgraded.
const upsertDecisionSQL = `
	INSERT INTO decisions (decision_number, decision_date, subject, organization, document_title,
		document_url, decision_url, year, pdf_text, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(decision_number) DO UPDATE SET
		decision_date = excluded.decision_date,
		subject = excluded.subject,
		organization = excluded.organization,
		document_title = excluded.document_title,
		document_url = excluded.document_url,
		decision_url = excluded.decision_url,
		year = excluded.year,
		pdf_text = COALESCE(NULLIF(decisions.pdf_text, ''), excluded.pdf_text, decisions.pdf_text),
		updated_at = excluded.updated_at`

var (
	errMissingNumber = errors.New("decision number is required")
	errMissingDate   = errors.New("decision date is required")
)

func upsertDecision(ctx context.Context, ex execer, d Decision, now time.Time) (UpsertOutcome, error) {
	if d.DecisionNumber == "" {
		return UpsertOutcome{}, errMissingNumber
	}
	if d.DecisionDate == "" {
		return UpsertOutcome{}, fmt.Errorf("decision %s: %w", d.DecisionNumber, errMissingDate)
	}

	var existed int
	if err := ex.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM decisions WHERE decision_number = ?`, d.DecisionNumber,
	).Scan(&existed); err != nil {
		return UpsertOutcome{}, fmt.Errorf("probing decision %s: %w", d.DecisionNumber, err)
	}

	ts := formatTime(now)
	res, err := ex.ExecContext(ctx, upsertDecisionSQL,
		d.DecisionNumber, d.DecisionDate, d.Subject, d.Organization, d.DocumentTitle,
		d.DocumentURL, d.DecisionURL, d.Year, d.PDFText, ts, ts,
	)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("upserting decision %s: %w", d.DecisionNumber, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return UpsertOutcome{}, err
	}
	return UpsertOutcome{Inserted: existed == 0 && n > 0, Changed: n > 0}, nil
}

// Upsert inserts d or merges it into the existing row with the same decision
// number. See Decision.PDFText for how stored text is preserved.
func (s *Store) Upsert(ctx context.Context, d Decision) (UpsertOutcome, error) {
	return upsertDecision(ctx, s.db, d, time.Now())
}

// SaveBatch upserts decisions in order inside one transaction and appends a
// success RunRecord for runID before committing. A decision whose write fails
// is reported in the result and does not abort the batch.
func (s *Store) SaveBatch(ctx context.Context, runID string, decisions []Decision) (BatchResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return BatchResult{}, fmt.Errorf("beginning batch transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	var res BatchResult
	for _, d := range decisions {
		out, err := upsertDecision(ctx, tx, d, now)
		if err != nil {
			res.Skipped++
			res.Failures = append(res.Failures, RecordFailure{DecisionNumber: d.DecisionNumber, Err: err})
			continue
		}
		if out.Changed {
			res.Added++
			if !out.Inserted {
				res.Updated++
			}
		}
	}

	run := RunRecord{
		RunID:          runID,
		ScrapedAt:      now,
		RecordsAdded:   res.Added,
		RecordsUpdated: res.Updated,
		RecordsSkipped: res.Skipped,
		Status:         RunStatusSuccess,
	}
	if err := insertRun(ctx, tx, run); err != nil {
		return res, err
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("committing batch: %w", err)
	}
	return res, nil
}

// RecordRun appends one row to the ingestion history.
func (s *Store) RecordRun(ctx context.Context, r RunRecord) error {
	if r.ScrapedAt.IsZero() {
		r.ScrapedAt = time.Now()
	}
	return insertRun(ctx, s.db, r)
}

func insertRun(ctx context.Context, ex execer, r RunRecord) error {
	status := r.Status
	if status == "" {
		status = RunStatusSuccess
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO scraping_history (run_id, scraped_at, records_added, records_updated, records_skipped, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, formatTime(r.ScrapedAt), r.RecordsAdded, r.RecordsUpdated, r.RecordsSkipped, status,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.RunID, err)
	}
	return nil
}

// HasText reports whether a decision already has extracted text (possibly
// empty). It is the dedup probe run before downloading a PDF.
func (s *Store) HasText(ctx context.Context, decisionNumber string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM decisions WHERE decision_number = ? AND pdf_text IS NOT NULL`,
		decisionNumber,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("probing text for %s: %w", decisionNumber, err)
	}
	return n > 0, nil
}

// ListMissingText returns decisions that link a document but were never
// extracted, newest first.
func (s *Store) ListMissingText(ctx context.Context, limit int) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+listColumns+` FROM decisions
		WHERE pdf_text IS NULL AND document_url IS NOT NULL AND document_url != ''
		ORDER BY decision_date DESC, id ASC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing decisions without text: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows, false)
}

// SetText stores extracted text for a decision that has none yet. It reports
// false when the decision is missing or already has text.
func (s *Store) SetText(ctx context.Context, decisionNumber, text string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE decisions SET pdf_text = ?, updated_at = ?
		WHERE decision_number = ? AND pdf_text IS NULL`,
		text, formatTime(time.Now()), decisionNumber,
	)
	if err != nil {
		return false, fmt.Errorf("setting text for %s: %w", decisionNumber, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecentRuns returns the latest history rows, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, scraped_at, records_added, records_updated, records_skipped, status
		FROM scraping_history ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RunRecord
	for rows.Next() {
		var (
			r                       RunRecord
			runID, scrapedAt        sql.NullString
			added, updated, skipped sql.NullInt64
			status                  sql.NullString
		)
		if err := rows.Scan(&r.ID, &runID, &scrapedAt, &added, &updated, &skipped, &status); err != nil {
			return nil, err
		}
		t, err := parseTime(scrapedAt)
		if err != nil {
			return nil, err
		}
		r.RunID = runID.String
		r.ScrapedAt = t
		r.RecordsAdded = int(added.Int64)
		r.RecordsUpdated = int(updated.Int64)
		r.RecordsSkipped = int(skipped.Int64)
		r.Status = status.String
		results = append(results, r)
	}
	return results, rows.Err()
}
