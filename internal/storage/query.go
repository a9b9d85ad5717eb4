package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	maxOrganizations   = 100
)

// listColumns omits pdf_text to keep list responses small.
const listColumns = `id, decision_number, decision_date, subject, organization, document_title,
	document_url, decision_url, year, created_at, updated_at`

const fullColumns = listColumns + `, pdf_text`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(sc rowScanner, withText bool) (Decision, error) {
	var (
		d                    Decision
		org, docURL, decURL  sql.NullString
		createdAt, updatedAt sql.NullString
	)
	dest := []any{&d.ID, &d.DecisionNumber, &d.DecisionDate, &d.Subject, &org, &d.DocumentTitle,
		&docURL, &decURL, &d.Year, &createdAt, &updatedAt}
	if withText {
		dest = append(dest, &d.PDFText)
	}
	if err := sc.Scan(dest...); err != nil {
		return Decision{}, err
	}
	d.Organization = org.String
	d.DocumentURL = docURL.String
	d.DecisionURL = decURL.String

	var err error
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return Decision{}, fmt.Errorf("parsing created_at for %s: %w", d.DecisionNumber, err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Decision{}, fmt.Errorf("parsing updated_at for %s: %w", d.DecisionNumber, err)
	}
	return d, nil
}

func scanDecisions(rows *sql.Rows, withText bool) ([]Decision, error) {
	var results []Decision
	for rows.Next() {
		d, err := scanDecision(rows, withText)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// GetDecision returns the full decision, including its text, by row id.
func (s *Store) GetDecision(ctx context.Context, id int64) (Decision, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fullColumns+` FROM decisions WHERE id = ?`, id)
	d, err := scanDecision(row, true)
	if err == sql.ErrNoRows {
		return Decision{}, ErrNotFound
	}
	return d, err
}

// GetDecisionByNumber returns the full decision identified by its natural key.
func (s *Store) GetDecisionByNumber(ctx context.Context, number string) (Decision, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fullColumns+` FROM decisions WHERE decision_number = ?`, number)
	d, err := scanDecision(row, true)
	if err == sql.ErrNoRows {
		return Decision{}, ErrNotFound
	}
	return d, err
}

// NormalizePage clamps pagination input: page defaults to 1, limit defaults
// to 20 and is capped at 100.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return page, limit
}

// PageCount is the number of pages needed to show total rows at limit per page.
func PageCount(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// escapeLike makes s match literally inside a LIKE pattern using '\' as escape.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Search returns one page of decisions matching p, newest decision date first.
// The text query is a case-insensitive (ASCII) substring match over the
// number, subject, organization, document title and extracted text.
func (s *Store) Search(ctx context.Context, p SearchParams) (SearchResult, error) {
	page, limit := NormalizePage(p.Page, p.Limit)

	var (
		where []string
		args  []any
	)
	if p.Query != "" {
		term := "%" + escapeLike(p.Query) + "%"
		where = append(where, `(decision_number LIKE ? ESCAPE '\' OR subject LIKE ? ESCAPE '\'
			OR organization LIKE ? ESCAPE '\' OR document_title LIKE ? ESCAPE '\' OR pdf_text LIKE ? ESCAPE '\')`)
		args = append(args, term, term, term, term, term)
	}
	if p.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, p.Year)
	}
	if p.Organization != "" {
		where = append(where, `organization LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(p.Organization)+"%")
	}
	if p.StartDate != "" {
		where = append(where, "decision_date >= ?")
		args = append(args, p.StartDate)
	}
	if p.EndDate != "" {
		where = append(where, "decision_date <= ?")
		args = append(args, p.EndDate)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions`+clause, args...).Scan(&total); err != nil {
		return SearchResult{}, fmt.Errorf("counting decisions: %w", err)
	}

	pageArgs := append(append([]any{}, args...), limit, (page-1)*limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listColumns+` FROM decisions`+clause+` ORDER BY decision_date DESC, id DESC LIMIT ? OFFSET ?`,
		pageArgs...,
	)
	if err != nil {
		return SearchResult{}, fmt.Errorf("searching decisions: %w", err)
	}
	defer rows.Close()

	decisions, err := scanDecisions(rows, false)
	if err != nil {
		return SearchResult{}, err
	}

	return SearchResult{
		Decisions: decisions,
		Total:     total,
		Page:      page,
		Limit:     limit,
		Pages:     PageCount(total, limit),
	}, nil
}

// FilterOptions returns the distinct years (newest first) and up to 100
// organizations (alphabetical).
func (s *Store) FilterOptions(ctx context.Context) (FilterOptions, error) {
	var opts FilterOptions

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT year FROM decisions ORDER BY year DESC`)
	if err != nil {
		return FilterOptions{}, fmt.Errorf("listing years: %w", err)
	}
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			rows.Close()
			return FilterOptions{}, err
		}
		opts.Years = append(opts.Years, y)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return FilterOptions{}, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT DISTINCT organization FROM decisions
		WHERE organization IS NOT NULL AND organization != ''
		ORDER BY organization LIMIT ?`, maxOrganizations,
	)
	if err != nil {
		return FilterOptions{}, fmt.Errorf("listing organizations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return FilterOptions{}, err
		}
		opts.Organizations = append(opts.Organizations, o)
	}
	return opts, rows.Err()
}

// Stats reports totals, extraction coverage and a per-year breakdown.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions`).Scan(&st.Total); err != nil {
		return Stats{}, fmt.Errorf("counting decisions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM decisions WHERE pdf_text IS NOT NULL AND pdf_text != ''`,
	).Scan(&st.WithExtractedText); err != nil {
		return Stats{}, fmt.Errorf("counting extracted decisions: %w", err)
	}
	if st.Total > 0 {
		pct := float64(st.WithExtractedText) / float64(st.Total) * 100
		st.ExtractionPercentage = math.Round(pct*10) / 10
	}

	rows, err := s.db.QueryContext(ctx, `SELECT year, COUNT(*) FROM decisions GROUP BY year ORDER BY year DESC`)
	if err != nil {
		return Stats{}, fmt.Errorf("grouping by year: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var yc YearCount
		if err := rows.Scan(&yc.Year, &yc.Count); err != nil {
			return Stats{}, err
		}
		st.YearBreakdown = append(st.YearBreakdown, yc)
	}
	return st, rows.Err()
}
