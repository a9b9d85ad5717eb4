package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func seedDecisions(t *testing.T, s *Store, ds ...Decision) {
	t.Helper()
	for _, d := range ds {
		if _, err := s.Upsert(context.Background(), d); err != nil {
			t.Fatalf("seeding %s: %v", d.DecisionNumber, err)
		}
	}
}

func TestSearch_Pagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 45; i++ {
		d := testDecision(fmt.Sprintf("10%05d-S", i))
		d.DecisionDate = fmt.Sprintf("2024-01-%02d", i%28+1)
		seedDecisions(t, s, d)
	}

	res, err := s.Search(ctx, SearchParams{Page: 3, Limit: 20})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Total != 45 {
		t.Errorf("Total = %d, want 45", res.Total)
	}
	if res.Pages != 3 {
		t.Errorf("Pages = %d, want 3", res.Pages)
	}
	if len(res.Decisions) != 5 {
		t.Errorf("page 3 has %d decisions, want 5", len(res.Decisions))
	}

	first, err := s.Search(ctx, SearchParams{})
	if err != nil {
		t.Fatal(err)
	}
	if first.Page != 1 || first.Limit != 20 {
		t.Errorf("defaults = page %d limit %d, want 1/20", first.Page, first.Limit)
	}
	for i := 1; i < len(first.Decisions); i++ {
		if first.Decisions[i].DecisionDate > first.Decisions[i-1].DecisionDate {
			t.Fatalf("results not sorted by date descending at %d", i)
		}
	}
	if first.Decisions[0].PDFText.Valid {
		t.Error("list results should not carry pdf_text")
	}
}

func TestSearch_Filters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testDecision("1000001-S")
	a.DecisionDate = "2023-02-01"
	a.Year = 2023
	a.Organization = "Ville de Montréal"
	a.PDFText = text("Le registre des plaintes 100% confidentiel")

	b := testDecision("AI-2425-010")
	b.DecisionDate = "2024-09-10"
	b.Subject = "Demande d'accès"
	b.Organization = "Hydro-Québec"

	c := testDecision("AI-2425-011")
	c.DecisionDate = "2024-11-30"
	c.Subject = "Autre demande"
	c.Organization = "Ville de Laval"

	seedDecisions(t, s, a, b, c)

	tests := []struct {
		name string
		p    SearchParams
		want []string
	}{
		{"no filter", SearchParams{}, []string{"AI-2425-011", "AI-2425-010", "1000001-S"}},
		{"query in pdf text", SearchParams{Query: "registre"}, []string{"1000001-S"}},
		{"query in number", SearchParams{Query: "2425-010"}, []string{"AI-2425-010"}},
		{"percent is literal", SearchParams{Query: "100%"}, []string{"1000001-S"}},
		{"underscore is literal", SearchParams{Query: "AI_2425"}, nil},
		{"year", SearchParams{Year: 2023}, []string{"1000001-S"}},
		{"organization substring", SearchParams{Organization: "Ville"}, []string{"AI-2425-011", "1000001-S"}},
		{"date range inclusive", SearchParams{StartDate: "2024-09-10", EndDate: "2024-11-30"}, []string{"AI-2425-011", "AI-2425-010"}},
		{"combined", SearchParams{Query: "demande", Year: 2024, EndDate: "2024-10-01"}, []string{"AI-2425-010"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := s.Search(ctx, tc.p)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			var got []string
			for _, d := range res.Decisions {
				got = append(got, d.DecisionNumber)
			}
			if fmt.Sprint(got) != fmt.Sprint(tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
			if res.Total != len(tc.want) {
				t.Errorf("Total = %d, want %d", res.Total, len(tc.want))
			}
		})
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, 20},
		{-3, -1, 1, 20},
		{2, 50, 2, 50},
		{1, 500, 1, 100},
	}
	for _, tc := range tests {
		p, l := NormalizePage(tc.page, tc.limit)
		if p != tc.wantPage || l != tc.wantLimit {
			t.Errorf("NormalizePage(%d, %d) = %d, %d; want %d, %d", tc.page, tc.limit, p, l, tc.wantPage, tc.wantLimit)
		}
	}
	if got := PageCount(45, 20); got != 3 {
		t.Errorf("PageCount(45, 20) = %d, want 3", got)
	}
	if got := PageCount(0, 20); got != 0 {
		t.Errorf("PageCount(0, 20) = %d, want 0", got)
	}
}

func TestGetDecision(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := testDecision("1000001-S")
	d.PDFText = text("contenu complet")
	seedDecisions(t, s, d)

	byNumber, err := s.GetDecisionByNumber(ctx, "1000001-S")
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.GetDecision(ctx, byNumber.ID)
	if err != nil {
		t.Fatalf("GetDecision: %v", err)
	}
	if got.PDFText.String != "contenu complet" {
		t.Errorf("PDFText = %q", got.PDFText.String)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not populated")
	}

	if _, err := s.GetDecision(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDecision(9999) error = %v, want ErrNotFound", err)
	}
}

func TestFilterOptions(t *testing.T) {
	s := openTestStore(t)

	var ds []Decision
	for i := 0; i < 105; i++ {
		d := testDecision(fmt.Sprintf("20%05d-S", i))
		d.Organization = fmt.Sprintf("Organisme %03d", i)
		d.Year = 2020 + i%3
		ds = append(ds, d)
	}
	blank := testDecision("20999999-S")
	blank.Organization = ""
	ds = append(ds, blank)
	seedDecisions(t, s, ds...)

	opts, err := s.FilterOptions(context.Background())
	if err != nil {
		t.Fatalf("FilterOptions: %v", err)
	}
	if fmt.Sprint(opts.Years) != "[2024 2022 2021 2020]" {
		t.Errorf("Years = %v", opts.Years)
	}
	if len(opts.Organizations) != 100 {
		t.Errorf("Organizations = %d, want capped at 100", len(opts.Organizations))
	}
	if opts.Organizations[0] != "Organisme 000" {
		t.Errorf("first organization = %q, want alphabetical order", opts.Organizations[0])
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Total != 0 || empty.ExtractionPercentage != 0 {
		t.Errorf("empty stats = %+v", empty)
	}

	a := testDecision("1000001-S")
	a.PDFText = text("texte")
	b := testDecision("1000002-S")
	b.PDFText = text("")
	c := testDecision("1000003-S")
	c.Year = 2023
	seedDecisions(t, s, a, b, c)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 3 || st.WithExtractedText != 1 {
		t.Errorf("Total/WithExtractedText = %d/%d, want 3/1", st.Total, st.WithExtractedText)
	}
	if st.ExtractionPercentage != 33.3 {
		t.Errorf("ExtractionPercentage = %v, want 33.3", st.ExtractionPercentage)
	}
	if fmt.Sprint(st.YearBreakdown) != "[{2024 2} {2023 1}]" {
		t.Errorf("YearBreakdown = %v", st.YearBreakdown)
	}
}
