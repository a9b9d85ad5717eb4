package ingest

import (
	"context"
	"testing"

	"github.com/kalambet/caiarchive/internal/storage"
)

func TestRepairMissingText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed := func(number, path string, text *string) {
		d := storage.Decision{
			DecisionNumber: number,
			DecisionDate:   "2024-01-01",
			Subject:        "s",
			DocumentTitle:  "Décision",
			Year:           2024,
		}
		if path != "" {
			d.DocumentURL = f.srv.URL + path
		}
		if text != nil {
			d.PDFText = storageText(*text)
		}
		if _, err := f.store.Upsert(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	existing := "déjà là"
	seed("1031833-S", "/docs/1031833-S.pdf", nil)
	seed("R-2", "/docs/unavailable.pdf", nil)
	seed("R-3", "", nil)
	seed("R-4", "/docs/AI-2526-202.pdf", &existing)

	res, err := f.coordinator(t, 2).RepairMissingText(ctx)
	if err != nil {
		t.Fatalf("RepairMissingText: %v", err)
	}
	if res.Candidates != 2 || res.Repaired != 1 || res.FetchFailed != 1 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}

	repaired, _ := f.store.GetDecisionByNumber(ctx, "1031833-S")
	if repaired.PDFText.String == "" {
		t.Error("text not repaired")
	}
	still, _ := f.store.GetDecisionByNumber(ctx, "R-2")
	if still.PDFText.Valid {
		t.Errorf("fetch failure stored %q, want null", still.PDFText.String)
	}
	kept, _ := f.store.GetDecisionByNumber(ctx, "R-4")
	if kept.PDFText.String != existing {
		t.Errorf("existing text = %q, want untouched", kept.PDFText.String)
	}

	runs, _ := f.store.RecentRuns(ctx, 10)
	if len(runs) != 0 {
		t.Errorf("repair wrote %d history rows, want 0", len(runs))
	}
}

func TestRepairMissingText_RespectsLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, n := range []string{"L-1", "L-2", "L-3"} {
		_, err := f.store.Upsert(ctx, storage.Decision{
			DecisionNumber: n,
			DecisionDate:   "2024-01-01",
			DocumentTitle:  "Décision",
			DocumentURL:    f.srv.URL + "/docs/unavailable.pdf",
			Year:           2024,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	c := f.coordinator(t, 1)
	c.repairLimit = 2
	res, err := c.RepairMissingText(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Candidates != 2 {
		t.Errorf("Candidates = %d, want 2", res.Candidates)
	}
}

func TestRepairMissingText_Nothing(t *testing.T) {
	f := newFixture(t)
	res, err := f.coordinator(t, 1).RepairMissingText(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res != (RepairResult{}) {
		t.Errorf("result = %+v, want zero", res)
	}
}
