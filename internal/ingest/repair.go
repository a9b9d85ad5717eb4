package ingest

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/caiarchive/internal/scraper"
)

// RepairResult summarizes one RepairMissingText pass.
type RepairResult struct {
	Candidates  int
	Repaired    int
	EmptyText   int // repaired with an empty result
	FetchFailed int
	Failed      int // text extracted but the write failed
}

// RepairMissingText retries extraction for stored decisions that link a
// document but have never had text recorded. It follows the same failure
// policy as Run and writes no history row.
func (c *Coordinator) RepairMissingText(ctx context.Context) (RepairResult, error) {
	var res RepairResult
	if err := c.store.Migrate(); err != nil {
		return res, fmt.Errorf("migrating schema: %w", err)
	}

	pending, err := c.store.ListMissingText(ctx, c.repairLimit)
	if err != nil {
		return res, fmt.Errorf("listing decisions without text: %w", err)
	}
	res.Candidates = len(pending)
	if len(pending) == 0 {
		c.logger.Info("no decisions need text repair")
		return res, nil
	}

	var repaired, empty, fetchFailed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(c.workers)
	for _, d := range pending {
		g.Go(func() error {
			text, ok := c.download(ctx, d.DecisionNumber, scraper.PDFFilename(d.DocumentURL), d.DocumentURL)
			if !ok {
				fetchFailed.Add(1)
				return nil
			}
			set, err := c.store.SetText(ctx, d.DecisionNumber, text)
			if err != nil {
				c.logger.Warn("could not store repaired text", "decision_number", d.DecisionNumber, "error", err)
				failed.Add(1)
				return nil
			}
			if set {
				repaired.Add(1)
				if text == "" {
					empty.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Repaired = int(repaired.Load())
	res.EmptyText = int(empty.Load())
	res.FetchFailed = int(fetchFailed.Load())
	res.Failed = int(failed.Load())

	c.logger.Info("text repair complete",
		"candidates", res.Candidates,
		"repaired", res.Repaired,
		"empty_text", res.EmptyText,
		"fetch_failed", res.FetchFailed,
		"failed", res.Failed,
	)
	return res, nil
}
