package agents

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/store"
)

const contactAgent = "contact-enricher"

// ContactEnricher fills in missing contact details: for each record
// without an email or phone it searches the web for the company, picks
// the best hit and runs the contact-hunting browser loop against it.
type ContactEnricher struct {
	store       store.TaskStore
	searcher    *BrowserSearcher
	scraper     *PageScraper
	concurrency int
}

func NewContactEnricher(st store.TaskStore, searcher *BrowserSearcher, scraper *PageScraper, concurrency int) *ContactEnricher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ContactEnricher{store: st, searcher: searcher, scraper: scraper, concurrency: concurrency}
}

// Enrich processes records in fixed-size parallel windows, checking for
// pause or terminate before each window. Records that already have
// contact data or lack a company name pass through untouched; the output
// preserves input order and length.
func (c *ContactEnricher) Enrich(ctx context.Context, taskID string, records []model.ScrapedRecord) ([]model.ScrapedRecord, error) {
	out := make([]model.ScrapedRecord, len(records))
	copy(out, records)

	var enriched atomic.Int64
	for start := 0; start < len(out); start += c.concurrency {
		stop, err := checkpoint(ctx, c.store, taskID)
		if err != nil {
			return nil, eris.Wrap(err, "contact enricher: checkpoint")
		}
		if stop {
			// Hand back whatever is done; the caller decides whether a
			// partially enriched set is worth keeping.
			return out, nil
		}

		end := start + c.concurrency
		if end > len(out) {
			end = len(out)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.concurrency)
		for i := start; i < end; i++ {
			g.Go(func() error {
				if done := c.enrichOne(gctx, taskID, &out[i]); done {
					enriched.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, eris.Wrap(err, "contact enricher: window")
		}
	}

	logProgress(ctx, c.store, taskID, contactAgent,
		fmt.Sprintf("enriched %d of %d records", enriched.Load(), len(records)))
	return out, nil
}

// enrichOne reports whether it added contact data to rec. A Facebook
// profile search runs first; only when that finds nothing does a general
// name search decide the target URL.
func (c *ContactEnricher) enrichOne(ctx context.Context, taskID string, rec *model.ScrapedRecord) bool {
	if rec.ContactDetails.HasAny() || rec.CompanyName == "" {
		return false
	}

	bestURL := ""
	for _, r := range c.searcher.Search(ctx, rec.CompanyName+" facebook") {
		if strings.Contains(r.Link, "facebook.com") {
			bestURL = r.Link
			break
		}
	}
	if bestURL == "" {
		bestURL = FindBestURL(c.searcher.Search(ctx, rec.CompanyName))
	}
	if bestURL == "" {
		return false
	}

	found := c.scraper.ScrapeContacts(ctx, taskID, bestURL)
	if !found.HasAny() {
		return false
	}
	rec.ContactDetails.Merge(found)
	return true
}
