package agents

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/store"
)

const aggregatorAgent = "aggregator"

// Aggregator merges the per-source result buckets into one deduplicated
// list, enriches records still missing contact data, and writes the final
// bucket.
type Aggregator struct {
	store    store.TaskStore
	enricher *ContactEnricher
}

func NewAggregator(st store.TaskStore, enricher *ContactEnricher) *Aggregator {
	return &Aggregator{store: st, enricher: enricher}
}

// sourceBuckets lists the buckets aggregation consumes, in merge
// precedence order: registry records carry authoritative names and IDs,
// so they seed the merged entities.
var sourceBuckets = []string{
	model.BucketRegistry,
	model.BucketCompanyPages,
	model.BucketPortalPages,
}

// Run merges whatever buckets exist. With the OR-join upstream, any one
// populated source suffices; all-empty input completes with an empty
// final bucket.
func (a *Aggregator) Run(ctx context.Context, task *model.Task) error {
	var all []model.ScrapedRecord
	for _, bucket := range sourceBuckets {
		all = append(all, task.Results[bucket]...)
	}

	merged := MergeRecords(all)

	if a.enricher != nil && len(merged) > 0 {
		enriched, err := a.enricher.Enrich(ctx, task.ID, merged)
		if err != nil {
			return eris.Wrap(err, "aggregator: enrich contacts")
		}
		merged = enriched
	}

	stop, err := checkpoint(ctx, a.store, task.ID)
	if err != nil {
		return eris.Wrap(err, "aggregator: checkpoint")
	}
	if stop {
		return nil
	}

	if err := a.store.AppendResults(ctx, task.ID, model.BucketAggregated, merged); err != nil {
		return eris.Wrap(err, "aggregator: persist merged records")
	}

	logProgress(ctx, a.store, task.ID, aggregatorAgent,
		fmt.Sprintf("merged %d records from %d sources into %d entities",
			len(all), len(sourceBuckets), len(merged)))
	return nil
}

// MergeRecords collapses records describing the same business into one.
// Matching is transitive through the scan order: each record joins the
// first existing entity it matches, unioning contact data and filling
// fields the entity is missing.
func MergeRecords(records []model.ScrapedRecord) []model.ScrapedRecord {
	merged := make([]model.ScrapedRecord, 0, len(records))
	for _, rec := range records {
		matched := false
		for i := range merged {
			if model.SameEntity(merged[i], rec) {
				absorb(&merged[i], rec)
				matched = true
				break
			}
		}
		if !matched {
			merged = append(merged, rec)
		}
	}
	return merged
}

// absorb folds src into dst, keeping dst's fields where both are set.
func absorb(dst *model.ScrapedRecord, src model.ScrapedRecord) {
	dst.ContactDetails.Merge(src.ContactDetails)
	if dst.CompanyName == "" {
		dst.CompanyName = src.CompanyName
	}
	if dst.Description == "" {
		dst.Description = src.Description
	}
	if dst.RegistryID == "" {
		dst.RegistryID = src.RegistryID
	}
	if dst.PKDPrimary == "" {
		dst.PKDPrimary = src.PKDPrimary
	}
	if len(dst.PKDCodes) == 0 {
		dst.PKDCodes = src.PKDCodes
	}
	// Registry links beat scraped page links as the canonical source.
	if dst.SourceType != model.SourceRegistry && src.SourceType == model.SourceRegistry {
		dst.SourceURL = src.SourceURL
		dst.SourceType = src.SourceType
	}
}
