package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadforge/prospect-cli/internal/catalog"
	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/store"
	"github.com/leadforge/prospect-cli/pkg/anthropic"
	"github.com/leadforge/prospect-cli/pkg/ceidg"
)

const registryAgent = "registry-searcher"

const registryFilterSystem = `You filter business-registry entries for a prospecting query.
Keep entries whose name suggests the business offers the identified service; drop clearly unrelated ones. When a name is ambiguous, keep it.
Reply in JSONL: one JSON object per line, each a kept entry copied verbatim: {"id": "...", "nazwa": "..."}. Output nothing else.`

// activeFirmStatus limits registry listings to businesses currently
// operating.
const activeFirmStatus = "AKTYWNY"

// RegistrySearcher queries the CEIDG business registry by PKD code and
// location, filters the listing by name relevance, and pulls full records
// for the survivors.
type RegistrySearcher struct {
	llm      anthropic.Client
	store    store.TaskStore
	registry ceidg.Client
	model    string
	tokens   int64

	maxPages  int
	maxFirms  int
	pageLimit int
}

func NewRegistrySearcher(llm anthropic.Client, st store.TaskStore, registry ceidg.Client, llmModel string, maxTokens int64, maxPages, maxFirms, pageLimit int) *RegistrySearcher {
	return &RegistrySearcher{
		llm: llm, store: st, registry: registry,
		model: llmModel, tokens: maxTokens,
		maxPages: maxPages, maxFirms: maxFirms, pageLimit: pageLimit,
	}
}

// Run pages through the registry listing, AI-filters the summaries, then
// fetches details for at most maxFirms entries. Detail fetching checks
// for pause or terminate between firms.
func (r *RegistrySearcher) Run(ctx context.Context, task *model.Task) error {
	if len(task.Query.PKDCodes) == 0 {
		return eris.New("registry: no PKD codes on query")
	}

	summaries, stopped, err := r.listAll(ctx, task)
	if err != nil {
		return err
	}
	if stopped {
		return nil
	}
	if len(summaries) == 0 {
		logProgress(ctx, r.store, task.ID, registryAgent, "registry listing returned no firms")
		return nil
	}

	kept := r.filterByName(ctx, task, summaries)
	if len(kept) > r.maxFirms {
		kept = kept[:r.maxFirms]
	}

	taskCodes := catalog.NewCodeSet(task.Query.PKDCodes)
	var records []model.ScrapedRecord
	for _, summary := range kept {
		stop, err := checkpoint(ctx, r.store, task.ID)
		if err != nil {
			return eris.Wrap(err, "registry: checkpoint")
		}
		if stop {
			return nil
		}

		firm, err := r.registry.GetFirm(ctx, summary.ID)
		if err != nil {
			zap.L().Warn("registry detail fetch failed",
				zap.String("task", task.ID), zap.String("firm", summary.ID), zap.Error(err))
			continue
		}
		if firm == nil {
			continue
		}
		// The listing filter runs server-side, but the detail record is
		// authoritative; re-verify the code intersection before keeping it.
		if !taskCodes.HasAny(firm.PKDCodes()) {
			continue
		}
		records = append(records, firmRecord(firm))
	}

	if err := r.store.AppendResults(ctx, task.ID, model.BucketRegistry, records); err != nil {
		return eris.Wrap(err, "registry: persist records")
	}

	logProgress(ctx, r.store, task.ID, registryAgent,
		fmt.Sprintf("listed %d firms, kept %d after filtering, stored %d verified records",
			len(summaries), len(kept), len(records)))
	return nil
}

// listAll pages through the listing cursor. The page cap and the
// visited-URL set both guard against a server that keeps handing back
// cursors. stopped reports a pause or terminate observed mid-listing;
// the caller must then return without further writes.
func (r *RegistrySearcher) listAll(ctx context.Context, task *model.Task) (summaries []ceidg.FirmSummary, stopped bool, err error) {
	filters := ceidg.ListFilters{
		City:     task.Query.Location.City,
		Province: task.Query.Location.Province,
		PKDCodes: catalog.Dotless(task.Query.PKDCodes),
		Status:   activeFirmStatus,
		Limit:    r.pageLimit,
	}

	visited := make(map[string]struct{})
	pageURL := ""
	for page := 0; page < r.maxPages; page++ {
		stop, err := checkpoint(ctx, r.store, task.ID)
		if err != nil {
			return nil, false, eris.Wrap(err, "registry: checkpoint")
		}
		if stop {
			return nil, true, nil
		}

		resp, err := r.registry.ListFirms(ctx, filters, pageURL)
		if err != nil {
			if len(summaries) > 0 {
				zap.L().Warn("registry listing page failed, continuing with partial listing",
					zap.String("task", task.ID), zap.Int("page", page), zap.Error(err))
				break
			}
			return nil, false, eris.Wrap(err, "registry: list firms")
		}
		summaries = append(summaries, resp.Firms...)

		if resp.NextURL == "" {
			break
		}
		if _, seen := visited[resp.NextURL]; seen {
			zap.L().Warn("registry cursor loop detected",
				zap.String("task", task.ID), zap.String("url", resp.NextURL))
			break
		}
		visited[resp.NextURL] = struct{}{}
		pageURL = resp.NextURL
	}
	return summaries, false, nil
}

// filterByName runs the fast model over the listing names. Fails open:
// on LLM failure or an empty parse the unfiltered listing is used.
func (r *RegistrySearcher) filterByName(ctx context.Context, task *model.Task, summaries []ceidg.FirmSummary) []ceidg.FirmSummary {
	var b strings.Builder
	fmt.Fprintf(&b, "Identified service: %s\n\nRegistry entries:\n", task.Query.IdentifiedService)
	for _, s := range summaries {
		fmt.Fprintf(&b, `{"id": %q, "nazwa": %q}`+"\n", s.ID, s.Name)
	}

	resp, err := r.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.model,
		MaxTokens: r.tokens,
		System:    registryFilterSystem,
		Messages:  []anthropic.Message{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		zap.L().Warn("registry name filter failed, keeping unfiltered listing",
			zap.String("task", task.ID), zap.Error(err))
		return summaries
	}
	resp.Usage.LogCost(r.model, registryAgent)

	known := make(map[string]struct{}, len(summaries))
	for _, s := range summaries {
		known[s.ID] = struct{}{}
	}
	kept := decodeLines(resp.Text(), func(s ceidg.FirmSummary) bool {
		_, ok := known[s.ID]
		return ok
	})
	if len(kept) == 0 {
		zap.L().Warn("registry name filter kept nothing, keeping unfiltered listing",
			zap.String("task", task.ID))
		return summaries
	}
	return kept
}

func firmRecord(firm *ceidg.Firm) model.ScrapedRecord {
	rec := model.ScrapedRecord{
		CompanyName: firm.Name,
		SourceURL:   firm.Link,
		SourceType:  model.SourceRegistry,
		RegistryID:  firm.ID,
		PKDCodes:    firm.PKDCodes(),
	}
	if firm.PKDPrimary != nil {
		rec.PKDPrimary = firm.PKDPrimary.Code
	}
	if firm.Email != "" {
		rec.ContactDetails.Emails = []string{firm.Email}
	}
	if firm.Phone != "" {
		// Same digits-only form the page scraper produces, so aggregation
		// can match on phone overlap across sources.
		if digits := digitRe.ReplaceAllString(firm.Phone, ""); digits != "" {
			rec.ContactDetails.Phones = []string{digits}
		}
	}
	if firm.Address != nil {
		rec.ContactDetails.Address = formatAddress(firm.Address)
	}
	return rec
}

func formatAddress(a *ceidg.Address) string {
	var parts []string
	if a.Street != "" {
		street := a.Street
		if a.Building != "" {
			street += " " + a.Building
		}
		parts = append(parts, street)
	}
	if a.PostCode != "" || a.City != "" {
		parts = append(parts, strings.TrimSpace(a.PostCode+" "+a.City))
	}
	return strings.Join(parts, ", ")
}
