package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/leadforge/prospect-cli/internal/catalog"
	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/store"
	"github.com/leadforge/prospect-cli/pkg/anthropic"
)

const enricherAgent = "query-enricher"

const enricherSystem = `You analyse a business prospecting query and expand it for downstream search.
Identify the concrete service or product the user is looking for, produce 8-12 search keyword variants in the query's language, and select 1-3 matching industry classification codes strictly from the provided candidate list.
Respond with a single JSON object and nothing else:
{"identifiedService": "...", "expandedKeywords": ["...", "..."], "pkdCodes": ["43.99.Z"]}`

// Enricher expands the initial free-text query into a structured one:
// identified service, keyword variants and a set of PKD codes drawn from
// the catalog.
type Enricher struct {
	llm     anthropic.Client
	store   store.TaskStore
	catalog *catalog.Catalog
	model   string
	tokens  int64
}

func NewEnricher(llm anthropic.Client, st store.TaskStore, cat *catalog.Catalog, llmModel string, maxTokens int64) *Enricher {
	return &Enricher{llm: llm, store: st, catalog: cat, model: llmModel, tokens: maxTokens}
}

type enrichmentReply struct {
	IdentifiedService string   `json:"identifiedService"`
	ExpandedKeywords  []string `json:"expandedKeywords"`
	PKDCodes          []string `json:"pkdCodes"`
}

// Run enriches the task query in place. A reply without an extractable
// JSON object fails the step; there is no useful degraded mode when the
// whole downstream pipeline keys off this output.
func (e *Enricher) Run(ctx context.Context, task *model.Task) error {
	candidates := e.catalog.Candidates(task.Query.SelectedPKDSection)
	if len(candidates) == 0 {
		return eris.Errorf("enricher: no catalog candidates for section %q", task.Query.SelectedPKDSection)
	}

	prompt := e.buildPrompt(task.Query, candidates)
	resp, err := e.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.tokens,
		System:    enricherSystem,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return eris.Wrap(err, "enricher: create message")
	}
	resp.Usage.LogCost(e.model, enricherAgent)

	var reply enrichmentReply
	if err := decodeObject(resp.Text(), &reply); err != nil {
		return eris.Wrap(err, "enricher: parse reply")
	}
	if reply.IdentifiedService == "" {
		return eris.New("enricher: reply missing identifiedService")
	}

	// The model only gets to pick from the candidate list; anything it
	// invents outside the catalog is dropped here.
	allowed := catalog.NewCodeSet(codeStrings(candidates))
	verified := make([]string, 0, len(reply.PKDCodes))
	for _, code := range reply.PKDCodes {
		if allowed.Has(code) {
			verified = append(verified, code)
		}
	}

	if err := e.store.MergeQuery(ctx, task.ID, map[string]any{
		"identifiedService": reply.IdentifiedService,
		"expandedKeywords":  reply.ExpandedKeywords,
		"pkdCodes":          verified,
	}); err != nil {
		return eris.Wrap(err, "enricher: persist query")
	}

	task.Query.IdentifiedService = reply.IdentifiedService
	task.Query.ExpandedKeywords = reply.ExpandedKeywords
	task.Query.PKDCodes = verified

	logProgress(ctx, e.store, task.ID, enricherAgent,
		fmt.Sprintf("identified service %q, %d keywords, %d verified PKD codes",
			reply.IdentifiedService, len(reply.ExpandedKeywords), len(verified)))
	return nil
}

func (e *Enricher) buildPrompt(q model.QuerySpec, candidates []catalog.Code) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n", q.InitialQuery)
	if q.Location.City != "" {
		fmt.Fprintf(&b, "City: %s\n", q.Location.City)
	}
	if q.Location.Province != "" {
		fmt.Fprintf(&b, "Province: %s\n", q.Location.Province)
	}
	b.WriteString("\nCandidate PKD codes:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "%s %s\n", c.Code, c.Name)
	}
	return b.String()
}

func codeStrings(codes []catalog.Code) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, c.Code)
	}
	return out
}
