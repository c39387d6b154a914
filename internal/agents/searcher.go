package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/store"
	"github.com/leadforge/prospect-cli/pkg/anthropic"
	"github.com/leadforge/prospect-cli/pkg/websearch"
)

const searcherAgent = "web-searcher"

const searchFilterSystem = `You filter web search results for a business prospecting query.
Keep only results plausibly belonging to businesses offering the identified service, or directories listing such businesses. Drop news articles, definitions, forums and unrelated pages.
Reply in JSONL: one JSON object per line, each a kept result copied verbatim: {"title": "...", "link": "...", "snippet": "..."}. Output nothing else.`

// Searcher runs the expanded keywords through web search, deduplicates
// the hits and applies an LLM relevance filter.
type Searcher struct {
	llm    anthropic.Client
	store  store.TaskStore
	search websearch.Client
	model  string
	tokens int64
	count  int
}

func NewSearcher(llm anthropic.Client, st store.TaskStore, search websearch.Client, llmModel string, maxTokens int64, resultCount int) *Searcher {
	return &Searcher{llm: llm, store: st, search: search, model: llmModel, tokens: maxTokens, count: resultCount}
}

// Run searches each keyword, checking for pause or terminate between
// keywords. Partial results gathered before an interruption are discarded
// with the step; the step re-runs whole on resume.
func (s *Searcher) Run(ctx context.Context, task *model.Task) error {
	keywords := task.Query.ExpandedKeywords
	if len(keywords) == 0 && task.Query.InitialQuery != "" {
		keywords = []string{task.Query.InitialQuery}
	}
	if len(keywords) == 0 {
		return eris.New("searcher: no keywords to search")
	}

	var all []model.SearchResult
	for _, kw := range keywords {
		if ctx.Err() != nil {
			return nil
		}
		status, err := s.store.GetStatus(ctx, task.ID)
		if err != nil {
			return eris.Wrap(err, "searcher: checkpoint")
		}
		if status.Interrupted() {
			// Narrate a pause; a terminated task gets no further writes.
			if status == model.StatusPaused {
				logProgress(ctx, s.store, task.ID, searcherAgent,
					fmt.Sprintf("paused before keyword %q, search restarts from the first keyword on resume", kw))
			}
			return nil
		}

		query := kw
		if city := task.Query.Location.City; city != "" && !strings.Contains(strings.ToLower(kw), strings.ToLower(city)) {
			query = kw + " " + city
		}

		items, err := s.search.Search(ctx, query, s.count)
		if err != nil {
			// One failed keyword does not sink the pass.
			zap.L().Warn("keyword search failed",
				zap.String("task", task.ID), zap.String("query", query), zap.Error(err))
			continue
		}
		for _, it := range items {
			all = append(all, model.SearchResult{Title: it.Title, Link: it.Link, Snippet: it.Snippet})
		}
	}

	all = model.DedupeByLink(all)
	if len(all) == 0 {
		return eris.New("searcher: all keyword searches failed or returned nothing")
	}

	kept := s.filterRelevant(ctx, task, all)

	if err := s.store.SetIntermediate(ctx, task.ID, model.IntermediateSearchResults, kept); err != nil {
		return eris.Wrap(err, "searcher: persist results")
	}
	setIntermediate(task, model.IntermediateSearchResults, kept)

	logProgress(ctx, s.store, task.ID, searcherAgent,
		fmt.Sprintf("searched %d keywords, kept %d of %d results", len(keywords), len(kept), len(all)))
	return nil
}

// filterRelevant asks the fast model to drop off-topic hits. The filter
// fails open: on any LLM failure the unfiltered list is used, since a
// noisy result set beats an empty one.
func (s *Searcher) filterRelevant(ctx context.Context, task *model.Task, results []model.SearchResult) []model.SearchResult {
	var b strings.Builder
	fmt.Fprintf(&b, "Identified service: %s\n", task.Query.IdentifiedService)
	fmt.Fprintf(&b, "Location: %s %s\n\nResults:\n", task.Query.Location.City, task.Query.Location.Province)
	for _, r := range results {
		fmt.Fprintf(&b, "- title: %s | link: %s | snippet: %s\n", r.Title, r.Link, r.Snippet)
	}

	resp, err := s.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.tokens,
		System:    searchFilterSystem,
		Messages:  []anthropic.Message{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		zap.L().Warn("relevance filter failed, keeping unfiltered results",
			zap.String("task", task.ID), zap.Error(err))
		return results
	}
	resp.Usage.LogCost(s.model, searcherAgent)

	known := make(map[string]struct{}, len(results))
	for _, r := range results {
		known[r.Link] = struct{}{}
	}
	kept := decodeLines(resp.Text(), func(r model.SearchResult) bool {
		_, ok := known[r.Link]
		return ok && r.Title != "" && r.Snippet != ""
	})
	if len(kept) == 0 {
		zap.L().Warn("relevance filter kept nothing, keeping unfiltered results",
			zap.String("task", task.ID))
		return results
	}
	return model.DedupeByLink(kept)
}

// setIntermediate mirrors a persisted intermediate value onto the
// in-memory task so later steps in the same run see it without a reload.
func setIntermediate(task *model.Task, key string, value any) {
	if task.Intermediate == nil {
		task.Intermediate = make(map[string]any)
	}
	task.Intermediate[key] = value
}
