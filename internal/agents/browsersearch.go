package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/pkg/anthropic"
	"github.com/leadforge/prospect-cli/pkg/browser"
)

const browserSearchAgent = "browser-searcher"

const duckDuckGoURL = "https://duckduckgo.com/"

const serpExtractSystem = `You read the simplified element list of a search-results page and extract the organic result links.
Respond with a single JSON object and nothing else:
{"results": [{"title": "...", "link": "https://..."}]}
Skip ads, navigation and related-search links.`

// BrowserSearcher performs a search by driving the remote browser through
// DuckDuckGo and having the model read results off the page. It serves
// the contact enricher, which needs searches without an API quota.
type BrowserSearcher struct {
	llm     anthropic.Client
	browser browser.Client
	model   string
	tokens  int64
}

func NewBrowserSearcher(llm anthropic.Client, bc browser.Client, llmModel string, maxTokens int64) *BrowserSearcher {
	return &BrowserSearcher{llm: llm, browser: bc, model: llmModel, tokens: maxTokens}
}

type serpReply struct {
	Results []model.SearchResult `json:"results"`
}

// Search types the query into DuckDuckGo and extracts organic results.
// Every failure path returns an empty slice; callers treat no results as
// "nothing found", never as a step failure.
func (b *BrowserSearcher) Search(ctx context.Context, query string) []model.SearchResult {
	session := browser.NewSession(b.browser)
	defer session.Close()

	steps := []func() error{
		func() error { return session.Navigate(ctx, duckDuckGoURL) },
		func() error { return session.Type(ctx, `input[name="q"]`, query) },
		func() error { return session.Click(ctx, `button[type="submit"]`) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			zap.L().Warn("browser search navigation failed",
				zap.String("query", query), zap.Error(err))
			return nil
		}
	}

	dom, err := session.Observe(ctx)
	if err != nil || dom == "" {
		zap.L().Warn("browser search observe failed", zap.String("query", query), zap.Error(err))
		return nil
	}

	resp, err := b.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     b.model,
		MaxTokens: b.tokens,
		System:    serpExtractSystem,
		Messages:  []anthropic.Message{{Role: "user", Content: fmt.Sprintf("```\n%s\n```", dom)}},
	})
	if err != nil {
		zap.L().Warn("result extraction failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	resp.Usage.LogCost(b.model, browserSearchAgent)

	var reply serpReply
	if err := decodeObject(resp.Text(), &reply); err != nil {
		zap.L().Warn("result extraction unparseable", zap.String("query", query), zap.Error(err))
		return nil
	}

	results := make([]model.SearchResult, 0, len(reply.Results))
	for _, r := range reply.Results {
		if r.Link == "" {
			continue
		}
		results = append(results, model.SearchResult{
			Title: r.Title,
			// Some result pages render breadcrumb-style URLs.
			Link: strings.ReplaceAll(r.Link, " › ", "/"),
		})
	}
	return results
}

// FindBestURL picks the most promising link from browser search results,
// preferring a Facebook page since business profiles there reliably list
// contact data.
func FindBestURL(results []model.SearchResult) string {
	for _, r := range results {
		if strings.Contains(r.Link, "facebook.com") {
			return r.Link
		}
	}
	if len(results) > 0 {
		return results[0].Link
	}
	return ""
}
