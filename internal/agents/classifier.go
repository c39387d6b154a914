package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/store"
	"github.com/leadforge/prospect-cli/pkg/anthropic"
)

const classifierAgent = "link-classifier"

const classifierSystem = `You classify web search results for business prospecting.
Partition the given links into two groups:
- companyUrls: pages owned by an individual business offering the service (their own website or social profile)
- portalUrls: directories, marketplaces and aggregator portals listing many businesses
A link belongs to at most one group. Omit links that are neither.
Respond with a single JSON object and nothing else:
{"companyUrls": ["..."], "portalUrls": ["..."]}`

// Classifier partitions the filtered search results into direct company
// pages and portal pages, and stores the partition for user selection.
type Classifier struct {
	llm    anthropic.Client
	store  store.TaskStore
	model  string
	tokens int64
}

func NewClassifier(llm anthropic.Client, st store.TaskStore, llmModel string, maxTokens int64) *Classifier {
	return &Classifier{llm: llm, store: st, model: llmModel, tokens: maxTokens}
}

type classifierReply struct {
	CompanyURLs []string `json:"companyUrls"`
	PortalURLs  []string `json:"portalUrls"`
}

// Run classifies the search results. An unusable LLM reply produces an
// empty partition rather than a failed step; the user still gets to
// inspect and select from nothing, and the downstream scraping steps
// no-op cleanly.
func (c *Classifier) Run(ctx context.Context, task *model.Task) error {
	var results []model.SearchResult
	if err := intermediateAs(task, model.IntermediateSearchResults, &results); err != nil {
		return eris.Wrap(err, "classifier: load search results")
	}
	if len(results) == 0 {
		return eris.New("classifier: no search results to classify")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Identified service: %s\n\nLinks:\n", task.Query.IdentifiedService)
	for _, r := range results {
		fmt.Fprintf(&b, "- %s (%s)\n", r.Link, r.Title)
	}

	links := model.ClassifiedLinks{
		CompanyURLs: []model.SearchResult{},
		PortalURLs:  []model.SearchResult{},
	}
	resp, err := c.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.tokens,
		System:    classifierSystem,
		Messages:  []anthropic.Message{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		zap.L().Warn("classification failed, storing empty partition",
			zap.String("task", task.ID), zap.Error(err))
	} else {
		resp.Usage.LogCost(c.model, classifierAgent)
		var reply classifierReply
		if err := decodeObject(resp.Text(), &reply); err != nil {
			zap.L().Warn("classifier reply unparseable, storing empty partition",
				zap.String("task", task.ID), zap.Error(err))
		} else {
			links = partition(results, reply)
		}
	}

	if err := c.store.SetIntermediate(ctx, task.ID, model.IntermediateSelectableLinks, links); err != nil {
		return eris.Wrap(err, "classifier: persist partition")
	}
	setIntermediate(task, model.IntermediateSelectableLinks, links)

	logProgress(ctx, c.store, task.ID, classifierAgent,
		fmt.Sprintf("classified %d links: %d company, %d portal",
			len(results), len(links.CompanyURLs), len(links.PortalURLs)))
	return nil
}

// partition maps the bare URLs of the reply back to the original result
// objects. Company assignment wins on double listing, so every input
// appears in at most one group; URLs the model invented are dropped.
func partition(results []model.SearchResult, reply classifierReply) model.ClassifiedLinks {
	byLink := make(map[string]model.SearchResult, len(results))
	for _, r := range results {
		byLink[r.Link] = r
	}

	out := model.ClassifiedLinks{
		CompanyURLs: []model.SearchResult{},
		PortalURLs:  []model.SearchResult{},
	}
	taken := make(map[string]struct{})
	for _, link := range reply.CompanyURLs {
		if r, ok := byLink[link]; ok {
			out.CompanyURLs = append(out.CompanyURLs, r)
			taken[link] = struct{}{}
		}
	}
	for _, link := range reply.PortalURLs {
		if _, dup := taken[link]; dup {
			continue
		}
		if r, ok := byLink[link]; ok {
			out.PortalURLs = append(out.PortalURLs, r)
			taken[link] = struct{}{}
		}
	}
	return out
}

// intermediateAs decodes a Task.Intermediate value into a typed target.
// Values loaded from the store arrive as generic JSON, so this round-trips
// through encoding/json regardless of the in-memory shape.
func intermediateAs(task *model.Task, key string, out any) error {
	value, ok := task.Intermediate[key]
	if !ok || value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return eris.Wrapf(err, "agents: marshal intermediate %s", key)
	}
	return eris.Wrapf(json.Unmarshal(raw, out), "agents: decode intermediate %s", key)
}
