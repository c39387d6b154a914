package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/leadforge/prospect-cli/internal/agents"
	"github.com/leadforge/prospect-cli/internal/catalog"
	"github.com/leadforge/prospect-cli/internal/store"
	"github.com/leadforge/prospect-cli/internal/workflow"
	anthropicpkg "github.com/leadforge/prospect-cli/pkg/anthropic"
	"github.com/leadforge/prospect-cli/pkg/browser"
	"github.com/leadforge/prospect-cli/pkg/ceidg"
	"github.com/leadforge/prospect-cli/pkg/websearch"
)

func initStore(ctx context.Context) (store.TaskStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "prospect.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// appEnv bundles everything a task-running command needs.
type appEnv struct {
	Store        store.TaskStore
	Orchestrator *workflow.Orchestrator
}

func (e *appEnv) Close() {
	_ = e.Store.Close()
}

// initEnv wires the store, the API clients and the agent set behind an
// orchestrator.
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		st.Close()
		return nil, err
	}

	llm := anthropicpkg.NewClient(cfg.Anthropic.Key)
	searchClient := websearch.NewClient(cfg.Search.Key, cfg.Search.EngineID,
		websearch.WithBaseURL(cfg.Search.BaseURL),
		websearch.WithRateLimit(cfg.Search.RatePerSec),
	)
	registryClient := ceidg.NewClient(cfg.CEIDG.Key,
		ceidg.WithBaseURL(cfg.CEIDG.BaseURL),
		ceidg.WithRateLimit(cfg.CEIDG.RatePerSec),
	)
	browserClient := browser.NewClient(cfg.Browser.URL, cfg.Browser.Secret,
		browser.WithTimeout(browserTimeout()),
	)

	maxTokens := cfg.Anthropic.MaxTokens
	scraper := agents.NewPageScraper(llm, st, browserClient,
		cfg.Anthropic.ProModel, maxTokens, cfg.Scrape.MaxSteps, cfg.Scrape.BatchSize)
	browserSearcher := agents.NewBrowserSearcher(llm, browserClient, cfg.Anthropic.ProModel, maxTokens)
	contactEnricher := agents.NewContactEnricher(st, browserSearcher, scraper, cfg.Enrich.Concurrency)

	orch := workflow.NewOrchestrator(st, workflow.Deps{
		Enricher:   agents.NewEnricher(llm, st, cat, cfg.Anthropic.ProModel, maxTokens),
		Searcher:   agents.NewSearcher(llm, st, searchClient, cfg.Anthropic.FastModel, maxTokens, cfg.Search.ResultCount),
		Classifier: agents.NewClassifier(llm, st, cfg.Anthropic.FastModel, maxTokens),
		Scraper:    scraper,
		Registry: agents.NewRegistrySearcher(llm, st, registryClient,
			cfg.Anthropic.FastModel, maxTokens, cfg.CEIDG.MaxPages, cfg.CEIDG.MaxFirms, cfg.CEIDG.PageLimit),
		Aggregator: agents.NewAggregator(st, contactEnricher),
	})

	return &appEnv{Store: st, Orchestrator: orch}, nil
}

func browserTimeout() time.Duration {
	if cfg.Browser.TimeoutSecs <= 0 {
		return 90 * time.Second
	}
	return time.Duration(cfg.Browser.TimeoutSecs) * time.Second
}
