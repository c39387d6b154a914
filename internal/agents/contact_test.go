package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/store"
	"github.com/leadforge/prospect-cli/pkg/browser"
)

func TestContactEnricherSkipsRecordsWithContacts(t *testing.T) {
	st := store.NewMemory()
	task := newTestTask(t, st)

	bc := new(mockBrowser)
	e := NewContactEnricher(st, NewBrowserSearcher(new(mockLLM), bc, "test-model", 1024),
		NewPageScraper(new(mockLLM), st, bc, "test-model", 1024, 5, 3), 3)

	in := []model.ScrapedRecord{
		{CompanyName: "Brukpol", ContactDetails: model.ContactDetails{Emails: []string{"biuro@brukpol.pl"}}},
		{CompanyName: ""}, // no name, nothing to search for
	}
	out, err := e.Enrich(context.Background(), task.ID, in)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in, out)

	// No browser traffic at all.
	bc.AssertNotCalled(t, "Do", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestContactEnricherFacebookFirst(t *testing.T) {
	st := store.NewMemory()
	task := newTestTask(t, st)

	bc := new(mockBrowser)
	// Facebook search session.
	bc.On("Do", mock.Anything, browser.ActionNavigate, map[string]any{"url": duckDuckGoURL}, mock.Anything).
		Return(&browser.Result{Success: true}, nil).Once()
	bc.On("Do", mock.Anything, browser.ActionType, mock.Anything, mock.Anything).
		Return(&browser.Result{Success: true}, nil).Once()
	bc.On("Do", mock.Anything, browser.ActionClick, mock.Anything, mock.Anything).
		Return(&browser.Result{Success: true}, nil).Once()
	bc.On("Do", mock.Anything, browser.ActionObserve, mock.Anything, mock.Anything).
		Return(&browser.Result{Success: true, SimplifiedDOM: `[a] "results"`}, nil).Twice()
	// Contact scrape session on the facebook page.
	bc.On("Do", mock.Anything, browser.ActionNavigate, map[string]any{"url": "https://facebook.com/brukpol"}, mock.Anything).
		Return(&browser.Result{Success: true}, nil).Once()
	bc.On("Do", mock.Anything, browser.ActionExtract, mock.Anything, mock.Anything).
		Return(&browser.Result{Success: true, Content: "kontakt: biuro@brukpol.pl tel 601 602 603"}, nil).Once()
	bc.On("Do", mock.Anything, browser.ActionClose, mock.Anything, mock.Anything).
		Return(&browser.Result{Success: true}, nil).Twice()

	llm := new(mockLLM)
	llm.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropicRequest) bool {
		return req.System == serpExtractSystem
	})).Return(textReply(
		`{"results": [{"title": "Brukpol", "link": "https://facebook.com/brukpol"}]}`,
	), nil).Once()
	llm.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropicRequest) bool {
		return req.System == scrapeDecisionSystem
	})).Return(textReply(`{"action": "scrapeContent", "params": {}}`), nil).Once()

	searcher := NewBrowserSearcher(llm, bc, "test-model", 1024)
	scraper := NewPageScraper(llm, st, bc, "test-model", 1024, 5, 3)
	e := NewContactEnricher(st, searcher, scraper, 3)

	out, err := e.Enrich(context.Background(), task.ID, []model.ScrapedRecord{
		{CompanyName: "Brukpol"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"biuro@brukpol.pl"}, out[0].ContactDetails.Emails)
	assert.Equal(t, []string{"601602603"}, out[0].ContactDetails.Phones)

	llm.AssertExpectations(t)
}

func TestContactEnricherStopsWhenPaused(t *testing.T) {
	st := store.NewMemory()
	task := newTestTask(t, st)
	require.NoError(t, st.Pause(context.Background(), task.ID))

	bc := new(mockBrowser)
	e := NewContactEnricher(st, NewBrowserSearcher(new(mockLLM), bc, "test-model", 1024),
		NewPageScraper(new(mockLLM), st, bc, "test-model", 1024, 5, 3), 3)

	in := []model.ScrapedRecord{{CompanyName: "Brukpol"}}
	out, err := e.Enrich(context.Background(), task.ID, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	bc.AssertNotCalled(t, "Do", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
