package agents

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/leadforge/prospect-cli/pkg/anthropic"
	"github.com/leadforge/prospect-cli/pkg/browser"
	"github.com/leadforge/prospect-cli/pkg/ceidg"
	"github.com/leadforge/prospect-cli/pkg/websearch"
)

type anthropicRequest = anthropic.MessageRequest

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// textReply wraps a string the way the API returns it.
func textReply(s string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: s}},
	}
}

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) Search(ctx context.Context, query string, count int) ([]websearch.Item, error) {
	args := m.Called(ctx, query, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]websearch.Item), args.Error(1)
}

type mockCEIDG struct {
	mock.Mock
}

func (m *mockCEIDG) ListFirms(ctx context.Context, filters ceidg.ListFilters, pageURL string) (*ceidg.ListResponse, error) {
	args := m.Called(ctx, filters, pageURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ceidg.ListResponse), args.Error(1)
}

func (m *mockCEIDG) GetFirm(ctx context.Context, id string) (*ceidg.Firm, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ceidg.Firm), args.Error(1)
}

type mockBrowser struct {
	mock.Mock
}

func (m *mockBrowser) Do(ctx context.Context, action string, params map[string]any, sessionID string) (*browser.Result, error) {
	args := m.Called(ctx, action, params, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*browser.Result), args.Error(1)
}
