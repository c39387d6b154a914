// Package browser provides a client for the headless-browser automation
// RPC service and a session handle around it.
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Action names accepted by the automation service.
const (
	ActionNavigate  = "goToURL"
	ActionObserve   = "lookAtPage"
	ActionType      = "typeText"
	ActionClick     = "clickElement"
	ActionClickText = "findAndClick"
	ActionExtract   = "scrapeContent"
	ActionClose     = "closeSession"
)

// Client sends actions to the automation service. Every call is scoped to
// a session ID; the service keeps page state per session.
type Client interface {
	Do(ctx context.Context, action string, params map[string]any, sessionID string) (*Result, error)
}

// Result is the action-specific payload returned by the service.
type Result struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	SimplifiedDOM string `json:"simplifiedDom,omitempty"`
	Content       string `json:"content,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-action timeout. Browser actions wait on page
// loads, so this defaults much higher than an ordinary API call.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	endpoint string
	secret   string
	http     *http.Client
}

// NewClient creates a client for the automation service at endpoint.
func NewClient(endpoint, secret string, opts ...Option) Client {
	c := &httpClient{
		endpoint: endpoint,
		secret:   secret,
		http: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type rpcRequest struct {
	Action    string         `json:"action"`
	Params    map[string]any `json:"params"`
	SessionID string         `json:"sessionId"`
}

func (c *httpClient) Do(ctx context.Context, action string, params map[string]any, sessionID string) (*Result, error) {
	if c.endpoint == "" {
		return nil, eris.New("browser: automation service URL not configured")
	}
	if params == nil {
		params = map[string]any{}
	}

	body, err := json.Marshal(rpcRequest{Action: action, Params: params, SessionID: sessionID})
	if err != nil {
		return nil, eris.Wrap(err, "browser: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "browser: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("X-Internal-Secret", c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "browser: %s", action)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "browser: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("browser: %s returned status %d: %s", action, resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrapf(err, "browser: unmarshal %s response", action)
	}
	if !result.Success && result.Error != "" {
		return &result, eris.Errorf("browser: %s failed: %s", action, result.Error)
	}

	return &result, nil
}
