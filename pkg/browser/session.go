package browser

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is an exclusively-owned handle on one remote browser session.
// The owner that opens a session must close it on every exit path; Close
// is idempotent and safe to defer.
type Session struct {
	client Client
	id     string

	closeOnce sync.Once
}

// NewSession creates a session handle with a fresh ID. The remote service
// allocates state lazily on the first action.
func NewSession(client Client) *Session {
	return &Session{
		client: client,
		id:     uuid.NewString(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Navigate loads a URL in the session's page. Bare domains get an https
// scheme prepended.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	_, err := s.client.Do(ctx, ActionNavigate, map[string]any{"url": url}, s.id)
	return err
}

// Observe returns a simplified description of the page's interactive
// elements for the decision loop.
func (s *Session) Observe(ctx context.Context) (string, error) {
	res, err := s.client.Do(ctx, ActionObserve, nil, s.id)
	if err != nil {
		return "", err
	}
	return res.SimplifiedDOM, nil
}

// Type enters text into the element matching selector.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	_, err := s.client.Do(ctx, ActionType, map[string]any{"selector": selector, "text": text}, s.id)
	return err
}

// Click clicks the element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	_, err := s.client.Do(ctx, ActionClick, map[string]any{"selector": selector}, s.id)
	return err
}

// ClickText clicks the first element of the given selector whose visible
// text contains text.
func (s *Session) ClickText(ctx context.Context, selector, text string) error {
	_, err := s.client.Do(ctx, ActionClickText, map[string]any{"selector": selector, "text": text}, s.id)
	return err
}

// Extract pulls the page's full rendered content.
func (s *Session) Extract(ctx context.Context) (string, error) {
	res, err := s.client.Do(ctx, ActionExtract, nil, s.id)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// Close releases the remote session. It runs at most once, never fails
// the caller, and is safe even if the session was never materialized
// remotely. It deliberately ignores the caller's context state so cleanup
// still happens after cancellation.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if _, err := s.client.Do(context.Background(), ActionClose, nil, s.id); err != nil {
			zap.L().Warn("browser: close session failed",
				zap.String("session_id", s.id),
				zap.Error(err),
			)
		}
	})
}
