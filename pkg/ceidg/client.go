// Package ceidg provides a client for the CEIDG v3 public business
// registry API (dane.biznes.gov.pl).
package ceidg

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://dane.biznes.gov.pl/api/ceidg/v3"

// Client defines the registry operations used by the pipeline.
type Client interface {
	// ListFirms fetches one page of firm summaries. pageURL follows the
	// server-provided cursor; when empty, filters build the first page.
	ListFirms(ctx context.Context, filters ListFilters, pageURL string) (*ListResponse, error)
	// GetFirm fetches the full record for one firm, or nil when the
	// registry has no such entry.
	GetFirm(ctx context.Context, id string) (*Firm, error)
}

// ListFilters narrows a registry listing.
type ListFilters struct {
	City     string
	Province string
	PKDCodes []string // dotless form, e.g. "4399Z"
	Status   string   // e.g. "AKTYWNY"
	Limit    int
}

// FirmSummary is the abbreviated record returned by listing pages.
type FirmSummary struct {
	ID   string `json:"id"`
	Name string `json:"nazwa"`
}

// ListResponse is one page of summaries plus the next-page cursor.
type ListResponse struct {
	Firms   []FirmSummary `json:"firmy"`
	NextURL string        `json:"-"`
}

// PKDEntry is one classification code on a firm record.
type PKDEntry struct {
	Code string `json:"kod"`
}

// Address is a firm's registered place of business.
type Address struct {
	Street   string `json:"ulica"`
	Building string `json:"budynek"`
	PostCode string `json:"kod"`
	City     string `json:"miasto"`
}

// Firm is the full registry record for one business.
type Firm struct {
	ID         string     `json:"id"`
	Name       string     `json:"nazwa"`
	Email      string     `json:"email"`
	Phone      string     `json:"telefon"`
	Link       string     `json:"link"`
	PKDPrimary *PKDEntry  `json:"pkdGlowny"`
	PKD        []PKDEntry `json:"pkd"`
	Address    *Address   `json:"adresDzialalnosci"`
}

// PKDCodes returns all classification codes on the record, primary first.
func (f *Firm) PKDCodes() []string {
	var codes []string
	if f.PKDPrimary != nil && f.PKDPrimary.Code != "" {
		codes = append(codes, f.PKDPrimary.Code)
	}
	for _, p := range f.PKD {
		if p.Code != "" {
			codes = append(codes, p.Code)
		}
	}
	return codes
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound request rate.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a CEIDG API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FirstPageURL builds the listing URL for the given filters.
func (c *httpClient) firstPageURL(filters ListFilters) string {
	params := url.Values{}
	if filters.City != "" {
		params.Set("miasto", filters.City)
	}
	if filters.Province != "" {
		params.Set("wojewodztwo", filters.Province)
	}
	for _, pkd := range filters.PKDCodes {
		params.Add("pkd", pkd)
	}
	if filters.Status != "" {
		params.Set("status", filters.Status)
	}
	if filters.Limit > 0 {
		params.Set("limit", strconv.Itoa(filters.Limit))
	}
	return c.baseURL + "/firmy?" + params.Encode()
}

type listWire struct {
	Firms []FirmSummary `json:"firmy"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

func (c *httpClient) ListFirms(ctx context.Context, filters ListFilters, pageURL string) (*ListResponse, error) {
	if pageURL == "" {
		pageURL = c.firstPageURL(filters)
	}

	body, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	var wire listWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, eris.Wrap(err, "ceidg: unmarshal listing")
	}

	return &ListResponse{Firms: wire.Firms, NextURL: wire.Links.Next}, nil
}

type firmWire struct {
	Firma []Firm `json:"firma"`
}

func (c *httpClient) GetFirm(ctx context.Context, id string) (*Firm, error) {
	body, err := c.get(ctx, c.baseURL+"/firma/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	var wire firmWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, eris.Wrap(err, "ceidg: unmarshal firm")
	}
	if len(wire.Firma) == 0 {
		return nil, nil
	}
	return &wire.Firma[0], nil
}

func (c *httpClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, eris.New("ceidg: missing API key")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "ceidg: rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ceidg: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ceidg: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ceidg: read response")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, eris.New("ceidg: unauthorized, check API key")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("ceidg: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
