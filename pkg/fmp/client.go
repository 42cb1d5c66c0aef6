// Package fmp provides a client for the Financial Modeling Prep ETF endpoints.
package fmp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrRateLimited is returned when FMP signals that the API key hit its quota.
var ErrRateLimited = errors.New("fmp: rate limited")

// Client defines the FMP ETF operations. Every call carries the API key so a
// caller can rotate keys between calls.
type Client interface {
	// Holdings returns the ETF constituents, trying the v3 endpoint then v4.
	Holdings(ctx context.Context, apiKey, symbol string) ([]Holding, error)
	// CountryWeightings returns the ETF country exposure.
	CountryWeightings(ctx context.Context, apiKey, symbol string) ([]Weighting, error)
	// SectorWeightings returns the ETF sector exposure.
	SectorWeightings(ctx context.Context, apiKey, symbol string) ([]Weighting, error)
}

// Holding is one ETF constituent as reported by FMP.
type Holding struct {
	Asset            string `json:"asset"`
	Name             string `json:"name"`
	ISIN             string `json:"isin"`
	CUSIP            string `json:"cusip"`
	SharesNumber     Number `json:"sharesNumber"`
	WeightPercentage Number `json:"weightPercentage"`
	Weight           Number `json:"weight"`
	MarketValue      Number `json:"marketValue"`
	Updated          string `json:"updated"`
}

// Pct returns the reported weight, preferring weightPercentage.
func (h Holding) Pct() (float64, bool) {
	if h.WeightPercentage.Valid {
		return h.WeightPercentage.Value, true
	}
	return h.Weight.Value, h.Weight.Valid
}

// Weighting is one country or sector exposure row.
type Weighting struct {
	Country          string `json:"country"`
	CountryName      string `json:"countryName"`
	Sector           string `json:"sector"`
	Name             string `json:"name"`
	WeightPercentage Number `json:"weightPercentage"`
}

// Key returns the country or sector label of the row.
func (w Weighting) Key() string {
	for _, s := range []string{w.Country, w.CountryName, w.Sector, w.Name} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Number decodes JSON numbers, numeric strings and percent strings ("12.5%").
type Number struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		*n = Number{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*n = Number{}
		return nil
	}
	*n = Number{Value: v, Valid: true}
	return nil
}

// APIError is a non-quota error reported by FMP.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fmp: HTTP %d: %s", e.StatusCode, e.Message)
}

// RateLimitError carries the quota message returned by FMP.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string { return "fmp: rate limited: " + e.Message }

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// Option configures the FMP client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new FMP client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://financialmodelingprep.com",
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Holdings(ctx context.Context, apiKey, symbol string) ([]Holding, error) {
	var lastErr error
	for _, path := range []string{"/api/v3/etf-holder/", "/api/v4/etf-holder"} {
		var rows []Holding
		var err error
		if strings.HasSuffix(path, "/") {
			err = c.get(ctx, path+url.PathEscape(symbol), url.Values{"apikey": {apiKey}}, &rows)
		} else {
			err = c.get(ctx, path, url.Values{"symbol": {symbol}, "apikey": {apiKey}}, &rows)
		}
		if errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		if err != nil {
			lastErr = err
			continue
		}
		if len(rows) > 0 {
			return rows, nil
		}
	}
	return nil, lastErr
}

func (c *httpClient) CountryWeightings(ctx context.Context, apiKey, symbol string) ([]Weighting, error) {
	var rows []Weighting
	err := c.get(ctx, "/api/v3/etf-country-weightings/"+url.PathEscape(symbol), url.Values{"apikey": {apiKey}}, &rows)
	return rows, err
}

func (c *httpClient) SectorWeightings(ctx context.Context, apiKey, symbol string) ([]Weighting, error) {
	var rows []Weighting
	err := c.get(ctx, "/api/v3/etf-sector-weightings/"+url.PathEscape(symbol), url.Values{"apikey": {apiKey}}, &rows)
	return rows, err
}

// get decodes a JSON array into out. FMP reports errors and quota messages
// as a JSON object in place of the array.
func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "fmp: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "fmp: request %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return eris.Wrap(err, "fmp: read body")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{Message: strings.TrimSpace(string(body))}
	}

	trimmed := bytes.TrimSpace(body)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		if err := classifyMessage(trimmed, resp.StatusCode); err != nil {
			return err
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if len(trimmed) == 0 || !bytes.HasPrefix(trimmed, []byte("[")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return eris.Wrapf(err, "fmp: decode %s", path)
	}
	return nil
}

// classifyMessage maps the FMP message object to a rate-limit or API error.
func classifyMessage(body []byte, status int) error {
	var msg map[string]any
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil
	}
	for _, k := range []string{"Information", "Note"} {
		if v, ok := msg[k]; ok {
			return &RateLimitError{Message: fmt.Sprint(v)}
		}
	}
	if v, ok := msg["Error Message"]; ok {
		text := fmt.Sprint(v)
		if strings.Contains(strings.ToLower(text), "limit") {
			return &RateLimitError{Message: text}
		}
		return &APIError{StatusCode: status, Message: text}
	}
	return nil
}
