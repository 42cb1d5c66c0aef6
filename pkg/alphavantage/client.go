// Package alphavantage provides a client for the Alpha Vantage ETF_PROFILE endpoint.
package alphavantage

import (
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

// ErrRateLimited is returned when Alpha Vantage answers with a quota note.
var ErrRateLimited = errors.New("alphavantage: rate limited")

// Client defines the Alpha Vantage ETF operations.
type Client interface {
	// ETFProfile returns the holdings and sector weights of an ETF.
	ETFProfile(ctx context.Context, apiKey, symbol string) (*Profile, error)
}

// Profile is the ETF_PROFILE response. Weights are fractions of one.
type Profile struct {
	NetAssets     string    `json:"net_assets"`
	InceptionDate string    `json:"inception_date"`
	Holdings      []Holding `json:"holdings"`
	Sectors       []Sector  `json:"sectors"`
}

// Holding is one ETF constituent.
type Holding struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Name        string `json:"name"`
	Weight      Number `json:"weight"`
	Shares      Number `json:"shares"`
}

// DisplayName returns the constituent name, falling back to the symbol.
func (h Holding) DisplayName() string {
	for _, s := range []string{h.Description, h.Name, h.Symbol} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Sector is one sector weight.
type Sector struct {
	Sector string `json:"sector"`
	Weight Number `json:"weight"`
}

// Number decodes JSON numbers and numeric strings. "n/a" decodes as invalid.
type Number struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		*n = Number{}
		return nil
	}
	*n = Number{Value: v, Valid: true}
	return nil
}

// RateLimitError carries the quota note returned by Alpha Vantage.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string { return "alphavantage: rate limited: " + e.Message }

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// APIError is an error message returned by Alpha Vantage.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alphavantage: HTTP %d: %s", e.StatusCode, e.Message)
}

// Option configures the Alpha Vantage client.
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

// NewClient creates a new Alpha Vantage client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://www.alphavantage.co",
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) ETFProfile(ctx context.Context, apiKey, symbol string) (*Profile, error) {
	params := url.Values{
		"function": {"ETF_PROFILE"},
		"symbol":   {symbol},
		"apikey":   {apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "alphavantage: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "alphavantage: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, eris.Wrap(err, "alphavantage: read body")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Message: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var envelope struct {
		Note         string `json:"Note"`
		Information  string `json:"Information"`
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(err, "alphavantage: decode response")
	}
	switch {
	case envelope.Note != "":
		return nil, &RateLimitError{Message: envelope.Note}
	case envelope.Information != "":
		return nil, &RateLimitError{Message: envelope.Information}
	case envelope.ErrorMessage != "":
		return nil, &APIError{StatusCode: resp.StatusCode, Message: envelope.ErrorMessage}
	}

	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, eris.Wrap(err, "alphavantage: decode profile")
	}
	return &p, nil
}
