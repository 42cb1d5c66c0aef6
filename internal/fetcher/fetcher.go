// Package fetcher performs polite, retrying HTTP requests against filing
// portals and decodes the CSV, XML, JSON, and XLSX payloads they return.
package fetcher

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Fetcher retrieves remote resources on behalf of a named source. The source
// tag selects the politeness limiter shared by every caller of that source.
type Fetcher interface {
	// Get fetches url and returns the full response body.
	Get(ctx context.Context, source, url string) (*Response, error)

	// PostForm submits form to url as application/x-www-form-urlencoded.
	PostForm(ctx context.Context, source, url string, form url.Values) (*Response, error)
}

// Response is a fully read HTTP response.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Attempts    int
	FetchedAt   time.Time
}

// MediaType returns the lower-cased content type without parameters.
func (r *Response) MediaType() string {
	mt, _, _ := strings.Cut(r.ContentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// AttemptError reports how many attempts were made before a request failed.
type AttemptError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *AttemptError) Error() string { return e.Err.Error() }

func (e *AttemptError) Unwrap() error { return e.Err }
