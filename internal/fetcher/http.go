package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/holdings-cli/internal/resilience"
)

const defaultMaxBodyBytes = 256 << 20

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	Retry        resilience.RetryConfig
	Limiters     *Limiters
	MaxBodyBytes int64
	Client       *http.Client
}

// HTTPFetcher implements Fetcher with per-source politeness and retries.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters *Limiters
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "holdings-cli/1.0"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	limiters := opts.Limiters
	if limiters == nil {
		limiters = NewLimiters(nil)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPFetcher{client: client, opts: opts, limiters: limiters}
}

// Get fetches rawURL for source.
func (f *HTTPFetcher) Get(ctx context.Context, source, rawURL string) (*Response, error) {
	return f.do(ctx, source, http.MethodGet, rawURL, nil)
}

// PostForm submits form to rawURL for source.
func (f *HTTPFetcher) PostForm(ctx context.Context, source, rawURL string, form url.Values) (*Response, error) {
	return f.do(ctx, source, http.MethodPost, rawURL, form)
}

func (f *HTTPFetcher) do(ctx context.Context, source, method, rawURL string, form url.Values) (*Response, error) {
	lim := f.limiters.For(source)

	retry := f.opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(source, "http "+strings.ToLower(method), zap.String("url", rawURL))
	}

	attempts := 0
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*Response, error) {
		attempts++
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: politeness wait")
		}

		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
		if err != nil {
			return nil, resilience.NewPermanentError(eris.Wrap(err, "fetcher: create request"), 0)
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		req.Header.Set("Accept", "*/*")
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		httpResp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "fetcher: request cancelled")
			}
			return nil, resilience.NewTransientError(eris.Wrapf(err, "fetcher: %s %s", method, rawURL), 0)
		}
		defer httpResp.Body.Close() //nolint:errcheck

		if httpResp.StatusCode == http.StatusTooManyRequests {
			lim.OnRateLimit(source)
		}
		if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 64<<10))
			return nil, resilience.StatusError(httpResp.StatusCode, rawURL)
		}

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, f.opts.MaxBodyBytes+1))
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "fetcher: read body of %s", rawURL), httpResp.StatusCode)
		}
		if int64(len(data)) > f.opts.MaxBodyBytes {
			return nil, resilience.NewPermanentError(eris.Errorf("fetcher: body of %s exceeds %d bytes", rawURL, f.opts.MaxBodyBytes), httpResp.StatusCode)
		}

		lim.OnSuccess()
		return &Response{
			URL:         rawURL,
			StatusCode:  httpResp.StatusCode,
			ContentType: httpResp.Header.Get("Content-Type"),
			Body:        data,
			FetchedAt:   time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, &AttemptError{URL: rawURL, Attempts: attempts, Err: err}
	}
	resp.Attempts = attempts
	return resp, nil
}
