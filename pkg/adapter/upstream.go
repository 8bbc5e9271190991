package adapter

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Credentials are the opaque outputs of the auth provider. They are attached
// to every outbound request; acquiring them is not this package's concern.
type Credentials struct {
	AccessToken string
	UserID      string
	OrgID       string
}

// Response is one upstream HTTP response with the body fully read.
type Response struct {
	StatusCode int
	Body       []byte
}

// Success reports whether the status code is in the 2xx range.
func (x *Response) Success() bool {
	return x.StatusCode >= 200 && x.StatusCode < 300
}

// Upstream is the outbound boundary to the record API. A non-2xx status is
// returned as a Response, not an error, because the fetch strategies need to
// inspect the status and move on to the next candidate route. An error means
// the request could not be completed at all (after retries).
type Upstream interface {
	Do(ctx context.Context, method, path string, query url.Values) (*Response, error)
}

type httpUpstream struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client

	maxRetries int
	backoff    time.Duration
}

// HTTPOption is a functional option for the HTTP upstream client.
type HTTPOption func(*httpUpstream)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(x *httpUpstream) {
		x.httpClient = c
	}
}

// WithBackoff sets the base retry backoff interval.
func WithBackoff(d time.Duration) HTTPOption {
	return func(x *httpUpstream) {
		x.backoff = d
	}
}

// NewHTTP creates an Upstream backed by net/http. Transient failures
// (transport errors and 5xx statuses) are retried with increasing backoff,
// twice at most, before the result is handed back to the caller.
func NewHTTP(baseURL string, creds Credentials, opts ...HTTPOption) Upstream {
	x := &httpUpstream{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 2,
		backoff:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *httpUpstream) Do(ctx context.Context, method, path string, query url.Values) (*Response, error) {
	reqURL := x.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= x.maxRetries; attempt++ {
		if attempt > 0 {
			wait := x.backoff * time.Duration(attempt)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, goerr.Wrap(ctx.Err(), "canceled while waiting to retry", goerr.V("url", reqURL))
			}
		}

		resp, err := x.once(ctx, method, reqURL)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 && attempt < x.maxRetries {
			lastErr = goerr.New("upstream server error", goerr.V("status", resp.StatusCode), goerr.V("url", reqURL))
			continue
		}
		return resp, nil
	}

	return nil, goerr.Wrap(lastErr, "request failed after retries",
		goerr.V("method", method),
		goerr.V("url", reqURL),
		goerr.V("retries", x.maxRetries))
}

func (x *httpUpstream) once(ctx context.Context, method, reqURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.V("url", reqURL))
	}

	req.Header.Set("Authorization", "Bearer "+x.creds.AccessToken)
	req.Header.Set("X-User-ID", x.creds.UserID)
	req.Header.Set("X-Org-ID", x.creds.OrgID)
	req.Header.Set("Accept", "application/json")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send request", goerr.V("url", reqURL))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read response body", goerr.V("url", reqURL))
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
