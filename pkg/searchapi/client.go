// Package searchapi provides a client for the European Commission Search API
// used by the Funding & Tenders portal.
package searchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/funding-cli/internal/resilience"
)

// DefaultBaseURL is the production Search API endpoint.
const DefaultBaseURL = "https://api.tech.ec.europa.eu/search-api/prod/rest/search"

// DefaultAPIKey is the public key the portal itself uses.
const DefaultAPIKey = "SEDIA"

// Client defines the Search API operations.
type Client interface {
	// Search runs an exact-phrase query for identifier and returns every
	// result the API reports, across languages.
	Search(ctx context.Context, identifier string) (*Response, error)
}

// Response is the parsed Search API response.
type Response struct {
	TotalResults int      `json:"totalResults"`
	Results      []Result `json:"results"`
}

// Result is one search hit. Metadata values are arrays in the API; Raw keeps
// the hit exactly as received.
type Result struct {
	Reference string                     `json:"reference"`
	URL       string                     `json:"url"`
	Title     string                     `json:"title"`
	Summary   string                     `json:"summary"`
	Content   string                     `json:"content"`
	Language  string                     `json:"language"`
	Weight    float64                    `json:"weight"`
	Metadata  map[string]json.RawMessage `json:"metadata"`
	Raw       json.RawMessage            `json:"-"`
}

// UnmarshalJSON decodes a hit and keeps its raw bytes.
func (r *Result) UnmarshalJSON(data []byte) error {
	type plain Result
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Result(p)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Meta returns the string values stored under key in the result metadata.
// Scalars are returned as a single value; non-string array items are skipped.
func (r Result) Meta(key string) []string {
	raw, ok := r.Metadata[key]
	if !ok {
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		list = []json.RawMessage{raw}
	}
	var out []string
	for _, item := range list {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

// MetaFirst returns the first string value under key, or "".
func (r Result) MetaFirst(key string) string {
	if vals := r.Meta(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Option configures the Search API client.
type Option func(*httpClient)

// WithBaseURL sets a custom endpoint (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.rest.SetTimeout(d)
		}
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		timeout := c.rest.GetClient().Timeout
		c.rest = newRest(resty.NewWithClient(hc))
		if hc.Timeout == 0 {
			c.rest.SetTimeout(timeout)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	rest    *resty.Client
	retry   resilience.RetryConfig
}

func newRest(r *resty.Client) *resty.Client {
	return r.
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "funding-cli/1.0").
		SetTimeout(30 * time.Second)
}

// NewClient creates a Search API client. An empty apiKey uses DefaultAPIKey.
func NewClient(apiKey string, opts ...Option) Client {
	if apiKey == "" {
		apiKey = DefaultAPIKey
	}
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		rest:    newRest(resty.New()),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, identifier string) (*Response, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, eris.New("searchapi: empty identifier")
	}

	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("searchapi", identifier)
	}

	body, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		return c.post(ctx, identifier)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "searchapi: search %s", identifier)
	}

	var result Response
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "searchapi: unmarshal response")
	}
	return &result, nil
}

// post sends one exact-phrase query. Transient statuses come back as
// resilience.TransientError so the retry loop picks them up.
func (c *httpClient) post(ctx context.Context, identifier string) ([]byte, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("apiKey", c.apiKey).
		SetQueryParam("text", `"`+identifier+`"`).
		Post(c.baseURL)
	if err != nil {
		return nil, eris.Wrap(err, "searchapi: request failed")
	}

	status := resp.StatusCode()
	if status == http.StatusOK {
		return resp.Body(), nil
	}

	statusErr := eris.Errorf("searchapi: status %d: %s", status, truncate(resp.String(), 200))
	if resilience.IsTransientHTTPStatus(status) {
		return nil, resilience.NewTransientError(statusErr, status).WithRetryAfter(resp.Header().Get("Retry-After"))
	}
	return nil, statusErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
