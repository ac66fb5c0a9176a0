package coingecko

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	defaultTimeout = 10 * time.Second

	// error bodies are truncated to keep log lines readable
	maxErrorBody = 512
)

type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a RESTClient.
type Option func(*RESTClient)

// WithHTTPClient injects a custom http.Client (tests, recorders).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *RESTClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAPIKey sends the key as the x-cg-demo-api-key header.
func WithAPIKey(key string) Option {
	return func(c *RESTClient) {
		c.apiKey = key
	}
}

func NewRESTClient(baseURL string, timeout time.Duration, opts ...Option) *RESTClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// GetMarkets fetches one page of /coins/markets ordered by market cap, with the
// 24h percentage change requested and sparklines suppressed.
func (c *RESTClient) GetMarkets(ctx context.Context, q MarketsQuery) (*MarketsPage, error) {
	params := url.Values{}
	params.Set("vs_currency", q.VsCurrency)
	params.Set("order", OrderMarketCapDesc)
	params.Set("per_page", strconv.Itoa(q.PerPage))
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", PriceChange24h)
	endpoint := c.baseURL + "/coins/markets?" + params.Encode()

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	records, err := decodeMarkets(body)
	if err != nil {
		return nil, err
	}

	return &MarketsPage{Raw: body, Records: records}, nil
}

func decodeMarkets(body []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return records, nil
}
