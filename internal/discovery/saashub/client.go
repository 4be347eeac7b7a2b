// Package saashub queries the SaaSHub alternatives API.
package saashub

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/rohmanhakim/saas-intel/internal/discovery"
	"github.com/rohmanhakim/saas-intel/internal/fetcher"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/pkg/limiter"
	"github.com/rohmanhakim/saas-intel/pkg/retry"
)

const siteURL = "https://www.saashub.com"

type Client struct {
	fetcher    fetcher.Fetcher
	limiter    *limiter.Limiter
	baseURL    string
	apiKey     string
	retryParam retry.RetryParam
	maxRetries int
}

func NewClient(
	f fetcher.Fetcher,
	l *limiter.Limiter,
	baseURL string,
	apiKey string,
	retryParam retry.RetryParam,
	maxRetries int,
) *Client {
	return &Client{
		fetcher:    f,
		limiter:    l,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		retryParam: retryParam,
		maxRetries: maxRetries,
	}
}

func (c *Client) Name() product.Source {
	return product.SourceSaaSHub
}

// Discover returns the alternatives listed for seed.
func (c *Client) Discover(ctx context.Context, seed string, limit int) ([]discovery.Record, error) {
	return c.Alternatives(ctx, seed, limit)
}

type resource struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Attributes attributes `json:"attributes"`
}

type attributes struct {
	Name        string `json:"name"`
	Tagline     string `json:"tagline"`
	Description string `json:"description"`
	SaaSHubURL  string `json:"saashubUrl"`
}

type alternativesResponse struct {
	Data struct {
		Alternatives []json.RawMessage `json:"alternatives"`
	} `json:"data"`
}

type productResponse struct {
	Data struct {
		Product json.RawMessage `json:"product"`
	} `json:"data"`
}

// Alternatives lists products SaaSHub offers as alternatives to query,
// truncated to limit when limit is positive.
func (c *Client) Alternatives(ctx context.Context, query string, limit int) ([]discovery.Record, error) {
	var payload alternativesResponse
	if err := c.get(ctx, "alternatives", query, &payload); err != nil {
		return nil, err
	}

	raw := payload.Data.Alternatives
	if limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}
	records := make([]discovery.Record, 0, len(raw))
	for _, item := range raw {
		rec, ok := toRecord(item, query)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Product looks up a single product. A 404 yields nil without error.
func (c *Client) Product(ctx context.Context, query string) (*discovery.Record, error) {
	var payload productResponse
	err := c.get(ctx, "product", query, &payload)
	var apiErr *discovery.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(payload.Data.Product) == 0 || string(payload.Data.Product) == "null" {
		return nil, nil
	}
	rec, ok := toRecord(payload.Data.Product, query)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (c *Client) get(ctx context.Context, endpoint, query string, into any) error {
	endpointURL := c.baseURL + "/" + endpoint + "/" + url.PathEscape(query) +
		"?api_key=" + url.QueryEscape(c.apiKey)

	resp, err := limiter.Execute(ctx, c.limiter, string(product.SourceSaaSHub), c.maxRetries,
		func(ctx context.Context) (fetcher.Response, error) {
			resp, fetchErr := c.fetcher.Do(ctx, fetcher.NewGetRequest(endpointURL), c.retryParam)
			if fetchErr != nil {
				return fetcher.Response{}, discovery.FromFetchError(product.SourceSaaSHub, fetchErr)
			}
			return resp, nil
		})
	if err != nil {
		return err
	}
	if decodeErr := resp.DecodeJSON(into); decodeErr != nil {
		return discovery.FromFetchError(product.SourceSaaSHub, decodeErr)
	}
	return nil
}

func toRecord(item json.RawMessage, seed string) (discovery.Record, bool) {
	var res resource
	if err := json.Unmarshal(item, &res); err != nil {
		return discovery.Record{}, false
	}
	name := strings.TrimSpace(res.Attributes.Name)
	if name == "" {
		name = "Unknown"
	}
	if res.ID == "" && name == "Unknown" {
		return discovery.Record{}, false
	}
	return discovery.Record{
		Source:      product.SourceSaaSHub,
		ID:          res.ID,
		Name:        name,
		Tagline:     res.Attributes.Tagline,
		Description: res.Attributes.Description,
		SeedQuery:   seed,
		SourceURL:   absoluteListingURL(res.Attributes.SaaSHubURL),
		Raw:         append(json.RawMessage(nil), item...),
	}, true
}

// absoluteListingURL prefixes the site origin to a relative listing path.
func absoluteListingURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "http") {
		return raw
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return siteURL + raw
}
