package producthunt_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/discovery"
	"github.com/rohmanhakim/saas-intel/internal/discovery/producthunt"
	"github.com/rohmanhakim/saas-intel/internal/fetcher"
	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/pkg/limiter"
	"github.com/rohmanhakim/saas-intel/pkg/retry"
	"github.com/rohmanhakim/saas-intel/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func newClient(endpoint string, minVotes int) *producthunt.Client {
	l := limiter.New(map[string]limiter.Config{
		"producthunt": {
			RequestsPerPeriod: 1000,
			Period:            time.Second,
			DefaultRetryDelay: time.Second,
			MaxRetryDelay:     time.Minute,
			BackoffMultiplier: 2,
		},
	})
	l.SetClock(time.Now, func(ctx context.Context, d time.Duration) error { return ctx.Err() })
	f := fetcher.NewHTTPFetcher(&metadata.NoopSink{}, time.Second, "test")
	rp := retry.NewRetryParam(0, 1, 2, timeutil.NewBackoffParam(time.Millisecond, 1, time.Millisecond))
	return producthunt.NewClient(f, l, endpoint, "tok", minVotes, rp, 1)
}

func post(id string, votes int, website string) map[string]any {
	return map[string]any{
		"id":         id,
		"name":       "Product " + id,
		"tagline":    "tag " + id,
		"website":    website,
		"url":        "https://www.producthunt.com/posts/p" + id,
		"votesCount": votes,
		"slug":       "product-" + id,
		"topics": map[string]any{"edges": []any{
			map[string]any{"node": map[string]any{"name": "SaaS", "slug": "saas"}},
		}},
		"makers":    []any{map[string]any{"id": "m1", "name": "Ada", "username": "ada"}},
		"thumbnail": map[string]any{"url": "https://ph-files.imgix.net/" + id + ".png"},
	}
}

func page(nodes []map[string]any, next bool, cursor string) map[string]any {
	edges := make([]any, 0, len(nodes))
	for _, n := range nodes {
		edges = append(edges, map[string]any{"node": n})
	}
	return map[string]any{"data": map[string]any{"posts": map[string]any{
		"pageInfo": map[string]any{"hasNextPage": next, "endCursor": cursor},
		"edges":    edges,
	}}}
}

func TestPosts_PaginatesAndFiltersByVotes(t *testing.T) {
	// GIVEN two pages of posts, some under the vote floor
	var mu sync.Mutex
	var seen []graphQLRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var req graphQLRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()

		var body map[string]any
		if req.Variables["after"] == nil {
			body = page([]map[string]any{
				post("1", 500, "https://www.producthunt.com/r/abc"),
				post("2", 5, "https://www.producthunt.com/r/def"),
			}, true, "c1")
		} else {
			body = page([]map[string]any{
				post("3", 80, "https://linear.app/?ref=producthunt"),
				post("4", 21, ""),
			}, false, "c2")
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer server.Close()
	client := newClient(server.URL, 20)

	// WHEN discovering the "saas" topic
	records, err := client.Discover(context.Background(), "saas", 10)

	// THEN both pages are walked and low-vote posts are dropped
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"ph_1", "ph_3", "ph_4"}, []string{records[0].ID, records[1].ID, records[2].ID})
	require.Len(t, seen, 2)
	assert.Equal(t, "saas", seen[0].Variables["topic"])
	assert.Equal(t, "VOTES", seen[0].Variables["order"])
	assert.Equal(t, float64(10), seen[0].Variables["first"])
	assert.Equal(t, "c1", seen[1].Variables["after"])
	assert.Equal(t, float64(9), seen[1].Variables["first"])

	// AND tracking redirects are kept apart from real homepages
	assert.Equal(t, "https://www.producthunt.com/r/abc", records[0].RedirectURL)
	assert.Empty(t, records[0].HomepageURL)
	assert.Equal(t, "https://linear.app/", records[1].HomepageURL)
	assert.Equal(t, product.SourceProductHunt, records[1].Source)
	assert.Equal(t, []string{"SaaS"}, records[0].Topics)
	assert.Equal(t, "ada", records[0].Makers[0].Username)
	assert.Equal(t, 500, *records[0].Votes)
	assert.Equal(t, "saas", records[0].SeedQuery)
	assert.Contains(t, records[0].ThumbnailURL, "1.png")
}

func TestPosts_StopsAtLimit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		nodes := make([]map[string]any, 0, 3)
		for i := 0; i < 3; i++ {
			nodes = append(nodes, post(fmt.Sprintf("%d%d", calls, i), 100, ""))
		}
		_ = json.NewEncoder(w).Encode(page(nodes, true, fmt.Sprintf("c%d", calls)))
	}))
	defer server.Close()
	client := newClient(server.URL, 0)

	records, err := client.Posts(context.Background(), producthunt.PostsQuery{Order: producthunt.OrderRanking, Limit: 2})

	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 1, calls)
}

func TestPosts_GraphQLErrorsBecomeAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid topic"}]}`))
	}))
	defer server.Close()
	client := newClient(server.URL, 0)

	_, err := client.Discover(context.Background(), "nope", 10)

	var api *discovery.APIError
	require.ErrorAs(t, err, &api)
	assert.Contains(t, api.Message, "invalid topic")
}

func TestPosts_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()
	client := newClient(server.URL, 0)

	_, err := client.Discover(context.Background(), "saas", 10)

	var rl *discovery.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 3*time.Second, rl.RetryAfter())
	var exhausted *limiter.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestTopics_FiltersByPostCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"topics":{"pageInfo":{"hasNextPage":false},"edges":[
			{"node":{"id":"1","name":"SaaS","slug":"saas","postsCount":900}},
			{"node":{"id":"2","name":"Tiny","slug":"tiny","postsCount":2}}
		]}}}`))
	}))
	defer server.Close()
	client := newClient(server.URL, 0)

	topics, err := client.Topics(context.Background(), 10, 10)

	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, "saas", topics[0].Slug)
	assert.Equal(t, 900, topics[0].PostsCount)
}
