// Package producthunt queries the Product Hunt GraphQL API.
package producthunt

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rohmanhakim/saas-intel/internal/discovery"
	"github.com/rohmanhakim/saas-intel/internal/fetcher"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/pkg/limiter"
	"github.com/rohmanhakim/saas-intel/pkg/retry"
	"github.com/rohmanhakim/saas-intel/pkg/urlutil"
)

// The API refuses pages larger than this.
const maxPageSize = 50

const defaultLimit = 50

type Order string

const (
	OrderVotes   Order = "VOTES"
	OrderRanking Order = "RANKING"
)

type PostsQuery struct {
	Order       Order
	Topic       string
	PostedAfter string
	Limit       int
	MinVotes    int
}

type Topic struct {
	ID          string
	Name        string
	Slug        string
	Description string
	PostsCount  int
}

type Client struct {
	fetcher    fetcher.Fetcher
	limiter    *limiter.Limiter
	endpoint   string
	token      string
	minVotes   int
	retryParam retry.RetryParam
	maxRetries int
}

func NewClient(
	f fetcher.Fetcher,
	l *limiter.Limiter,
	endpoint string,
	token string,
	minVotes int,
	retryParam retry.RetryParam,
	maxRetries int,
) *Client {
	return &Client{
		fetcher:    f,
		limiter:    l,
		endpoint:   endpoint,
		token:      token,
		minVotes:   minVotes,
		retryParam: retryParam,
		maxRetries: maxRetries,
	}
}

func (c *Client) Name() product.Source {
	return product.SourceProductHunt
}

// Discover returns the most voted posts of the topic seed. An empty seed
// means all topics.
func (c *Client) Discover(ctx context.Context, seed string, limit int) ([]discovery.Record, error) {
	return c.Posts(ctx, PostsQuery{
		Order:    OrderVotes,
		Topic:    seed,
		Limit:    limit,
		MinVotes: c.minVotes,
	})
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type postNode struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Tagline       string   `json:"tagline"`
	Description   string   `json:"description"`
	Website       string   `json:"website"`
	URL           string   `json:"url"`
	VotesCount    int      `json:"votesCount"`
	ReviewsCount  int      `json:"reviewsCount"`
	ReviewsRating *float64 `json:"reviewsRating"`
	CreatedAt     string   `json:"createdAt"`
	FeaturedAt    string   `json:"featuredAt"`
	Slug          string   `json:"slug"`
	Topics        struct {
		Edges []struct {
			Node struct {
				Name string `json:"name"`
				Slug string `json:"slug"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"topics"`
	Makers    []product.Maker `json:"makers"`
	Thumbnail *struct {
		URL string `json:"url"`
	} `json:"thumbnail"`
}

type postsData struct {
	Posts struct {
		PageInfo pageInfo `json:"pageInfo"`
		Edges    []struct {
			Node json.RawMessage `json:"node"`
		} `json:"edges"`
	} `json:"posts"`
}

type topicsData struct {
	Topics struct {
		PageInfo pageInfo `json:"pageInfo"`
		Edges    []struct {
			Node struct {
				ID          string `json:"id"`
				Name        string `json:"name"`
				Slug        string `json:"slug"`
				Description string `json:"description"`
				PostsCount  int    `json:"postsCount"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"topics"`
}

// Posts pages through posts until limit records at or above MinVotes are
// collected or the API runs out of pages.
func (c *Client) Posts(ctx context.Context, q PostsQuery) ([]discovery.Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	order := q.Order
	if order == "" {
		order = OrderVotes
	}

	records := make([]discovery.Record, 0, limit)
	var cursor *string
	for len(records) < limit {
		variables := map[string]any{
			"first": min(maxPageSize, limit-len(records)),
			"after": cursor,
			"order": order,
		}
		if q.Topic != "" {
			variables["topic"] = q.Topic
		}
		if q.PostedAfter != "" {
			variables["postedAfter"] = q.PostedAfter
		}

		var data postsData
		if err := c.query(ctx, postsQuery, variables, &data); err != nil {
			return records, err
		}
		edges := data.Posts.Edges
		if len(edges) == 0 {
			break
		}
		for _, edge := range edges {
			rec, ok := toRecord(edge.Node, q.Topic)
			if !ok || rec.Votes == nil || *rec.Votes < q.MinVotes {
				continue
			}
			records = append(records, rec)
			if len(records) >= limit {
				break
			}
		}
		if !data.Posts.PageInfo.HasNextPage {
			break
		}
		next := data.Posts.PageInfo.EndCursor
		cursor = &next
	}
	return records, nil
}

// Topics lists topics with at least minPosts posts.
func (c *Client) Topics(ctx context.Context, limit, minPosts int) ([]Topic, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	topics := make([]Topic, 0, limit)
	var cursor *string
	for len(topics) < limit {
		variables := map[string]any{
			"first": min(maxPageSize, limit-len(topics)),
			"after": cursor,
		}
		var data topicsData
		if err := c.query(ctx, topicsQuery, variables, &data); err != nil {
			return topics, err
		}
		if len(data.Topics.Edges) == 0 {
			break
		}
		for _, edge := range data.Topics.Edges {
			n := edge.Node
			if n.PostsCount < minPosts {
				continue
			}
			topics = append(topics, Topic{
				ID:          n.ID,
				Name:        n.Name,
				Slug:        n.Slug,
				Description: n.Description,
				PostsCount:  n.PostsCount,
			})
			if len(topics) >= limit {
				break
			}
		}
		if !data.Topics.PageInfo.HasNextPage {
			break
		}
		next := data.Topics.PageInfo.EndCursor
		cursor = &next
	}
	return topics, nil
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) query(ctx context.Context, query string, variables map[string]any, into any) error {
	request, err := fetcher.NewJSONRequest(c.endpoint, map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return &discovery.APIError{Source: product.SourceProductHunt, Message: err.Error(), Cause: err}
	}
	request = request.WithBearer(c.token)

	envelope, err := limiter.Execute(ctx, c.limiter, string(product.SourceProductHunt), c.maxRetries,
		func(ctx context.Context) (graphQLEnvelope, error) {
			resp, fetchErr := c.fetcher.Do(ctx, request, c.retryParam)
			if fetchErr != nil {
				return graphQLEnvelope{}, discovery.FromFetchError(product.SourceProductHunt, fetchErr)
			}
			var env graphQLEnvelope
			if decodeErr := resp.DecodeJSON(&env); decodeErr != nil {
				return graphQLEnvelope{}, discovery.FromFetchError(product.SourceProductHunt, decodeErr)
			}
			if len(env.Errors) > 0 {
				messages := make([]string, 0, len(env.Errors))
				for _, e := range env.Errors {
					messages = append(messages, e.Message)
				}
				return graphQLEnvelope{}, &discovery.APIError{
					Source:  product.SourceProductHunt,
					Message: "graphql errors: " + strings.Join(messages, "; "),
				}
			}
			return env, nil
		})
	if err != nil {
		return err
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, into); err != nil {
		return &discovery.APIError{Source: product.SourceProductHunt, Message: "decode data: " + err.Error(), Cause: err}
	}
	return nil
}

func toRecord(raw json.RawMessage, seed string) (discovery.Record, bool) {
	var n postNode
	if err := json.Unmarshal(raw, &n); err != nil || n.ID == "" {
		return discovery.Record{}, false
	}

	topics := make([]string, 0, len(n.Topics.Edges))
	for _, e := range n.Topics.Edges {
		if e.Node.Name != "" {
			topics = append(topics, e.Node.Name)
		}
	}
	votes := n.VotesCount
	rec := discovery.Record{
		Source:        product.SourceProductHunt,
		ID:            "ph_" + n.ID,
		Name:          n.Name,
		Tagline:       n.Tagline,
		Description:   n.Description,
		Slug:          n.Slug,
		SeedQuery:     seed,
		Topics:        topics,
		Votes:         &votes,
		ReviewsCount:  n.ReviewsCount,
		ReviewsRating: n.ReviewsRating,
		Makers:        n.Makers,
		LaunchedAt:    n.CreatedAt,
		FeaturedAt:    n.FeaturedAt,
		SourceURL:     n.URL,
		Raw:           append(json.RawMessage(nil), raw...),
	}
	if n.Thumbnail != nil {
		rec.ThumbnailURL = n.Thumbnail.URL
	}
	// The website field is normally a producthunt.com tracking redirect.
	if website := strings.TrimSpace(n.Website); website != "" {
		if urlutil.HostMatches(urlutil.Host(website), "producthunt.com") {
			rec.RedirectURL = website
		} else {
			rec.HomepageURL = urlutil.StripTrackingParams(website)
		}
	}
	return rec, true
}
