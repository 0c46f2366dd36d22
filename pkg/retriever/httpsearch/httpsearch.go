// Package httpsearch retrieves documents from an external search service
// over HTTP. The service receives {"query", "top_k"} and answers with
// {"query", "passages": [{"title", "source", "text", "score"}]}.
package httpsearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/germanamz/granitechat/pkg/modeladapter"
	"github.com/germanamz/granitechat/pkg/retriever"
)

// DefaultTopK is used when TopK is not positive.
const DefaultTopK = 4

var _ retriever.Retriever = (*Client)(nil)

// Client is a search service client.
type Client struct {
	api modeladapter.ModelAdapter

	Path string
	TopK int
}

// New creates a Client posting to the given endpoint URL. apiKey is sent as
// a bearer token when non-empty.
func New(endpoint, apiKey string, topK int, client *http.Client) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("httpsearch: invalid url %q", endpoint)
	}

	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	u.Path, u.RawPath, u.RawQuery = "", "", ""

	if topK <= 0 {
		topK = DefaultTopK
	}

	return &Client{
		api:  modeladapter.New(u.String(), modeladapter.Auth{Key: apiKey}, client),
		Path: path,
		TopK: topK,
	}, nil
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// Retrieve posts the query and returns the passages in service order.
func (c *Client) Retrieve(ctx context.Context, query string) ([]retriever.Document, error) {
	var resp retriever.SearchResponse
	if err := c.api.PostJSON(ctx, c.Path, searchRequest{Query: query, TopK: c.TopK}, &resp); err != nil {
		return nil, fmt.Errorf("httpsearch: %w", err)
	}

	docs := make([]retriever.Document, 0, len(resp.Passages))
	for _, p := range resp.Passages {
		if p.Text == "" {
			continue
		}
		docs = append(docs, p.Document())
	}

	if len(docs) == 0 {
		return nil, retriever.ErrNoDocuments
	}

	if len(docs) > c.TopK {
		docs = docs[:c.TopK]
	}

	return docs, nil
}
