// Package mcpsearch retrieves documents by calling a search tool on an MCP
// server. The tool is called with {"query", "top_k"}; each text content item
// in the result becomes a document, unless it holds a JSON passage list, in
// which case every passage becomes a document.
package mcpsearch

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/germanamz/granitechat/pkg/retriever"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DefaultTool is the tool name called when none is configured.
const DefaultTool = "search"

// DefaultTopK is used when TopK is not positive.
const DefaultTopK = 4

var _ retriever.Retriever = (*Client)(nil)

// Client is a retriever backed by an MCP session.
type Client struct {
	client  *mcp.Client
	session *mcp.ClientSession

	Tool string
	TopK int
}

// Options configure the search call.
type Options struct {
	Tool string
	TopK int
}

// New spawns an MCP server process and returns a connected client.
// The SDK handles initialization automatically during Connect.
func New(ctx context.Context, opts Options, command string, args ...string) (*Client, error) {
	transport := &mcp.CommandTransport{
		Command: exec.Command(command, args...), //nolint:gosec // command comes from configuration
	}

	return newFromTransport(ctx, opts, transport)
}

// NewSSE connects to an SSE-based MCP server at the given URL.
func NewSSE(ctx context.Context, opts Options, url string) (*Client, error) {
	transport := &mcp.SSEClientTransport{Endpoint: url}

	return newFromTransport(ctx, opts, transport)
}

func newFromTransport(ctx context.Context, opts Options, transport mcp.Transport) (*Client, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "granitechat",
		Version: "0.1.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpsearch: connect: %w", err)
	}

	if opts.Tool == "" {
		opts.Tool = DefaultTool
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	return &Client{client: client, session: session, Tool: opts.Tool, TopK: opts.TopK}, nil
}

// Retrieve calls the search tool and converts its text output to documents.
func (c *Client) Retrieve(ctx context.Context, query string) ([]retriever.Document, error) {
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      c.Tool,
		Arguments: map[string]any{"query": query, "top_k": c.TopK},
	})
	if err != nil {
		return nil, fmt.Errorf("mcpsearch: call tool: %w", err)
	}

	texts := extractTexts(result)

	if result.IsError {
		return nil, fmt.Errorf("mcpsearch: tool error: %s", strings.Join(texts, "\n"))
	}

	var docs []retriever.Document
	for i, text := range texts {
		if parsed, ok := retriever.DecodePassages([]byte(text)); ok {
			docs = append(docs, parsed...)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, retriever.Document{
			ID:      fmt.Sprintf("%s#%d", c.Tool, i),
			Content: text,
		})
	}

	if len(docs) == 0 {
		return nil, retriever.ErrNoDocuments
	}

	if len(docs) > c.TopK {
		docs = docs[:c.TopK]
	}

	return docs, nil
}

// Close terminates the session. For command transports the SDK closes the
// child's stdin and escalates to SIGTERM/SIGKILL if it does not exit.
func (c *Client) Close() error {
	return c.session.Close()
}

func extractTexts(result *mcp.CallToolResult) []string {
	var texts []string
	for _, item := range result.Content {
		if tc, ok := item.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}

	return texts
}
