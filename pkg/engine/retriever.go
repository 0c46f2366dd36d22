package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/germanamz/granitechat/pkg/config"
	"github.com/germanamz/granitechat/pkg/retriever"
	"github.com/germanamz/granitechat/pkg/retriever/httpsearch"
	"github.com/germanamz/granitechat/pkg/retriever/mcpsearch"
	"github.com/germanamz/granitechat/pkg/retriever/sqlitefts"
)

type retrieverFactory func(ctx context.Context, cfg config.RetrieverConfig, client *http.Client) (retriever.Retriever, error)

var retrieverFactories = map[string]retrieverFactory{
	config.RetrieverHTTP:   newHTTPSearch,
	config.RetrieverMCP:    newMCPSearch,
	config.RetrieverSQLite: newSQLiteFTS,
}

func newHTTPSearch(_ context.Context, cfg config.RetrieverConfig, client *http.Client) (retriever.Retriever, error) {
	return httpsearch.New(cfg.URL, cfg.APIKey, cfg.TopK, client)
}

func newMCPSearch(ctx context.Context, cfg config.RetrieverConfig, _ *http.Client) (retriever.Retriever, error) {
	opts := mcpsearch.Options{Tool: cfg.Tool, TopK: cfg.TopK}
	if cfg.Command != "" {
		return mcpsearch.New(ctx, opts, cfg.Command, cfg.Args...)
	}

	return mcpsearch.NewSSE(ctx, opts, cfg.URL)
}

func newSQLiteFTS(ctx context.Context, cfg config.RetrieverConfig, _ *http.Client) (retriever.Retriever, error) {
	return sqlitefts.Open(ctx, cfg.Path, cfg.Table, cfg.TopK)
}

func buildRetriever(ctx context.Context, cfg config.RetrieverConfig, client *http.Client) (retriever.Retriever, error) {
	if cfg.Kind == "" {
		return nil, config.ErrNoRetriever
	}

	factory, ok := retrieverFactories[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("engine: unknown retriever kind %q", cfg.Kind)
	}

	r, err := factory(ctx, cfg, client)
	if err != nil {
		return nil, fmt.Errorf("engine: retriever %q: %w", cfg.Kind, err)
	}

	return r, nil
}
