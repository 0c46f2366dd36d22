// Package retriever defines the document retrieval contract used by the
// question-answering façade, plus the passage wire shape shared by the
// remote adapters.
package retriever

import (
	"context"
	"errors"
	"strings"

	json "github.com/goccy/go-json"
)

// ErrNoDocuments is returned by a Retriever when nothing matched the query.
var ErrNoDocuments = errors.New("retriever: no documents")

// Document is a single retrieved passage. Score is adapter-specific; higher
// is better. Retrievers return documents ordered best first.
type Document struct {
	ID      string
	Title   string
	Source  string
	Content string
	Score   float64
}

// Label returns the best human-readable reference for the document.
func (d Document) Label() string {
	switch {
	case d.Title != "" && d.Source != "":
		return d.Title + " (" + d.Source + ")"
	case d.Title != "":
		return d.Title
	case d.Source != "":
		return d.Source
	default:
		return d.ID
	}
}

// Retriever returns documents relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Document, error)
}

// Func adapts a plain function to the Retriever interface.
type Func func(ctx context.Context, query string) ([]Document, error)

// Retrieve calls f.
func (f Func) Retrieve(ctx context.Context, query string) ([]Document, error) {
	return f(ctx, query)
}

// Passage is the JSON shape returned by search services:
// {"title": ..., "source": ..., "text": ..., "score": ...}.
type Passage struct {
	ID     string  `json:"id,omitempty"`
	Title  string  `json:"title,omitempty"`
	Source string  `json:"source,omitempty"`
	Text   string  `json:"text"`
	Score  float64 `json:"score,omitempty"`
}

// Document converts the passage.
func (p Passage) Document() Document {
	return Document{
		ID:      p.ID,
		Title:   p.Title,
		Source:  p.Source,
		Content: p.Text,
		Score:   p.Score,
	}
}

// SearchResponse is the envelope returned by search services.
type SearchResponse struct {
	Query    string    `json:"query,omitempty"`
	Passages []Passage `json:"passages"`
}

// DecodePassages parses data as either a SearchResponse envelope or a bare
// array of passages. ok is false when data is neither.
func DecodePassages(data []byte) (docs []Document, ok bool) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, false
	}

	var passages []Passage

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal([]byte(trimmed), &passages); err != nil {
			return nil, false
		}
	case '{':
		var env SearchResponse
		if err := json.Unmarshal([]byte(trimmed), &env); err != nil || env.Passages == nil {
			return nil, false
		}
		passages = env.Passages
	default:
		return nil, false
	}

	docs = make([]Document, 0, len(passages))
	for _, p := range passages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		docs = append(docs, p.Document())
	}

	return docs, true
}
