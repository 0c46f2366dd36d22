// Package qa implements the retrieval-augmented question-answering façade:
// retrieve documents, stuff them into a single prompt, and make one
// completion call.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/germanamz/granitechat/pkg/modeladapter"
	"github.com/germanamz/granitechat/pkg/modeladapter/usage"
	"github.com/germanamz/granitechat/pkg/retriever"
	"go.uber.org/zap"
)

// ErrEmptyQuestion is returned when the question is empty after trimming.
var ErrEmptyQuestion = errors.New("qa: empty question")

// DefaultPromptTemplate is the stuff-chain prompt used when none is configured.
const DefaultPromptTemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{.Context}}

Question: {{.Question}}
Helpful Answer:`

// documentSeparator joins stuffed documents.
const documentSeparator = "\n\n"

// Answer is the façade result.
type Answer struct {
	Text     string
	Sources  []retriever.Document // Documents actually placed in the prompt, best first.
	Dropped  int                  // Documents left out by the context budget.
	Usage    usage.TokenCount
	Duration time.Duration
}

// Answerer answers a single question.
type Answerer interface {
	Answer(ctx context.Context, question string) (Answer, error)
}

// AnswerFunc adapts a plain function to Answerer.
type AnswerFunc func(ctx context.Context, question string) (Answer, error)

// Answer calls f.
func (f AnswerFunc) Answer(ctx context.Context, question string) (Answer, error) {
	return f(ctx, question)
}

// PromptData is the value the prompt template is executed with.
type PromptData struct {
	Persona   string
	Context   string
	Question  string
	Documents []retriever.Document
}

// Option configures a QA.
type Option func(*QA)

// WithPromptTemplate overrides DefaultPromptTemplate. The template is a
// text/template over PromptData.
func WithPromptTemplate(tmpl string) Option {
	return func(q *QA) { q.promptText = tmpl }
}

// WithPersona sets the system text sent ahead of the prompt.
func WithPersona(persona string) Option {
	return func(q *QA) { q.persona = persona }
}

// WithMaxContextTokens bounds the estimated size of the stuffed context.
// Zero means unbounded.
func WithMaxContextTokens(n int) Option {
	return func(q *QA) { q.maxContextTokens = n }
}

// WithStopSequences lists sequences stripped from the end of answers.
func WithStopSequences(seqs []string) Option {
	return func(q *QA) { q.stopSequences = seqs }
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *QA) { q.logger = l }
}

// QA is the question-answering façade. It is safe for concurrent use as long
// as the completer and retriever are.
type QA struct {
	completer modeladapter.Completer
	retriever retriever.Retriever

	promptText       string
	prompt           *template.Template
	persona          string
	maxContextTokens int
	stopSequences    []string
	estimator        modeladapter.TokenEstimator
	logger           *zap.Logger
}

var _ Answerer = (*QA)(nil)

// New builds a QA. Both the completer and the retriever are required.
func New(c modeladapter.Completer, r retriever.Retriever, opts ...Option) (*QA, error) {
	if c == nil {
		return nil, errors.New("qa: completer is required")
	}
	if r == nil {
		return nil, errors.New("qa: retriever is required")
	}

	q := &QA{
		completer:  c,
		retriever:  r,
		promptText: DefaultPromptTemplate,
		logger:     zap.NewNop(),
	}

	for _, o := range opts {
		o(q)
	}

	if q.maxContextTokens < 0 {
		return nil, fmt.Errorf("qa: negative max context tokens %d", q.maxContextTokens)
	}

	prompt, err := template.New("prompt").Option("missingkey=error").Parse(q.promptText)
	if err != nil {
		return nil, fmt.Errorf("qa: parse prompt template: %w", err)
	}
	q.prompt = prompt

	return q, nil
}

// Answer retrieves context for question, renders the prompt and returns the
// model's trimmed reply. There are no retries.
func (q *QA) Answer(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	start := time.Now()

	docs, err := q.retriever.Retrieve(ctx, question)
	switch {
	case errors.Is(err, retriever.ErrNoDocuments):
		q.logger.Info("no documents retrieved", zap.String("question", question))
		docs = nil
	case err != nil:
		q.logger.Error("retrieve failed", zap.Error(err))
		return Answer{}, fmt.Errorf("qa: retrieve: %w", err)
	}

	kept, dropped := q.stuff(docs)
	if dropped > 0 {
		for _, d := range docs[len(kept):] {
			q.logger.Warn("document dropped by context budget",
				zap.String("document", d.Label()),
				zap.Int("budget", q.maxContextTokens))
		}
	}

	prompt, err := q.render(question, kept)
	if err != nil {
		return Answer{}, err
	}

	req := modeladapter.Request{System: q.persona, Prompt: prompt}
	q.logger.Debug("sending prompt",
		zap.Int("documents", len(kept)),
		zap.Int("estimated_tokens", q.estimator.EstimateRequest(req)))

	resp, err := q.completer.Complete(ctx, req)
	if err != nil {
		q.logger.Error("completion failed", zap.Error(err))
		return Answer{}, fmt.Errorf("qa: complete: %w", err)
	}

	ans := Answer{
		Text:     q.clean(resp.Text),
		Sources:  kept,
		Dropped:  dropped,
		Usage:    resp.Usage,
		Duration: time.Since(start),
	}

	q.logger.Info("answered",
		zap.Int("documents", len(kept)),
		zap.Int("dropped", dropped),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.String("stop_reason", resp.StopReason),
		zap.Duration("duration", ans.Duration))

	return ans, nil
}

// stuff admits documents in rank order while the estimated context fits the
// budget. A best document that alone exceeds the budget is truncated.
func (q *QA) stuff(docs []retriever.Document) (kept []retriever.Document, dropped int) {
	if q.maxContextTokens == 0 || len(docs) == 0 {
		return docs, 0
	}

	sepTokens := q.estimator.EstimateText(documentSeparator)
	used := 0

	for i, d := range docs {
		cost := q.estimator.EstimateText(d.Content)
		if i > 0 {
			cost += sepTokens
		}

		if used+cost <= q.maxContextTokens {
			kept = append(kept, d)
			used += cost
			continue
		}

		if i == 0 {
			d.Content = q.estimator.TruncateToTokens(d.Content, q.maxContextTokens)
			kept = append(kept, d)
		}

		return kept, len(docs) - len(kept)
	}

	return kept, 0
}

func (q *QA) render(question string, docs []retriever.Document) (string, error) {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}

	var b strings.Builder
	err := q.prompt.Execute(&b, PromptData{
		Persona:   q.persona,
		Context:   strings.Join(parts, documentSeparator),
		Question:  question,
		Documents: docs,
	})
	if err != nil {
		return "", fmt.Errorf("qa: render prompt: %w", err)
	}

	return b.String(), nil
}

// clean trims whitespace and any trailing stop sequence echoed by the model.
func (q *QA) clean(text string) string {
	text = strings.TrimSpace(text)
	for _, s := range q.stopSequences {
		if s == "" {
			continue
		}
		text = strings.TrimSpace(strings.TrimSuffix(text, s))
	}
	return text
}
