package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/germanamz/granitechat/pkg/config"
	"github.com/germanamz/granitechat/pkg/modeladapter"
	"github.com/germanamz/granitechat/pkg/modeladapter/usage"
	"github.com/germanamz/granitechat/pkg/qa"
	"github.com/germanamz/granitechat/pkg/retriever"
	"go.uber.org/zap"
)

// Engine owns the completer, the retriever and the façade built from them.
// The configuration is fixed for the Engine's lifetime.
type Engine struct {
	cfg       config.Config
	logger    *zap.Logger
	completer modeladapter.Completer
	retriever retriever.Retriever
	qa        *qa.QA

	closeOnce sync.Once
	closeErr  error
}

var _ qa.Answerer = (*Engine)(nil)

// New validates cfg and builds the engine. A nil logger is replaced by a
// no-op logger. The context bounds retriever start-up (e.g. spawning an MCP
// server); it is not retained.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	timeout, err := cfg.Provider.HTTPTimeout()
	if err != nil {
		return nil, fmt.Errorf("engine: provider timeout: %w", err)
	}
	client := &http.Client{Timeout: timeout}

	e := &Engine{cfg: cfg, logger: logger}

	e.completer, err = buildCompleter(cfg, client)
	if err != nil {
		return nil, err
	}

	e.retriever, err = buildRetriever(ctx, cfg.Retriever, client)
	if err != nil {
		return nil, err
	}

	e.qa, err = qa.New(e.completer, e.retriever,
		qa.WithPromptTemplate(promptTemplate(cfg.QA)),
		qa.WithPersona(cfg.QA.Persona),
		qa.WithMaxContextTokens(cfg.QA.MaxContextTokens),
		qa.WithStopSequences(cfg.Generation.StopSequences),
		qa.WithLogger(logger.Named("qa")),
	)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("engine: %w", err)
	}

	logger.Info("engine ready",
		zap.String("provider", cfg.Provider.Kind),
		zap.String("model", cfg.Provider.ModelID),
		zap.String("retriever", cfg.Retriever.Kind),
		zap.Bool("instance_id_set", cfg.Provider.InstanceID != ""),
		zap.Int("requests_per_minute", cfg.Provider.RequestsPerMinute))

	return e, nil
}

func promptTemplate(cfg config.QAConfig) string {
	if cfg.PromptTemplate == "" {
		return qa.DefaultPromptTemplate
	}
	return cfg.PromptTemplate
}

// Answer answers question through the façade.
func (e *Engine) Answer(ctx context.Context, question string) (qa.Answer, error) {
	return e.qa.Answer(ctx, question)
}

// QA returns the question-answering façade.
func (e *Engine) QA() *qa.QA { return e.qa }

// Completer returns the model completer.
func (e *Engine) Completer() modeladapter.Completer { return e.completer }

// Config returns the configuration the engine was built from.
func (e *Engine) Config() config.Config { return e.cfg }

// Usage returns the completer's usage tracker, or nil when the completer does
// not report usage.
func (e *Engine) Usage() *usage.Tracker {
	if ur, ok := e.completer.(modeladapter.UsageReporter); ok {
		return ur.UsageTracker()
	}
	return nil
}

// Close releases the retriever (MCP session or database handle). It is safe
// to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if c, ok := e.retriever.(io.Closer); ok {
			e.closeErr = c.Close()
		}
	})
	return e.closeErr
}
