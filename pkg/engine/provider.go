package engine

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/germanamz/granitechat/pkg/config"
	"github.com/germanamz/granitechat/pkg/modeladapter"
	"github.com/germanamz/granitechat/pkg/providers/openai"
	"github.com/germanamz/granitechat/pkg/providers/watsonx"
)

// ProviderFactory creates a Completer from the provider and generation
// sections of the configuration. client carries the configured timeout.
type ProviderFactory func(cfg config.Config, client *http.Client) (modeladapter.Completer, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories[config.KindWatsonx] = newWatsonx
		factories[config.KindOpenAI] = newOpenAI
	})
}

// RegisterProvider registers a custom provider factory under the given kind.
// It can be called before New to extend the engine with additional providers.
func RegisterProvider(kind string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

// getFactory returns the factory for the given kind.
func getFactory(kind string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

func newWatsonx(cfg config.Config, client *http.Client) (modeladapter.Completer, error) {
	g := cfg.Generation
	a := watsonx.New(cfg.Provider.URL, cfg.Provider.ProjectID, cfg.Provider.ModelID, watsonx.Parameters{
		DecodingMethod:    g.DecodingMethod,
		MinNewTokens:      g.MinNewTokens,
		MaxNewTokens:      g.MaxNewTokens,
		StopSequences:     g.StopSequences,
		Temperature:       g.Temperature,
		TopP:              g.TopP,
		TopK:              g.TopK,
		RepetitionPenalty: g.RepetitionPenalty,
	})
	if cfg.Provider.Version != "" {
		a.Version = cfg.Provider.Version
	}
	a.Client = client
	a.TokenSource = watsonx.NewIAMTokenSource(cfg.Provider.IAMURL, cfg.Provider.APIKey, client)

	return a, nil
}

func newOpenAI(cfg config.Config, client *http.Client) (modeladapter.Completer, error) {
	a := openai.New(cfg.Provider.URL, cfg.Provider.APIKey, cfg.Provider.ModelID)
	a.MaxTokens = cfg.Generation.MaxNewTokens
	a.Stop = cfg.Generation.StopSequences
	if cfg.Generation.DecodingMethod == watsonx.DecodingSample {
		a.Temperature = cfg.Generation.Temperature
	}
	a.Client = client

	return a, nil
}

// buildCompleter creates a Completer using the registered factory for the
// provider kind and attaches the request throttle when configured.
func buildCompleter(cfg config.Config, client *http.Client) (modeladapter.Completer, error) {
	factory, ok := getFactory(cfg.Provider.Kind)
	if !ok {
		return nil, fmt.Errorf("engine: unknown provider kind %q", cfg.Provider.Kind)
	}

	c, err := factory(cfg, client)
	if err != nil {
		return nil, fmt.Errorf("engine: provider %q: %w", cfg.Provider.Kind, err)
	}

	if lim := modeladapter.NewLimiter(cfg.Provider.RequestsPerMinute); lim != nil {
		if t, ok := c.(modeladapter.Throttler); ok {
			t.SetLimiter(lim)
		}
	}

	return c, nil
}
