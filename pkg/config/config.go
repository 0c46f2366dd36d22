// Package config loads and validates granitechat configuration. Files are
// YAML (or TOML when the path ends in .toml); ${VAR} references are expanded
// from the environment before parsing and a few WATSONX_* variables override
// the file so credentials never have to be written down.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrNoRetriever is returned by Validate when no retriever is configured.
var ErrNoRetriever = errors.New("config: no retriever configured (set retriever.kind to http, mcp or sqlite)")

// Provider kinds.
const (
	KindWatsonx = "watsonx"
	KindOpenAI  = "openai"
)

// Retriever kinds.
const (
	RetrieverHTTP   = "http"
	RetrieverMCP    = "mcp"
	RetrieverSQLite = "sqlite"
)

// Environment variables that override file values.
const (
	EnvAPIKey     = "WATSONX_APIKEY"
	EnvURL        = "WATSONX_URL"
	EnvProjectID  = "WATSONX_PROJECT_ID"
	EnvInstanceID = "WATSONX_INSTANCE_ID"
)

// DefaultPaths are searched, in order, when no config path is given.
var DefaultPaths = []string{
	"granitechat.yaml",
	"granitechat.yml",
	"granitechat.toml",
	filepath.Join(".granitechat", "config.yaml"),
}

// Config is the top-level configuration. It is treated as immutable once
// passed to engine.New.
type Config struct {
	Provider   ProviderConfig   `yaml:"provider" toml:"provider"`
	Generation GenerationConfig `yaml:"generation" toml:"generation"`
	Retriever  RetrieverConfig  `yaml:"retriever" toml:"retriever"`
	QA         QAConfig         `yaml:"qa" toml:"qa"`
	UI         UIConfig         `yaml:"ui" toml:"ui"`
	Log        LogConfig        `yaml:"log" toml:"log"`
}

// ProviderConfig describes the hosted completion endpoint.
type ProviderConfig struct {
	Kind              string `yaml:"kind" toml:"kind" validate:"required"`
	URL               string `yaml:"url" toml:"url" validate:"required,url"`
	APIKey            string `yaml:"api_key" toml:"api_key" validate:"required_if=Kind watsonx"` //nolint:gosec // configuration field, not a hardcoded secret
	InstanceID        string `yaml:"instance_id" toml:"instance_id"`
	ProjectID         string `yaml:"project_id" toml:"project_id" validate:"required_if=Kind watsonx"`
	ModelID           string `yaml:"model_id" toml:"model_id" validate:"required"`
	Version           string `yaml:"version" toml:"version"`
	IAMURL            string `yaml:"iam_url" toml:"iam_url" validate:"omitempty,url"`
	Timeout           string `yaml:"timeout" toml:"timeout"` // Duration string, e.g. "60s".
	RequestsPerMinute int    `yaml:"requests_per_minute" toml:"requests_per_minute" validate:"gte=0"`
}

// GenerationConfig holds decoding parameters.
type GenerationConfig struct {
	DecodingMethod    string   `yaml:"decoding_method" toml:"decoding_method" validate:"oneof=greedy sample"`
	MinNewTokens      int      `yaml:"min_new_tokens" toml:"min_new_tokens" validate:"gte=0"`
	MaxNewTokens      int      `yaml:"max_new_tokens" toml:"max_new_tokens" validate:"gt=0,gtefield=MinNewTokens"`
	StopSequences     []string `yaml:"stop_sequences" toml:"stop_sequences"`
	Temperature       float64  `yaml:"temperature" toml:"temperature" validate:"gte=0,lte=2"`
	TopP              float64  `yaml:"top_p" toml:"top_p" validate:"gte=0,lte=1"`
	TopK              int      `yaml:"top_k" toml:"top_k" validate:"gte=0"`
	RepetitionPenalty float64  `yaml:"repetition_penalty" toml:"repetition_penalty" validate:"omitempty,gte=1,lte=2"`
}

// RetrieverConfig selects and configures the document retriever.
type RetrieverConfig struct {
	Kind    string   `yaml:"kind" toml:"kind" validate:"oneof=http mcp sqlite"`
	URL     string   `yaml:"url" toml:"url" validate:"required_if=Kind http"`
	APIKey  string   `yaml:"api_key" toml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	TopK    int      `yaml:"top_k" toml:"top_k" validate:"gte=0"`
	Command string   `yaml:"command" toml:"command"`
	Args    []string `yaml:"args,omitempty" toml:"args,omitempty"`
	Tool    string   `yaml:"tool" toml:"tool"`
	Path    string   `yaml:"path" toml:"path" validate:"required_if=Kind sqlite"`
	Table   string   `yaml:"table" toml:"table"`
}

// QAConfig controls prompt construction.
type QAConfig struct {
	PromptTemplate   string `yaml:"prompt_template" toml:"prompt_template"`
	Persona          string `yaml:"persona" toml:"persona"`
	MaxContextTokens int    `yaml:"max_context_tokens" toml:"max_context_tokens" validate:"gte=0"`
}

// UIConfig controls the chat window.
type UIConfig struct {
	Title     string `yaml:"title" toml:"title"`
	Greeting  string `yaml:"greeting" toml:"greeting"`
	UserLabel string `yaml:"user_label" toml:"user_label"`
	BotLabel  string `yaml:"bot_label" toml:"bot_label"`
}

// LogConfig controls the log file. Path "-" disables logging.
type LogConfig struct {
	Path  string `yaml:"path" toml:"path"`
	Level string `yaml:"level" toml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Defaults returns a Config carrying the stock generation settings of the
// Granite chat demo.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			Kind:    KindWatsonx,
			ModelID: "ibm/granite-13b-chat-v2",
			Timeout: "60s",
		},
		Generation: GenerationConfig{
			DecodingMethod: "greedy",
			MinNewTokens:   1,
			MaxNewTokens:   100,
			StopSequences:  []string{"<|endoftext|>"},
		},
		QA: QAConfig{
			MaxContextTokens: 3000,
		},
		UI: UIConfig{
			Title:     "Granite Chat",
			UserLabel: "You",
			BotLabel:  "Bot",
		},
		Log: LogConfig{
			Path:  "granitechat.log",
			Level: "info",
		},
	}
}

// envRef matches ${VAR} references. Bare $name is left alone so prompt
// templates can use template variables.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with their environment values. Unset
// variables expand to the empty string.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// Load reads the file at path over Defaults, expanding ${VAR} references
// first, then applies the WATSONX_* overrides. It does not validate.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}

	expanded := expandEnv(string(data))

	cfg := Defaults()

	if isTOML(path) {
		err = toml.Unmarshal([]byte(expanded), &cfg)
	} else {
		err = yaml.Unmarshal([]byte(expanded), &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyEnv()

	return cfg, nil
}

// ApplyEnv overrides provider fields with any WATSONX_* variables set in the
// environment.
func (c *Config) ApplyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{EnvAPIKey, &c.Provider.APIKey},
		{EnvURL, &c.Provider.URL},
		{EnvProjectID, &c.Provider.ProjectID},
		{EnvInstanceID, &c.Provider.InstanceID},
	}

	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok && v != "" {
			*o.dst = v
		}
	}
}

// Save writes cfg to path as YAML, or TOML when path ends in .toml.
// Parent directories are created as needed.
func Save(path string, cfg Config) error {
	var (
		data []byte
		err  error
	)

	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("config: save: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: save: %w", err)
	}

	return nil
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if c.Retriever.Kind == "" {
		return ErrNoRetriever
	}

	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("config: %s", describe(verrs[0]))
		}
		return fmt.Errorf("config: %w", err)
	}

	if _, err := c.Provider.HTTPTimeout(); err != nil {
		return fmt.Errorf("config: provider.timeout: %w", err)
	}

	if c.Retriever.Kind == RetrieverMCP && c.Retriever.Command == "" && c.Retriever.URL == "" {
		return fmt.Errorf("config: retriever: mcp requires command or url")
	}

	return nil
}

// HTTPTimeout parses Timeout. An empty value means no timeout.
func (p ProviderConfig) HTTPTimeout() (time.Duration, error) {
	if p.Timeout == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", p.Timeout)
	}

	return d, nil
}

// ResolvePath returns explicit when set, otherwise the first of DefaultPaths
// that exists.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("config: no config file found (tried %s): %w", strings.Join(DefaultPaths, ", "), os.ErrNotExist)
}

// LoadDotEnv loads environment variables from path. Missing files are ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}

	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: load %s: %w", path, err)
	}

	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	return v
}

// describe renders a validation failure using yaml field paths, e.g.
// "provider.api_key: required when kind is watsonx".
func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	switch fe.Tag() {
	case "required":
		return field + ": required"
	case "required_if":
		return fmt.Sprintf("%s: required when %s", field, strings.Replace(fe.Param(), " ", " is ", 1))
	case "oneof":
		return fmt.Sprintf("%s: %q is not one of [%s]", field, fe.Value(), fe.Param())
	case "url":
		return fmt.Sprintf("%s: %q is not a valid url", field, fe.Value())
	case "gtefield":
		return fmt.Sprintf("%s: must be >= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}
