package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
provider:
  kind: watsonx
  url: https://us-south.ml.cloud.ibm.com
  api_key: key-from-file
  project_id: proj-1
  requests_per_minute: 30

generation:
  max_new_tokens: 200
  stop_sequences: ["<|endoftext|>", "\n\nUser:"]

retriever:
  kind: http
  url: http://localhost:8081/search
  top_k: 3

qa:
  persona: As TaxGenie, an expert on Indian GST, answer the question.

ui:
  greeting: Hello! Ask me about GST.
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Provider.URL = "https://us-south.ml.cloud.ibm.com"
	cfg.Provider.APIKey = "k"
	cfg.Provider.ProjectID = "p"
	cfg.Retriever = RetrieverConfig{Kind: RetrieverSQLite, Path: "kb.db"}

	return cfg
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "granitechat.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, KindWatsonx, cfg.Provider.Kind)
	assert.Equal(t, "key-from-file", cfg.Provider.APIKey)
	assert.Equal(t, 30, cfg.Provider.RequestsPerMinute)

	// Unset fields keep their defaults.
	assert.Equal(t, "ibm/granite-13b-chat-v2", cfg.Provider.ModelID)
	assert.Equal(t, "greedy", cfg.Generation.DecodingMethod)
	assert.Equal(t, 1, cfg.Generation.MinNewTokens)

	assert.Equal(t, 200, cfg.Generation.MaxNewTokens)
	assert.Equal(t, []string{"<|endoftext|>", "\n\nUser:"}, cfg.Generation.StopSequences)
	assert.Equal(t, RetrieverHTTP, cfg.Retriever.Kind)
	assert.Equal(t, 3, cfg.Retriever.TopK)
	assert.Equal(t, "Hello! Ask me about GST.", cfg.UI.Greeting)
	assert.Equal(t, "You", cfg.UI.UserLabel)

	require.NoError(t, cfg.Validate())
}

func TestLoad_TOML(t *testing.T) {
	const sample = `
[provider]
kind = "openai"
url = "http://localhost:11434"
model_id = "granite3-dense"

[retriever]
kind = "sqlite"
path = "kb.db"
table = "gst"
`
	cfg, err := Load(writeFile(t, "granitechat.toml", sample))
	require.NoError(t, err)

	assert.Equal(t, KindOpenAI, cfg.Provider.Kind)
	assert.Equal(t, "granite3-dense", cfg.Provider.ModelID)
	assert.Equal(t, "gst", cfg.Retriever.Table)
	assert.Equal(t, 100, cfg.Generation.MaxNewTokens)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/no/such/file.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "provider: [unclosed"))
	assert.ErrorContains(t, err, "config: parse")
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("GRANITECHAT_TEST_SEARCH_KEY", "search-secret")

	cfg, err := Load(writeFile(t, "c.yaml", "retriever:\n  kind: http\n  api_key: ${GRANITECHAT_TEST_SEARCH_KEY}\n"))
	require.NoError(t, err)

	assert.Equal(t, "search-secret", cfg.Retriever.APIKey)
}

func TestLoad_KeepsBareDollar(t *testing.T) {
	t.Setenv("d", "expanded")
	t.Setenv("GRANITECHAT_TEST_TITLE", "GST Desk")

	const tmpl = "{{range $i, $d := .Documents}}[{{$i}}] {{$d.Content}}{{end}} Q: {{.Question}}"
	data := "qa:\n" +
		"  prompt_template: '" + tmpl + "'\n" +
		"  persona: 'Fees cost $5 per filing'\n" +
		"ui:\n" +
		"  title: '${GRANITECHAT_TEST_TITLE} ($d)'\n"

	cfg, err := Load(writeFile(t, "c.yaml", data))
	require.NoError(t, err)

	assert.Equal(t, tmpl, cfg.QA.PromptTemplate)
	assert.Equal(t, "Fees cost $5 per filing", cfg.QA.Persona)
	assert.Equal(t, "GST Desk ($d)", cfg.UI.Title)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("GRANITECHAT_TEST_A", "alpha")

	tests := []struct {
		in, want string
	}{
		{"${GRANITECHAT_TEST_A}", "alpha"},
		{"x-${GRANITECHAT_TEST_A}-y", "x-alpha-y"},
		{"${GRANITECHAT_TEST_UNSET}", ""},
		{"$GRANITECHAT_TEST_A", "$GRANITECHAT_TEST_A"},
		{"$$ and $", "$$ and $"},
		{"${not valid}", "${not valid}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnv(tt.in), "expandEnv(%q)", tt.in)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv(EnvAPIKey, "key-from-env")
	t.Setenv(EnvProjectID, "proj-env")
	t.Setenv(EnvInstanceID, "openshift")

	cfg, err := Load(writeFile(t, "c.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "key-from-env", cfg.Provider.APIKey)
	assert.Equal(t, "proj-env", cfg.Provider.ProjectID)
	assert.Equal(t, "openshift", cfg.Provider.InstanceID)
	assert.Equal(t, "https://us-south.ml.cloud.ibm.com", cfg.Provider.URL)
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_NoRetriever(t *testing.T) {
	cfg := validConfig()
	cfg.Retriever = RetrieverConfig{}

	assert.ErrorIs(t, cfg.Validate(), ErrNoRetriever)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing provider kind", func(c *Config) { c.Provider.Kind = "" }, "provider.kind: required"},
		{"missing url", func(c *Config) { c.Provider.URL = "" }, "provider.url: required"},
		{"bad url", func(c *Config) { c.Provider.URL = "not a url" }, "provider.url: \"not a url\" is not a valid url"},
		{"watsonx api key", func(c *Config) { c.Provider.APIKey = "" }, "provider.api_key: required when Kind is watsonx"},
		{"watsonx project", func(c *Config) { c.Provider.ProjectID = "" }, "provider.project_id: required when Kind is watsonx"},
		{"decoding", func(c *Config) { c.Generation.DecodingMethod = "beam" }, "generation.decoding_method"},
		{"min over max", func(c *Config) { c.Generation.MinNewTokens = 500 }, "generation.max_new_tokens: must be >= MinNewTokens"},
		{"unknown retriever", func(c *Config) { c.Retriever.Kind = "faiss" }, "retriever.kind"},
		{"http retriever url", func(c *Config) { c.Retriever = RetrieverConfig{Kind: RetrieverHTTP} }, "retriever.url: required when Kind is http"},
		{"sqlite path", func(c *Config) { c.Retriever = RetrieverConfig{Kind: RetrieverSQLite} }, "retriever.path: required"},
		{"mcp target", func(c *Config) { c.Retriever = RetrieverConfig{Kind: RetrieverMCP} }, "mcp requires command or url"},
		{"timeout", func(c *Config) { c.Provider.Timeout = "soon" }, "provider.timeout"},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_OpenAIWithoutKey(t *testing.T) {
	cfg := validConfig()
	cfg.Provider.Kind = KindOpenAI
	cfg.Provider.APIKey = ""
	cfg.Provider.ProjectID = ""

	assert.NoError(t, cfg.Validate())
}

func TestHTTPTimeout(t *testing.T) {
	d, err := ProviderConfig{Timeout: "90s"}.HTTPTimeout()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = ProviderConfig{}.HTTPTimeout()
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = ProviderConfig{Timeout: "-1s"}.HTTPTimeout()
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			want := validConfig()

			require.NoError(t, Save(path, want))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestResolvePath(t *testing.T) {
	p, err := ResolvePath("custom.yaml")
	require.NoError(t, err)
	assert.Equal(t, "custom.yaml", p)

	t.Chdir(t.TempDir())

	_, err = ResolvePath("")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.MkdirAll(".granitechat", 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(".granitechat", "config.yaml"), nil, 0o600))

	p, err = ResolvePath("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(".granitechat", "config.yaml"), p)

	require.NoError(t, os.WriteFile("granitechat.yaml", nil, 0o600))

	p, err = ResolvePath("")
	require.NoError(t, err)
	assert.Equal(t, "granitechat.yaml", p)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(""))
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := writeFile(t, ".env", "GRANITECHAT_TEST_DOTENV=loaded\n")
	t.Cleanup(func() { _ = os.Unsetenv("GRANITECHAT_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("GRANITECHAT_TEST_DOTENV"))
}
