package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/germanamz/granitechat/pkg/config"
)

// wizardAnswers holds the raw form values. Numeric fields are strings
// because huh inputs are text.
type wizardAnswers struct {
	ProviderKind  string
	URL           string
	ModelID       string
	RetrieverKind string
	Target        string // URL, command, or database path depending on RetrieverKind.
	TopK          string
	Persona       string
	Greeting      string
}

var watsonxRegions = []huh.Option[string]{
	huh.NewOption("Dallas (us-south)", "https://us-south.ml.cloud.ibm.com"),
	huh.NewOption("Frankfurt (eu-de)", "https://eu-de.ml.cloud.ibm.com"),
	huh.NewOption("London (eu-gb)", "https://eu-gb.ml.cloud.ibm.com"),
	huh.NewOption("Tokyo (jp-tok)", "https://jp-tok.ml.cloud.ibm.com"),
}

//nolint:gosec // env var reference templates, not hardcoded secrets
const (
	apiKeyPlaceholder    = "${" + config.EnvAPIKey + "}"
	projectIDPlaceholder = "${" + config.EnvProjectID + "}"
	openAIKeyPlaceholder = "${OPENAI_API_KEY}"
)

func defaultWizardAnswers() wizardAnswers {
	d := config.Defaults()
	return wizardAnswers{
		ProviderKind:  config.KindWatsonx,
		URL:           watsonxRegions[0].Value,
		ModelID:       d.Provider.ModelID,
		RetrieverKind: config.RetrieverHTTP,
		TopK:          "4",
	}
}

func runInit(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("init: %s already exists (use --force to overwrite)", path)
		}
	}

	a := defaultWizardAnswers()
	if err := runWizard(&a); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return err
	}

	cfg, err := buildWizardConfig(a)
	if err != nil {
		return err
	}

	if err := config.Save(path, cfg); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", path)
	if cfg.Provider.Kind == config.KindWatsonx {
		fmt.Printf("Set %s and %s in your environment or .env file.\n", config.EnvAPIKey, config.EnvProjectID)
	}

	return nil
}

func runWizard(a *wizardAnswers) error {
	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Model provider").
			Options(
				huh.NewOption("IBM watsonx.ai", config.KindWatsonx),
				huh.NewOption("OpenAI-compatible endpoint", config.KindOpenAI),
			).
			Value(&a.ProviderKind),
	)).Run(); err != nil {
		return err
	}

	var urlField huh.Field
	if a.ProviderKind == config.KindWatsonx {
		urlField = huh.NewSelect[string]().Title("watsonx.ai region").Options(watsonxRegions...).Value(&a.URL)
	} else {
		a.URL = "http://localhost:11434"
		a.ModelID = "granite3-dense:8b"
		urlField = huh.NewInput().Title("Endpoint base URL").Value(&a.URL)
	}

	if err := huh.NewForm(huh.NewGroup(
		urlField,
		huh.NewInput().Title("Model id").Value(&a.ModelID).Validate(notEmpty("model id")),
		huh.NewSelect[string]().
			Title("Document retriever").
			Options(
				huh.NewOption("HTTP search service", config.RetrieverHTTP),
				huh.NewOption("MCP search tool", config.RetrieverMCP),
				huh.NewOption("SQLite FTS5 database", config.RetrieverSQLite),
			).
			Value(&a.RetrieverKind),
	)).Run(); err != nil {
		return err
	}

	targetTitle := map[string]string{
		config.RetrieverHTTP:   "Search service URL",
		config.RetrieverMCP:    "MCP server command (or http(s) URL for SSE)",
		config.RetrieverSQLite: "Path to the FTS5 database",
	}[a.RetrieverKind]

	return huh.NewForm(huh.NewGroup(
		huh.NewInput().Title(targetTitle).Value(&a.Target).Validate(notEmpty("value")),
		huh.NewInput().Title("Documents per question").Value(&a.TopK).Validate(positiveInt),
		huh.NewText().Title("Persona (optional)").Value(&a.Persona),
		huh.NewInput().Title("Greeting (optional)").Value(&a.Greeting),
	)).Run()
}

// buildWizardConfig turns the answers into a Config. Secrets are written as
// ${VAR} references so the file can be committed.
func buildWizardConfig(a wizardAnswers) (config.Config, error) {
	cfg := config.Defaults()

	cfg.Provider.Kind = a.ProviderKind
	cfg.Provider.URL = a.URL
	cfg.Provider.ModelID = a.ModelID

	switch a.ProviderKind {
	case config.KindWatsonx:
		cfg.Provider.APIKey = apiKeyPlaceholder
		cfg.Provider.ProjectID = projectIDPlaceholder
	case config.KindOpenAI:
		cfg.Provider.APIKey = openAIKeyPlaceholder
	default:
		return config.Config{}, fmt.Errorf("init: unknown provider %q", a.ProviderKind)
	}

	topK, err := strconv.Atoi(a.TopK)
	if err != nil || topK <= 0 {
		return config.Config{}, fmt.Errorf("init: invalid documents per question %q", a.TopK)
	}

	cfg.Retriever = config.RetrieverConfig{Kind: a.RetrieverKind, TopK: topK}
	switch a.RetrieverKind {
	case config.RetrieverHTTP:
		cfg.Retriever.URL = a.Target
	case config.RetrieverMCP:
		if isHTTPURL(a.Target) {
			cfg.Retriever.URL = a.Target
		} else {
			cfg.Retriever.Command, cfg.Retriever.Args = splitCommand(a.Target)
		}
	case config.RetrieverSQLite:
		cfg.Retriever.Path = a.Target
	default:
		return config.Config{}, fmt.Errorf("init: unknown retriever %q", a.RetrieverKind)
	}

	cfg.QA.Persona = a.Persona
	cfg.UI.Greeting = a.Greeting

	return cfg, nil
}

func notEmpty(what string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return errors.New("enter a positive number")
	}
	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// splitCommand splits a command line on whitespace. Quoting is not supported.
func splitCommand(s string) (string, []string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", nil
	}
	if len(fields) == 1 {
		return fields[0], nil
	}
	return fields[0], fields[1:]
}
