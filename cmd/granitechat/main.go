package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/germanamz/granitechat/pkg/config"
	"github.com/germanamz/granitechat/pkg/engine"
	"github.com/germanamz/granitechat/pkg/logging"
	"github.com/germanamz/granitechat/pkg/modeladapter"
	"github.com/germanamz/granitechat/pkg/qa"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var (
	configPath string
	envFile    string
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to configuration file (default: granitechat.yaml or .granitechat/config.yaml)",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "env",
			Usage:       "path to .env file (ignored if missing)",
			Value:       ".env",
			Destination: &envFile,
		},
	}
}

func main() {
	app := &cli.Command{
		Name:  "granitechat",
		Usage: "Chat with a retrieval-augmented Granite model",
		Flags: globalFlags(),
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			return ctx, config.LoadDotEnv(envFile)
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			return runChat(ctx)
		},
		Commands: []*cli.Command{
			askCmd(),
			initCmd(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func askCmd() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a single question and print it to stdout",
		ArgsUsage: "<question>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			question := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(question) == "" {
				return cli.Exit("ask: a question is required", 1)
			}
			return runAsk(ctx, os.Stdout, question)
		},
	}
}

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create a configuration file interactively",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "output",
				Usage: "file to write",
				Value: config.DefaultPaths[0],
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "overwrite an existing file",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			return runInit(cmd.String("output"), cmd.Bool("force"))
		},
	}
}

// setup loads the configuration, opens the log file, and builds the engine.
// The returned cleanup closes the engine and flushes the logger.
func setup(ctx context.Context) (*engine.Engine, *zap.Logger, func(), error) {
	path, err := config.ResolvePath(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := logging.New(cfg.Log.Path, cfg.Log.Level)
	if err != nil {
		return nil, nil, nil, err
	}

	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}

	logger.Info("config loaded", zap.String("path", path))

	cleanup := func() {
		if err := eng.Close(); err != nil {
			logger.Warn("close engine", zap.Error(err))
		}
		_ = logger.Sync()
	}

	return eng, logger, cleanup, nil
}

func runChat(ctx context.Context) error {
	eng, logger, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	maxTokens := 0
	if ur, ok := eng.Completer().(modeladapter.UsageReporter); ok {
		maxTokens = ur.ModelMaxTokens()
	}

	model := newAppModel(ctx, eng, eng.Config().UI, eng.Usage(), maxTokens)

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
		tea.WithFilter(filterStaleEscapes),
	)

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		logger.Error("chat window", zap.Error(err))
	}

	return err
}

func runAsk(ctx context.Context, w io.Writer, question string) error {
	eng, _, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	return printAnswer(ctx, w, eng, question)
}

// printAnswer writes the answer followed by its sources.
func printAnswer(ctx context.Context, w io.Writer, a qa.Answerer, question string) error {
	ans, err := a.Answer(ctx, question)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w, ans.Text); err != nil {
		return err
	}

	if len(ans.Sources) > 0 {
		if _, err := fmt.Fprintln(w, "\n"+sourcesText(ans.Sources)); err != nil {
			return err
		}
	}

	return nil
}
