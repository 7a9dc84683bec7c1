// Package main runs orthoforge: one browser session per configured account,
// each solving grammar exercises with the help of a language model until its
// session time runs out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/entrhq/orthoforge/pkg/accounts"
	"github.com/entrhq/orthoforge/pkg/browser"
	"github.com/entrhq/orthoforge/pkg/config"
	"github.com/entrhq/orthoforge/pkg/exercise"
	"github.com/entrhq/orthoforge/pkg/logging"
	"github.com/entrhq/orthoforge/pkg/orchestrator"
	"github.com/entrhq/orthoforge/pkg/timing"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	APIKey      string
	BaseURL     string
	Model       string
	Headless    bool
	ShowVersion bool

	headlessSet bool
}

func main() {
	// Secrets usually live in .env next to the binary.
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	cli := parseFlags()
	if cli.ShowVersion {
		fmt.Printf("orthoforge v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cli); err != nil {
		cancel()
		log.Printf("orthoforge failed: %v", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cli.APIKey, "api-key", "", "Language model API key (overrides OPENAI_API_KEY)")
	flag.StringVar(&cli.BaseURL, "base-url", "", "OpenAI-compatible API base URL (overrides OPENAI_BASE_URL)")
	flag.StringVar(&cli.Model, "model", "", "Language model to use (overrides OPENAI_MODEL)")
	flag.BoolVar(&cli.Headless, "headless", true, "Run browsers without a window")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "orthoforge - automated grammar exercise sessions\n\n")
		fmt.Fprintf(os.Stderr, "Usage: orthoforge [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Run every enabled account with the defaults\n")
		fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY=sk-... orthoforge\n\n")
		fmt.Fprintf(os.Stderr, "  # Watch the browsers while debugging selectors\n")
		fmt.Fprintf(os.Stderr, "  orthoforge -config orthoforge.yaml -headless=false\n\n")
		fmt.Fprintf(os.Stderr, "  # Use a local OpenAI-compatible server\n")
		fmt.Fprintf(os.Stderr, "  orthoforge -base-url http://localhost:11434/v1 -model qwen2.5 -api-key local\n\n")
	}

	flag.Parse()
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "headless" {
			cli.headlessSet = true
		}
	})
	return cli
}

// run wires every component and blocks until all accounts are done.
func run(ctx context.Context, cancel context.CancelFunc, cli *CLIConfig) error {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cli.headlessSet {
		cfg.Browser.Headless = cli.Headless
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var mirror io.Writer
	if cfg.Logging.Stderr {
		mirror = os.Stderr
	}
	logging.Configure(logging.ParseLevel(cfg.Logging.Level), mirror)
	logger := logging.MustLogger("orthoforge")
	defer logger.Close()
	logger.Infof("orthoforge v%s starting (run %s)", version, logging.GetRunID())

	provider, err := config.BuildProvider(config.ProviderFlags{
		Model:   cli.Model,
		BaseURL: cli.BaseURL,
		APIKey:  cli.APIKey,
	}, cfg.LLM, logging.MustLogger("llm"))
	if err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			return fmt.Errorf("%w (set OPENAI_API_KEY, -api-key or llm.api_key)", err)
		}
		return err
	}
	logger.Infof("using model %s at %s", provider.GetModel(), provider.GetBaseURL())

	store, err := accounts.NewFileStore(cfg.Paths.Accounts, cfg.Paths.ActiveAccounts)
	if err != nil {
		return fmt.Errorf("failed to open account store: %w", err)
	}
	times, err := timing.NewFileStore(cfg.Paths.SessionTimes, logging.MustLogger("timing"))
	if err != nil {
		return fmt.Errorf("failed to open session times: %w", err)
	}

	driver := browser.NewPlaywrightDriver(cfg.Browser.Install)
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warnf("failed to stop browser driver: %v", err)
		}
	}()

	registry, err := browser.NewRegistry(driver, cfg.Browser.ProfileRoot, cfg.Limits.MaxBrowsers, logging.MustLogger("browser"))
	if err != nil {
		return err
	}

	solverLog := logging.MustLogger("solver")
	solver, err := exercise.NewSolver(exercise.Options{
		LLM:       provider,
		Selectors: cfg.Selectors,
		Timing:    cfg.Timing,
		MaxSolves: cfg.Limits.MaxSolves,
		Log:       solverLog,
	})
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Config:   cfg,
		Registry: registry,
		Accounts: store,
		Times:    times,
		Solver:   solver,
		Popup:    exercise.NewPopupSolver(cfg.Selectors, cfg.Popup, cfg.Timing.ElementTimeout, logging.MustLogger("popup")),
		Log:      logging.MustLogger("orchestrator"),
	})
	if err != nil {
		return err
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Infof("received %s, shutting down", sig)
			orch.Shutdown()
			cancel()
		case <-ctx.Done():
		}
	}()

	return orch.Run(ctx)
}
