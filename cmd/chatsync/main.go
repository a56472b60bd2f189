package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ChatSync/internal/config"
	"ChatSync/internal/engine"
	"ChatSync/internal/gateway"
	"ChatSync/internal/repl"
	"ChatSync/internal/store"
	"ChatSync/internal/telemetry"
)

func main() {
	cfg := config.Default()
	var configPath string

	flag.StringVar(&configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Conversation service base URL")
	flag.StringVar(&cfg.APIToken, "token", cfg.APIToken, "Bearer token for the conversation service")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the local chat database")
	flag.StringVar(&cfg.Model, "model", cfg.Model, "Inference model specification (format: model:version)")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	flag.Parse()

	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid environment: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	logger, err := telemetry.InitLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open chat database: %w", err)
	}
	defer st.Close()

	gw := gateway.NewClient(cfg, logger, tracer, meter)
	eng := engine.New(st, gw, repl.Notifier{}, logger, tracer, meter)

	return repl.New(eng, gw, logger).Run()
}
