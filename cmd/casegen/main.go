// Package main provides the casegen binary entry point.
// Casegen generates layered software test cases with LLM providers and
// exposes them over an HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	// Register LLM providers via init()
	_ "github.com/c360studio/casegen/llm/providers"

	"github.com/spf13/cobra"

	"github.com/c360studio/casegen/api"
	"github.com/c360studio/casegen/config"
	"github.com/c360studio/casegen/dedup"
	"github.com/c360studio/casegen/export"
	"github.com/c360studio/casegen/generate"
	"github.com/c360studio/casegen/llm"
	"github.com/c360studio/casegen/testcase"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "casegen"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "AI test case generator",
		Long: `Casegen generates structured software test cases from feature
descriptions using LLM providers (openai, ollama, gemini, groq).

Scenarios are extracted layer by layer (core, validation, negative,
boundary, state, security, destructive) according to the requested
coverage level, expanded into full test cases, and deduplicated.

Running casegen with no subcommand starts the HTTP API server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(generateCmd(&configPath))

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func generateCmd(configPath *string) *cobra.Command {
	var (
		featureName string
		description string
		coverage    string
		provider    string
		modelID     string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate test cases for one feature and write them as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			if featureName == "" || description == "" {
				return errors.New("--feature and --description are required")
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cfg.Logging)

			svc := newService(cfg, logger)
			cases, err := svc.Generate(cmd.Context(), generate.Request{
				FeatureName:        featureName,
				FeatureDescription: description,
				CoverageLevel:      coverage,
				Provider:           provider,
				ModelID:            modelID,
			})
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}

			out := os.Stdout
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				out = f
			}
			if err := export.WriteCSV(out, cases); err != nil {
				return fmt.Errorf("write CSV: %w", err)
			}

			logger.Info("Generation complete",
				"feature", featureName,
				"cases", len(cases))
			return nil
		},
	}

	cmd.Flags().StringVar(&featureName, "feature", "", "Feature name")
	cmd.Flags().StringVar(&description, "description", "", "Feature description")
	cmd.Flags().StringVar(&coverage, "coverage", "medium", "Coverage level (low, medium, high, comprehensive)")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (openai, ollama, gemini, groq)")
	cmd.Flags().StringVar(&modelID, "model", "", "Exact model id, overrides the provider default")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file path, - for stdout")

	return cmd
}

func runServer(configPath string) error {
	printBanner()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	svc := newService(cfg, logger)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(svc, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Casegen ready",
			"version", Version,
			"addr", cfg.Server.Addr,
			"default_provider", cfg.Providers.Default)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-signalCtx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping server", "error", err)
	}

	logger.Info("Casegen shutdown complete")
	return nil
}

// newService wires the generation stack: LLM client, dedup engine,
// pipeline, batch service.
func newService(cfg *config.Config, logger *slog.Logger) *generate.Service {
	client := llm.NewClient(cfg.LLMConfig(), llm.WithLogger(logger))

	dedupOpts := []dedup.Option{
		dedup.WithThreshold(cfg.Dedup.Threshold),
		dedup.WithLogger(logger),
	}
	if key := cfg.OpenAIKey(); key != "" {
		dedupOpts = append(dedupOpts, dedup.WithEmbedder(dedup.NewOpenAIEmbedder(key)))
	} else {
		logger.Info("No OpenAI key configured, semantic dedup falls back to lexical matching")
	}
	engine := dedup.NewEngine(dedupOpts...)

	pipeline := generate.NewPipeline(client, engine, generate.WithPipelineLogger(logger))
	return generate.NewService(pipeline, testcase.NewStore(), logger)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║             Casegen v" + Version + "                     ║")
	fmt.Println("║        AI Test Case Generator                 ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
}
