// Command futbot is the entry point for the futures trading client. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and starts the application in the configured mode.
//
// The encrypt-secret subcommand encrypts an API secret for at-rest storage:
//
//	futbot encrypt-secret -out secret.enc
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/quantfold/futbot/internal/app"
	"github.com/quantfold/futbot/internal/config"
	"github.com/quantfold/futbot/internal/crypto"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "encrypt-secret" {
		if err := encryptSecret(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-secret: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (repl, check)")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("futbot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)
	logger.Debug("active configuration", slog.Any("config", config.RedactedConfig(cfg)))

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("futbot stopped")
}

// encryptSecret reads the secret and password from stdin and writes the
// encrypted blob to the output path. Reading interactively keeps the plaintext
// out of shell history and process listings.
func encryptSecret(args []string) error {
	fs := flag.NewFlagSet("encrypt-secret", flag.ContinueOnError)
	out := fs.String("out", "secret.enc", "output path for the encrypted secret")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Fprint(os.Stderr, "api secret: ")
	secret, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading secret: %w", err)
	}
	fmt.Fprint(os.Stderr, "password: ")
	password, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	blob, err := crypto.EncryptSecret(strings.TrimSpace(secret), strings.TrimSpace(password))
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", *out, err)
	}
	fmt.Fprintf(os.Stderr, "encrypted secret written to %s\n", *out)
	return nil
}
