// Lugha is the multilingual conversational gateway.
//
// Configuration is read from a YAML or TOML file (--config) and overridden by
// LUGHA_* environment variables. Credentials are only ever read from the
// environment; an optional .env file (--env) is loaded first.
//
// Common environment variables:
//
//	LUGHA_DB_PATH                - SQLite database path (empty keeps history in memory)
//	LUGHA_WHATSAPP_ACCESS_TOKEN  - WhatsApp Cloud API token
//	LUGHA_WHATSAPP_APP_SECRET    - webhook signature secret
//	LUGHA_WHATSAPP_VERIFY_TOKEN  - webhook subscription token
//	LUGHA_MATRIX_ACCESS_TOKEN    - Matrix bot access token
//	LUGHA_INGRESS_TOKEN          - bearer token for POST /events
//	LUGHA_TRANSLATE_API_KEY      - translation service key
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/bdobrica/Lugha/common/version"
	"github.com/bdobrica/Lugha/internal/lugha/app"
	"github.com/bdobrica/Lugha/internal/lugha/config"
	"github.com/bdobrica/Lugha/internal/lugha/observability"
)

func main() {
	configPath := flag.StringP("config", "c", "", "config file (.yaml, .yml or .toml)")
	envFile := flag.StringP("env", "e", ".env", "env file loaded before reading configuration")
	logLevel := flag.StringP("log-level", "l", "", "override log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "override log format (text, json)")
	addr := flag.StringP("addr", "a", "", "override HTTP listen address")
	showVersion := flag.BoolP("version", "v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("Lugha " + version.Info())
		return
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: env file %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	observability.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Secrets()...)
	slog.Info("starting Lugha", "version", version.Version, "commit", version.GitCommit)

	lugha, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize Lugha", "err", err)
		os.Exit(1)
	}
	defer lugha.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := lugha.Run(ctx); err != nil {
		slog.Error("Lugha exited with error", "err", err)
		lugha.Stop()
		os.Exit(1)
	}
}
