// Logwarden - log audit and alert correlation backend
// Main entry point with CLI interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/logwarden/logwarden/internal/audit"
	"github.com/logwarden/logwarden/internal/config"
	"github.com/logwarden/logwarden/internal/engine"
	"github.com/logwarden/logwarden/internal/gateway"
	"github.com/logwarden/logwarden/internal/notify"
	"github.com/logwarden/logwarden/internal/storage"
	"github.com/logwarden/logwarden/internal/types"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

const configPath = "logwarden.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		cmdInit()
	case "run":
		cmdRun()
	case "status":
		cmdStatus()
	case "version":
		fmt.Printf("Logwarden %s (built %s)\n", Version, BuildTime)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Logwarden - log audit and alert correlation backend

Usage:
  logwarden <command> [options]

Commands:
  init       Initialize configuration and database
  run        Start the daemon (API server + correlation engine)
  status     Show daemon health and alert counts
  version    Print version information
  help       Show this help

Run 'logwarden run' to start. The API will be available at http://127.0.0.1:8080

Configuration: logwarden.yaml (created by 'logwarden init')`)
}

// cmdInit creates the default configuration and database.
func cmdInit() {
	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("logwarden.yaml already exists. Delete it to re-initialize.")
		return
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	store, err := storage.NewSQLite(cfg.Storage.DSN, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.SeedDefaultConfigs(); err != nil {
		fmt.Fprintf(os.Stderr, "Error seeding config defaults: %v\n", err)
		os.Exit(1)
	}
	created, err := store.EnsureDefaultAdmin()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating admin user: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Logwarden initialized successfully!")
	fmt.Printf("  Config: %s\n", configPath)
	fmt.Printf("  DB:     %s\n", cfg.Storage.DSN)
	if created {
		fmt.Println("\nDefault admin user created (admin / logwarden). Change the password.")
	}
	fmt.Println("Run 'logwarden run' to start the daemon.")
}

// cmdRun starts the daemon.
func cmdRun() {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Println("Run 'logwarden init' to create a default configuration.")
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().Str("version", Version).Msg("starting Logwarden")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	store, err := storage.NewSQLite(cfg.Storage.DSN, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	if err := store.SeedDefaultConfigs(); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed config defaults")
	}
	if created, err := store.EnsureDefaultAdmin(); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure admin user")
	} else if created {
		logger.Warn().Msg("default admin user created (admin / logwarden), change the password")
	}

	eng := engine.New(store, store, store, logger,
		engine.WithSweepInterval(cfg.Engine.SweepInterval))

	// Outbound channels.
	if cfg.Notify.Webhook.Enabled {
		wh := notify.NewWebhookNotifier(cfg.Notify.Webhook, logger)
		eng.OnAlert(func(a *types.Alert, created bool) { go wh.NotifyAlert(a, created) })
	}
	if cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.Telegram, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to initialize telegram notifier")
		} else {
			eng.OnAlert(func(a *types.Alert, created bool) { go tg.NotifyAlert(a, created) })
		}
	}

	// Pick up log level changes without a restart. Rule thresholds live in
	// the configs table and are re-read on every evaluation.
	watcher, err := config.NewWatcher(configPath, func(updated *config.Config) {
		if level, perr := zerolog.ParseLevel(updated.Logging.Level); perr == nil {
			zerolog.SetGlobalLevel(level)
		}
		logger.Info().Str("level", updated.Logging.Level).Msg("configuration reloaded")
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("config watching disabled")
	} else {
		go watcher.Start(ctx)
	}

	rec := audit.NewRecorder(store, logger)
	server := gateway.NewServer(*cfg, store, eng, rec, logger, Version)

	go eng.Start(ctx)

	logger.Info().
		Int("rules", eng.RuleCount()).
		Str("addr", cfg.Server.ListenAddr).
		Bool("webhook", cfg.Notify.Webhook.Enabled).
		Bool("telegram", cfg.Notify.Telegram.Enabled).
		Msg("Logwarden is running")

	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("http server error")
	}

	<-ctx.Done()
	logger.Info().Msg("Logwarden shut down")
}

// cmdStatus prints a quick health summary.
func cmdStatus() {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Println("Error: Could not load config. Is Logwarden initialized?")
		os.Exit(1)
	}

	store, err := storage.NewSQLite(cfg.Storage.DSN, zerolog.Nop())
	if err != nil {
		fmt.Println("Error: Could not connect to database.")
		os.Exit(1)
	}
	defer store.Close()

	logs, _ := store.LogCount()
	open, _ := store.OpenAlertCount()

	fmt.Println("Logwarden Status")
	fmt.Println("════════════════")
	fmt.Printf("  Storage:     %s (%s)\n", cfg.Storage.Driver, cfg.Storage.DSN)
	fmt.Printf("  Total Logs:  %d\n", logs)
	fmt.Printf("  Open Alerts: %d\n", open)
	fmt.Printf("  API:         %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Webhook:     %v\n", cfg.Notify.Webhook.Enabled)
	fmt.Printf("  Telegram:    %v\n", cfg.Notify.Telegram.Enabled)
}

// setupLogger configures zerolog based on config.
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Caller().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
