package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/config"
	"github.com/marmos91/dittostorage/pkg/server"
)

const usage = `DittoStorage - local storage provider for D-Bus clients

Usage:
  dittostorage [start] [flags]   Run the service (default)
  dittostorage init [flags]      Write a default configuration file

Flags:
`

func main() {
	args := os.Args[1:]
	command := "start"
	if len(args) > 0 && (args[0] == "start" || args[0] == "init") {
		command, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("dittostorage", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittostorage/config.yaml)")
	logLevel := fs.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	force := fs.Bool("force", false, "Overwrite an existing config file (init only)")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	switch command {
	case "init":
		if err := runInit(*configPath, *force); err != nil {
			log.Fatalf("Failed to initialize config: %v", err)
		}
	default:
		if err := runStart(*configPath, *logLevel); err != nil {
			logger.Error("%v", err)
			os.Exit(1)
		}
	}
}

func runInit(configPath string, force bool) error {
	if configPath == "" {
		path, err := config.InitConfig(force)
		if err != nil {
			return err
		}
		configPath = path
	} else if err := config.InitConfigToPath(configPath, force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", configPath)
	return nil
}

func runStart(configPath, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return err
	}

	// A -log-level flag pins the level; otherwise edits to the file apply live.
	if logLevel == "" {
		if err := config.Watch(configPath, func(c *config.Config) { logger.SetLevel(c.Logging.Level) }); err != nil {
			logger.Debug("Config reload disabled: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("DittoStorage - local storage provider")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	tombstones, err := config.CreateTombstoneStore(ctx, &cfg.Tombstones)
	if err != nil {
		return fmt.Errorf("failed to create tombstone store: %w", err)
	}
	defer func() {
		if err := tombstones.Close(); err != nil {
			logger.Error("Failed to close tombstone store: %v", err)
		}
	}()

	pool := config.CreateWorkerPool(&cfg.Server)
	defer pool.Close()

	prov, err := config.CreateProvider(&cfg.Storage, pool, tombstones)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	broker, err := config.CreateBroker(&cfg.Credentials)
	if err != nil {
		return fmt.Errorf("failed to create credential broker: %w", err)
	}

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	srv := server.New(cfg.Server.ShutdownTimeout)
	for _, a := range config.CreateAdapters(cfg, prov, broker, metricsResult.Requests) {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}

	logger.Info("Serving %d root(s) as %s on the %s bus", len(cfg.Storage.Roots), cfg.Bus.Name, cfg.Bus.Type)
	if cfg.Server.InactivityTimeout > 0 {
		logger.Info("Exiting after %v of inactivity", cfg.Server.InactivityTimeout)
	}

	err = srv.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("Shutdown signal received, service stopped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("Service stopped")
	return nil
}
