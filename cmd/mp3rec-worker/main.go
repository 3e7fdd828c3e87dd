// ABOUTME: Entry point for the mp3rec encoder worker daemon
// ABOUTME: Parses CLI flags and serves remote recorders until interrupted
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Sendspin/mp3rec/internal/config"
	"github.com/Sendspin/mp3rec/internal/logging"
	"github.com/Sendspin/mp3rec/internal/metrics"
	"github.com/Sendspin/mp3rec/internal/server"
	"github.com/Sendspin/mp3rec/internal/version"
	"github.com/Sendspin/mp3rec/pkg/codec"
)

var (
	configFile = flag.String("config", "", "Config file (yaml, json or toml)")
	port       = flag.Int("port", 0, "WebSocket server port (default from config)")
	name       = flag.String("name", "", "Worker friendly name (default: hostname-mp3rec-worker)")
	codecURL   = flag.String("codec", "", "Codec module path or URL")
	logFile    = flag.String("log-file", "mp3rec-worker.log", "Log file path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *codecURL != "" {
		cfg.Codec.URL = *codecURL
	}
	if *noMDNS {
		cfg.Server.EnableMDNS = false
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	cfg.Log.File = *logFile
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Log to both file and console
	logger, err := logging.New(logging.Options{
		Level:     cfg.Log.Level,
		File:      cfg.Log.File,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Console:   true,
	})
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	workerName := *name
	if workerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		workerName = fmt.Sprintf("%s-mp3rec-worker", hostname)
	}

	logger.Info("starting encoder worker",
		zap.String("name", workerName),
		zap.String("version", version.Version),
		zap.Int("port", cfg.Server.Port),
		zap.String("codec", cfg.Codec.URL))

	loader := codec.NewCachingLoader(codec.NewWasmLoader(
		codec.Locator{URL: cfg.Codec.URL, Origin: cfg.Codec.Origin},
		codec.Config{MemoryPages: cfg.Codec.MemoryPages, StackSize: cfg.Codec.StackSize, Logger: logger},
	))

	srv := server.New(server.Config{
		Port:        cfg.Server.Port,
		Name:        workerName,
		EnableMDNS:  cfg.Server.EnableMDNS,
		MetricsPath: cfg.Server.MetricsPath,
		Loader:      loader,
		Metrics:     metrics.New(),
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
