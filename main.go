// ABOUTME: Entry point for the mp3rec recorder
// ABOUTME: Parses CLI flags and runs the dashboard or a timed recording
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/Sendspin/mp3rec/internal/app"
	"github.com/Sendspin/mp3rec/internal/config"
	"github.com/Sendspin/mp3rec/internal/logging"
	"github.com/Sendspin/mp3rec/internal/ui"
	"github.com/Sendspin/mp3rec/internal/version"
	"github.com/Sendspin/mp3rec/pkg/recorder"
)

var (
	configFile  = flag.String("config", "", "Config file (yaml, json or toml)")
	source      = flag.String("source", "", "Capture source: tone or mic")
	sampleRate  = flag.Int("sample-rate", 0, "Capture sample rate")
	workerAddr  = flag.String("worker", "", "Remote encoder worker host:port or ws:// URL")
	discover    = flag.Bool("discover", false, "Find a remote encoder worker via mDNS")
	codecURL    = flag.String("codec", "", "Codec module path or URL")
	outDir      = flag.String("out", ".", "Directory for recordings")
	duration    = flag.Duration("duration", 5*time.Second, "Recording length without the TUI")
	play        = flag.Bool("play", false, "Play the recording after it finishes (no TUI)")
	logFile     = flag.String("log-file", "", "Log file path (default from config)")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI and record once for -duration")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}

	// explicit flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			cfg.Recorder.Source = *source
		case "sample-rate":
			cfg.Recorder.SampleRate = *sampleRate
		case "worker":
			cfg.Worker.Mode = "remote"
			cfg.Worker.Addr = *workerAddr
		case "discover":
			if *discover {
				cfg.Worker.Mode = "remote"
				cfg.Worker.Discover = true
			}
		case "codec":
			cfg.Codec.URL = *codecURL
		case "log-file":
			cfg.Log.File = *logFile
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	return cfg, cfg.Validate()
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	useTUI := !*noTUI

	// TUI mode logs only to file; otherwise to both console and file
	logger, err := logging.New(logging.Options{
		Level:     cfg.Log.Level,
		File:      cfg.Log.File,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Console:   !useTUI,
	})
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if useTUI {
		err = runTUI(ctx, cfg, logger)
	} else {
		err = runOnce(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("recorder failed", zap.Error(err))
		_ = logger.Sync()
		fmt.Fprintf(os.Stderr, "mp3rec: %v\n", err)
		os.Exit(1)
	}
}

// runOnce records a single take of -duration, or until interrupted
func runOnce(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting recorder", zap.String("version", version.Version))

	rec, err := app.New(ctx, app.Config{Settings: cfg, OutputDir: *outDir, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := rec.Close(context.Background()); err != nil {
			logger.Warn("failed to close recorder", zap.Error(err))
		}
	}()

	if err := rec.Start(ctx); err != nil {
		return err
	}

	select {
	case <-time.After(*duration):
	case <-ctx.Done():
		logger.Info("interrupted, finishing recording")
	}

	// the start acknowledgement may still be in flight
	deadline := time.Now().Add(5 * time.Second)
	for rec.State() == recorder.StateInactive && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := rec.Stop(context.Background()); err != nil {
		return err
	}

	var take app.Take
	select {
	case take = <-rec.Takes():
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out waiting for the encoder")
	}
	fmt.Printf("%s (%d bytes, %s)\n", take.Path, len(take.Data), take.Info.Duration.Round(time.Millisecond))

	if *play {
		return rec.Play(context.Background())
	}
	return nil
}

// runTUI drives the recorder from the dashboard until quit
func runTUI(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// status updates start before the program exists
	var prog atomic.Pointer[tea.Program]
	updateTUI := func(msg ui.StatusMsg) {
		if p := prog.Load(); p != nil {
			p.Send(msg)
		}
	}

	rec, err := app.New(ctx, app.Config{
		Settings:  cfg,
		OutputDir: *outDir,
		Logger:    logger,
		OnStatus:  updateTUI,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := rec.Close(context.Background()); err != nil {
			logger.Warn("failed to close recorder", zap.Error(err))
		}
	}()

	ctrl := ui.NewControls()
	p := ui.Run(ctrl, rec.Info())
	prog.Store(p)

	tuiDone := make(chan error, 1)
	go func() {
		_, err := p.Run()
		tuiDone <- err
	}()

	for {
		select {
		case action := <-ctrl.Actions:
			if action == ui.ActionQuit {
				return <-tuiDone
			}
			_ = rec.Handle(ctx, action)
		case err := <-tuiDone:
			return err
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			p.Quit()
			return <-tuiDone
		}
	}
}
