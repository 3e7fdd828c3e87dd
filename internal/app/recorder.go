// ABOUTME: Recorder application orchestration
// ABOUTME: Wires capture, encoder worker, recorder, file output and playback
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Sendspin/mp3rec/internal/config"
	"github.com/Sendspin/mp3rec/internal/discovery"
	"github.com/Sendspin/mp3rec/internal/ui"
	"github.com/Sendspin/mp3rec/pkg/audio"
	"github.com/Sendspin/mp3rec/pkg/audio/capture"
	"github.com/Sendspin/mp3rec/pkg/audio/decode"
	"github.com/Sendspin/mp3rec/pkg/audio/encode"
	"github.com/Sendspin/mp3rec/pkg/audio/graph"
	"github.com/Sendspin/mp3rec/pkg/audio/output"
	"github.com/Sendspin/mp3rec/pkg/codec"
	"github.com/Sendspin/mp3rec/pkg/protocol"
	"github.com/Sendspin/mp3rec/pkg/recorder"
)

const (
	// DiscoveryTimeout bounds the mDNS search for a remote worker
	DiscoveryTimeout = 10 * time.Second

	statusInterval = 200 * time.Millisecond
	takeBuffer     = 8
)

// Config holds recorder application configuration
type Config struct {
	Settings  *config.Config
	OutputDir string
	Logger    *zap.Logger

	// OnStatus receives dashboard updates. Optional.
	OnStatus func(ui.StatusMsg)

	// Loader overrides the configured codec location for local workers
	Loader codec.Loader

	// Output is used for playback; defaults to the system device
	Output output.Output
}

// Take is one finished recording
type Take struct {
	Path     string
	Data     []byte
	Info     decode.Info
	Timecode time.Time
}

// source is a capture stream the app can start and stop
type source interface {
	graph.Stream
	start(ctx context.Context) error
	stop() error
}

type toneSource struct{ *capture.ToneStream }

func (t toneSource) start(ctx context.Context) error { return t.Start(ctx) }
func (t toneSource) stop() error                     { return t.Stop() }

type micSource struct{ *capture.MicStream }

func (m micSource) start(context.Context) error { return m.Start() }
func (m micSource) stop() error                 { return m.Stop() }

// Recorder is the running recorder application
type Recorder struct {
	config     Config
	settings   *config.Config
	logger     *zap.Logger
	source     source
	rec        *recorder.Recorder
	workerDesc string
	unsubMeter func()

	takes chan Take

	mu        sync.Mutex
	count     int
	last      *Take
	segment   time.Time
	elapsed   time.Duration
	recording bool

	frames atomic.Int64
	peak   atomic.Uint32

	cancel context.CancelFunc
	done   chan struct{}
}

// New starts the capture source, connects the worker and builds the recorder
func New(ctx context.Context, cfg Config) (*Recorder, error) {
	if cfg.Settings == nil {
		cfg.Settings = config.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	a := &Recorder{
		config:   cfg,
		settings: cfg.Settings,
		logger:   cfg.Logger,
		takes:    make(chan Take, takeBuffer),
		done:     make(chan struct{}),
	}

	a.source = a.newSource()
	a.unsubMeter = a.source.Subscribe(a.meter)
	// capture outlives the setup context; Close stops it
	if err := a.source.start(context.WithoutCancel(ctx)); err != nil {
		a.unsubMeter()
		return nil, fmt.Errorf("failed to start %s source: %w", a.settings.Recorder.Source, err)
	}

	worker, desc, err := a.newWorker(ctx)
	if err != nil {
		a.unsubMeter()
		_ = a.source.stop()
		return nil, err
	}
	a.workerDesc = desc

	rec, err := recorder.New(ctx, a.source, recorder.Options{
		Worker:     worker,
		BufferSize: a.settings.Recorder.BufferSize,
		Logger:     a.logger,
	})
	if err != nil {
		_ = worker.Terminate()
		a.unsubMeter()
		_ = a.source.stop()
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}
	a.rec = rec
	a.listen()

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.statusLoop(runCtx)

	a.logger.Info("recorder ready",
		zap.String("source", a.settings.Recorder.Source),
		zap.Int("sample_rate", a.source.SampleRate()),
		zap.String("worker", desc))
	return a, nil
}

func (a *Recorder) newSource() source {
	rc := a.settings.Recorder
	if rc.Source == "mic" {
		return micSource{capture.NewMicStream(capture.MicOptions{
			SampleRate: rc.SampleRate,
			Channels:   rc.Channels,
			Logger:     a.logger,
		})}
	}
	return toneSource{capture.NewToneStream(capture.ToneOptions{
		SampleRate: rc.SampleRate,
		Channels:   rc.Channels,
		Frequency:  rc.ToneFrequency,
	})}
}

// newWorker returns the encoder worker and a description for display
func (a *Recorder) newWorker(ctx context.Context) (protocol.Worker, string, error) {
	wc := a.settings.Worker
	if wc.Mode != "remote" {
		loader := a.config.Loader
		if loader == nil {
			cc := a.settings.Codec
			loader = codec.NewCachingLoader(codec.NewWasmLoader(
				codec.Locator{URL: cc.URL, Origin: cc.Origin},
				codec.Config{MemoryPages: cc.MemoryPages, StackSize: cc.StackSize, Logger: a.logger},
			))
		}
		return encode.NewWorker(loader, encode.WithLogger(a.logger)), "local", nil
	}

	url := wc.Addr
	if url == "" {
		found, err := a.discover(ctx)
		if err != nil {
			return nil, "", err
		}
		url = found
	} else if !strings.Contains(url, "://") {
		url = "ws://" + url + protocol.DefaultPath
	}

	client, err := protocol.Dial(ctx, url, protocol.WithLogger(a.logger))
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to worker %s: %w", url, err)
	}
	return client, url, nil
}

func (a *Recorder) discover(ctx context.Context) (string, error) {
	mgr := discovery.NewManager(discovery.Config{Logger: a.logger})
	defer mgr.Stop()

	ctx, cancel := context.WithTimeout(ctx, DiscoveryTimeout)
	defer cancel()

	a.logger.Info("searching for encoder worker", zap.String("type", discovery.ServiceType))
	info, err := mgr.Find(ctx)
	if err != nil {
		return "", err
	}
	a.logger.Info("discovered encoder worker", zap.String("name", info.Name), zap.String("url", info.URL()))
	return info.URL(), nil
}

func (a *Recorder) listen() {
	a.rec.On(recorder.EventStart, func(recorder.Event) {
		a.mu.Lock()
		a.elapsed = 0
		a.segment = time.Now()
		a.recording = true
		a.mu.Unlock()
		a.frames.Store(0)
		a.status(ui.StatusMsg{State: recorder.StateRecording.String()})
	})
	a.rec.On(recorder.EventPause, func(recorder.Event) {
		a.mu.Lock()
		a.elapsed += time.Since(a.segment)
		a.recording = false
		a.mu.Unlock()
		a.status(ui.StatusMsg{State: recorder.StatePaused.String()})
	})
	a.rec.On(recorder.EventResume, func(recorder.Event) {
		a.mu.Lock()
		a.segment = time.Now()
		a.recording = true
		a.mu.Unlock()
		a.status(ui.StatusMsg{State: recorder.StateRecording.String()})
	})
	a.rec.On(recorder.EventDataAvailable, a.onData)
	a.rec.On(recorder.EventStop, func(recorder.Event) {
		a.mu.Lock()
		a.stopClock()
		a.mu.Unlock()
	})
	a.rec.On(recorder.EventError, func(e recorder.Event) {
		a.mu.Lock()
		a.stopClock()
		a.mu.Unlock()
		a.logger.Error("recording failed", zap.Error(e.Err))
		a.status(ui.StatusMsg{State: recorder.StateInactive.String(), Err: e.Err.Error()})
	})
}

// stopClock freezes elapsed time. mu is held.
func (a *Recorder) stopClock() {
	if a.recording {
		a.elapsed += time.Since(a.segment)
		a.recording = false
	}
}

func (a *Recorder) onData(e recorder.Event) {
	a.mu.Lock()
	a.count++
	n := a.count
	a.mu.Unlock()

	name := fmt.Sprintf("take-%03d-%s.mp3", n, e.Timecode.Format("20060102-150405"))
	take := Take{
		Path:     filepath.Join(a.config.OutputDir, name),
		Data:     e.Data,
		Timecode: e.Timecode,
	}

	if info, err := decode.Probe(e.Data); err != nil {
		a.logger.Warn("recording is not decodable", zap.Error(err))
	} else {
		take.Info = info
	}

	if err := os.WriteFile(take.Path, e.Data, 0o644); err != nil {
		a.logger.Error("failed to save recording", zap.String("path", take.Path), zap.Error(err))
		a.status(ui.StatusMsg{State: recorder.StateInactive.String(), Err: err.Error()})
		return
	}

	a.logger.Info("recording saved",
		zap.String("path", take.Path),
		zap.Int("bytes", len(e.Data)),
		zap.Duration("duration", take.Info.Duration))

	a.mu.Lock()
	a.last = &take
	a.mu.Unlock()

	select {
	case a.takes <- take:
	default:
		a.logger.Warn("take queue full, dropping notification", zap.String("path", take.Path))
	}
	a.status(ui.StatusMsg{State: recorder.StateInactive.String(), BlobBytes: len(e.Data), File: take.Path})
}

// meter tracks frames and peak level for the dashboard
func (a *Recorder) meter(buf audio.Buffer) {
	var peak float32
	for _, ch := range buf.Channels {
		for _, s := range ch {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
	}
	a.peak.Store(math.Float32bits(peak))

	a.mu.Lock()
	recording := a.recording
	a.mu.Unlock()
	if recording {
		a.frames.Add(int64(buf.Length()))
	}
}

func (a *Recorder) statusLoop(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.config.OnStatus == nil {
				continue
			}
			a.status(ui.StatusMsg{
				Elapsed: a.Elapsed(),
				Frames:  a.frames.Load(),
				Peak:    math.Float32frombits(a.peak.Load()),
			})
		}
	}
}

func (a *Recorder) status(msg ui.StatusMsg) {
	if a.config.OnStatus != nil {
		a.config.OnStatus(msg)
	}
}

// Info describes the session for the dashboard
func (a *Recorder) Info() ui.SessionInfo {
	return ui.SessionInfo{
		Source:     a.settings.Recorder.Source,
		SampleRate: a.source.SampleRate(),
		Channels:   a.source.Channels(),
		Worker:     a.workerDesc,
		Output:     a.config.OutputDir,
	}
}

// State returns the recorder state
func (a *Recorder) State() recorder.State {
	return a.rec.State()
}

// Elapsed returns recorded time excluding pauses
func (a *Recorder) Elapsed() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recording {
		return a.elapsed + time.Since(a.segment)
	}
	return a.elapsed
}

// Takes delivers finished recordings
func (a *Recorder) Takes() <-chan Take {
	return a.takes
}

// Start begins a recording
func (a *Recorder) Start(ctx context.Context) error {
	return a.rec.Start(ctx)
}

// Pause pauses the current recording
func (a *Recorder) Pause(ctx context.Context) error {
	return a.rec.Pause(ctx)
}

// Resume resumes a paused recording
func (a *Recorder) Resume(ctx context.Context) error {
	return a.rec.Resume(ctx)
}

// Stop finishes the current recording
func (a *Recorder) Stop(ctx context.Context) error {
	return a.rec.Stop(ctx)
}

// Play plays the most recent take
func (a *Recorder) Play(ctx context.Context) error {
	a.mu.Lock()
	take := a.last
	if a.config.Output == nil {
		a.config.Output = output.NewOto(a.logger)
	}
	out := a.config.Output
	a.mu.Unlock()

	if take == nil {
		return errors.New("nothing recorded yet")
	}
	a.logger.Info("playing recording", zap.String("path", take.Path))
	return output.PlayMP3(ctx, out, take.Data)
}

// Handle performs a dashboard action. ActionQuit is left to the caller.
func (a *Recorder) Handle(ctx context.Context, action ui.Action) error {
	var err error
	switch action {
	case ui.ActionStart:
		err = a.Start(ctx)
	case ui.ActionPause:
		err = a.Pause(ctx)
	case ui.ActionResume:
		err = a.Resume(ctx)
	case ui.ActionStop:
		err = a.Stop(ctx)
	case ui.ActionPlay:
		go func() {
			if err := a.Play(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("playback failed", zap.Error(err))
				a.status(ui.StatusMsg{Err: err.Error()})
			}
		}()
	}
	if err != nil {
		a.logger.Warn("action rejected", zap.Stringer("action", action), zap.Error(err))
		a.status(ui.StatusMsg{Err: err.Error()})
	}
	return err
}

// Close stops capture, the recorder and playback
func (a *Recorder) Close(ctx context.Context) error {
	a.cancel()
	<-a.done

	err := a.rec.Close(ctx)
	a.unsubMeter()
	if serr := a.source.stop(); serr != nil {
		a.logger.Warn("failed to stop source", zap.Error(serr))
	}

	a.mu.Lock()
	out := a.config.Output
	a.mu.Unlock()
	if out != nil {
		if cerr := out.Close(); cerr != nil {
			a.logger.Warn("failed to close output", zap.Error(cerr))
		}
	}
	return err
}
