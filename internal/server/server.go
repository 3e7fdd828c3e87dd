// ABOUTME: Encoder worker daemon
// ABOUTME: Serves remote recorders over WebSocket, one encoder per connection
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Sendspin/mp3rec/internal/discovery"
	"github.com/Sendspin/mp3rec/internal/metrics"
	"github.com/Sendspin/mp3rec/pkg/audio/encode"
	"github.com/Sendspin/mp3rec/pkg/codec"
	"github.com/Sendspin/mp3rec/pkg/protocol"
)

const (
	writeDeadline   = 10 * time.Second
	pingInterval    = 30 * time.Second
	shutdownTimeout = 5 * time.Second

	// Largest frame is 16384 float32 samples plus the type byte
	maxMessageSize = 1 << 20

	sendBuffer = 16
)

// Config holds server configuration
type Config struct {
	Port        int
	Name        string
	EnableMDNS  bool
	MetricsPath string
	Loader      codec.Loader
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Server accepts recorder connections and encodes their audio
type Server struct {
	config   Config
	logger   *zap.Logger
	upgrader websocket.Upgrader

	httpServer  *http.Server
	mdnsManager *discovery.Manager

	conns      map[string]*connection
	mu         sync.Mutex
	isShutdown bool
	wg         sync.WaitGroup
}

// connection is one recorder client with its own encoder worker
type connection struct {
	id     string
	remote string
	conn   *websocket.Conn
	worker *encode.Worker
	send   chan protocol.Message
	done   chan struct{}
}

// New creates a server
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.New()
	}

	return &Server{
		config: config,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// Recorders are native clients on a trusted network
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*connection),
	}
}

// Handler returns the HTTP routes: the WebSocket endpoint, metrics and health
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(protocol.DefaultPath, s.handleWebSocket)
	if s.config.MetricsPath != "" {
		mux.Handle(s.config.MetricsPath, s.config.Metrics.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Run listens on the configured port until ctx ends
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then drains clients
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	port := s.config.Port
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	s.logger.Info("encoder worker listening",
		zap.String("name", s.config.Name),
		zap.String("addr", ln.Addr().String()),
		zap.String("path", protocol.DefaultPath))

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        port,
			Path:        protocol.DefaultPath,
			Logger:      s.logger,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.logger.Warn("failed to start mDNS advertisement", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})
	return g.Wait()
}

func (s *Server) shutdown() error {
	s.logger.Info("encoder worker shutting down")

	s.mu.Lock()
	s.isShutdown = true
	conns := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)

	// Hijacked connections are not tracked by http.Server
	for _, c := range conns {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
	}
	s.wg.Wait()

	s.logger.Info("encoder worker stopped")
	if err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	return nil
}

// Connections returns the number of connected recorders
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closing := s.isShutdown
	if !closing {
		s.wg.Add(1)
	}
	s.mu.Unlock()
	if closing {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &connection{
		id:     uuid.New().String(),
		remote: r.RemoteAddr,
		conn:   conn,
		send:   make(chan protocol.Message, sendBuffer),
		done:   make(chan struct{}),
	}
	s.serve(c)
}

func (s *Server) serve(c *connection) {
	logger := s.logger.With(zap.String("conn", c.id), zap.String("remote", c.remote))
	logger.Info("recorder connected")

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	s.config.Metrics.ConnectionOpened()

	c.worker = encode.NewWorker(s.config.Loader,
		encode.WithLogger(logger),
		encode.WithMetrics(s.config.Metrics))
	c.worker.SetHandler(func(msg protocol.Message) {
		select {
		case c.send <- msg:
		case <-c.done:
		}
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(c, logger)
	}()

	s.readLoop(c, logger)

	close(c.done)
	if err := c.worker.Terminate(); err != nil {
		logger.Warn("failed to terminate worker", zap.Error(err))
	}
	<-writerDone
	_ = c.conn.Close()

	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.config.Metrics.ConnectionClosed()
	logger.Info("recorder disconnected")
}

func (s *Server) readLoop(c *connection, logger *zap.Logger) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("WebSocket read failed", zap.Error(err))
			}
			return
		}

		msg, err := protocol.DecodeWire(messageType, data)
		if err != nil {
			logger.Warn("dropping malformed message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case protocol.TypeStartRecording, protocol.TypeDataAvailable, protocol.TypeStopRecording:
		default:
			logger.Warn("dropping message sent in the wrong direction", zap.String("type", string(msg.Type)))
			continue
		}

		if err := c.worker.PostMessage(msg); err != nil {
			logger.Warn("failed to queue message", zap.Error(err))
			return
		}
	}
}

func (s *Server) writeLoop(c *connection, logger *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			messageType, data, err := protocol.EncodeWire(msg)
			if err != nil {
				logger.Error("failed to encode reply", zap.Error(err))
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(messageType, data); err != nil {
				logger.Warn("WebSocket write failed", zap.Error(err))
				_ = c.conn.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
