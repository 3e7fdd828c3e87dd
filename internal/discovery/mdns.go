// ABOUTME: mDNS service discovery for encoder workers
// ABOUTME: Workers advertise themselves and recorders browse for them
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServiceType is the DNS-SD type encoder workers announce
const ServiceType = "_mp3rec-worker._tcp"

// DefaultPath is the WebSocket path advertised in the TXT record
const DefaultPath = "/encoder"

// ErrNotFound is returned when no worker answers before the deadline
var ErrNotFound = errors.New("no encoder worker found")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string
	Logger      *zap.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	workers chan *WorkerInfo
}

// WorkerInfo describes a discovered worker
type WorkerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// Addr returns host:port
func (w *WorkerInfo) Addr() string {
	return net.JoinHostPort(w.Host, strconv.Itoa(w.Port))
}

// URL returns the worker's WebSocket endpoint
func (w *WorkerInfo) URL() string {
	return "ws://" + w.Addr() + w.Path
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		workers: make(chan *WorkerInfo, 10),
	}
}

// Advertise announces this worker until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Info("advertising mDNS service",
		zap.String("name", m.config.ServiceName),
		zap.Int("port", m.config.Port),
		zap.String("type", ServiceType))

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for workers in the background
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				info := entryInfo(entry)
				if info == nil {
					continue
				}
				m.logger.Debug("discovered worker",
					zap.String("name", info.Name),
					zap.String("addr", info.Addr()))

				select {
				case m.workers <- info:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Domain = "local"
		params.Timeout = 3 * time.Second
		params.Entries = entries
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			m.logger.Warn("mDNS query failed", zap.Error(err))
		}
		close(entries)
		<-done
	}
}

// Workers returns the channel of discovered workers
func (m *Manager) Workers() <-chan *WorkerInfo {
	return m.workers
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// Find browses until the first worker answers or ctx ends
func (m *Manager) Find(ctx context.Context) (*WorkerInfo, error) {
	if err := m.Browse(); err != nil {
		return nil, err
	}
	select {
	case info := <-m.workers:
		return info, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNotFound, ctx.Err())
	case <-m.ctx.Done():
		return nil, ErrNotFound
	}
}

func entryInfo(entry *mdns.ServiceEntry) *WorkerInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	info := &WorkerInfo{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: DefaultPath,
	}
	for _, field := range entry.InfoFields {
		if len(field) > 5 && field[:5] == "path=" {
			info.Path = field[5:]
		}
	}
	return info
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	ips := []net.IP{}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
