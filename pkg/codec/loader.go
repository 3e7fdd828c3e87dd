// ABOUTME: Codec module location, fetching and loading
// ABOUTME: Resolves a locator against an origin and picks an HTTP or file fetcher
package codec

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultFetchTimeout bounds a single HTTP fetch
const DefaultFetchTimeout = 30 * time.Second

// Locator says where the codec module lives. URL may be relative to Origin.
type Locator struct {
	URL    string
	Origin string
}

// Resolve returns the absolute location of the module.
// A result without a scheme is treated as a local path.
func (l Locator) Resolve() (*url.URL, error) {
	if l.URL == "" {
		return nil, fmt.Errorf("codec locator has no url")
	}

	ref, err := url.Parse(l.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid codec url %q: %w", l.URL, err)
	}
	if l.Origin == "" {
		return ref, nil
	}

	base, err := url.Parse(l.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid codec origin %q: %w", l.Origin, err)
	}
	return base.ResolveReference(ref), nil
}

// Fetcher retrieves module bytes
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) ([]byte, error)
}

// HTTPFetcher fetches modules over HTTP(S)
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher creates a fetcher with a bounded timeout
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: resty.New().SetTimeout(DefaultFetchTimeout),
	}
}

// Fetch downloads the module
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", u, resp.Status())
	}
	return resp.Body(), nil
}

// FileFetcher reads modules from the local filesystem
type FileFetcher struct{}

// Fetch reads the module
func (FileFetcher) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := u.Path
	if u.Opaque != "" {
		path = u.Opaque
	}
	data, err := os.ReadFile(filepath.FromSlash(path))
	if err != nil {
		return nil, fmt.Errorf("read codec: %w", err)
	}
	return data, nil
}

// FetcherFor picks a fetcher by scheme
func FetcherFor(u *url.URL) (Fetcher, error) {
	switch u.Scheme {
	case "http", "https":
		return NewHTTPFetcher(), nil
	case "", "file":
		return FileFetcher{}, nil
	default:
		return nil, fmt.Errorf("unsupported codec url scheme %q", u.Scheme)
	}
}

// WasmLoader fetches and instantiates the codec on every Load
type WasmLoader struct {
	locator Locator
	config  Config
	fetcher Fetcher
}

// LoaderOption configures a WasmLoader
type LoaderOption func(*WasmLoader)

// WithFetcher overrides scheme-based fetcher selection
func WithFetcher(f Fetcher) LoaderOption {
	return func(l *WasmLoader) {
		l.fetcher = f
	}
}

// NewWasmLoader creates a loader
func NewWasmLoader(locator Locator, config Config, opts ...LoaderOption) *WasmLoader {
	l := &WasmLoader{locator: locator, config: config}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves, fetches and instantiates the module
func (l *WasmLoader) Load(ctx context.Context) (Codec, error) {
	start := time.Now()
	u, wasm, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return l.instantiate(ctx, u, wasm, start)
}

func (l *WasmLoader) fetch(ctx context.Context) (*url.URL, []byte, error) {
	u, err := l.locator.Resolve()
	if err != nil {
		return nil, nil, err
	}

	fetcher := l.fetcher
	if fetcher == nil {
		if fetcher, err = FetcherFor(u); err != nil {
			return nil, nil, err
		}
	}

	wasm, err := fetcher.Fetch(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return u, wasm, nil
}

func (l *WasmLoader) instantiate(ctx context.Context, u *url.URL, wasm []byte, start time.Time) (Codec, error) {
	engine, err := NewEngine(ctx, wasm, l.config)
	if err != nil {
		return nil, err
	}

	if l.config.Logger != nil {
		l.config.Logger.Info("codec loaded",
			zap.String("url", u.String()),
			zap.Int("bytes", len(wasm)),
			zap.Duration("elapsed", time.Since(start)))
	}
	return engine, nil
}

// CachingLoader fetches the module bytes once and instantiates a fresh
// Engine per Load. Concurrent first loads share one fetch; a failed fetch
// is retried by the next Load.
type CachingLoader struct {
	loader *WasmLoader
	group  singleflight.Group

	mu   sync.Mutex
	u    *url.URL
	wasm []byte
}

// NewCachingLoader wraps a WasmLoader
func NewCachingLoader(loader *WasmLoader) *CachingLoader {
	return &CachingLoader{loader: loader}
}

// Load instantiates the cached module, fetching it first if needed
func (c *CachingLoader) Load(ctx context.Context) (Codec, error) {
	start := time.Now()

	c.mu.Lock()
	u, wasm := c.u, c.wasm
	c.mu.Unlock()

	if wasm == nil {
		_, err, _ := c.group.Do("fetch", func() (interface{}, error) {
			u, wasm, err := c.loader.fetch(ctx)
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			c.u, c.wasm = u, wasm
			c.mu.Unlock()
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		u, wasm = c.u, c.wasm
		c.mu.Unlock()
	}

	return c.loader.instantiate(ctx, u, wasm, start)
}
