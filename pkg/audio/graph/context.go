// ABOUTME: Audio context owning the render lock and lifecycle state
// ABOUTME: Gates rendering on running/suspended/closed
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sendspin/mp3rec/pkg/audio"
	"go.uber.org/zap"
)

// DefaultSampleRate is used when Options.SampleRate is zero
const DefaultSampleRate = 44100

var (
	// ErrClosed is returned by operations on a closed context
	ErrClosed = errors.New("graph: context closed")

	// ErrSampleRateMismatch is returned when a stream runs at another rate
	ErrSampleRateMismatch = errors.New("graph: sample rate mismatch")
)

// Options configures a Context
type Options struct {
	SampleRate int
	Logger     *zap.Logger
}

// Context owns a graph of nodes and renders buffers through it
type Context struct {
	sampleRate  int
	logger      *zap.Logger
	destination *DestinationNode

	// held while rendering or changing state or topology
	sem   chan struct{}
	state atomic.Int32

	frames  uint64
	sources map[*SourceNode]func()
}

// NewContext creates a running context
func NewContext(opts Options) *Context {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Context{
		sampleRate: opts.SampleRate,
		logger:     opts.Logger,
		sem:        make(chan struct{}, 1),
		sources:    make(map[*SourceNode]func()),
	}
	c.state.Store(int32(audio.ContextRunning))
	c.destination = &DestinationNode{base: base{ctx: c}}
	return c
}

func (c *Context) lock(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Context) unlock() {
	<-c.sem
}

func (c *Context) with(fn func()) {
	c.sem <- struct{}{}
	defer c.unlock()
	fn()
}

// SampleRate returns the render rate
func (c *Context) SampleRate() int {
	return c.sampleRate
}

// State returns the current lifecycle state
func (c *Context) State() audio.ContextState {
	return audio.ContextState(c.state.Load())
}

// CurrentTime returns how much audio has been rendered
func (c *Context) CurrentTime() time.Duration {
	var frames uint64
	c.with(func() { frames = c.frames })
	return time.Duration(frames) * time.Second / time.Duration(c.sampleRate)
}

// Destination returns the terminal node
func (c *Context) Destination() *DestinationNode {
	return c.destination
}

func (c *Context) setState(ctx context.Context, op string, to audio.ContextState) error {
	if err := c.lock(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer c.unlock()

	if c.State() == audio.ContextClosed {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	c.state.Store(int32(to))
	c.logger.Debug("audio context state", zap.Stringer("state", to))
	return nil
}

// Suspend stops rendering. It returns once no buffer is being rendered.
func (c *Context) Suspend(ctx context.Context) error {
	return c.setState(ctx, "suspend", audio.ContextSuspended)
}

// Resume restarts rendering
func (c *Context) Resume(ctx context.Context) error {
	return c.setState(ctx, "resume", audio.ContextRunning)
}

// Close stops rendering for good and detaches all streams
func (c *Context) Close(ctx context.Context) error {
	if err := c.lock(ctx); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if c.State() == audio.ContextClosed {
		c.unlock()
		return fmt.Errorf("close: %w", ErrClosed)
	}
	c.state.Store(int32(audio.ContextClosed))
	sources := c.sources
	c.sources = make(map[*SourceNode]func())
	c.unlock()

	// streams may be waiting on the render lock, so detach outside it
	for _, unsubscribe := range sources {
		unsubscribe()
	}
	c.logger.Debug("audio context closed")
	return nil
}

// CreateMediaStreamSource wraps a stream in a source node
func (c *Context) CreateMediaStreamSource(stream Stream) (*SourceNode, error) {
	if c.State() == audio.ContextClosed {
		return nil, ErrClosed
	}
	if stream.SampleRate() != c.sampleRate {
		return nil, fmt.Errorf("%w: stream %dHz, context %dHz", ErrSampleRateMismatch, stream.SampleRate(), c.sampleRate)
	}

	n := &SourceNode{base: base{ctx: c}, stream: stream}
	unsubscribe := stream.Subscribe(func(buf audio.Buffer) {
		c.render(n, buf)
	})

	var closed bool
	c.with(func() {
		closed = c.State() == audio.ContextClosed
		if !closed {
			c.sources[n] = unsubscribe
		}
	})
	if closed {
		unsubscribe()
		return nil, ErrClosed
	}
	return n, nil
}

// CreateGain creates a unity gain node
func (c *Context) CreateGain() *GainNode {
	return &GainNode{base: base{ctx: c}, gain: 1}
}

// CreateScriptProcessor creates a processor delivering bufferSize frames per
// callback. A bufferSize of zero selects DefaultBufferSize.
func (c *Context) CreateScriptProcessor(bufferSize, inputChannels, outputChannels int) (*ScriptProcessorNode, error) {
	if bufferSize == 0 {
		bufferSize = DefaultBufferSize
	}
	if !validBufferSize(bufferSize) {
		return nil, fmt.Errorf("invalid buffer size %d", bufferSize)
	}
	if inputChannels < 1 || inputChannels > MaxChannels {
		return nil, fmt.Errorf("invalid input channel count %d", inputChannels)
	}
	if outputChannels < 1 || outputChannels > MaxChannels {
		return nil, fmt.Errorf("invalid output channel count %d", outputChannels)
	}

	return &ScriptProcessorNode{
		base:           base{ctx: c},
		bufferSize:     bufferSize,
		inputChannels:  inputChannels,
		outputChannels: outputChannels,
		pending:        make([][]float32, inputChannels),
	}, nil
}

// release detaches one source from its stream
func (c *Context) release(n *SourceNode) {
	var unsubscribe func()
	c.with(func() {
		unsubscribe = c.sources[n]
		delete(c.sources, n)
	})
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *Context) render(src *SourceNode, buf audio.Buffer) {
	c.sem <- struct{}{}
	defer c.unlock()

	if c.State() != audio.ContextRunning {
		return
	}
	c.frames += uint64(buf.Length())
	src.push(buf)
}
