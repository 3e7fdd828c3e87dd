// ABOUTME: Graph node implementations
// ABOUTME: Source, gain, script processor and destination
package graph

import (
	"errors"
	"time"

	"github.com/Sendspin/mp3rec/pkg/audio"
)

const (
	// DefaultBufferSize is the processor block size when none is given
	DefaultBufferSize = 4096

	// MaxChannels bounds processor channel counts
	MaxChannels = 32

	minBufferSize = 256
	maxBufferSize = 16384
)

var (
	// ErrCrossContext is returned when connecting nodes of different contexts
	ErrCrossContext = errors.New("graph: nodes belong to different contexts")

	// ErrNoOutput is returned when connecting from the destination
	ErrNoOutput = errors.New("graph: node has no output")
)

func validBufferSize(n int) bool {
	return n >= minBufferSize && n <= maxBufferSize && n&(n-1) == 0
}

// Node is a vertex in the graph
type Node interface {
	Context() *Context
	Connect(dst Node) error
	Disconnect()

	push(buf audio.Buffer)
}

type base struct {
	ctx     *Context
	outputs []Node
}

func (b *base) Context() *Context {
	return b.ctx
}

func (b *base) connect(dst Node) error {
	if dst.Context() != b.ctx {
		return ErrCrossContext
	}
	b.ctx.with(func() {
		for _, o := range b.outputs {
			if o == dst {
				return
			}
		}
		b.outputs = append(b.outputs, dst)
	})
	return nil
}

func (b *base) disconnect() {
	b.ctx.with(func() {
		b.outputs = nil
	})
}

// emit runs under the render lock
func (b *base) emit(buf audio.Buffer) {
	for _, o := range b.outputs {
		o.push(buf)
	}
}

// SourceNode feeds a stream into the graph
type SourceNode struct {
	base
	stream Stream
}

// Stream returns the wrapped stream
func (n *SourceNode) Stream() Stream {
	return n.stream
}

// Connect routes output to dst
func (n *SourceNode) Connect(dst Node) error {
	return n.connect(dst)
}

// Disconnect removes all outgoing connections
func (n *SourceNode) Disconnect() {
	n.disconnect()
}

// Release disconnects the node and stops listening to its stream. The node
// receives nothing afterwards.
func (n *SourceNode) Release() {
	n.disconnect()
	n.ctx.release(n)
}

func (n *SourceNode) push(buf audio.Buffer) {
	n.emit(buf)
}

// GainNode scales every sample
type GainNode struct {
	base
	gain float32
}

// Gain returns the current factor
func (n *GainNode) Gain() float32 {
	var g float32
	n.ctx.with(func() { g = n.gain })
	return g
}

// SetGain sets the factor
func (n *GainNode) SetGain(g float32) {
	n.ctx.with(func() { n.gain = g })
}

// Connect routes output to dst
func (n *GainNode) Connect(dst Node) error {
	return n.connect(dst)
}

// Disconnect removes all outgoing connections
func (n *GainNode) Disconnect() {
	n.disconnect()
}

func (n *GainNode) push(buf audio.Buffer) {
	if n.gain == 1 {
		n.emit(buf)
		return
	}

	out := audio.Buffer{SampleRate: buf.SampleRate, Channels: make([][]float32, len(buf.Channels))}
	for ch, samples := range buf.Channels {
		scaled := make([]float32, len(samples))
		for i, s := range samples {
			scaled[i] = s * n.gain
		}
		out.Channels[ch] = scaled
	}
	n.emit(out)
}

// ProcessEvent carries one block of input to the processor callback
type ProcessEvent struct {
	InputBuffer  audio.Buffer
	PlaybackTime time.Duration
}

// ScriptProcessorNode batches input into fixed blocks for a callback.
// It only processes while it has an outgoing connection.
type ScriptProcessorNode struct {
	base
	bufferSize     int
	inputChannels  int
	outputChannels int
	onAudioProcess func(ProcessEvent)
	pending        [][]float32
}

// BufferSize returns the block size in frames
func (n *ScriptProcessorNode) BufferSize() int {
	return n.bufferSize
}

// SetOnAudioProcess installs the block callback; nil removes it.
// The callback runs on the stream's goroutine under the render lock and
// must not call back into the graph.
func (n *ScriptProcessorNode) SetOnAudioProcess(fn func(ProcessEvent)) {
	n.ctx.with(func() {
		n.onAudioProcess = fn
		if fn == nil {
			n.reset()
		}
	})
}

// Connect routes output to dst
func (n *ScriptProcessorNode) Connect(dst Node) error {
	return n.connect(dst)
}

// Disconnect removes all outgoing connections and drops any partial block
func (n *ScriptProcessorNode) Disconnect() {
	n.ctx.with(func() {
		n.outputs = nil
		n.reset()
	})
}

func (n *ScriptProcessorNode) reset() {
	for ch := range n.pending {
		n.pending[ch] = nil
	}
}

// conform maps buf onto the processor's input channel count.
// Mono input is summed and clamped, wider input is wrapped.
func (n *ScriptProcessorNode) conform(buf audio.Buffer) [][]float32 {
	if n.inputChannels == 1 {
		return [][]float32{audio.Downmix(buf)}
	}
	out := make([][]float32, n.inputChannels)
	if buf.NumberOfChannels() == 0 {
		return out
	}
	for ch := range out {
		out[ch] = buf.Channels[ch%buf.NumberOfChannels()]
	}
	return out
}

func (n *ScriptProcessorNode) push(buf audio.Buffer) {
	if len(n.outputs) == 0 || n.onAudioProcess == nil {
		return
	}

	for ch, samples := range n.conform(buf) {
		n.pending[ch] = append(n.pending[ch], samples...)
	}

	for len(n.pending[0]) >= n.bufferSize {
		block := audio.Buffer{SampleRate: n.ctx.sampleRate, Channels: make([][]float32, n.inputChannels)}
		for ch := range n.pending {
			chunk := make([]float32, n.bufferSize)
			copy(chunk, n.pending[ch])
			block.Channels[ch] = chunk
			n.pending[ch] = n.pending[ch][n.bufferSize:]
		}

		playback := time.Duration(n.ctx.frames) * time.Second / time.Duration(n.ctx.sampleRate)
		n.onAudioProcess(ProcessEvent{InputBuffer: block, PlaybackTime: playback})

		silence := audio.Buffer{SampleRate: n.ctx.sampleRate, Channels: make([][]float32, n.outputChannels)}
		for ch := range silence.Channels {
			silence.Channels[ch] = make([]float32, n.bufferSize)
		}
		n.emit(silence)
	}
}

// DestinationNode terminates the graph and discards what it receives
type DestinationNode struct {
	base
}

// Connect always fails
func (n *DestinationNode) Connect(Node) error {
	return ErrNoOutput
}

// Disconnect does nothing
func (n *DestinationNode) Disconnect() {}

func (n *DestinationNode) push(audio.Buffer) {}
