// ABOUTME: In-memory codec double for encoder tests
// ABOUTME: Honors the session header layout over a byte slice
package encode

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/Sendspin/mp3rec/pkg/codec"
)

const (
	fakeRef     = 1024
	fakePCM     = 2048
	fakeOutput  = 32768
	fakeMemSize = 65536
)

type fakeCodec struct {
	mem codec.SliceMemory

	initRef      uint32
	initErr      error
	encodeResult int32
	encodeErr    error
	flushResult  int32
	flushErr     error
	output       []byte

	sampleRates []int
	encoded     [][]float32
	freed       []uint32
	closed      bool
}

func newFakeCodec() *fakeCodec {
	return &fakeCodec{
		mem:     codec.NewSliceMemory(fakeMemSize),
		initRef: fakeRef,
		output:  []byte{0xff, 0xfb, 0x90, 0x64},
	}
}

func (f *fakeCodec) Init(_ context.Context, sampleRate int) (uint32, error) {
	f.sampleRates = append(f.sampleRates, sampleRate)
	if f.initErr != nil || f.initRef == 0 {
		return 0, f.initErr
	}
	f.mem.WriteUint32Le(f.initRef+codec.PCMInputOffset, fakePCM)
	return f.initRef, nil
}

func (f *fakeCodec) Encode(_ context.Context, ref uint32, length int) (int32, error) {
	raw, _ := f.mem.Read(fakePCM, uint32(length*4))
	frame := make([]float32, length)
	for i := range frame {
		frame[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	f.encoded = append(f.encoded, frame)
	return f.encodeResult, f.encodeErr
}

func (f *fakeCodec) Flush(_ context.Context, ref uint32) (int32, error) {
	if f.flushErr != nil || f.flushResult < 0 {
		return f.flushResult, f.flushErr
	}
	f.mem.Write(fakeOutput, f.output)
	f.mem.WriteUint32Le(ref+codec.OutputPointerOffset, fakeOutput)
	f.mem.WriteUint32Le(ref+codec.OutputLengthOffset, uint32(len(f.output)))
	return 0, nil
}

func (f *fakeCodec) Free(_ context.Context, ref uint32) error {
	f.freed = append(f.freed, ref)
	return nil
}

func (f *fakeCodec) Memory() codec.Memory {
	return f.mem
}

func (f *fakeCodec) Close(context.Context) error {
	f.closed = true
	return nil
}

type fakeMetrics struct {
	mu       sync.Mutex
	started  int
	outcomes []string
	frames   int
	failures []string
}

func (m *fakeMetrics) SessionStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *fakeMetrics) SessionFinished(outcome string, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *fakeMetrics) FrameEncoded(int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames++
}

func (m *fakeMetrics) Failure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, reason)
}
