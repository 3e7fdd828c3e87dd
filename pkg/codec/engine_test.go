// ABOUTME: Tests for the wazero codec engine
// ABOUTME: Links small hand-assembled modules to exercise env, memory and exit
package codec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

const (
	sectionFunc = 3
	sectionCode = 10
	limitsMin   = 0x00
)

const (
	opCall     = 0x10
	opLocalGet = 0x20
	opLocalSet = 0x21
	opI32Load  = 0x28
	opI32Store = 0x36
	opI32Const = 0x41
	opI32Eqz   = 0x45
	opIf       = 0x04
	opReturn   = 0x0f
	opEnd      = 0x0b
	blockEmpty = 0x40
)

var (
	i32 = api.ValueTypeI32
	f64 = api.ValueTypeF64
)

func funcBody(locals []byte, code ...byte) []byte {
	b := append(append([]byte{}, locals...), code...)
	return append(appendU32(nil, uint32(len(b))), b...)
}

func exportFuncs(names ...string) []byte {
	b := appendU32(nil, uint32(len(names)))
	for i, name := range names {
		b = appendName(b, name)
		b = append(b, externFunc)
		b = appendU32(b, uint32(i+1))
	}
	return b
}

// echoCodec imports env.memory and env.sbrk. init allocates a 16 byte
// header plus a PCM region, flush points the output at the first PCM word.
func echoCodec() []byte {
	types := appendU32(nil, 3)
	types = appendFuncType(types, []api.ValueType{i32}, []api.ValueType{i32})
	types = appendFuncType(types, []api.ValueType{i32, i32}, []api.ValueType{i32})
	types = appendFuncType(types, []api.ValueType{i32}, nil)

	imports := appendU32(nil, 2)
	imports = appendName(imports, envModuleName)
	imports = appendName(imports, "memory")
	imports = append(imports, externMemory, limitsMin)
	imports = appendU32(imports, 1)
	imports = appendName(imports, envModuleName)
	imports = appendName(imports, "sbrk")
	imports = append(imports, externFunc, 0)

	funcs := []byte{4, 0, 1, 0, 2}

	code := appendU32(nil, 4)
	code = append(code, funcBody([]byte{1, 1, byte(i32)},
		opLocalGet, 0, opI32Eqz, opIf, blockEmpty, opI32Const, 0, opReturn, opEnd,
		opI32Const, 16, opCall, 0, opLocalSet, 1,
		opLocalGet, 1, opI32Const, 0x80, 0x80, 0x01, opCall, 0, opI32Store, 2, 0,
		opLocalGet, 1, opEnd)...)
	code = append(code, funcBody([]byte{0}, opLocalGet, 1, opEnd)...)
	code = append(code, funcBody([]byte{0},
		opLocalGet, 0, opLocalGet, 0, opI32Load, 2, 0, opI32Store, 2, 4,
		opLocalGet, 0, opI32Const, 4, opI32Store, 2, 8,
		opI32Const, 0, opEnd)...)
	code = append(code, funcBody([]byte{0}, opEnd)...)

	out := append([]byte{}, wasmHeader...)
	out = appendSection(out, sectionType, types)
	out = appendSection(out, sectionImport, imports)
	out = appendSection(out, sectionFunc, funcs)
	out = appendSection(out, sectionExport, exportFuncs("vmsg_init", "vmsg_encode", "vmsg_flush", "vmsg_free"))
	return appendSection(out, sectionCode, code)
}

// exitCodec owns its memory and its init calls exit(3).
func exitCodec() []byte {
	types := appendU32(nil, 2)
	types = appendFuncType(types, []api.ValueType{i32}, nil)
	types = appendFuncType(types, []api.ValueType{i32}, []api.ValueType{i32})

	imports := appendU32(nil, 1)
	imports = appendName(imports, envModuleName)
	imports = appendName(imports, "exit")
	imports = append(imports, externFunc, 0)

	mem := []byte{1, limitsMin, 1}

	exports := appendU32(nil, 5)
	for _, name := range []string{"vmsg_init", "vmsg_encode", "vmsg_flush", "vmsg_free"} {
		exports = appendName(exports, name)
		exports = append(exports, externFunc, 1)
	}
	exports = appendName(exports, "memory")
	exports = append(exports, externMemory, 0)

	code := appendU32(nil, 1)
	code = append(code, funcBody([]byte{0}, opI32Const, 3, opCall, 0, opI32Const, 0, opEnd)...)

	out := append([]byte{}, wasmHeader...)
	out = appendSection(out, sectionType, types)
	out = appendSection(out, sectionImport, imports)
	out = appendSection(out, sectionFunc, []byte{1, 1})
	out = appendSection(out, sectionMemory, mem)
	out = appendSection(out, sectionExport, exports)
	return appendSection(out, sectionCode, code)
}

func testConfig() Config {
	return Config{MemoryPages: 4, StackSize: 1024, Interpreter: true, Logger: zap.NewNop()}
}

func TestEnvShimExportsHostFunctionsAndMemory(t *testing.T) {
	ctx := context.Background()
	e := &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter()),
		logger:  zap.NewNop(),
		arena:   NewArena(1024, 2*PageSize),
	}
	defer e.runtime.Close(ctx)

	env, err := e.instantiateEnv(ctx, 2)
	require.NoError(t, err)

	mem := env.ExportedMemory("memory")
	require.NotNil(t, mem)
	assert.Equal(t, uint32(2*PageSize), mem.Size())

	sbrk := env.ExportedFunction("sbrk")
	require.NotNil(t, sbrk)
	res, err := sbrk.Call(ctx, api.EncodeI32(16))
	require.NoError(t, err)
	assert.Equal(t, int32(1024), api.DecodeI32(res[0]))
	res, err = sbrk.Call(ctx, api.EncodeI32(0))
	require.NoError(t, err)
	assert.Equal(t, int32(1040), api.DecodeI32(res[0]))

	pow := env.ExportedFunction("pow")
	require.NotNil(t, pow)
	assert.Equal(t, []api.ValueType{f64, f64}, pow.Definition().ParamTypes())
	res, err = pow.Call(ctx, api.EncodeF64(2), api.EncodeF64(10))
	require.NoError(t, err)
	assert.Equal(t, 1024.0, api.DecodeF64(res[0]))
}

func TestEnvShimWithoutMemory(t *testing.T) {
	ctx := context.Background()
	e := &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter()),
		logger:  zap.NewNop(),
	}
	defer e.runtime.Close(ctx)

	env, err := e.instantiateEnv(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, env.ExportedMemory("memory"))

	// no arena yet: sbrk fails instead of panicking
	res, err := env.ExportedFunction("sbrk").Call(ctx, api.EncodeI32(8))
	require.NoError(t, err)
	assert.Equal(t, int32(-1), api.DecodeI32(res[0]))
}

func TestEngineSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, echoCodec(), testConfig())
	require.NoError(t, err)
	defer e.Close(ctx)

	assert.Equal(t, uint32(4*PageSize), e.Memory().Size())

	ref, err := e.Init(ctx, 44100)
	require.NoError(t, err)
	assert.Equal(t, uint32(1024), ref)

	layout := NewLayout(e.Memory(), ref)
	pcm, err := layout.PCMInput()
	require.NoError(t, err)
	assert.Equal(t, uint32(1040), pcm)
	assert.Equal(t, uint32(1040+16384), e.Arena().Top())

	require.NoError(t, WriteSamples(e.Memory(), pcm, []float32{1, 0.5}))
	n, err := e.Encode(ctx, ref, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), n)

	n, err = e.Flush(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int32(0), n)

	out, err := layout.Output()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, out)

	assert.NoError(t, e.Free(ctx, ref))
}

func TestEngineInitFailureReturnsZero(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, echoCodec(), testConfig())
	require.NoError(t, err)
	defer e.Close(ctx)

	ref, err := e.Init(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, ref)
}

func TestEngineDefaultRuntime(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Interpreter = false

	e, err := NewEngine(ctx, echoCodec(), cfg)
	require.NoError(t, err)
	defer e.Close(ctx)

	ref, err := e.Init(ctx, 22050)
	require.NoError(t, err)
	assert.NotZero(t, ref)
}

func TestEngineExitIsSticky(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, exitCodec(), testConfig())
	require.NoError(t, err)
	defer e.Close(ctx)

	assert.Equal(t, uint32(PageSize), e.Memory().Size())

	_, err = e.Init(ctx, 44100)
	assert.ErrorIs(t, err, ErrExit)

	_, err = e.Flush(ctx, 1)
	assert.ErrorIs(t, err, ErrExit)
}

func TestEngineRejectsBadModules(t *testing.T) {
	ctx := context.Background()

	noExports := append([]byte{}, wasmHeader...)
	noExports = appendSection(noExports, sectionMemory, []byte{1, limitsMin, 1})

	tests := []struct {
		name   string
		wasm   []byte
		config Config
		is     error
	}{
		{name: "garbage", wasm: []byte("not wasm"), config: testConfig()},
		{name: "missing exports", wasm: noExports, config: testConfig(), is: ErrMissingExport},
		{name: "stack too large", wasm: echoCodec(), config: Config{MemoryPages: 1, StackSize: PageSize, Interpreter: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine(ctx, tt.wasm, tt.config)
			require.Error(t, err)
			assert.Nil(t, e)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}
