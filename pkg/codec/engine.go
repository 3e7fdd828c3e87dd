// ABOUTME: wazero-backed Codec implementation
// ABOUTME: Links the codec against host intrinsics and drives its entry points
package codec

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

const (
	envModuleName   = "env"
	hostModuleName  = "mp3rec_host"
	codecModuleName = "vmsg"
)

// Exports names the codec entry points
type Exports struct {
	Init   string
	Encode string
	Flush  string
	Free   string
}

// DefaultExports are the entry point names of the vmsg build
var DefaultExports = Exports{
	Init:   "vmsg_init",
	Encode: "vmsg_encode",
	Flush:  "vmsg_flush",
	Free:   "vmsg_free",
}

// Config controls how the codec module is instantiated
type Config struct {
	// MemoryPages sizes the env memory when the codec imports one
	MemoryPages uint32

	// StackSize is where the arena starts handing out memory
	StackSize uint32

	// Exports overrides the entry point names
	Exports Exports

	// Interpreter skips the compiler and runs the module interpreted
	Interpreter bool

	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.MemoryPages == 0 {
		c.MemoryPages = DefaultMemoryPages
	}
	if c.StackSize == 0 {
		c.StackSize = DefaultStackSize
	}
	if c.Exports == (Exports{}) {
		c.Exports = DefaultExports
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Engine runs the codec inside a wazero runtime
type Engine struct {
	runtime wazero.Runtime
	module  api.Module
	memory  api.Memory
	arena   *Arena
	logger  *zap.Logger

	init   api.Function
	encode api.Function
	flush  api.Function
	free   api.Function

	exited   bool
	exitCode uint32
}

var hostSignatures = []signature{
	{name: "sbrk", params: []api.ValueType{api.ValueTypeI32}, results: []api.ValueType{api.ValueTypeI32}},
	{name: "exit", params: []api.ValueType{api.ValueTypeI32}},
	{name: "pow", params: []api.ValueType{api.ValueTypeF64, api.ValueTypeF64}, results: []api.ValueType{api.ValueTypeF64}},
	{name: "powf", params: []api.ValueType{api.ValueTypeF32, api.ValueTypeF32}, results: []api.ValueType{api.ValueTypeF32}},
	{name: "exp", params: []api.ValueType{api.ValueTypeF64}, results: []api.ValueType{api.ValueTypeF64}},
	{name: "sqrtf", params: []api.ValueType{api.ValueTypeF32}, results: []api.ValueType{api.ValueTypeF32}},
	{name: "cos", params: []api.ValueType{api.ValueTypeF64}, results: []api.ValueType{api.ValueTypeF64}},
	{name: "log", params: []api.ValueType{api.ValueTypeF64}, results: []api.ValueType{api.ValueTypeF64}},
	{name: "sin", params: []api.ValueType{api.ValueTypeF64}, results: []api.ValueType{api.ValueTypeF64}},
}

func f64Unary(fn func(float64) float64) api.GoModuleFunc {
	return func(_ context.Context, _ api.Module, stack []uint64) {
		stack[0] = api.EncodeF64(fn(api.DecodeF64(stack[0])))
	}
}

func (e *Engine) hostFunctions() map[string]api.GoModuleFunc {
	return map[string]api.GoModuleFunc{
		"sbrk": func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeI32(e.sbrk(api.DecodeI32(stack[0])))
		},
		"exit": func(_ context.Context, _ api.Module, stack []uint64) {
			e.exited = true
			e.exitCode = uint32(api.DecodeI32(stack[0]))
			e.logger.Error("codec called exit", zap.Uint32("code", e.exitCode))
			panic(sys.NewExitError(e.exitCode))
		},
		"pow": func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeF64(math.Pow(api.DecodeF64(stack[0]), api.DecodeF64(stack[1])))
		},
		"powf": func(_ context.Context, _ api.Module, stack []uint64) {
			x, y := float64(api.DecodeF32(stack[0])), float64(api.DecodeF32(stack[1]))
			stack[0] = api.EncodeF32(float32(math.Pow(x, y)))
		},
		"exp": f64Unary(math.Exp),
		"sqrtf": func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeF32(float32(math.Sqrt(float64(api.DecodeF32(stack[0])))))
		},
		"cos": f64Unary(math.Cos),
		"log": f64Unary(math.Log),
		"sin": f64Unary(math.Sin),
	}
}

func (e *Engine) sbrk(n int32) int32 {
	if e.arena == nil {
		return -1
	}
	prev := e.arena.Grow(n)
	if prev < 0 {
		e.logger.Warn("codec arena exhausted",
			zap.Int32("requested", n),
			zap.Uint32("remaining", e.arena.Remaining()))
	}
	return prev
}

// NewEngine compiles and instantiates a codec module
func NewEngine(ctx context.Context, wasm []byte, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	runtime, compiled, err := compile(ctx, wasm, cfg)
	if err != nil {
		return nil, err
	}

	e := &Engine{runtime: runtime, logger: cfg.Logger}
	if err := e.link(ctx, compiled, cfg); err != nil {
		_ = runtime.Close(ctx)
		return nil, err
	}
	return e, nil
}

func compile(ctx context.Context, wasm []byte, cfg Config) (wazero.Runtime, wazero.CompiledModule, error) {
	rc := wazero.NewRuntimeConfig()
	if cfg.Interpreter {
		rc = wazero.NewRuntimeConfigInterpreter()
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, rc)
	compiled, err := runtime.CompileModule(ctx, wasm)
	if err == nil {
		return runtime, compiled, nil
	}
	_ = runtime.Close(ctx)

	if cfg.Interpreter {
		return nil, nil, fmt.Errorf("failed to compile codec: %w", err)
	}

	cfg.Logger.Warn("compiling codec failed, retrying with interpreter", zap.Error(err))
	runtime = wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	compiled, err = runtime.CompileModule(ctx, wasm)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, nil, fmt.Errorf("failed to compile codec: %w", err)
	}
	return runtime, compiled, nil
}

func (e *Engine) link(ctx context.Context, compiled wazero.CompiledModule, cfg Config) error {
	importsMemory := len(compiled.ImportedMemories()) > 0

	var pages uint32
	if importsMemory {
		pages = cfg.MemoryPages
		limit := uint64(pages) * PageSize
		if uint64(cfg.StackSize) >= limit {
			return fmt.Errorf("stack size %d does not fit in %d pages", cfg.StackSize, pages)
		}
		e.arena = NewArena(cfg.StackSize, uint32(limit))
	}

	env, err := e.instantiateEnv(ctx, pages)
	if err != nil {
		return err
	}

	mod, err := e.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(codecModuleName).WithStartFunctions())
	if err != nil {
		return fmt.Errorf("failed to instantiate codec: %w", err)
	}
	e.module = mod

	if importsMemory {
		e.memory = env.ExportedMemory("memory")
	} else {
		e.memory = mod.ExportedMemory("memory")
		if e.memory == nil {
			e.memory = mod.Memory()
		}
		if e.memory != nil {
			if cfg.StackSize >= e.memory.Size() {
				return fmt.Errorf("stack size %d does not fit in codec memory of %d bytes", cfg.StackSize, e.memory.Size())
			}
			e.arena = NewArena(cfg.StackSize, e.memory.Size())
		}
	}
	if e.memory == nil {
		return fmt.Errorf("codec has no linear memory")
	}

	for name, fn := range map[string]*api.Function{
		cfg.Exports.Init:   &e.init,
		cfg.Exports.Encode: &e.encode,
		cfg.Exports.Flush:  &e.flush,
		cfg.Exports.Free:   &e.free,
	} {
		*fn = mod.ExportedFunction(name)
		if *fn == nil {
			return fmt.Errorf("%w: %s", ErrMissingExport, name)
		}
	}

	e.logger.Debug("codec linked",
		zap.Bool("imports_memory", importsMemory),
		zap.Uint32("memory_bytes", e.memory.Size()),
		zap.Uint32("arena_base", cfg.StackSize))
	return nil
}

func (e *Engine) instantiateEnv(ctx context.Context, pages uint32) (api.Module, error) {
	fns := e.hostFunctions()
	builder := e.runtime.NewHostModuleBuilder(hostModuleName)
	for _, s := range hostSignatures {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(fns[s.name], s.params, s.results).
			Export(s.name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return nil, fmt.Errorf("failed to instantiate host functions: %w", err)
	}

	shim := buildEnvShim(hostModuleName, hostSignatures, pages)
	env, err := e.runtime.InstantiateWithConfig(ctx, shim, wazero.NewModuleConfig().WithName(envModuleName))
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate env: %w", err)
	}
	return env, nil
}

func (e *Engine) call(ctx context.Context, fn api.Function, params ...uint64) ([]uint64, error) {
	if e.exited {
		return nil, fmt.Errorf("%w: code %d", ErrExit, e.exitCode)
	}
	results, err := fn.Call(ctx, params...)
	if e.exited {
		return nil, fmt.Errorf("%w: code %d", ErrExit, e.exitCode)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Definition().Name(), err)
	}
	return results, nil
}

// Init opens a session
func (e *Engine) Init(ctx context.Context, sampleRate int) (uint32, error) {
	res, err := e.call(ctx, e.init, api.EncodeI32(int32(sampleRate)))
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res[0]), nil
}

// Encode consumes length samples from the PCM input region
func (e *Engine) Encode(ctx context.Context, ref uint32, length int) (int32, error) {
	res, err := e.call(ctx, e.encode, api.EncodeU32(ref), api.EncodeI32(int32(length)))
	if err != nil {
		return 0, err
	}
	return api.DecodeI32(res[0]), nil
}

// Flush finalizes the stream
func (e *Engine) Flush(ctx context.Context, ref uint32) (int32, error) {
	res, err := e.call(ctx, e.flush, api.EncodeU32(ref))
	if err != nil {
		return 0, err
	}
	return api.DecodeI32(res[0]), nil
}

// Free releases the session
func (e *Engine) Free(ctx context.Context, ref uint32) error {
	_, err := e.call(ctx, e.free, api.EncodeU32(ref))
	return err
}

// Memory returns the shared linear memory
func (e *Engine) Memory() Memory {
	return e.memory
}

// Arena returns the allocator behind sbrk
func (e *Engine) Arena() *Arena {
	return e.arena
}

// Close tears down the runtime
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
