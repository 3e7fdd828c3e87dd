// ABOUTME: Codec runtime package for the compiled MP3 encoder
// ABOUTME: Hosts the wasm codec and isolates its binary memory contract
// Package codec loads and drives the compiled MP3 codec.
//
// The codec is an opaque WebAssembly module exposing four entry points
// (init, encode, flush, free) over one linear memory. It expects a minimal
// runtime: a monotonic sbrk allocator, a handful of math intrinsics and an
// exit hook. This package provides:
//   - Codec: the four entry points plus access to linear memory
//   - Engine: a wazero-backed Codec
//   - Arena: the bump allocator behind sbrk
//   - Layout: the only place that knows the session header offsets
//   - Loader: resolves a Locator, fetches the module and instantiates it
//
// Example:
//
//	loader := codec.NewWasmLoader(codec.Locator{URL: "vmsg.wasm"}, codec.Config{})
//	c, err := loader.Load(ctx)
//	ref, err := c.Init(ctx, 44100)
package codec
