// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Buffer, ContextState and sample conversion/downmix helpers
// Package audio provides the audio types shared by the recorder, the audio
// graph and the capture backends.
//
// This package defines:
//   - Buffer: one processing quantum of planar float32 PCM
//   - ContextState: lifecycle of an audio context (running, suspended, closed)
//
// It also provides helpers for:
//   - Downmixing planar input to the single channel the MP3 codec consumes
//   - Converting between normalized float32 and 16-bit integer samples
//
// Example:
//
//	buf := audio.Buffer{
//	    SampleRate: 44100,
//	    Channels:   [][]float32{left, right},
//	}
//	mono := audio.Downmix(buf)
package audio
