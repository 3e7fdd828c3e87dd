// ABOUTME: Live audio streams for the recorder graph
// ABOUTME: Synthetic tone and microphone capture implementing graph.Stream
// Package capture provides graph.Stream implementations.
//
// ToneStream synthesizes a sine wave, either paced in real time or pumped
// by hand. MicStream captures the default input device through miniaudio.
package capture
