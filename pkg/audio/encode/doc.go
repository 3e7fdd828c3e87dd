// ABOUTME: MP3 encoder worker package
// ABOUTME: Drives the codec per session and speaks the worker message protocol
// Package encode turns recorder messages into codec calls.
//
// An Encoder owns one codec instance and at most one session. It handles
// StartRecording, DataAvailable and StopRecording in arrival order and returns
// the reply, if any, for each. A Worker runs an Encoder on its own goroutine
// behind the protocol.Worker interface, which is what a recorder talks to.
//
// Example:
//
//	worker := encode.NewWorker(codec.NewWasmLoader(locator, codec.Config{}))
//	rec, err := recorder.New(ctx, stream, recorder.Options{Worker: worker})
package encode
