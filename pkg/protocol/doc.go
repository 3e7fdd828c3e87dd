// ABOUTME: Recorder/encoder wire protocol package
// ABOUTME: Defines protocol messages, the Worker channel and the WebSocket client
// Package protocol implements the message channel between a recorder and
// its encoder worker.
//
// Provides the tagged Message variant, the Worker interface both sides of
// the channel agree on, an unbounded FIFO Mailbox for non-blocking posts,
// and a WebSocket Client that speaks to a remote encoder worker.
//
// Example:
//
//	worker, err := protocol.Dial(ctx, "ws://localhost:8928/encoder")
//	worker.SetHandler(func(msg protocol.Message) { ... })
//	err = worker.PostMessage(protocol.StartRecording(protocol.EncodingConfig{SampleRate: 44100}))
package protocol
