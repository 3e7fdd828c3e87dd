// ABOUTME: MP3 recorder with a MediaRecorder-shaped lifecycle
// ABOUTME: Pumps graph frames to an encoder worker and surfaces its replies as events
// Package recorder records a live audio stream to MP3.
//
// A Recorder pulls fixed-size mono frames from an audio graph and posts them
// to an encoder worker. State changes for start and stop follow the worker's
// acknowledgements rather than the calls themselves: Start leaves the
// recorder inactive until the worker confirms, and Stop keeps it recording
// until the finished MP3 arrives.
//
// Example:
//
//	rec, err := recorder.New(ctx, stream, recorder.Options{Worker: worker})
//	rec.On(recorder.EventDataAvailable, func(e recorder.Event) {
//		os.WriteFile("out.mp3", e.Data, 0o644)
//	})
//	rec.Start(ctx)
//	...
//	rec.Stop(ctx)
package recorder
