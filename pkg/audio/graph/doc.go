// ABOUTME: Minimal audio processing graph
// ABOUTME: Context, source, gain, script processor and destination nodes
// Package graph routes captured audio to a processing callback.
//
// A Context renders buffers pushed by a Stream through connected nodes. Only
// a running context renders; Suspend and Resume return once no buffer is in
// flight, so a caller can rely on the callback being quiet after Suspend.
//
// Example:
//
//	ctx := graph.NewContext(graph.Options{SampleRate: stream.SampleRate()})
//	src, _ := ctx.CreateMediaStreamSource(stream)
//	proc, _ := ctx.CreateScriptProcessor(4096, 1, 1)
//	proc.SetOnAudioProcess(func(e graph.ProcessEvent) { ... })
//	src.Connect(proc)
//	proc.Connect(ctx.Destination())
package graph
