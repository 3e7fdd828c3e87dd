// ABOUTME: MP3 inspection package for finished recordings
// ABOUTME: Probes stream parameters and decodes to 16-bit PCM via go-mp3
// Package decode reads back MP3 produced by the recorder.
//
// Probe reports sample rate and duration without keeping the decoded audio.
// Decode returns interleaved 16-bit stereo PCM, which is what go-mp3 emits
// and what the playback output accepts.
//
// Example:
//
//	info, err := decode.Probe(data)
//	fmt.Println(info.SampleRate, info.Duration)
package decode
