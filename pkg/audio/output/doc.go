// ABOUTME: Audio output package for playing back recordings
// ABOUTME: Provides the Output interface, an oto backend and MP3 playback
// Package output plays decoded audio.
//
// Example:
//
//	out := output.NewOto()
//	err := output.PlayMP3(ctx, out, data)
package output
