// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, file and environment precedence and validation
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "vmsg.wasm", cfg.Codec.URL)
	assert.Equal(t, uint32(2048), cfg.Codec.MemoryPages)
	assert.Equal(t, uint32(5242880), cfg.Codec.StackSize)
	assert.Equal(t, 44100, cfg.Recorder.SampleRate)
	assert.Equal(t, 4096, cfg.Recorder.BufferSize)
	assert.Equal(t, "tone", cfg.Recorder.Source)
	assert.Equal(t, "local", cfg.Worker.Mode)
	assert.Equal(t, 8928, cfg.Server.Port)
	assert.Equal(t, "/metrics", cfg.Server.MetricsPath)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Equal(t, cfg, Default())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mp3rec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
codec:
  url: https://cdn.example.com/vmsg.wasm
recorder:
  sample_rate: 48000
  source: mic
worker:
  mode: remote
  addr: localhost:8928
`), 0o644))

	t.Setenv("MP3REC_RECORDER__SAMPLE_RATE", "22050")
	t.Setenv("MP3REC_LOG__LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/vmsg.wasm", cfg.Codec.URL)
	assert.Equal(t, 22050, cfg.Recorder.SampleRate, "env beats file")
	assert.Equal(t, "mic", cfg.Recorder.Source)
	assert.Equal(t, "remote", cfg.Worker.Mode)
	assert.Equal(t, "localhost:8928", cfg.Worker.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 4096, cfg.Recorder.BufferSize, "untouched default")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty codec url", mutate: func(c *Config) { c.Codec.URL = "" }},
		{name: "zero memory", mutate: func(c *Config) { c.Codec.MemoryPages = 0 }},
		{name: "low sample rate", mutate: func(c *Config) { c.Recorder.SampleRate = 100 }},
		{name: "odd buffer size", mutate: func(c *Config) { c.Recorder.BufferSize = 1000 }},
		{name: "unknown source", mutate: func(c *Config) { c.Recorder.Source = "file" }},
		{name: "unknown mode", mutate: func(c *Config) { c.Worker.Mode = "cloud" }},
		{name: "remote without address", mutate: func(c *Config) { c.Worker.Mode = "remote" }},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "relative metrics path", mutate: func(c *Config) { c.Server.MetricsPath = "metrics" }},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Worker.Mode = "remote"
	cfg.Worker.Discover = true
	assert.NoError(t, cfg.Validate(), "discovery stands in for an address")
}
