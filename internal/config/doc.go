// ABOUTME: Application configuration package
// ABOUTME: Loads and validates settings from defaults, config file and environment
// Package config loads mp3rec settings.
//
// Values come from, in increasing precedence: built-in defaults, an
// optional config file (any format viper reads) and MP3REC_* environment
// variables, where "__" separates nesting levels, e.g. MP3REC_CODEC__URL.
// Command line flags are applied on top by the entry points.
package config
