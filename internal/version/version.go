// ABOUTME: Build identity for mp3rec binaries
// ABOUTME: Reported by -version, the TUI header and the worker logs
package version

import "fmt"

const (
	Version      = "0.3.0"
	Product      = "mp3rec"
	Manufacturer = "Sendspin"
)

// String returns "mp3rec 0.3.0"
func String() string {
	return fmt.Sprintf("%s %s", Product, Version)
}
