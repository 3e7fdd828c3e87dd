// ABOUTME: Recording state and MIME support
// ABOUTME: The three lifecycle states and the single supported output type
package recorder

// MimeType is the only output format
const MimeType = "audio/mpeg"

// IsTypeSupported reports whether mimeType can be recorded
func IsTypeSupported(mimeType string) bool {
	return mimeType == MimeType
}

// State is the recorder lifecycle state
type State int

const (
	StateInactive State = iota
	StateRecording
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
