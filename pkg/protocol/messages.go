// ABOUTME: Recorder/encoder message type definitions
// ABOUTME: Defines the tagged Message variant and its constructors
package protocol

import "fmt"

// MessageType tags a Message
type MessageType string

const (
	// Recorder -> encoder
	TypeStartRecording MessageType = "start_recording"
	TypeDataAvailable  MessageType = "data_available"
	TypeStopRecording  MessageType = "stop_recording"

	// Encoder -> recorder
	TypeWorkerReady     MessageType = "worker_ready"
	TypeWorkerRecording MessageType = "worker_recording"
	TypeBlobReady       MessageType = "blob_ready"
	TypeError           MessageType = "error"
)

// Machine-readable failure reasons carried by Error messages
const (
	ReasonInitFailed     = "init_failed"
	ReasonEncodingFailed = "encoding_failed"
	ReasonFlushFailed    = "flush_failed"
	ReasonLoadFailed     = "load_failed"
	ReasonInternal       = "internal"
)

// EncodingConfig is the payload of a StartRecording message
type EncodingConfig struct {
	SampleRate int `json:"sample_rate"`
}

// Message is the unit of communication between recorder and encoder.
// Only the field matching Type is populated.
type Message struct {
	Type   MessageType     `json:"type"`
	Config *EncodingConfig `json:"config,omitempty"`
	Data   []float32       `json:"data,omitempty"`
	Blob   []byte          `json:"blob,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StartRecording asks the encoder to open a session
func StartRecording(config EncodingConfig) Message {
	return Message{Type: TypeStartRecording, Config: &config}
}

// DataAvailable carries one mono frame. The samples are copied so the
// producer may reuse its buffer as soon as the call returns.
func DataAvailable(samples []float32) Message {
	data := make([]float32, len(samples))
	copy(data, samples)
	return Message{Type: TypeDataAvailable, Data: data}
}

// StopRecording asks the encoder to flush and close the session
func StopRecording() Message {
	return Message{Type: TypeStopRecording}
}

// WorkerReady signals that the codec module finished loading
func WorkerReady() Message {
	return Message{Type: TypeWorkerReady}
}

// WorkerRecording acknowledges a StartRecording
func WorkerRecording() Message {
	return Message{Type: TypeWorkerRecording}
}

// BlobReady carries the finished MP3 bytes
func BlobReady(blob []byte) Message {
	if blob == nil {
		blob = []byte{}
	}
	return Message{Type: TypeBlobReady, Blob: blob}
}

// ErrorMessage reports a normalized failure reason
func ErrorMessage(reason string) Message {
	return Message{Type: TypeError, Error: reason}
}

// Validate checks that a message carries the payload its type requires
func (m Message) Validate() error {
	switch m.Type {
	case TypeStartRecording:
		if m.Config == nil {
			return fmt.Errorf("%s: missing config", m.Type)
		}
		if m.Config.SampleRate <= 0 {
			return fmt.Errorf("%s: invalid sample rate %d", m.Type, m.Config.SampleRate)
		}
	case TypeError:
		if m.Error == "" {
			return fmt.Errorf("%s: missing reason", m.Type)
		}
	case TypeDataAvailable, TypeStopRecording, TypeWorkerReady, TypeWorkerRecording, TypeBlobReady:
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

// String returns a short description suitable for logs
func (m Message) String() string {
	switch m.Type {
	case TypeStartRecording:
		if m.Config != nil {
			return fmt.Sprintf("%s(%dHz)", m.Type, m.Config.SampleRate)
		}
	case TypeDataAvailable:
		return fmt.Sprintf("%s(%d samples)", m.Type, len(m.Data))
	case TypeBlobReady:
		return fmt.Sprintf("%s(%d bytes)", m.Type, len(m.Blob))
	case TypeError:
		return fmt.Sprintf("%s(%s)", m.Type, m.Error)
	}
	return string(m.Type)
}
