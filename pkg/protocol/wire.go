// ABOUTME: WebSocket wire encoding for protocol messages
// ABOUTME: Control messages travel as JSON text, frames and blobs as binary
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/gorilla/websocket"
)

const (
	// BinaryMessageHeaderSize is the size of the binary message header (type byte)
	BinaryMessageHeaderSize = 1

	// Binary message type IDs
	BinaryDataAvailable = 1
	BinaryBlobReady     = 2
)

// EncodeWire converts a message to a WebSocket message type and payload
func EncodeWire(msg Message) (int, []byte, error) {
	switch msg.Type {
	case TypeDataAvailable:
		out := make([]byte, BinaryMessageHeaderSize+len(msg.Data)*4)
		out[0] = BinaryDataAvailable
		for i, s := range msg.Data {
			binary.LittleEndian.PutUint32(out[BinaryMessageHeaderSize+i*4:], math.Float32bits(s))
		}
		return websocket.BinaryMessage, out, nil

	case TypeBlobReady:
		out := make([]byte, BinaryMessageHeaderSize+len(msg.Blob))
		out[0] = BinaryBlobReady
		copy(out[BinaryMessageHeaderSize:], msg.Blob)
		return websocket.BinaryMessage, out, nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal %s: %w", msg.Type, err)
	}
	return websocket.TextMessage, data, nil
}

// DecodeWire converts a WebSocket message back to a protocol message
func DecodeWire(messageType int, data []byte) (Message, error) {
	switch messageType {
	case websocket.BinaryMessage:
		return decodeBinary(data)
	case websocket.TextMessage:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return Message{}, fmt.Errorf("failed to parse JSON message: %w", err)
		}
		if msg.Type == TypeDataAvailable || msg.Type == TypeBlobReady {
			return Message{}, fmt.Errorf("%s must be sent as a binary message", msg.Type)
		}
		if err := msg.Validate(); err != nil {
			return Message{}, err
		}
		return msg, nil
	default:
		return Message{}, fmt.Errorf("unknown WebSocket message type: %d", messageType)
	}
}

func decodeBinary(data []byte) (Message, error) {
	if len(data) < BinaryMessageHeaderSize {
		return Message{}, fmt.Errorf("invalid binary message: too short")
	}

	payload := data[BinaryMessageHeaderSize:]
	switch data[0] {
	case BinaryDataAvailable:
		if len(payload)%4 != 0 {
			return Message{}, fmt.Errorf("invalid frame payload length %d", len(payload))
		}
		samples := make([]float32, len(payload)/4)
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
		}
		return Message{Type: TypeDataAvailable, Data: samples}, nil

	case BinaryBlobReady:
		blob := make([]byte, len(payload))
		copy(blob, payload)
		return BlobReady(blob), nil

	default:
		return Message{}, fmt.Errorf("unknown binary message type: %d", data[0])
	}
}
