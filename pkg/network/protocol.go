// pkg/network/protocol.go
package network

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/opd-ai/go-flight/pkg/control"
)

// MessageType defines the type of network message
type MessageType byte

const (
	// Hello is the first frame a pilot sends, naming the actor it wants to fly.
	Hello MessageType = iota + 1
	// Ack answers a Hello or an Input frame.
	Ack
	// Input carries one control intent.
	Input
	// Bye announces a graceful disconnect.
	Bye
)

// String returns the wire name of the message type.
func (t MessageType) String() string {
	switch t {
	case Hello:
		return "hello"
	case Ack:
		return "ack"
	case Input:
		return "input"
	case Bye:
		return "bye"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// ProtocolVersion is sent in Hello and must match the server's.
const ProtocolVersion = 1

// MaxFrameSize is the largest payload the uint16 length prefix can carry.
const MaxFrameSize = 65535

// ErrFrameTooLarge is returned when a payload does not fit the length prefix.
var ErrFrameTooLarge = errors.New("frame too large")

// HelloMessage opens a session.
type HelloMessage struct {
	SessionID string `json:"sessionId"`
	Actor     string `json:"actor"`
	Version   int    `json:"version"`
}

// AckMessage reports whether a Hello or Input frame was accepted.
type AckMessage struct {
	Accepted bool   `json:"accepted"`
	ActorID  uint64 `json:"actorId,omitempty"`
	Sequence uint32 `json:"sequence,omitempty"`
	Error    string `json:"error,omitempty"`
}

// InputFrame is one remote control intent. SentAt is the client clock in
// milliseconds and is informational; the server stamps arrival time itself.
type InputFrame struct {
	ActorID  uint64               `json:"actorId"`
	Sequence uint32               `json:"sequence"`
	SentAt   int64                `json:"sentAt,omitempty"`
	Input    control.ControlInput `json:"input"`
}

// writeMessage frames msg as type byte, big-endian uint16 length and JSON payload.
func writeMessage(w io.Writer, msgType MessageType, msg interface{}) error {
	var data []byte
	if msg != nil {
		var err error
		data, err = json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal %s message: %w", msgType, err)
		}
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%s message of %d bytes: %w", msgType, len(data), ErrFrameTooLarge)
	}

	// One write per frame so concurrent writers on a locked conn never interleave.
	frame := make([]byte, 3+len(data))
	frame[0] = byte(msgType)
	binary.BigEndian.PutUint16(frame[1:3], uint16(len(data)))
	copy(frame[3:], data)
	_, err := w.Write(frame)
	return err
}

// readMessage reads one frame written by writeMessage.
func readMessage(r io.Reader) (MessageType, []byte, error) {
	var header [3]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	msgLen := binary.BigEndian.Uint16(header[1:3])

	data := make([]byte, msgLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, err
	}
	return MessageType(header[0]), data, nil
}
