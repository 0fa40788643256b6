// Package protocol implements the binary RCON protocol spoken by Palworld
// dedicated servers. All integers are little-endian and every packet is
// preceded by a 4-byte length prefix that does not count itself.
package protocol

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// PacketType discriminates authentication and command packets.
type PacketType uint32

const (
	PacketTypeCommand PacketType = 2 // Execute a console command
	PacketTypeAuth    PacketType = 3 // Log in with the RCON password
)

// String returns a short label for log output.
func (t PacketType) String() string {
	switch t {
	case PacketTypeAuth:
		return "auth"
	case PacketTypeCommand:
		return "command"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4

	// WrapperSize is the packet id, the packet type and the terminator.
	// A payload can never be shorter than this.
	WrapperSize = 4 + 4 + 2

	// MaxPacketSize caps the payload length accepted from a server.
	MaxPacketSize = 4 << 20

	// AuthFailedID is the packet id a server answers with when it rejects
	// the password.
	AuthFailedID int32 = -1

	// MaxPacketID is the largest id handed out by NewPacketID.
	MaxPacketID = math.MaxInt32
)

// RedactedMessage replaces the password in traces.
const RedactedMessage = "**Password**"

var terminator = [2]byte{0x00, 0x00}

// NewPacketID returns a random id in [1, 2^31-1].
func NewPacketID() int32 {
	return int32(rand.Int32N(MaxPacketID) + 1)
}

// Packet is an outbound request.
type Packet struct {
	ID      int32      `json:"packet_id"`
	Type    PacketType `json:"packet_type"`
	Message string     `json:"message"`
}

// NewCommandPacket builds a command packet with a fresh id.
func NewCommandPacket(command string) *Packet {
	return &Packet{ID: NewPacketID(), Type: PacketTypeCommand, Message: command}
}

// NewAuthPacket builds an authentication packet with a fresh id.
func NewAuthPacket(password string) *Packet {
	return &Packet{ID: NewPacketID(), Type: PacketTypeAuth, Message: password}
}

// LogMessage returns the message as it may appear in logs.
func (p *Packet) LogMessage() string {
	if p.Type == PacketTypeAuth {
		return RedactedMessage
	}
	return p.Message
}

// Encode serializes the packet:
// [length:4][id:4][type:4][message...][0x00 0x00]
func (p *Packet) Encode() ([]byte, error) {
	if err := validateMessage(p.Message); err != nil {
		return nil, err
	}
	if len(p.Message)+WrapperSize > MaxPacketSize {
		return nil, errorf(ErrInvalidMessage, "message of %d bytes exceeds the packet limit", len(p.Message))
	}

	b := NewPacketBuilder()
	b.WriteInt32(p.ID).
		WriteUint32(uint32(p.Type)).
		WriteString(p.Message).
		WriteBytes(terminator[:])
	return b.BuildWithLength(), nil
}

func validateMessage(msg string) error {
	for i := 0; i < len(msg); i++ {
		if msg[i] > 0x7F {
			return errorf(ErrInvalidMessage, "non-ASCII byte 0x%02x at offset %d", msg[i], i)
		}
	}
	if strings.Contains(msg, "\x00\x00") {
		return errorf(ErrInvalidMessage, "message contains the packet terminator")
	}
	return nil
}

// Response is a decoded server reply.
type Response struct {
	ID         int32   `json:"packet_id"`
	Type       uint32  `json:"packet_type"`
	Message    string  `json:"message"`
	Raw        []byte  `json:"raw_message"`
	Request    *Packet `json:"send_command,omitempty"`
	Successful bool    `json:"is_successful"`
}

// Hex returns the raw bytes as a hex string for diagnostics.
func (r *Response) Hex() string {
	return hex.EncodeToString(r.Raw)
}

// Lines splits the message into lines, dropping a trailing carriage return.
func (r *Response) Lines() []string {
	if r.Message == "" {
		return nil
	}
	lines := strings.Split(r.Message, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
