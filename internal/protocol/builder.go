package protocol

import (
	"bytes"
	"encoding/binary"
)

// PacketBuilder constructs little-endian packet payloads.
type PacketBuilder struct {
	buf bytes.Buffer
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// WriteUint32 writes a uint32 in little-endian order.
func (b *PacketBuilder) WriteUint32(v uint32) *PacketBuilder {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

// WriteInt32 writes an int32 in little-endian order.
func (b *PacketBuilder) WriteInt32(v int32) *PacketBuilder {
	return b.WriteUint32(uint32(v))
}

// WriteString writes the raw bytes of s without any prefix or terminator.
func (b *PacketBuilder) WriteString(s string) *PacketBuilder {
	b.buf.WriteString(s)
	return b
}

// WriteBytes writes raw bytes.
func (b *PacketBuilder) WriteBytes(data []byte) *PacketBuilder {
	b.buf.Write(data)
	return b
}

// BuildWithLength returns the payload with a 4-byte LE length prefix.
func (b *PacketBuilder) BuildWithLength() []byte {
	data := b.buf.Bytes()
	result := make([]byte, LengthPrefixSize+len(data))
	binary.LittleEndian.PutUint32(result[:LengthPrefixSize], uint32(len(data)))
	copy(result[LengthPrefixSize:], data)
	return result
}

// BuildResponse encodes a server-side reply frame.
func BuildResponse(id int32, typ uint32, message string) []byte {
	b := NewPacketBuilder()
	b.WriteInt32(id).WriteUint32(typ).WriteString(message).WriteBytes(terminator[:])
	return b.BuildWithLength()
}
