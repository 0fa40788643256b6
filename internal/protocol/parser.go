package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Reader is the read half of a transport: it returns exactly n bytes or an
// error.
type Reader interface {
	ReadExact(ctx context.Context, n int) ([]byte, error)
}

// StreamReader adapts an io.Reader to Reader. The context is not observed.
type StreamReader struct {
	R io.Reader
}

// ReadExact reads exactly n bytes from the underlying reader.
func (s StreamReader) ReadExact(_ context.Context, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.R, buf); err != nil {
		return nil, NewConnectionError("read", err)
	}
	return buf, nil
}

// Decoder reads replies and logs their traces.
type Decoder struct {
	logger zerolog.Logger
}

// NewDecoder creates a decoder logging through logger.
func NewDecoder(logger zerolog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Decode reads one frame with the package-level logger.
func Decode(ctx context.Context, r Reader, req *Packet) (*Response, error) {
	return NewDecoder(log.With().Str("component", "rcon_codec").Logger()).Decode(ctx, r, req)
}

// Decode reads a length prefix and its payload from r and validates it.
// req is the request the reply answers; it may be nil.
func (d *Decoder) Decode(ctx context.Context, r Reader, req *Packet) (*Response, error) {
	prefix, err := r.ReadExact(ctx, LengthPrefixSize)
	if err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(prefix)
	if length > MaxPacketSize {
		// The payload cannot be skipped safely; the stream is lost.
		return nil, NewConnectionError("read", errorf(ErrInvalidPacket,
			"declared payload length %d exceeds %d", length, MaxPacketSize))
	}

	var payload []byte
	if length > 0 {
		if payload, err = r.ReadExact(ctx, int(length)); err != nil {
			return nil, err
		}
	}

	if length < WrapperSize {
		if length >= 4 && int32(binary.LittleEndian.Uint32(payload[0:4])) == AuthFailedID {
			return nil, ErrAuthenticationFailed
		}
		return nil, errorf(ErrInvalidPacket, "declared payload length %d below %d", length, WrapperSize)
	}

	raw := make([]byte, 0, LengthPrefixSize+len(payload))
	raw = append(raw, prefix...)
	raw = append(raw, payload...)
	return d.parse(raw, req)
}

// DecodeBytes decodes one complete frame held in memory.
func DecodeBytes(frame []byte) (*Response, error) {
	return Decode(context.Background(), StreamReader{R: bytes.NewReader(frame)}, nil)
}

// parse validates a frame in this order: rejected authentication,
// terminator, trailing newline.
func (d *Decoder) parse(raw []byte, req *Packet) (*Response, error) {
	payload := raw[LengthPrefixSize:]
	id := int32(binary.LittleEndian.Uint32(payload[0:4]))
	typ := binary.LittleEndian.Uint32(payload[4:8])
	message := payload[8 : len(payload)-2]
	term := payload[len(payload)-2:]

	resp := &Response{ID: id, Type: typ, Raw: raw, Request: req}
	d.logger.Debug().
		Int32("packet_id", id).
		Uint32("packet_type", typ).
		Bytes("message", message).
		Str("raw", resp.Hex()).
		Msg("received message")

	if req != nil && id != req.ID {
		d.logger.Debug().
			Int32("sent_id", req.ID).
			Int32("received_id", id).
			Msg("received packet id differs from request")
	}

	if id == AuthFailedID {
		return nil, ErrAuthenticationFailed
	}

	if term[0] != terminator[0] || term[1] != terminator[1] {
		return nil, errorf(ErrInvalidPacket, "terminator %x", term)
	}

	if len(message) > 0 && message[len(message)-1] != '\n' {
		return nil, &IncompleteMessageError{Raw: append([]byte(nil), message...)}
	}
	if len(message) > 0 {
		message = message[:len(message)-1]
	}

	resp.Message = string(message)
	return resp, nil
}
