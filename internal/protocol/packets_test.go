package protocol_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/energizer-project/palrcon/internal/protocol"
)

func TestPacketEncode(t *testing.T) {
	t.Run(
		"golden command packet",
		func(t *testing.T) {
			p := protocol.Packet{ID: 1, Type: protocol.PacketTypeCommand, Message: "info"}
			got, err := p.Encode()
			if err != nil {
				t.Fatalf("Encode failed: %s", err)
			}
			want, _ := hex.DecodeString("0e000000" + "01000000" + "02000000" + "696e666f" + "0000")
			if !bytes.Equal(got, want) {
				t.Fatalf("Encoded packet mismatch, got: %x, want: %x", got, want)
			}
		},
	)

	t.Run(
		"auth packet with empty message",
		func(t *testing.T) {
			p := protocol.Packet{ID: -2, Type: protocol.PacketTypeAuth}
			got, err := p.Encode()
			if err != nil {
				t.Fatalf("Encode failed: %s", err)
			}
			want, _ := hex.DecodeString("0a000000" + "feffffff" + "03000000" + "0000")
			if !bytes.Equal(got, want) {
				t.Fatalf("Encoded packet mismatch, got: %x, want: %x", got, want)
			}
		},
	)

	t.Run(
		"non-ascii message is rejected",
		func(t *testing.T) {
			p := protocol.Packet{ID: 1, Type: protocol.PacketTypeCommand, Message: "broadcast héllo"}
			if _, err := p.Encode(); !errors.Is(err, protocol.ErrInvalidMessage) {
				t.Fatalf("Expected ErrInvalidMessage, got: %v", err)
			}
		},
	)

	t.Run(
		"embedded terminator is rejected",
		func(t *testing.T) {
			p := protocol.Packet{ID: 1, Type: protocol.PacketTypeCommand, Message: "a\x00\x00b"}
			if _, err := p.Encode(); !errors.Is(err, protocol.ErrInvalidMessage) {
				t.Fatalf("Expected ErrInvalidMessage, got: %v", err)
			}
		},
	)

	t.Run(
		"oversized message is rejected",
		func(t *testing.T) {
			p := protocol.Packet{ID: 1, Type: protocol.PacketTypeCommand, Message: strings.Repeat("a", protocol.MaxPacketSize)}
			if _, err := p.Encode(); !errors.Is(err, protocol.ErrInvalidMessage) {
				t.Fatalf("Expected ErrInvalidMessage, got: %v", err)
			}
		},
	)
}

func TestPacketRoundTrip(t *testing.T) {
	messages := []string{
		"",
		"\n",
		"info\n",
		"Broadcasted: hello_world\n",
		"name,playeruid,steamid\nAlice,11111111,76561000000000001\n",
	}
	ids := []int32{1, 42, protocol.MaxPacketID}

	for _, msg := range messages {
		for _, id := range ids {
			p := protocol.Packet{ID: id, Type: protocol.PacketTypeCommand, Message: msg}
			frame, err := p.Encode()
			if err != nil {
				t.Fatalf("Encode(%q) failed: %s", msg, err)
			}

			resp, err := protocol.DecodeBytes(frame)
			if err != nil {
				t.Fatalf("DecodeBytes(%q) failed: %s", msg, err)
			}
			if resp.ID != id {
				t.Fatalf("ID mismatch, got: %d, want: %d", resp.ID, id)
			}
			if resp.Type != uint32(protocol.PacketTypeCommand) {
				t.Fatalf("Type mismatch, got: %d, want: %d", resp.Type, protocol.PacketTypeCommand)
			}
			want := strings.TrimSuffix(msg, "\n")
			if resp.Message != want {
				t.Fatalf("Message mismatch, got: %q, want: %q", resp.Message, want)
			}
			if !bytes.Equal(resp.Raw, frame) {
				t.Fatalf("Raw bytes mismatch, got: %x, want: %x", resp.Raw, frame)
			}
			if resp.Successful {
				t.Fatalf("Decoded response must not be successful before classification")
			}
		}
	}
}

func TestNewPacketID(t *testing.T) {
	for i := 0; i < 10000; i++ {
		id := protocol.NewPacketID()
		if id < 1 {
			t.Fatalf("Packet id out of range: %d", id)
		}
	}
}

func TestPacketLogMessage(t *testing.T) {
	auth := protocol.NewAuthPacket("hunter2")
	if got := auth.LogMessage(); got != protocol.RedactedMessage {
		t.Fatalf("Auth message not redacted, got: %q", got)
	}
	cmd := protocol.NewCommandPacket("info")
	if got := cmd.LogMessage(); got != "info" {
		t.Fatalf("Command message mismatch, got: %q", got)
	}
}
