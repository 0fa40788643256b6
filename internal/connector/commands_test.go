package connector

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/energizer-project/palrcon/internal/network"
	"github.com/energizer-project/palrcon/internal/protocol"
)

// scripted answers every command with the reply registered for its keyword.
func scripted(replies map[string]string) *fakeTransport {
	return &fakeTransport{handle: acceptAuth(func(p protocol.Packet) reply {
		return ok(p, replies[protocol.CommandKeyword(p.Message)])
	})}
}

func TestSendShutdown(t *testing.T) {
	replies := map[string]string{
		"save":     "Complete Save",
		"shutdown": "The server will shut down.",
	}
	cases := []struct {
		name     string
		seconds  int
		message  string
		sendSave bool
		want     []string
	}{
		{"floor at one", 0, "", false, []string{"shutdown 1"}},
		{"message spaces", 30, "restart in 30 seconds", false, []string{"shutdown 30 restart_in_30_seconds"}},
		{"save first", 2, "bye", true, []string{"save", "shutdown 5 bye"}},
		{"save keeps longer delay", 60, "", true, []string{"save", "shutdown 60"}},
		{"negative seconds", -10, "", false, []string{"shutdown 1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := scripted(replies)
			c, _ := newTestClient(tr)
			ctx := context.Background()
			_ = c.Connect(ctx, 1)

			resp, err := c.SendShutdown(ctx, tc.seconds, tc.message, tc.sendSave, 1)
			if err != nil {
				t.Fatalf("SendShutdown failed: %s", err)
			}
			if !resp.Successful {
				t.Fatalf("Expected a successful shutdown")
			}
			if got := tr.commands(); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Commands mismatch, got: %q, want: %q", got, tc.want)
			}
		})
	}
}

func TestSendShutdownSaveFailure(t *testing.T) {
	tr := &fakeTransport{handle: acceptAuth(func(p protocol.Packet) reply {
		return reply{frame: protocol.BuildResponse(p.ID, 0, "Comp")}
	})}
	c, _ := newTestClient(tr)
	ctx := context.Background()
	_ = c.Connect(ctx, 1)

	if _, err := c.SendShutdown(ctx, 10, "", true, 1); !errors.Is(err, protocol.ErrIncompleteMessage) {
		t.Fatalf("Expected the save failure, got: %v", err)
	}
	for _, cmd := range tr.commands() {
		if strings.HasPrefix(cmd, "shutdown") {
			t.Fatalf("Shutdown must not be sent after a failed save")
		}
	}
}

func TestSendDoExit(t *testing.T) {
	t.Run(
		"success",
		func(t *testing.T) {
			tr := scripted(map[string]string{"doexit": "Shutdown requested"})
			c, _ := newTestClient(tr)
			ctx := context.Background()
			_ = c.Connect(ctx, 1)

			resp, err := c.SendDoExit(ctx, 1)
			if err != nil || !resp.Successful {
				t.Fatalf("Expected success, got: %+v, %v", resp, err)
			}
		},
	)

	t.Run(
		"connection failure disconnects",
		func(t *testing.T) {
			reset := protocol.NewConnectionError("read", errors.New("reset"))
			tr := &fakeTransport{handle: acceptAuth(func(p protocol.Packet) reply {
				return reply{err: reset}
			})}
			c, _ := newTestClient(tr)
			ctx := context.Background()
			_ = c.Connect(ctx, 1)

			_, err := c.SendDoExit(ctx, 1)
			if !errors.Is(err, reset) {
				t.Fatalf("Expected the original connection error, got: %v", err)
			}
			if c.State() != network.StateDisconnected {
				t.Fatalf("Expected disconnected state, got: %s", c.State())
			}
		},
	)
}

func TestFormatters(t *testing.T) {
	tr := scripted(map[string]string{
		"broadcast":  "Broadcasted: server_restart",
		"kickplayer": "Kicked: Alice",
		"banplayer":  "Baned: Bob",
		"info":       "Welcome to Pal Server[v0.1.5.0] Test",
		"save":       "Complete Save",
	})
	c, _ := newTestClient(tr)
	ctx := context.Background()
	_ = c.Connect(ctx, 1)

	calls := []func() (*protocol.Response, error){
		func() (*protocol.Response, error) { return c.SendBroadcast(ctx, "server restart", 1) },
		func() (*protocol.Response, error) { return c.SendKickPlayer(ctx, "76561000000000001", 1) },
		func() (*protocol.Response, error) { return c.SendBanPlayer(ctx, "76561000000000002", 1) },
		func() (*protocol.Response, error) { return c.SendInfo(ctx, 1) },
		func() (*protocol.Response, error) { return c.SendSave(ctx, 1) },
	}
	for i, call := range calls {
		resp, err := call()
		if err != nil || !resp.Successful {
			t.Fatalf("Call %d failed: %+v, %v", i, resp, err)
		}
	}

	want := []string{
		"broadcast server_restart",
		"kickplayer 76561000000000001",
		"banplayer 76561000000000002",
		"info",
		"save",
	}
	if got := tr.commands(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Commands mismatch, got: %q, want: %q", got, want)
	}
}

func TestSendShowPlayers(t *testing.T) {
	t.Run(
		"parses rows",
		func(t *testing.T) {
			tr := scripted(map[string]string{
				"showplayers": "name,playeruid,steamid\nAlice,11111111,76561000000000001\nBob,00000000,76561000000000002",
			})
			c, _ := newTestClient(tr)
			ctx := context.Background()
			_ = c.Connect(ctx, 1)

			list, err := c.SendShowPlayers(ctx, 0)
			if err != nil {
				t.Fatalf("SendShowPlayers failed: %s", err)
			}
			if len(list.Players) != 1 || list.Players[0].Name != "Alice" {
				t.Fatalf("Players mismatch: %+v", list.Players)
			}
			if len(list.InvalidUIDPlayers) != 1 || list.InvalidUIDPlayers[0].Name != "Bob" {
				t.Fatalf("Invalid players mismatch: %+v", list.InvalidUIDPlayers)
			}
			if list.Successful {
				t.Fatalf("Expected an unsuccessful list")
			}

			resp, err := c.ExecuteCommand(ctx, "ShowPlayers", 1)
			if err != nil {
				t.Fatalf("ExecuteCommand failed: %s", err)
			}
			if resp.Successful {
				t.Fatalf("ExecuteCommand must use the player list result")
			}
		},
	)

	t.Run(
		"default attempts",
		func(t *testing.T) {
			tr := &fakeTransport{handle: acceptAuth(func(p protocol.Packet) reply {
				return reply{frame: protocol.BuildResponse(p.ID, 0, "name,player")}
			})}
			c, rec := newTestClient(tr)
			ctx := context.Background()
			_ = c.Connect(ctx, 1)

			if _, err := c.SendShowPlayers(ctx, 0); !errors.Is(err, protocol.ErrIncompleteMessage) {
				t.Fatalf("Expected ErrIncompleteMessage, got: %v", err)
			}
			if got := len(tr.commands()); got != DefaultShowPlayersAttempts {
				t.Fatalf("Expected %d sends, got: %d", DefaultShowPlayersAttempts, got)
			}
			if got := len(rec.get()); got != DefaultShowPlayersAttempts-1 {
				t.Fatalf("Expected %d waits, got: %d", DefaultShowPlayersAttempts-1, got)
			}
		},
	)

	t.Run(
		"malformed rows fail",
		func(t *testing.T) {
			tr := scripted(map[string]string{"showplayers": "name,playeruid,steamid\nbroken"})
			c, _ := newTestClient(tr)
			ctx := context.Background()
			_ = c.Connect(ctx, 1)

			if _, err := c.SendShowPlayers(ctx, 1); !errors.Is(err, protocol.ErrMalformedPlayerList) {
				t.Fatalf("Expected ErrMalformedPlayerList, got: %v", err)
			}
		},
	)
}
