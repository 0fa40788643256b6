package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/energizer-project/palrcon/internal/protocol"
	"github.com/energizer-project/palrcon/internal/server"
)

const playerRows = protocol.PlayerListHeader + "\nAlice,1111,76561190000000001\nGhost,00000000,76561190000000002\n"

func reply(command, message string) *protocol.Response {
	resp := &protocol.Response{
		ID:      7,
		Message: message,
		Raw:     []byte(message),
		Request: protocol.NewCommandPacket(command),
	}
	return protocol.Classify(resp, protocol.CommandKeyword(command))
}

type fakeOperator struct {
	calls []string
	err   error
}

func (f *fakeOperator) call(name string, resp *protocol.Response) (*protocol.Response, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, f.err
	}
	return resp, nil
}

func (f *fakeOperator) Poll(ctx context.Context) (*protocol.PlayerList, server.Diff, error) {
	f.calls = append(f.calls, "poll")
	if f.err != nil {
		return nil, server.Diff{}, f.err
	}
	list, err := protocol.ParsePlayerList(reply("showplayers", playerRows))
	return list, server.Diff{}, err
}

func (f *fakeOperator) Info(ctx context.Context) (*protocol.Response, *protocol.ServerInfo, error) {
	resp, err := f.call("info", reply("info", "Welcome to Pal Server[v0.1.5.0] Test World"))
	if err != nil {
		return nil, nil, err
	}
	info, _ := protocol.ParseServerInfo(resp.Message)
	return resp, info, nil
}

func (f *fakeOperator) Broadcast(ctx context.Context, actor, message string) (*protocol.Response, error) {
	return f.call(actor+" broadcast "+message, reply("broadcast", "Broadcasted: "+message))
}

func (f *fakeOperator) Kick(ctx context.Context, actor, steamID string) (*protocol.Response, error) {
	return f.call(actor+" kick "+steamID, reply("kickplayer", "Kicked: "+steamID))
}

func (f *fakeOperator) Ban(ctx context.Context, actor, steamID string) (*protocol.Response, error) {
	return f.call(actor+" ban "+steamID, reply("banplayer", "Baned: "+steamID))
}

func (f *fakeOperator) Save(ctx context.Context, actor string) (*protocol.Response, error) {
	return f.call(actor+" save", reply("save", "Complete Save"))
}

func (f *fakeOperator) Shutdown(ctx context.Context, actor string, seconds int, message string, save bool) (*protocol.Response, error) {
	name := actor + " shutdown " + strings.TrimSpace(strings.Join([]string{strconv.Itoa(seconds), message}, " "))
	return f.call(name, reply("shutdown", "The server will shut down"))
}

func (f *fakeOperator) DoExit(ctx context.Context, actor string) (*protocol.Response, error) {
	return f.call(actor+" doexit", reply("doexit", "Shutdown..."))
}

func (f *fakeOperator) Command(ctx context.Context, actor, command string) (*protocol.Response, error) {
	return f.call(actor+" command "+command, reply(command, "raw reply"))
}

func TestConsoleRun(t *testing.T) {
	op := &fakeOperator{}
	var out bytes.Buffer
	input := strings.Join([]string{
		"help",
		"",
		"players",
		"broadcast server restarts soon",
		"kick 76561190000000001",
		"ban",
		"save",
		"shutdown 30 bye all",
		"/settime 12",
		"quit",
		"save",
	}, "\n")

	console := NewConsole(op, strings.NewReader(input), &out, 0)
	if err := console.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %s", err)
	}

	want := []string{
		"poll",
		"console broadcast server restarts soon",
		"console kick 76561190000000001",
		"console save",
		"console shutdown 30 bye all",
		"console command /settime 12",
	}
	if strings.Join(op.calls, "|") != strings.Join(want, "|") {
		t.Fatalf("Unexpected calls:\n got %q\nwant %q", op.calls, want)
	}

	text := out.String()
	for _, s := range []string{"Commands", "Alice", "unresolved", "usage: ban <steam_id>", "Kicked: 76561190000000001"} {
		if !strings.Contains(text, s) {
			t.Errorf("Output missing %q:\n%s", s, text)
		}
	}
}

func TestConsoleEndOfInput(t *testing.T) {
	op := &fakeOperator{}
	var out bytes.Buffer
	if err := NewConsole(op, strings.NewReader("info\n"), &out, 0).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %s", err)
	}
	if !strings.Contains(out.String(), "Test World") {
		t.Fatalf("Info not printed:\n%s", out.String())
	}
}

func TestConsoleErrors(t *testing.T) {
	op := &fakeOperator{err: protocol.ErrCommandFailed}
	console := NewConsole(op, strings.NewReader(""), &bytes.Buffer{}, 0)

	if err := console.Execute(context.Background(), "save"); !errors.Is(err, protocol.ErrCommandFailed) {
		t.Fatalf("Expected ErrCommandFailed, got: %v", err)
	}
	if err := console.Execute(context.Background(), "shutdown soon"); err == nil {
		t.Fatalf("Expected invalid delay error")
	}
	if err := console.Execute(context.Background(), "QUIT"); !errors.Is(err, errQuit) {
		t.Fatalf("Expected quit, got: %v", err)
	}
}

func TestParseShutdownArgs(t *testing.T) {
	seconds, message, err := parseShutdownArgs(nil)
	if err != nil || seconds != 60 || message != "" {
		t.Fatalf("Unexpected defaults: %d %q %v", seconds, message, err)
	}
	if _, _, err := parseShutdownArgs([]string{"-5"}); err == nil {
		t.Fatalf("Negative delay accepted")
	}
}

type fakeClient struct {
	command  string
	attempts int
}

func (f *fakeClient) ExecuteCommand(ctx context.Context, command string, maxAttempts int) (*protocol.Response, error) {
	f.command, f.attempts = command, maxAttempts
	return reply(command, "Complete Save"), nil
}

func (f *fakeClient) SendShowPlayers(ctx context.Context, maxAttempts int) (*protocol.PlayerList, error) {
	f.command, f.attempts = "showplayers", maxAttempts
	return protocol.ParsePlayerList(reply("showplayers", playerRows))
}

func TestRunCommand(t *testing.T) {
	client := &fakeClient{}
	var out bytes.Buffer
	if err := RunCommand(context.Background(), client, "save", 0, false, &out); err != nil {
		t.Fatalf("RunCommand failed: %s", err)
	}
	if client.command != "save" || client.attempts != 1 {
		t.Fatalf("Unexpected call: %q %d", client.command, client.attempts)
	}
	if !strings.Contains(out.String(), "Complete Save") || !strings.Contains(out.String(), "packet_id=7") {
		t.Fatalf("Unexpected output:\n%s", out.String())
	}

	out.Reset()
	if err := RunCommand(context.Background(), client, "/ShowPlayers", 0, true, &out); err != nil {
		t.Fatalf("RunCommand failed: %s", err)
	}
	if client.command != "showplayers" {
		t.Fatalf("showplayers did not use SendShowPlayers")
	}
	var decoded struct {
		Players           []protocol.Player `json:"players"`
		InvalidUIDPlayers []protocol.Player `json:"invalid_uid_players"`
		Successful        bool              `json:"is_successful"`
		Raw               string            `json:"raw_message"`
	}
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("Invalid JSON output: %s", err)
	}
	if len(decoded.Players) != 1 || len(decoded.InvalidUIDPlayers) != 1 || decoded.Successful || decoded.Raw == "" {
		t.Fatalf("Unexpected JSON: %s", out.String())
	}
}
