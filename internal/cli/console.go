package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/energizer-project/palrcon/internal/protocol"
	"github.com/energizer-project/palrcon/internal/server"
)

// Actor is recorded for operations issued from the console.
const Actor = "console"

// Operator is the part of server.Manager the console drives.
type Operator interface {
	Poll(ctx context.Context) (*protocol.PlayerList, server.Diff, error)
	Info(ctx context.Context) (*protocol.Response, *protocol.ServerInfo, error)
	Broadcast(ctx context.Context, actor, message string) (*protocol.Response, error)
	Kick(ctx context.Context, actor, steamID string) (*protocol.Response, error)
	Ban(ctx context.Context, actor, steamID string) (*protocol.Response, error)
	Save(ctx context.Context, actor string) (*protocol.Response, error)
	Shutdown(ctx context.Context, actor string, seconds int, message string, save bool) (*protocol.Response, error)
	DoExit(ctx context.Context, actor string) (*protocol.Response, error)
	Command(ctx context.Context, actor, command string) (*protocol.Response, error)
}

// errQuit ends the console loop.
var errQuit = errors.New("quit")

// Console is an interactive line-based shell over an Operator.
type Console struct {
	op      Operator
	in      io.Reader
	out     io.Writer
	timeout time.Duration
}

// NewConsole creates a console reading from in and writing to out. timeout
// bounds each command; zero means none.
func NewConsole(op Operator, in io.Reader, out io.Writer, timeout time.Duration) *Console {
	return &Console{op: op, in: in, out: out, timeout: timeout}
}

// Run reads commands until quit, end of input or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, titleStyle.Render("palrcon console")+dimStyle.Render(" (type 'help' for commands)"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(c.out, "palrcon> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		case err := <-readErr:
			fmt.Fprintln(c.out)
			return err
		case line := <-lines:
			if err := c.Execute(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				PrintError(c.out, err)
			}
		}
	}
}

// Execute runs a single console line.
func (c *Console) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	switch cmd {
	case "help", "?":
		c.printHelp()
		return nil
	case "quit", "exit", "q":
		return errQuit
	case "players":
		list, _, err := c.op.Poll(ctx)
		if err != nil {
			return err
		}
		PrintPlayers(c.out, list)
		return nil
	case "info":
		resp, info, err := c.op.Info(ctx)
		if err != nil {
			return err
		}
		if info == nil {
			c.printResult(resp)
			return nil
		}
		fmt.Fprintf(c.out, "%s %s\n", titleStyle.Render(info.Name), dimStyle.Render(info.Version))
		return nil
	case "broadcast":
		if len(args) == 0 {
			return fmt.Errorf("usage: broadcast <message>")
		}
		return c.result(c.op.Broadcast(ctx, Actor, strings.Join(args, " ")))
	case "kick", "ban":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <steam_id>", cmd)
		}
		if cmd == "kick" {
			return c.result(c.op.Kick(ctx, Actor, args[0]))
		}
		return c.result(c.op.Ban(ctx, Actor, args[0]))
	case "save":
		return c.result(c.op.Save(ctx, Actor))
	case "shutdown":
		seconds, message, err := parseShutdownArgs(args)
		if err != nil {
			return err
		}
		return c.result(c.op.Shutdown(ctx, Actor, seconds, message, true))
	case "doexit":
		return c.result(c.op.DoExit(ctx, Actor))
	default:
		return c.result(c.op.Command(ctx, Actor, line))
	}
}

func (c *Console) result(resp *protocol.Response, err error) error {
	if err != nil {
		return err
	}
	c.printResult(resp)
	return nil
}

func (c *Console) printResult(resp *protocol.Response) {
	msg := strings.TrimRight(resp.Message, "\n")
	if resp.Successful {
		fmt.Fprintln(c.out, okStyle.Render(msg))
	} else {
		fmt.Fprintln(c.out, warnStyle.Render(msg))
	}
}

// parseShutdownArgs accepts "[seconds] [message...]". The delay defaults
// to 60 seconds.
func parseShutdownArgs(args []string) (int, string, error) {
	if len(args) == 0 {
		return 60, "", nil
	}
	seconds, err := strconv.Atoi(args[0])
	if err != nil || seconds < 0 {
		return 0, "", fmt.Errorf("invalid delay %q", args[0])
	}
	return seconds, strings.Join(args[1:], " "), nil
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, titleStyle.Render("Commands"))
	for _, row := range [][2]string{
		{"players", "list online players"},
		{"info", "show server name and version"},
		{"broadcast <message>", "send an in-game message"},
		{"kick <steam_id>", "kick a player"},
		{"ban <steam_id>", "ban a player"},
		{"save", "save the world"},
		{"shutdown [seconds] [message]", "save, then shut down after a delay"},
		{"doexit", "stop the server immediately"},
		{"quit", "leave the console"},
		{"<anything else>", "sent to the server as is"},
	} {
		fmt.Fprintf(c.out, "  %-30s %s\n", row[0], dimStyle.Render(row[1]))
	}
}
