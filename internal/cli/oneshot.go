package cli

import (
	"context"
	"io"

	"github.com/energizer-project/palrcon/internal/connector"
	"github.com/energizer-project/palrcon/internal/protocol"
)

// CommandClient is the part of connector.Client used by RunCommand.
type CommandClient interface {
	ExecuteCommand(ctx context.Context, command string, maxAttempts int) (*protocol.Response, error)
	SendShowPlayers(ctx context.Context, maxAttempts int) (*protocol.PlayerList, error)
}

// RunCommand sends command once and writes the outcome to out. showplayers
// goes through SendShowPlayers so the rows are parsed; maxAttempts <= 0
// uses each operation's default.
func RunCommand(ctx context.Context, client CommandClient, command string, maxAttempts int, asJSON bool, out io.Writer) error {
	if protocol.CommandKeyword(command) == protocol.CmdShowPlayers {
		list, err := client.SendShowPlayers(ctx, maxAttempts)
		if err != nil {
			return err
		}
		if asJSON {
			return PrintJSON(out, list)
		}
		io.WriteString(out, Summary(&list.Response)+"\n\n")
		PrintPlayers(out, list)
		return nil
	}

	if maxAttempts <= 0 {
		maxAttempts = connector.DefaultCommandAttempts
	}
	resp, err := client.ExecuteCommand(ctx, command, maxAttempts)
	if err != nil {
		return err
	}
	if asJSON {
		return PrintJSON(out, resp)
	}
	PrintResponse(out, resp)
	return nil
}
