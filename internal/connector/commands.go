package connector

import (
	"context"
	"fmt"

	"github.com/energizer-project/palrcon/internal/protocol"
)

// SendShutdown schedules a server shutdown in seconds with an optional
// notice. With sendSave the world is saved first and the delay is at least
// five seconds. Spaces in message become underscores.
func (c *Client) SendShutdown(ctx context.Context, seconds int, message string, sendSave bool, maxAttempts int) (*protocol.Response, error) {
	if sendSave {
		if _, err := c.SendSave(ctx, maxAttempts); err != nil {
			return nil, err
		}
		seconds = max(5, seconds)
	}
	seconds = max(1, seconds)

	command := fmt.Sprintf("%s %d", protocol.CmdShutdown, seconds)
	if message != "" {
		command += " " + protocol.SafeMessage(message)
	}
	return c.ExecuteCommand(ctx, command, maxAttempts)
}

// SendDoExit stops the server immediately. On a connection failure the
// client is disconnected before the error is returned.
func (c *Client) SendDoExit(ctx context.Context, maxAttempts int) (*protocol.Response, error) {
	resp, err := c.ExecuteCommand(ctx, protocol.CmdDoExit, maxAttempts)
	if err != nil && protocol.IsConnectionFailure(err) {
		if derr := c.Disconnect(ctx); derr != nil {
			c.logger.Debug().Err(derr).Msg("disconnect after doexit failed")
		}
		return nil, err
	}
	return resp, err
}

// SendBroadcast sends message to every player. Spaces become underscores.
func (c *Client) SendBroadcast(ctx context.Context, message string, maxAttempts int) (*protocol.Response, error) {
	return c.ExecuteCommand(ctx, protocol.CmdBroadcast+" "+protocol.SafeMessage(message), maxAttempts)
}

// SendKickPlayer kicks the player with steamID.
func (c *Client) SendKickPlayer(ctx context.Context, steamID string, maxAttempts int) (*protocol.Response, error) {
	return c.ExecuteCommand(ctx, protocol.CmdKickPlayer+" "+steamID, maxAttempts)
}

// SendBanPlayer bans the player with steamID.
func (c *Client) SendBanPlayer(ctx context.Context, steamID string, maxAttempts int) (*protocol.Response, error) {
	return c.ExecuteCommand(ctx, protocol.CmdBanPlayer+" "+steamID, maxAttempts)
}

// SendShowPlayers lists connected players. maxAttempts of 0 or less uses
// DefaultShowPlayersAttempts, unlike ExecuteCommand which raises it to 1.
func (c *Client) SendShowPlayers(ctx context.Context, maxAttempts int) (*protocol.PlayerList, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultShowPlayersAttempts
	}
	_, list, err := c.execute(ctx, protocol.CmdShowPlayers, maxAttempts)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// SendInfo asks for the server version and name.
func (c *Client) SendInfo(ctx context.Context, maxAttempts int) (*protocol.Response, error) {
	return c.ExecuteCommand(ctx, protocol.CmdInfo, maxAttempts)
}

// SendSave saves the world.
func (c *Client) SendSave(ctx context.Context, maxAttempts int) (*protocol.Response, error) {
	return c.ExecuteCommand(ctx, protocol.CmdSave, maxAttempts)
}
