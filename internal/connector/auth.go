package connector

import (
	"context"

	"github.com/energizer-project/palrcon/internal/protocol"
)

// authenticate sends the password and waits for the reply. Any decode
// failure is returned unchanged; packet id -1 yields
// protocol.ErrAuthenticationFailed.
func (c *Client) authenticate(ctx context.Context) error {
	p := protocol.NewAuthPacket(c.password)
	if err := c.conn.WritePacket(ctx, p); err != nil {
		return err
	}
	if _, err := c.decoder.Decode(ctx, c.conn, p); err != nil {
		return err
	}

	c.conn.MarkAuthenticated()
	c.logger.Debug().Str("addr", c.conn.Addr()).Msg("successful login")
	return nil
}
