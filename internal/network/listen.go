package network

import (
	"context"
	"net"
)

// Listen opens a TCP listener on addr with SO_REUSEADDR set, so a restarted
// service can rebind while the old socket is still in TIME_WAIT.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	return lc.Listen(ctx, "tcp", addr)
}
