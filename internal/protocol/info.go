package protocol

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// ServerInfo is the parsed reply of the info command, e.g.
// "Welcome to Pal Server[v0.1.5.0] Default Palworld Server".
type ServerInfo struct {
	Version string `json:"version"`
	Name    string `json:"name"`
}

var infoPattern = regexp.MustCompile(`^Welcome to Pal Server\[(v?[^\]]*)\]\s*(.*)$`)

// ParseServerInfo extracts the version and server name from an info reply.
func ParseServerInfo(message string) (*ServerInfo, error) {
	line := strings.TrimSpace(strings.SplitN(message, "\n", 2)[0])
	m := infoPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, errors.Errorf("unrecognized info reply %q", line)
	}
	return &ServerInfo{Version: m[1], Name: strings.TrimSpace(m[2])}, nil
}
