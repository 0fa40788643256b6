package protocol

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	// PlayerListHeader is the first line of a showplayers reply.
	PlayerListHeader = "name,playeruid,steamid"

	// UnresolvedUID is reported for players the server could not identify.
	UnresolvedUID = "00000000"
)

// Player is one row of the showplayers reply.
type Player struct {
	Name      string `json:"name"`
	PlayerUID string `json:"player_uid"`
	SteamID   string `json:"steam_id"`
}

// Unresolved reports whether the server failed to resolve the player's identity.
func (p Player) Unresolved() bool {
	return p.PlayerUID == UnresolvedUID
}

// Key identifies a player across polls. Unresolved players share the zero
// UID, so the steam id is used for them.
func (p Player) Key() string {
	if p.Unresolved() || p.PlayerUID == "" {
		return "steam:" + p.SteamID
	}
	return p.PlayerUID
}

// PlayerList is a showplayers reply split into rows.
type PlayerList struct {
	Response
	Players           []Player `json:"players"`
	InvalidUIDPlayers []Player `json:"invalid_uid_players"`
}

// ParsePlayerList parses the rows of resp. The result starts out successful
// and turns unsuccessful once an unresolved player is seen. A row without
// exactly three comma-separated fields fails the whole parse. Blank lines
// are ignored.
func ParsePlayerList(resp *Response) (*PlayerList, error) {
	list := &PlayerList{
		Response:          *resp,
		Players:           []Player{},
		InvalidUIDPlayers: []Player{},
	}
	list.Successful = true

	for i, line := range resp.Lines() {
		if line == PlayerListHeader || strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, errors.Wrapf(ErrMalformedPlayerList,
				"line %d has %d fields: %q", i+1, len(fields), line)
		}

		p := Player{Name: fields[0], PlayerUID: fields[1], SteamID: fields[2]}
		if p.Unresolved() {
			list.InvalidUIDPlayers = append(list.InvalidUIDPlayers, p)
			list.Successful = false
			continue
		}
		list.Players = append(list.Players, p)
	}

	return list, nil
}

// Count returns the number of players including unresolved ones.
func (l *PlayerList) Count() int {
	return len(l.Players) + len(l.InvalidUIDPlayers)
}

// All returns resolved players followed by unresolved ones.
func (l *PlayerList) All() []Player {
	all := make([]Player, 0, l.Count())
	all = append(all, l.Players...)
	return append(all, l.InvalidUIDPlayers...)
}
