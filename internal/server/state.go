// Package server tracks the live state of the game server and exposes the
// administrative operations used by the API, console and scheduler.
package server

import (
	"sort"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/energizer-project/palrcon/internal/protocol"
)

// OnlinePlayer is a player seen in the most recent poll.
type OnlinePlayer struct {
	protocol.Player
	Unresolved bool      `json:"unresolved"`
	JoinedAt   time.Time `json:"joined_at"`
	LastSeen   time.Time `json:"last_seen"`
}

// Diff is the change between two consecutive polls.
type Diff struct {
	Joined        []protocol.Player
	Left          []protocol.Player
	NewUnresolved []protocol.Player
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.Joined) == 0 && len(d.Left) == 0
}

// State holds the players online and the last known server info. Reads are
// lock-free; Update calls are serialized.
type State struct {
	online cmap.ConcurrentMap[string, OnlinePlayer]

	updateMu sync.Mutex

	mu          sync.RWMutex
	lastPoll    time.Time
	lastPollErr string
	info        *protocol.ServerInfo
	infoAt      time.Time
	startedAt   time.Time
}

// NewState creates an empty State.
func NewState() *State {
	return &State{
		online:    cmap.New[OnlinePlayer](),
		startedAt: time.Now(),
	}
}

// Update replaces the online set with list and returns what changed.
// Players are matched across polls by protocol.Player.Key.
func (s *State) Update(list *protocol.PlayerList) Diff {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	now := time.Now()
	var diff Diff
	seen := make(map[string]struct{}, list.Count())

	for _, p := range list.All() {
		key := p.Key()
		seen[key] = struct{}{}

		prev, ok := s.online.Get(key)
		if !ok {
			s.online.Set(key, OnlinePlayer{Player: p, Unresolved: p.Unresolved(), JoinedAt: now, LastSeen: now})
			diff.Joined = append(diff.Joined, p)
			if p.Unresolved() {
				diff.NewUnresolved = append(diff.NewUnresolved, p)
			}
			continue
		}
		// Names can change between polls.
		prev.Player = p
		prev.LastSeen = now
		s.online.Set(key, prev)
	}

	for _, key := range s.online.Keys() {
		if _, ok := seen[key]; ok {
			continue
		}
		if gone, ok := s.online.Pop(key); ok {
			diff.Left = append(diff.Left, gone.Player)
		}
	}

	s.mu.Lock()
	s.lastPoll = now
	s.lastPollErr = ""
	s.mu.Unlock()

	return diff
}

// RecordPollError stores the error of a failed poll. The online set is kept.
func (s *State) RecordPollError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPollErr = err.Error()
}

// Clear forgets every online player and returns them.
func (s *State) Clear() []protocol.Player {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	var gone []protocol.Player
	for _, key := range s.online.Keys() {
		if p, ok := s.online.Pop(key); ok {
			gone = append(gone, p.Player)
		}
	}
	return gone
}

// Players returns the online players sorted by name.
func (s *State) Players() []OnlinePlayer {
	items := s.online.Items()
	players := make([]OnlinePlayer, 0, len(items))
	for _, p := range items {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Name != players[j].Name {
			return players[i].Name < players[j].Name
		}
		return players[i].Key() < players[j].Key()
	})
	return players
}

// Count returns the number of online players.
func (s *State) Count() int {
	return s.online.Count()
}

// FindBySteamID looks up an online player.
func (s *State) FindBySteamID(steamID string) (OnlinePlayer, bool) {
	for item := range s.online.IterBuffered() {
		if item.Val.SteamID == steamID {
			return item.Val, true
		}
	}
	return OnlinePlayer{}, false
}

// SetInfo stores the result of an info probe.
func (s *State) SetInfo(info *protocol.ServerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
	s.infoAt = time.Now()
}

// Snapshot is a point-in-time copy of State for serialization.
type Snapshot struct {
	Players     []OnlinePlayer       `json:"players"`
	Count       int                  `json:"count"`
	Unresolved  int                  `json:"unresolved"`
	LastPoll    time.Time            `json:"last_poll"`
	LastPollErr string               `json:"last_poll_error,omitempty"`
	Info        *protocol.ServerInfo `json:"info,omitempty"`
	InfoAt      time.Time            `json:"info_at"`
	Uptime      string               `json:"uptime"`
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	players := s.Players()
	unresolved := 0
	for _, p := range players {
		if p.Unresolved {
			unresolved++
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Players:     players,
		Count:       len(players),
		Unresolved:  unresolved,
		LastPoll:    s.lastPoll,
		LastPollErr: s.lastPollErr,
		InfoAt:      s.infoAt,
		Uptime:      time.Since(s.startedAt).Truncate(time.Second).String(),
	}
	if s.info != nil {
		info := *s.info
		snap.Info = &info
	}
	return snap
}
