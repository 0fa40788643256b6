package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/palrcon/internal/events"
	"github.com/energizer-project/palrcon/internal/protocol"
	"github.com/energizer-project/palrcon/internal/util"
)

var ledgerMigrations = []string{
	`
	CREATE TABLE IF NOT EXISTS players (
		player_key TEXT PRIMARY KEY,
		steam_id TEXT NOT NULL,
		player_uid TEXT NOT NULL,
		name TEXT NOT NULL,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		sessions INTEGER NOT NULL DEFAULT 0,
		online INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS moderation (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		steam_id TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL,
		response TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS unresolved (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		steam_id TEXT NOT NULL,
		seen_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_players_steam_id ON players(steam_id);
	CREATE INDEX IF NOT EXISTS idx_moderation_steam_id ON moderation(steam_id);
	CREATE INDEX IF NOT EXISTS idx_moderation_created_at ON moderation(created_at);
	`,
}

// PlayerRecord is a ledger row for one player.
type PlayerRecord struct {
	SteamID   string    `json:"steam_id"`
	PlayerUID string    `json:"player_uid"`
	Name      string    `json:"name"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Sessions  int       `json:"sessions"`
	Online    bool      `json:"online"`
}

// ModerationRecord is a stored administrative action.
type ModerationRecord struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	SteamID   string    `json:"steam_id,omitempty"`
	Actor     string    `json:"actor"`
	Detail    string    `json:"detail,omitempty"`
	Success   bool      `json:"success"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UnresolvedSighting records a player the server reported with the zero UID.
type UnresolvedSighting struct {
	Name    string    `json:"name"`
	SteamID string    `json:"steam_id"`
	SeenAt  time.Time `json:"seen_at"`
}

// Ledger stores player history and moderation actions.
type Ledger struct {
	db     *Database
	logger zerolog.Logger
}

// OpenLedger opens the database at path and migrates it. Players left
// online by a previous run are marked offline.
func OpenLedger(ctx context.Context, path string) (*Ledger, error) {
	database, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}

	l := &Ledger{db: database, logger: util.ComponentLogger("ledger")}
	if err := database.Migrate(ctx, ledgerMigrations); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}
	if _, err := database.Exec(ctx, "UPDATE players SET online = 0 WHERE online = 1"); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to reset online players: %w", err)
	}
	return l, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Attach subscribes the ledger to the player and moderation events on bus.
func (l *Ledger) Attach(bus *events.Bus) {
	bus.Subscribe(events.EventPlayerJoined, "ledger.joined", func(ctx context.Context, e events.Event) error {
		p := e.Payload.(events.PlayerPayload)
		return l.RecordJoin(ctx, p.Player, e.Time)
	})
	bus.Subscribe(events.EventPlayerLeft, "ledger.left", func(ctx context.Context, e events.Event) error {
		p := e.Payload.(events.PlayerPayload)
		return l.RecordLeave(ctx, p.Player, e.Time)
	})
	bus.Subscribe(events.EventUnresolvedPlayer, "ledger.unresolved", func(ctx context.Context, e events.Event) error {
		p := e.Payload.(events.PlayerPayload)
		return l.RecordUnresolved(ctx, p.Player, e.Time)
	})
	bus.Subscribe(events.EventPlayersPolled, "ledger.polled", func(ctx context.Context, e events.Event) error {
		p := e.Payload.(events.PlayersPolledPayload)
		seen := make([]protocol.Player, 0, len(p.Players)+len(p.Unresolved))
		seen = append(seen, p.Players...)
		return l.Touch(ctx, append(seen, p.Unresolved...), e.Time)
	})
	bus.Subscribe(events.EventModeration, "ledger.moderation", func(ctx context.Context, e events.Event) error {
		return l.RecordModeration(ctx, e.Payload.(events.ModerationPayload), e.Time)
	})
}

// RecordJoin starts a session for p, creating the player on first sight.
func (l *Ledger) RecordJoin(ctx context.Context, p protocol.Player, at time.Time) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO players (player_key, steam_id, player_uid, name, first_seen, last_seen, sessions, online)
		VALUES (?, ?, ?, ?, ?, ?, 1, 1)
		ON CONFLICT(player_key) DO UPDATE SET
			name = excluded.name,
			steam_id = excluded.steam_id,
			last_seen = excluded.last_seen,
			sessions = players.sessions + 1,
			online = 1
	`, p.Key(), p.SteamID, p.PlayerUID, p.Name, at.Unix(), at.Unix())
	if err != nil {
		return fmt.Errorf("failed to record join of %s: %w", p.SteamID, err)
	}
	l.logger.Debug().Str("name", p.Name).Str("steam_id", p.SteamID).Msg("player joined")
	return nil
}

// RecordLeave ends the session of p.
func (l *Ledger) RecordLeave(ctx context.Context, p protocol.Player, at time.Time) error {
	_, err := l.db.Exec(ctx,
		"UPDATE players SET online = 0, last_seen = MAX(last_seen, ?) WHERE player_key = ?",
		at.Unix(), p.Key())
	if err != nil {
		return fmt.Errorf("failed to record leave of %s: %w", p.SteamID, err)
	}
	return nil
}

// Touch refreshes last_seen for every player in a poll.
func (l *Ledger) Touch(ctx context.Context, players []protocol.Player, at time.Time) error {
	if len(players) == 0 {
		return nil
	}
	return l.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, p := range players {
			if _, err := tx.ExecContext(ctx,
				"UPDATE players SET last_seen = MAX(last_seen, ?), name = ? WHERE player_key = ?",
				at.Unix(), p.Name, p.Key()); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordUnresolved stores a sighting of a player with the zero UID.
func (l *Ledger) RecordUnresolved(ctx context.Context, p protocol.Player, at time.Time) error {
	_, err := l.db.Exec(ctx,
		"INSERT INTO unresolved (name, steam_id, seen_at) VALUES (?, ?, ?)",
		p.Name, p.SteamID, at.Unix())
	if err != nil {
		return fmt.Errorf("failed to record unresolved player: %w", err)
	}
	return nil
}

// RecordModeration stores an administrative action.
func (l *Ledger) RecordModeration(ctx context.Context, m events.ModerationPayload, at time.Time) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO moderation (action, steam_id, actor, detail, success, response, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Action, m.SteamID, m.Actor, m.Detail, boolToInt(m.Success), m.Response, m.Error, at.Unix())
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", m.Action, err)
	}
	return nil
}

// Players returns known players, most recently seen first. limit <= 0
// returns all.
func (l *Ledger) Players(ctx context.Context, limit int) ([]PlayerRecord, error) {
	rows, err := l.db.Query(ctx, `
		SELECT steam_id, player_uid, name, first_seen, last_seen, sessions, online
		FROM players
		ORDER BY last_seen DESC, name
		LIMIT ?
	`, sqlLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []PlayerRecord{}
	for rows.Next() {
		var (
			r                   PlayerRecord
			firstSeen, lastSeen int64
			online              int
		)
		if err := rows.Scan(&r.SteamID, &r.PlayerUID, &r.Name, &firstSeen, &lastSeen, &r.Sessions, &online); err != nil {
			return nil, err
		}
		r.FirstSeen = time.Unix(firstSeen, 0)
		r.LastSeen = time.Unix(lastSeen, 0)
		r.Online = online != 0
		records = append(records, r)
	}
	return records, rows.Err()
}

// Moderation returns stored actions, newest first, optionally filtered by
// steamID.
func (l *Ledger) Moderation(ctx context.Context, steamID string, limit int) ([]ModerationRecord, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, action, steam_id, actor, detail, success, response, error, created_at
		FROM moderation
		WHERE ? = '' OR steam_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, steamID, steamID, sqlLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []ModerationRecord{}
	for rows.Next() {
		var (
			r         ModerationRecord
			success   int
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.Action, &r.SteamID, &r.Actor, &r.Detail, &success, &r.Response, &r.Error, &createdAt); err != nil {
			return nil, err
		}
		r.Success = success != 0
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Unresolved returns unresolved sightings, newest first.
func (l *Ledger) Unresolved(ctx context.Context, limit int) ([]UnresolvedSighting, error) {
	rows, err := l.db.Query(ctx,
		"SELECT name, steam_id, seen_at FROM unresolved ORDER BY id DESC LIMIT ?", sqlLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sightings := []UnresolvedSighting{}
	for rows.Next() {
		var (
			s      UnresolvedSighting
			seenAt int64
		)
		if err := rows.Scan(&s.Name, &s.SteamID, &seenAt); err != nil {
			return nil, err
		}
		s.SeenAt = time.Unix(seenAt, 0)
		sightings = append(sightings, s)
	}
	return sightings, rows.Err()
}

// Prune deletes moderation records and sightings older than retention.
// Player rows are kept.
func (l *Ledger) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).Unix()

	var removed int64
	err := l.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM moderation WHERE created_at < ?",
			"DELETE FROM unresolved WHERE seen_at < ?",
		} {
			res, err := tx.ExecContext(ctx, q, cutoff)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger: %w", err)
	}
	if removed > 0 {
		l.logger.Info().Int64("removed", removed).Msg("ledger pruned")
	}
	return removed, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
