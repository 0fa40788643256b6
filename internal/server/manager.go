package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/palrcon/internal/config"
	"github.com/energizer-project/palrcon/internal/connector"
	"github.com/energizer-project/palrcon/internal/events"
	"github.com/energizer-project/palrcon/internal/network"
	"github.com/energizer-project/palrcon/internal/protocol"
	"github.com/energizer-project/palrcon/internal/util"
)

// Executor is the part of connector.Client the Manager drives.
type Executor interface {
	Connect(ctx context.Context, maxAttempts int) error
	ExecuteCommand(ctx context.Context, command string, maxAttempts int) (*protocol.Response, error)
	SendShutdown(ctx context.Context, seconds int, message string, sendSave bool, maxAttempts int) (*protocol.Response, error)
	SendDoExit(ctx context.Context, maxAttempts int) (*protocol.Response, error)
	SendBroadcast(ctx context.Context, message string, maxAttempts int) (*protocol.Response, error)
	SendKickPlayer(ctx context.Context, steamID string, maxAttempts int) (*protocol.Response, error)
	SendBanPlayer(ctx context.Context, steamID string, maxAttempts int) (*protocol.Response, error)
	SendShowPlayers(ctx context.Context, maxAttempts int) (*protocol.PlayerList, error)
	SendInfo(ctx context.Context, maxAttempts int) (*protocol.Response, error)
	SendSave(ctx context.Context, maxAttempts int) (*protocol.Response, error)
	State() network.State
	Addr() string
	Close() error
}

// sessionReporter is implemented by executors that track connection times.
type sessionReporter interface {
	Session() network.Session
}

// ErrEmptyArgument is returned when a required argument is blank.
var ErrEmptyArgument = errors.New("argument must not be empty")

// Options tunes the attempts the Manager passes to the executor.
type Options struct {
	ConnectAttempts     int
	CommandAttempts     int
	ShowPlayersAttempts int
}

// OptionsFromConfig maps the rcon config section to Options.
func OptionsFromConfig(r config.RCONConfig) Options {
	return Options{
		ConnectAttempts:     r.ConnectAttempts,
		CommandAttempts:     r.CommandAttempts,
		ShowPlayersAttempts: r.ShowPlayersAttempts,
	}
}

// NewClient builds the RCON client described by the rcon config section.
func NewClient(r config.RCONConfig) (*connector.Client, error) {
	transport, err := network.NewTransport(r.Transport)
	if err != nil {
		return nil, err
	}
	return connector.NewClient(connector.Options{
		Host:          r.Host,
		Port:          r.Port,
		Password:      r.Password,
		Transport:     transport,
		RetryInterval: r.RetryInterval(),
	}), nil
}

// Manager runs administrative operations against one game server, keeps
// State current and publishes the outcome of every operation on the bus.
type Manager struct {
	exec   Executor
	bus    *events.Bus
	state  *State
	opts   Options
	logger zerolog.Logger
}

// NewManager creates a Manager. bus may be nil.
func NewManager(exec Executor, bus *events.Bus, opts Options) *Manager {
	if opts.ConnectAttempts < 1 {
		opts.ConnectAttempts = connector.DefaultConnectAttempts
	}
	if opts.CommandAttempts < 1 {
		opts.CommandAttempts = connector.DefaultCommandAttempts
	}
	if opts.ShowPlayersAttempts < 1 {
		opts.ShowPlayersAttempts = connector.DefaultShowPlayersAttempts
	}
	return &Manager{
		exec:   exec,
		bus:    bus,
		state:  NewState(),
		opts:   opts,
		logger: util.ComponentLogger("manager"),
	}
}

// State returns the tracked server state.
func (m *Manager) State() *State {
	return m.state
}

// Connected reports whether the executor holds an authenticated session.
func (m *Manager) Connected() bool {
	return m.exec.State() == network.StateAuthenticated
}

// Session returns the executor's connection state and timestamps. Only the
// state is known for executors that do not track times.
func (m *Manager) Session() network.Session {
	if r, ok := m.exec.(sessionReporter); ok {
		return r.Session()
	}
	return network.Session{State: m.exec.State()}
}

// Addr returns host:port of the game server.
func (m *Manager) Addr() string {
	return m.exec.Addr()
}

// Connect logs in to the game server.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.exec.Connect(ctx, m.opts.ConnectAttempts); err != nil {
		return err
	}
	m.logger.Info().Str("addr", m.exec.Addr()).Msg("connected to game server")
	return nil
}

// Close ends the RCON session.
func (m *Manager) Close() error {
	return m.exec.Close()
}

// Poll lists the players, updates State and publishes joins and leaves.
func (m *Manager) Poll(ctx context.Context) (*protocol.PlayerList, Diff, error) {
	list, err := m.exec.SendShowPlayers(ctx, m.opts.ShowPlayersAttempts)
	if err != nil {
		m.state.RecordPollError(err)
		return nil, Diff{}, err
	}

	diff := m.state.Update(list)
	for _, p := range diff.Joined {
		m.emit(ctx, events.EventPlayerJoined, events.PlayerPayload{Player: p})
	}
	for _, p := range diff.Left {
		m.emit(ctx, events.EventPlayerLeft, events.PlayerPayload{Player: p})
	}
	for _, p := range diff.NewUnresolved {
		m.emit(ctx, events.EventUnresolvedPlayer, events.PlayerPayload{Player: p})
	}
	m.emit(ctx, events.EventPlayersPolled, events.PlayersPolledPayload{
		Players:    list.Players,
		Unresolved: list.InvalidUIDPlayers,
		Joined:     len(diff.Joined),
		Left:       len(diff.Left),
	})

	if !diff.Empty() {
		m.logger.Info().
			Int("online", m.state.Count()).
			Int("joined", len(diff.Joined)).
			Int("left", len(diff.Left)).
			Msg("player list changed")
	}
	return list, diff, nil
}

// Info asks the server for its version and name.
func (m *Manager) Info(ctx context.Context) (*protocol.Response, *protocol.ServerInfo, error) {
	resp, err := m.exec.SendInfo(ctx, m.opts.CommandAttempts)
	if err != nil {
		return nil, nil, err
	}
	info, err := protocol.ParseServerInfo(resp.Message)
	if err != nil {
		return resp, nil, err
	}
	m.state.SetInfo(info)
	return resp, info, nil
}

// Broadcast sends message to every player.
func (m *Manager) Broadcast(ctx context.Context, actor, message string) (*protocol.Response, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("broadcast message: %w", ErrEmptyArgument)
	}
	resp, err := m.exec.SendBroadcast(ctx, message, m.opts.CommandAttempts)
	m.moderation(ctx, events.ActionBroadcast, "", actor, message, resp, err)
	return resp, err
}

// Kick removes the player with steamID from the server.
func (m *Manager) Kick(ctx context.Context, actor, steamID string) (*protocol.Response, error) {
	if strings.TrimSpace(steamID) == "" {
		return nil, fmt.Errorf("steam id: %w", ErrEmptyArgument)
	}
	resp, err := m.exec.SendKickPlayer(ctx, steamID, m.opts.CommandAttempts)
	m.moderation(ctx, events.ActionKick, steamID, actor, m.playerName(steamID), resp, err)
	return resp, err
}

// Ban bans the player with steamID.
func (m *Manager) Ban(ctx context.Context, actor, steamID string) (*protocol.Response, error) {
	if strings.TrimSpace(steamID) == "" {
		return nil, fmt.Errorf("steam id: %w", ErrEmptyArgument)
	}
	resp, err := m.exec.SendBanPlayer(ctx, steamID, m.opts.CommandAttempts)
	m.moderation(ctx, events.ActionBan, steamID, actor, m.playerName(steamID), resp, err)
	return resp, err
}

// Save saves the world.
func (m *Manager) Save(ctx context.Context, actor string) (*protocol.Response, error) {
	resp, err := m.exec.SendSave(ctx, m.opts.CommandAttempts)
	m.moderation(ctx, events.ActionSave, "", actor, "", resp, err)
	return resp, err
}

// Shutdown schedules a server shutdown after seconds with an optional
// notice, saving first when save is set.
func (m *Manager) Shutdown(ctx context.Context, actor string, seconds int, message string, save bool) (*protocol.Response, error) {
	resp, err := m.exec.SendShutdown(ctx, seconds, message, save, m.opts.CommandAttempts)
	detail := fmt.Sprintf("in %ds", seconds)
	if message != "" {
		detail += ": " + message
	}
	m.moderation(ctx, events.ActionShutdown, "", actor, detail, resp, err)
	return resp, err
}

// DoExit stops the server immediately. The online set is cleared on
// success since the server takes every player with it.
func (m *Manager) DoExit(ctx context.Context, actor string) (*protocol.Response, error) {
	resp, err := m.exec.SendDoExit(ctx, m.opts.CommandAttempts)
	m.moderation(ctx, events.ActionDoExit, "", actor, "", resp, err)
	if err == nil && resp.Successful {
		for _, p := range m.state.Clear() {
			m.emit(ctx, events.EventPlayerLeft, events.PlayerPayload{Player: p})
		}
	}
	return resp, err
}

// Command runs a raw console command.
func (m *Manager) Command(ctx context.Context, actor, command string) (*protocol.Response, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("command: %w", ErrEmptyArgument)
	}

	start := time.Now()
	resp, err := m.exec.ExecuteCommand(ctx, command, m.opts.CommandAttempts)

	payload := events.CommandPayload{
		Command:  protocol.NormalizeCommand(command),
		Actor:    actor,
		Duration: time.Since(start),
	}
	if err != nil {
		payload.Error = err.Error()
	} else {
		payload.Success = resp.Successful
		payload.Response = resp.Message
	}
	m.emit(ctx, events.EventCommandExecuted, payload)
	return resp, err
}

func (m *Manager) moderation(ctx context.Context, action, steamID, actor, detail string, resp *protocol.Response, err error) {
	payload := events.ModerationPayload{
		Action:  action,
		SteamID: steamID,
		Actor:   actor,
		Detail:  detail,
	}
	if err != nil {
		payload.Error = err.Error()
	} else if resp != nil {
		payload.Success = resp.Successful
		payload.Response = resp.Message
	}

	level := zerolog.InfoLevel
	if !payload.Success {
		level = zerolog.WarnLevel
	}
	m.logger.WithLevel(level).
		Str("action", action).
		Str("actor", actor).
		Str("steam_id", steamID).
		Bool("successful", payload.Success).
		Str("error", payload.Error).
		Msg("moderation action")

	m.emit(ctx, events.EventModeration, payload)
}

func (m *Manager) playerName(steamID string) string {
	if p, ok := m.state.FindBySteamID(steamID); ok {
		return p.Name
	}
	return ""
}

func (m *Manager) emit(ctx context.Context, t events.EventType, payload interface{}) {
	if m.bus == nil {
		return
	}
	// Handlers outlive the request that triggered them.
	m.bus.Emit(context.WithoutCancel(ctx), events.New(t, "manager", payload))
}
