package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/palrcon/internal/config"
	"github.com/energizer-project/palrcon/internal/events"
	"github.com/energizer-project/palrcon/internal/util"
)

// Embed colors.
const (
	colorInfo    = 0x00FF00
	colorWarning = 0xFFAA00
	colorError   = 0xFF0000
)

// DiscordNotifier posts selected bus events to a Discord webhook.
type DiscordNotifier struct {
	cfg    config.DiscordConfig
	client *http.Client
	server string
	logger zerolog.Logger
}

// NewDiscordNotifier creates a notifier for the discord config section.
// server names the game server in embed footers.
func NewDiscordNotifier(cfg config.DiscordConfig, server string) *DiscordNotifier {
	return &DiscordNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		server: server,
		logger: util.ComponentLogger("discord"),
	}
}

// Attach subscribes the notifier to the events enabled in its config.
func (dn *DiscordNotifier) Attach(bus *events.Bus) {
	if dn.cfg.Moderation {
		bus.Subscribe(events.EventModeration, "discord.moderation", dn.onModeration)
	}
	if dn.cfg.Health {
		bus.Subscribe(events.EventHealthChanged, "discord.health", dn.onHealth)
	}
	if dn.cfg.Unresolved {
		bus.Subscribe(events.EventUnresolvedPlayer, "discord.unresolved", dn.onUnresolved)
	}
	if dn.cfg.PlayerEvents {
		bus.Subscribe(events.EventPlayerJoined, "discord.joined", dn.onPlayer)
		bus.Subscribe(events.EventPlayerLeft, "discord.left", dn.onPlayer)
	}
}

// Send posts a single embed.
func (dn *DiscordNotifier) Send(ctx context.Context, title, message string, color int) error {
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       title,
				"description": message,
				"color":       color,
				"timestamp":   time.Now().Format(time.RFC3339),
				"footer": map[string]string{
					"text": "palrcon " + dn.server,
				},
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dn.cfg.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := dn.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	dn.logger.Debug().Str("title", title).Msg("Discord webhook notification sent")
	return nil
}

func (dn *DiscordNotifier) onModeration(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.ModerationPayload)
	if !ok {
		return nil
	}

	title := fmt.Sprintf("%s by %s", p.Action, p.Actor)
	message := ""
	if p.SteamID != "" {
		message = "Steam ID: " + p.SteamID + "\n"
	}
	if p.Detail != "" {
		message += p.Detail + "\n"
	}

	color := colorInfo
	switch {
	case p.Error != "":
		color = colorError
		message += "Error: " + p.Error
	case !p.Success:
		color = colorWarning
		message += "Unexpected reply: " + p.Response
	default:
		message += p.Response
	}
	return dn.Send(ctx, title, message, color)
}

func (dn *DiscordNotifier) onHealth(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.HealthChangedPayload)
	if !ok {
		return nil
	}

	color := colorInfo
	switch p.Current {
	case events.HealthDegraded:
		color = colorWarning
	case events.HealthUnhealthy:
		color = colorError
	}

	message := fmt.Sprintf("%s -> %s", p.Previous, p.Current)
	if p.Version != "" {
		message += "\nVersion: " + p.Version
	}
	if p.Error != "" {
		message += "\nError: " + p.Error
	}
	return dn.Send(ctx, "Server health changed", message, color)
}

func (dn *DiscordNotifier) onUnresolved(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.PlayerPayload)
	if !ok {
		return nil
	}
	return dn.Send(ctx, "Unresolved player",
		fmt.Sprintf("%s (Steam ID %s) joined without a player UID", p.Player.Name, p.Player.SteamID),
		colorWarning)
}

func (dn *DiscordNotifier) onPlayer(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.PlayerPayload)
	if !ok {
		return nil
	}
	verb := "joined"
	if event.Type == events.EventPlayerLeft {
		verb = "left"
	}
	return dn.Send(ctx, "Player "+verb, fmt.Sprintf("%s (%s)", p.Player.Name, p.Player.SteamID), colorInfo)
}
