// Package telemetry publishes server activity to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/energizer-project/palrcon/internal/config"
	"github.com/energizer-project/palrcon/internal/events"
	"github.com/energizer-project/palrcon/internal/util"
)

// Topic suffixes under <prefix>/<server>/.
const (
	TopicPlayers = "players"
	TopicEvents  = "events"
	TopicStatus  = "status"
)

// DefaultStatusInterval is how often a status heartbeat is published.
const DefaultStatusInterval = time.Minute

// StatusFunc returns the current service status for heartbeats.
type StatusFunc func() interface{}

// MQTTHandler publishes bus events as JSON. Every message carries the host
// metadata gathered at startup.
type MQTTHandler struct {
	client   mqtt.Client
	base     string
	metadata map[string]interface{}
	status   StatusFunc
	interval time.Duration
	logger   zerolog.Logger

	// publish is replaced in tests.
	publish func(topic string, retained bool, data []byte)
}

// NewMQTTHandler builds a handler for the mqtt config section. status may
// be nil.
func NewMQTTHandler(cfg config.MQTTConfig, status StatusFunc, interval time.Duration) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}
	if interval <= 0 {
		interval = DefaultStatusInterval
	}

	sysInfo := util.GetSystemInfo()
	serverName := cfg.ServerName
	if serverName == "" {
		serverName = sysInfo.Hostname
	}

	h := &MQTTHandler{
		base:     TopicBase(cfg.TopicPrefix, serverName),
		metadata: metadataFor(sysInfo, serverName),
		status:   status,
		interval: interval,
		logger:   util.ComponentLogger("mqtt"),
	}

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("palrcon-%s", sysInfo.Hostname))
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)

	offline, _ := json.Marshal(h.buildMessage(map[string]interface{}{"online": false}))
	opts.SetWill(h.Topic(TopicStatus), string(offline), 1, true)

	if cfg.UseTLS {
		tlsConfig, err := tlsConfigFor(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		h.logger.Info().Str("topic", h.base).Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		h.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	h.client = mqtt.NewClient(opts)
	h.publish = h.publishMQTT
	return h, nil
}

func tlsConfigFor(cfg config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in MQTT CA file %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// TopicBase returns "<prefix>/<server>" with slashes in server replaced.
func TopicBase(prefix, server string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "palrcon"
	}
	server = strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_").Replace(server)
	return prefix + "/" + server
}

func metadataFor(info util.SystemInfo, serverName string) map[string]interface{} {
	return map[string]interface{}{
		"server":    serverName,
		"hostname":  info.Hostname,
		"os":        info.OS,
		"cpu_model": info.CPUModel,
		"cpu_cores": info.CPUCores,
		"memory_mb": info.TotalMemory,
	}
}

// Topic returns the full topic for suffix.
func (h *MQTTHandler) Topic(suffix string) string {
	return h.base + "/" + suffix
}

// Attach subscribes the handler to bus.
func (h *MQTTHandler) Attach(bus *events.Bus) {
	bus.Subscribe(events.EventPlayersPolled, "mqtt.players", h.onPlayers)
	for _, t := range []events.EventType{
		events.EventPlayerJoined,
		events.EventPlayerLeft,
		events.EventUnresolvedPlayer,
		events.EventModeration,
		events.EventCommandExecuted,
	} {
		bus.Subscribe(t, "mqtt.events", h.onEvent)
	}
	bus.Subscribe(events.EventHealthChanged, "mqtt.status", h.onHealth)
}

// Start connects to the broker, publishes a status heartbeat every
// interval and blocks until ctx is done.
func (h *MQTTHandler) Start(ctx context.Context) error {
	h.logger.Info().Str("topic", h.base).Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.publishStatus(true)
	for {
		select {
		case <-ctx.Done():
			h.publishStatus(false)
			h.client.Disconnect(5000)
			h.logger.Info().Msg("MQTT disconnected")
			return nil
		case <-ticker.C:
			h.publishStatus(true)
		}
	}
}

func (h *MQTTHandler) publishStatus(online bool) {
	body := map[string]interface{}{
		"online": online,
		"load":   util.SampleHostLoad(""),
	}
	if online && h.status != nil {
		body["status"] = h.status()
	}
	h.send(TopicStatus, true, body)
}

func (h *MQTTHandler) send(suffix string, retained bool, payload interface{}) {
	data, err := json.Marshal(h.buildMessage(payload))
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", suffix).Msg("failed to marshal MQTT message")
		return
	}
	h.publish(h.Topic(suffix), retained, data)
}

func (h *MQTTHandler) publishMQTT(topic string, retained bool, data []byte) {
	if !h.client.IsConnected() {
		return
	}
	token := h.client.Publish(topic, 1, retained, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

func (h *MQTTHandler) onPlayers(ctx context.Context, event events.Event) error {
	h.send(TopicPlayers, true, event.Payload)
	return nil
}

func (h *MQTTHandler) onEvent(ctx context.Context, event events.Event) error {
	h.send(TopicEvents, false, map[string]interface{}{
		"event":  event.Type,
		"source": event.Source,
		"data":   event.Payload,
	})
	return nil
}

func (h *MQTTHandler) onHealth(ctx context.Context, event events.Event) error {
	h.send(TopicStatus, true, map[string]interface{}{
		"online": true,
		"health": event.Payload,
	})
	return nil
}
