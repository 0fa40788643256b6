// Package config handles configuration loading, validation, and persistence
// for palrcon.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/energizer-project/palrcon/internal/util"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultRCONPort   = 25575
	DefaultAPIPort    = 5000
	DefaultMQTTPort   = 8883
)

// Environment variables that override the file.
const (
	EnvHost     = "RCON_HOST"
	EnvPort     = "RCON_PORT"
	EnvPassword = "RCON_PASSWORD"
)

// Config is the root configuration. Field access from several goroutines
// goes through Snapshot or the typed getters.
type Config struct {
	mu   sync.RWMutex
	path string

	// fileRCON and envRCON let Save write back the file values for fields
	// still holding an environment override.
	fileRCON RCONConfig
	envRCON  RCONConfig

	Settings `yaml:",inline"`
}

// Settings is the serialized part of Config.
type Settings struct {
	RCON      RCONConfig      `json:"rcon" yaml:"rcon"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Health    HealthConfig    `json:"health" yaml:"health"`
	API       APIConfig       `json:"api" yaml:"api"`
	MQTT      MQTTConfig      `json:"mqtt" yaml:"mqtt"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Discord   DiscordConfig   `json:"discord" yaml:"discord"`
	Logging   util.LogConfig  `json:"logging" yaml:"logging"`
}

// RCONConfig holds the connection to the game server.
type RCONConfig struct {
	Host                string `json:"host" yaml:"host"`
	Port                int    `json:"port" yaml:"port"`
	Password            string `json:"password" yaml:"password"`
	Transport           string `json:"transport" yaml:"transport"`
	ConnectAttempts     int    `json:"connect_attempts" yaml:"connect_attempts"`
	CommandAttempts     int    `json:"command_attempts" yaml:"command_attempts"`
	ShowPlayersAttempts int    `json:"showplayers_attempts" yaml:"showplayers_attempts"`
	RetryIntervalMS     int    `json:"retry_interval_ms" yaml:"retry_interval_ms"`
	CommandTimeoutSec   int    `json:"command_timeout_sec" yaml:"command_timeout_sec"`
}

// RetryInterval returns the backoff unit.
func (r RCONConfig) RetryInterval() time.Duration {
	return time.Duration(r.RetryIntervalMS) * time.Millisecond
}

// CommandTimeout returns the per-request deadline used by background
// loops. Zero means none.
func (r RCONConfig) CommandTimeout() time.Duration {
	return time.Duration(r.CommandTimeoutSec) * time.Second
}

// SchedulerConfig holds the periodic tasks.
type SchedulerConfig struct {
	PollIntervalSec     int    `json:"poll_interval_sec" yaml:"poll_interval_sec"`
	AutosaveIntervalSec int    `json:"autosave_interval_sec" yaml:"autosave_interval_sec"`
	DailyRestart        string `json:"daily_restart" yaml:"daily_restart"`
	RestartWarningSec   int    `json:"restart_warning_sec" yaml:"restart_warning_sec"`
	RestartMessage      string `json:"restart_message" yaml:"restart_message"`
}

// HealthConfig holds the info probe settings.
type HealthConfig struct {
	IntervalSec      int `json:"interval_sec" yaml:"interval_sec"`
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
}

// APIConfig holds the REST API settings.
type APIConfig struct {
	Enabled        bool       `json:"enabled" yaml:"enabled"`
	Bind           string     `json:"bind" yaml:"bind"`
	Port           int        `json:"port" yaml:"port"`
	TLSEnabled     bool       `json:"tls_enabled" yaml:"tls_enabled"`
	TLSCertFile    string     `json:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile     string     `json:"tls_key_file" yaml:"tls_key_file"`
	AllowedOrigins []string   `json:"allowed_origins" yaml:"allowed_origins"`
	RateLimitRPS   int        `json:"rate_limit_rps" yaml:"rate_limit_rps"`
	AuthDisabled   bool       `json:"auth_disabled" yaml:"auth_disabled"`
	Tokens         []APIToken `json:"tokens" yaml:"tokens"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	BrokerURL   string `json:"broker_url" yaml:"broker_url"`
	Port        int    `json:"port" yaml:"port"`
	UseTLS      bool   `json:"use_tls" yaml:"use_tls"`
	CertFile    string `json:"cert_file" yaml:"cert_file"`
	KeyFile     string `json:"key_file" yaml:"key_file"`
	CAFile      string `json:"ca_file" yaml:"ca_file"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
	ServerName  string `json:"server_name" yaml:"server_name"`
}

// DatabaseConfig holds the player ledger settings.
type DatabaseConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Path          string `json:"path" yaml:"path"`
	RetentionDays int    `json:"retention_days" yaml:"retention_days"`
}

// DiscordConfig holds the webhook notifier settings.
type DiscordConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	WebhookURL   string `json:"webhook_url" yaml:"webhook_url"`
	Moderation   bool   `json:"moderation" yaml:"moderation"`
	Health       bool   `json:"health" yaml:"health"`
	Unresolved   bool   `json:"unresolved" yaml:"unresolved"`
	PlayerEvents bool   `json:"player_events" yaml:"player_events"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{Settings: DefaultSettings()}
}

// DefaultSettings returns the default serialized settings.
func DefaultSettings() Settings {
	return Settings{
		RCON: RCONConfig{
			Host:                "127.0.0.1",
			Port:                DefaultRCONPort,
			Transport:           "stream",
			ConnectAttempts:     3,
			CommandAttempts:     1,
			ShowPlayersAttempts: 10,
			RetryIntervalMS:     1000,
			CommandTimeoutSec:   10,
		},
		Scheduler: SchedulerConfig{
			PollIntervalSec:   30,
			RestartWarningSec: 300,
			RestartMessage:    "Daily restart",
		},
		Health: HealthConfig{
			IntervalSec:      60,
			FailureThreshold: 3,
		},
		API: APIConfig{
			Enabled:      true,
			Bind:         "127.0.0.1",
			Port:         DefaultAPIPort,
			RateLimitRPS: 20,
		},
		MQTT: MQTTConfig{
			Port:        DefaultMQTTPort,
			UseTLS:      true,
			TopicPrefix: "palrcon",
		},
		Database: DatabaseConfig{
			Enabled:       true,
			Path:          filepath.Join("data", "palrcon.db"),
			RetentionDays: 90,
		},
		Discord: DiscordConfig{
			Moderation: true,
			Health:     true,
			Unresolved: true,
		},
		Logging: util.DefaultLogConfig(),
	}
}

// Load reads configuration from path. YAML is used for .yaml and .yml
// files, JSON otherwise. A missing file is created with defaults.
// Environment overrides are applied last and never written back.
func Load(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(DefaultConfigDir, DefaultConfigFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", path).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = path
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := unmarshal(path, data, &cfg.Settings); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.path = path
	log.Debug().Str("path", path).Msg("configuration loaded")

	cfg.applyEnv()
	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		return fmt.Errorf("config has no file path")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	settings := c.Settings
	settings.RCON = c.persistedRCON()
	data, err := marshal(c.path, &settings)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file holds the RCON password and token hashes.
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func unmarshal(path string, data []byte, s *Settings) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, s)
	}
	return json.Unmarshal(data, s)
}

func marshal(path string, s *Settings) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(s)
	}
	return json.MarshalIndent(s, "", "  ")
}

func (c *Config) applyEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fileRCON = c.RCON
	c.envRCON = RCONConfig{}

	if v := os.Getenv(EnvHost); v != "" {
		c.RCON.Host = v
		c.envRCON.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RCON.Port = port
			c.envRCON.Port = port
		} else {
			log.Warn().Str("value", v).Msg("ignoring invalid " + EnvPort)
		}
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.RCON.Password = v
		c.envRCON.Password = v
	}
}

// persistedRCON returns the RCON section without unchanged environment
// overrides. Callers hold c.mu.
func (c *Config) persistedRCON() RCONConfig {
	r := c.RCON
	if c.envRCON.Host != "" && r.Host == c.envRCON.Host {
		r.Host = c.fileRCON.Host
	}
	if c.envRCON.Port != 0 && r.Port == c.envRCON.Port {
		r.Port = c.fileRCON.Port
	}
	if c.envRCON.Password != "" && r.Password == c.envRCON.Password {
		r.Password = c.fileRCON.Password
	}
	return r
}

// Snapshot returns a copy of the settings.
func (c *Config) Snapshot() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.Settings
	s.API.AllowedOrigins = append([]string(nil), c.API.AllowedOrigins...)
	s.API.Tokens = append([]APIToken(nil), c.API.Tokens...)
	return s
}

// Redacted returns a copy of the settings with secrets masked.
func (c *Config) Redacted() Settings {
	s := c.Snapshot()
	if s.RCON.Password != "" {
		s.RCON.Password = "********"
	}
	if s.MQTT.Password != "" {
		s.MQTT.Password = "********"
	}
	if s.Discord.WebhookURL != "" {
		s.Discord.WebhookURL = "********"
	}
	for i := range s.API.Tokens {
		s.API.Tokens[i].Hash = ""
	}
	return s
}

// GetRCON returns a copy of the RCON configuration.
func (c *Config) GetRCON() RCONConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.RCON
}

// SetRCON updates the RCON configuration.
func (c *Config) SetRCON(r RCONConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RCON = r
}

// AddToken appends an API token.
func (c *Config) AddToken(t APIToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.API.Tokens = append(c.API.Tokens, t)
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.RCON.Password == ""
}
