package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/energizer-project/palrcon/internal/network"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	s := cfg.Snapshot()
	result := &ValidationResult{}

	validateRCON(&s.RCON, result)
	validateScheduler(&s.Scheduler, result)
	validateAPI(&s.API, result)
	validateMQTT(&s.MQTT, result)

	if s.Discord.Enabled && !strings.HasPrefix(s.Discord.WebhookURL, "https://") {
		result.AddError("discord.webhook_url", "an https webhook URL is required when enabled")
	}

	if s.Database.Enabled && strings.TrimSpace(s.Database.Path) == "" {
		result.AddError("database.path", "database path is required when enabled")
	}
	if s.Health.IntervalSec > 0 && s.Health.IntervalSec < 5 {
		result.AddWarning("health.interval_sec", "health interval less than 5s may flood the server")
	}

	return result
}

func validateRCON(r *RCONConfig, result *ValidationResult) {
	if strings.TrimSpace(r.Host) == "" {
		result.AddError("rcon.host", "RCON host is required")
	}
	validatePort(r.Port, "rcon.port", result)

	if r.Password == "" {
		result.AddError("rcon.password", "RCON password is required (or set "+EnvPassword+")")
	}
	if _, err := network.NewTransport(r.Transport); err != nil {
		result.AddError("rcon.transport", fmt.Sprintf("must be %q or %q", network.KindStream, network.KindAsync))
	}
	if r.ConnectAttempts < 1 {
		result.AddWarning("rcon.connect_attempts", "values below 1 are treated as 1")
	}
	if r.RetryIntervalMS < 0 {
		result.AddError("rcon.retry_interval_ms", "retry interval must not be negative")
	}
	for i := 0; i < len(r.Password); i++ {
		if r.Password[i] > 0x7F {
			result.AddError("rcon.password", "password must be ASCII")
			break
		}
	}
}

func validateScheduler(s *SchedulerConfig, result *ValidationResult) {
	if s.PollIntervalSec > 0 && s.PollIntervalSec < 5 {
		result.AddWarning("scheduler.poll_interval_sec", "poll interval less than 5s may flood the server")
	}
	if s.AutosaveIntervalSec > 0 && s.AutosaveIntervalSec < 60 {
		result.AddWarning("scheduler.autosave_interval_sec", "autosave more often than once a minute")
	}
	if s.DailyRestart != "" {
		if _, err := time.Parse("15:04", s.DailyRestart); err != nil {
			result.AddError("scheduler.daily_restart", "expected HH:MM")
		}
	}
	if s.RestartWarningSec < 0 {
		result.AddError("scheduler.restart_warning_sec", "must not be negative")
	}
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	validatePort(a.Port, "api.port", result)

	if a.TLSEnabled {
		cert, key := strings.TrimSpace(a.TLSCertFile), strings.TrimSpace(a.TLSKeyFile)
		switch {
		case cert == "" && key == "":
			result.AddWarning("api.tls_cert_file", "no certificate configured, a self-signed one will be generated")
		case cert == "" || key == "":
			result.AddError("api.tls_cert_file", "tls_cert_file and tls_key_file must be set together")
		}
	}

	if a.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}

	if a.AuthDisabled {
		result.AddWarning("api.auth_disabled", "API authentication is disabled")
	} else if len(a.Tokens) == 0 {
		result.AddWarning("api.tokens", "no API tokens configured, only public routes are reachable")
	}
	for i, t := range a.Tokens {
		field := fmt.Sprintf("api.tokens[%d]", i)
		if !ValidPermission(t.Permission) {
			result.AddError(field+".permission", fmt.Sprintf("unknown permission %q", t.Permission))
		}
		if t.Hash == "" {
			result.AddError(field+".hash", "token hash is required")
		}
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if strings.TrimSpace(m.TopicPrefix) == "" {
		result.AddError("mqtt.topic_prefix", "topic prefix is required")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}
