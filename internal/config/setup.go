package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration and saves
// the result. It prints the secret of a newly created API token once.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	w := &wizard{reader: bufio.NewReader(in), out: out}

	fmt.Fprintln(out, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║            palrcon - First Run Setup         ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	s := cfg.Snapshot()

	fmt.Fprintln(out, "── RCON Connection ──")
	s.RCON.Host = w.promptString("Server host", s.RCON.Host)
	s.RCON.Port = w.promptInt("RCON port", s.RCON.Port)
	if pw := w.promptString("Admin password (leave blank to keep)", ""); pw != "" {
		s.RCON.Password = pw
	}
	s.RCON.Transport = w.promptString("Transport (stream/async)", s.RCON.Transport)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Scheduler ──")
	s.Scheduler.PollIntervalSec = w.promptInt("Player poll interval in seconds (0 disables)", s.Scheduler.PollIntervalSec)
	s.Scheduler.AutosaveIntervalSec = w.promptInt("Autosave interval in seconds (0 disables)", s.Scheduler.AutosaveIntervalSec)
	s.Scheduler.DailyRestart = w.promptString("Daily restart time HH:MM (blank disables)", s.Scheduler.DailyRestart)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── REST API ──")
	s.API.Enabled = w.promptBool("Enable REST API", s.API.Enabled)
	var secret string
	if s.API.Enabled {
		s.API.Port = w.promptInt("API port", s.API.Port)
		if w.promptBool("Create an admin API token", len(s.API.Tokens) == 0) {
			var token APIToken
			var err error
			secret, token, err = GenerateToken("admin", PermConfigure)
			if err != nil {
				return err
			}
			s.API.Tokens = append(s.API.Tokens, token)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── MQTT Telemetry ──")
	s.MQTT.Enabled = w.promptBool("Enable MQTT telemetry", s.MQTT.Enabled)
	if s.MQTT.Enabled {
		s.MQTT.BrokerURL = w.promptString("Broker host", s.MQTT.BrokerURL)
		s.MQTT.Port = w.promptInt("Broker port", s.MQTT.Port)
	}

	cfg.mu.Lock()
	cfg.Settings = s
	cfg.mu.Unlock()

	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Fprintln(out, "\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		return fmt.Errorf("configuration validation failed")
	}
	for _, warn := range result.Warnings {
		log.Warn().Str("field", warn.Field).Msg(warn.Message)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Configuration saved to %s\n", cfg.Path())
	if secret != "" {
		fmt.Fprintf(out, "  Admin API token (shown once): %s\n", secret)
	}
	return nil
}

type wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

func (w *wizard) readLine() string {
	input, _ := w.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func (w *wizard) promptString(prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(w.out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(w.out, "  %s: ", prompt)
	}

	input := w.readLine()
	if input == "" {
		return defaultVal
	}
	return input
}

func (w *wizard) promptInt(prompt string, defaultVal int) int {
	fmt.Fprintf(w.out, "  %s [%d]: ", prompt, defaultVal)

	input := w.readLine()
	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(w.out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func (w *wizard) promptBool(prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(w.out, "  %s [%s]: ", prompt, defaultStr)

	input := strings.ToLower(w.readLine())
	if input == "" {
		return defaultVal
	}
	return input == "yes" || input == "y" || input == "true" || input == "1"
}
