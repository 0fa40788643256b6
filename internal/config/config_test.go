package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/energizer-project/palrcon/internal/config"
)

func TestLoadCreatesDefault(t *testing.T) {
	t.Setenv(config.EnvPassword, "")
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %s", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Default config not written: %s", err)
	}
	if cfg.GetRCON().Port != config.DefaultRCONPort {
		t.Fatalf("Unexpected default port: %d", cfg.GetRCON().Port)
	}
	if !cfg.IsFirstRun() {
		t.Fatalf("Config without a password must be a first run")
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	t.Setenv(config.EnvHost, "")
	t.Setenv(config.EnvPort, "")
	t.Setenv(config.EnvPassword, "")
	path := filepath.Join(t.TempDir(), "palrcon.yaml")
	yaml := "rcon:\n  host: pal.example.com\n  password: hunter2\n  transport: async\nscheduler:\n  daily_restart: \"04:30\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatalf("Failed to write config: %s", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %s", err)
	}
	s := cfg.Snapshot()
	if s.RCON.Host != "pal.example.com" || s.RCON.Password != "hunter2" || s.RCON.Transport != "async" {
		t.Fatalf("YAML values not applied: %+v", s.RCON)
	}
	if s.RCON.Port != config.DefaultRCONPort || s.RCON.ShowPlayersAttempts != 10 {
		t.Fatalf("Defaults lost in overlay: %+v", s.RCON)
	}
	if s.Scheduler.DailyRestart != "04:30" {
		t.Fatalf("Scheduler not applied: %+v", s.Scheduler)
	}

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %s", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "host: pal.example.com") {
		t.Fatalf("Saved file is not YAML:\n%s", data)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"rcon":{"host":"file-host","password":"file-pw"}}`), 0600); err != nil {
		t.Fatalf("Failed to write config: %s", err)
	}
	t.Setenv(config.EnvHost, "env-host")
	t.Setenv(config.EnvPort, "25576")
	t.Setenv(config.EnvPassword, "env-pw")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %s", err)
	}
	r := cfg.GetRCON()
	if r.Host != "env-host" || r.Port != 25576 || r.Password != "env-pw" {
		t.Fatalf("Environment not applied: %+v", r)
	}

	cfg.AddToken(config.APIToken{Name: "ops", Hash: "x", Permission: config.PermMonitor})
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %s", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "env-pw") || strings.Contains(string(data), "env-host") {
		t.Fatalf("Environment overrides written to disk:\n%s", data)
	}
	if !strings.Contains(string(data), "file-pw") || !strings.Contains(string(data), "ops") {
		t.Fatalf("File values lost on save:\n%s", data)
	}
}

func TestRedacted(t *testing.T) {
	cfg := config.DefaultConfig()
	r := cfg.GetRCON()
	r.Password = "secret"
	cfg.SetRCON(r)
	cfg.AddToken(config.APIToken{Name: "ops", Hash: "$2a$10$abc", Permission: config.PermControl})

	red := cfg.Redacted()
	if red.RCON.Password == "secret" || red.API.Tokens[0].Hash != "" {
		t.Fatalf("Secrets not redacted: %+v", red)
	}
	if cfg.GetRCON().Password != "secret" {
		t.Fatalf("Redacted modified the live config")
	}
}

func TestValidate(t *testing.T) {
	cfg := config.DefaultConfig()
	result := config.Validate(cfg)
	if result.IsValid() {
		t.Fatalf("Config without a password must be invalid")
	}

	s := cfg.Snapshot()
	s.RCON.Password = "pw"
	s.RCON.Transport = "udp"
	s.Scheduler.DailyRestart = "25:99"
	s.API.Tokens = []config.APIToken{{Name: "x", Hash: "h", Permission: "root"}}
	bad := &config.Config{Settings: s}

	result = config.Validate(bad)
	fields := map[string]bool{}
	for _, e := range result.Errors {
		fields[e.Field] = true
	}
	for _, want := range []string{"rcon.transport", "scheduler.daily_restart", "api.tokens[0].permission"} {
		if !fields[want] {
			t.Fatalf("Expected an error for %s, got: %+v", want, result.Errors)
		}
	}

	s.RCON.Transport = "async"
	s.Scheduler.DailyRestart = "04:00"
	s.API.Tokens = nil
	good := &config.Config{Settings: s}
	if result := config.Validate(good); !result.IsValid() {
		t.Fatalf("Expected a valid config, got: %+v", result.Errors)
	}
}

func TestTokens(t *testing.T) {
	secret, token, err := config.GenerateToken("ops", config.PermControl)
	if err != nil {
		t.Fatalf("GenerateToken failed: %s", err)
	}
	if !token.Matches(secret) || token.Matches("wrong") {
		t.Fatalf("Token hash does not verify")
	}
	if !token.Grants(config.PermMonitor) || !token.Grants(config.PermControl) || token.Grants(config.PermConfigure) {
		t.Fatalf("Permission tiers mismatch for %q", token.Permission)
	}
	if _, _, err := config.GenerateToken("x", "root"); err == nil {
		t.Fatalf("Expected an error for an unknown permission")
	}
}

func TestSetupWizard(t *testing.T) {
	t.Setenv(config.EnvHost, "")
	t.Setenv(config.EnvPort, "")
	t.Setenv(config.EnvPassword, "")
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %s", err)
	}

	answers := strings.Join([]string{
		"10.0.0.5", // host
		"",         // port
		"hunter2",  // password
		"async",    // transport
		"",         // poll interval
		"600",      // autosave
		"05:00",    // daily restart
		"yes",      // api
		"",         // api port
		"yes",      // token
		"no",       // mqtt
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := config.RunSetupWizard(cfg, strings.NewReader(answers), &out); err != nil {
		t.Fatalf("RunSetupWizard failed: %s\n%s", err, out.String())
	}

	s := cfg.Snapshot()
	if s.RCON.Host != "10.0.0.5" || s.RCON.Password != "hunter2" || s.RCON.Transport != "async" {
		t.Fatalf("RCON answers not applied: %+v", s.RCON)
	}
	if s.Scheduler.AutosaveIntervalSec != 600 || s.Scheduler.DailyRestart != "05:00" {
		t.Fatalf("Scheduler answers not applied: %+v", s.Scheduler)
	}
	if len(s.API.Tokens) != 1 || !strings.Contains(out.String(), "Admin API token") {
		t.Fatalf("Admin token not created:\n%s", out.String())
	}

	reloaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Reload failed: %s", err)
	}
	if reloaded.GetRCON().Host != "10.0.0.5" {
		t.Fatalf("Wizard result not saved")
	}
}
