package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func loadConfigFromString(t *testing.T, content string) *Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestLoad_FullConfig(t *testing.T) {
	content := `
webhookUrl: "https://flows.example.com/webhook/abc"
run:
  users: 500
  messagesPerUser: 3
  waveDelay: 2s
  deadline: 1m
  concurrency: 16
  rps: 50
store:
  backend: redis
  addr: "redis.local:6379"
  keyPrefix: "stress"
server:
  listen: ":9090"
sampleMessages:
  - "uno"
  - "dos"
`
	cfg := loadConfigFromString(t, content)

	if cfg.WebhookURL != "https://flows.example.com/webhook/abc" {
		t.Errorf("WebhookURL = %q", cfg.WebhookURL)
	}
	if cfg.Run.Users != 500 || cfg.Run.MessagesPerUser != 3 {
		t.Errorf("Run = %+v", cfg.Run)
	}
	if cfg.Run.WaveDelay != 2*time.Second {
		t.Errorf("WaveDelay = %v, expected 2s", cfg.Run.WaveDelay)
	}
	if cfg.Run.Deadline != time.Minute {
		t.Errorf("Deadline = %v, expected 1m", cfg.Run.Deadline)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.Addr != "redis.local:6379" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Server.Listen != ":9090" {
		t.Errorf("Listen = %q", cfg.Server.Listen)
	}
	if len(cfg.SampleMessages) != 2 || cfg.SampleMessages[0] != "uno" {
		t.Errorf("SampleMessages = %v", cfg.SampleMessages)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadConfigFromString(t, `webhookUrl: "http://localhost:5678/webhook"`)

	if cfg.Run.Users != 100 {
		t.Errorf("default Users = %d, expected 100", cfg.Run.Users)
	}
	if cfg.Run.MessagesPerUser != 1 {
		t.Errorf("default MessagesPerUser = %d, expected 1", cfg.Run.MessagesPerUser)
	}
	if cfg.Run.Deadline != 10*time.Minute {
		t.Errorf("default Deadline = %v, expected 10m", cfg.Run.Deadline)
	}
	if cfg.Run.Concurrency != 32 {
		t.Errorf("default Concurrency = %d, expected 32", cfg.Run.Concurrency)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("default Backend = %q, expected memory", cfg.Store.Backend)
	}
	if cfg.Store.KeyPrefix != "wasim" {
		t.Errorf("default KeyPrefix = %q, expected wasim", cfg.Store.KeyPrefix)
	}
	if len(cfg.SampleMessages) != len(DefaultSampleMessages) {
		t.Errorf("default SampleMessages length = %d", len(cfg.SampleMessages))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("run: [not: a: mapping"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}
