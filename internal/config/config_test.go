package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(configPathEnv, path)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(ledgerDSNEnv, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ledger.Driver != "sqlite" || cfg.Ledger.Path != "arxiv_papers.db" {
		t.Fatalf("unexpected ledger defaults: %+v", cfg.Ledger)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("unexpected retry default: %+v", cfg.Retry)
	}
	if cfg.Retry.BaseDelayDuration() != time.Second {
		t.Fatalf("base delay default: %v", cfg.Retry.BaseDelayDuration())
	}
	if len(cfg.Sites) != 1 || cfg.Sites[0].Scanner != "arxiv" {
		t.Fatalf("unexpected default sites: %+v", cfg.Sites)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	writeConfig(t, `
ledger:
  driver: sqlite
  path: /tmp/papers.db
retry:
  maxAttempts: 5
  baseDelay: 2s
channels:
  - id: slack
    kind: chat-webhook
    chat:
      url: https://hooks.example.org/T/B/x
  - id: hook
    kind: generic-webhook
    webhook:
      url: https://api.example.org/papers
      batchSize: 1
`)
	t.Setenv(chatWebhookEnv, "https://hooks.example.org/override")
	t.Setenv(ledgerDSNEnv, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ledger.Path != "/tmp/papers.db" {
		t.Fatalf("file override lost: %+v", cfg.Ledger)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BaseDelayDuration() != 2*time.Second {
		t.Fatalf("retry settings: %+v", cfg.Retry)
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(cfg.Channels))
	}
	if cfg.Channels[0].Chat.URL != "https://hooks.example.org/override" {
		t.Fatalf("env override lost: %s", cfg.Channels[0].Chat.URL)
	}
	if cfg.Channels[1].Webhook.BatchSize != 1 {
		t.Fatalf("webhook batch size: %+v", cfg.Channels[1].Webhook)
	}
}

func TestValidateRejectsDuplicateChannelIDs(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Channels = []ChannelConfig{
		{ID: "x", Kind: KindChatWebhook, Chat: &ChatConfig{URL: "https://a"}},
		{ID: "x", Kind: KindGenericWebhook, Webhook: &WebhookConfig{URL: "https://b"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected duplicate id rejection")
	}
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Channels = []ChannelConfig{{ID: "x", Kind: "carrier-pigeon"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown kind rejection")
	}
}

func TestValidateRequiresKindSettings(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Channels = []ChannelConfig{{ID: "mail", Kind: KindEmail, Email: &EmailConfig{}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected email settings validation")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	writeConfig(t, `
retry:
  baseDelay: soon
`)
	if _, err := Load(); err == nil {
		t.Fatal("expected invalid duration error")
	}
}
