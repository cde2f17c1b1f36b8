package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func walletDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "wallet_data")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create wallet dir: %v", err)
	}
	return dir
}

func TestLoadValidConfig(t *testing.T) {
	wallet := walletDir(t)
	path := writeConfigFile(t, `
wallet_directory: `+wallet+`
hosts:
  - remote1
  - remote2
  - remote2
backup_directory: /usr/local/var/backup
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.WalletDirectory != wallet {
		t.Fatalf("wallet_directory = %q", cfg.WalletDirectory)
	}
	if len(cfg.Hosts) != 3 || cfg.Hosts[1] != "remote2" || cfg.Hosts[2] != "remote2" {
		t.Fatalf("hosts = %v; duplicates must be preserved in order", cfg.Hosts)
	}
	if cfg.Port != 22 {
		t.Fatalf("expected default port 22, got %d", cfg.Port)
	}
	if !cfg.TrustOnFirstUse {
		t.Fatalf("expected trust_on_first_use to default to true")
	}
	if cfg.Timeout() != 10*time.Second {
		t.Fatalf("expected default 10s timeout, got %v", cfg.Timeout())
	}
}

func TestLoadJSONConfig(t *testing.T) {
	// YAML is a JSON superset, so the original JSON config shape still loads.
	wallet := walletDir(t)
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"wallet_directory": "` + wallet + `", "hosts": ["remote1"], "backup_directory": "/backup"}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Hosts) != 1 || cfg.Hosts[0] != "remote1" {
		t.Fatalf("hosts = %v", cfg.Hosts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	wallet := walletDir(t)

	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"no wallet dir", func(c *Config) { c.WalletDirectory = "" }},
		{"wallet dir missing on disk", func(c *Config) { c.WalletDirectory = filepath.Join(wallet, "gone") }},
		{"no hosts", func(c *Config) { c.Hosts = nil }},
		{"blank host", func(c *Config) { c.Hosts = []string{"remote1", " "} }},
		{"no backup dir", func(c *Config) { c.BackupDirectory = "" }},
		{"bad port", func(c *Config) { c.Port = 70000 }},
		{"bad timeout", func(c *Config) { c.ConnectTimeout = "soon" }},
		{"bad compression", func(c *Config) { c.Compression = "zstd" }},
		{"mirror without bucket", func(c *Config) { c.Mirror = &MirrorConfig{Region: "us-east-1"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				WalletDirectory: wallet,
				Hosts:           []string{"remote1"},
				BackupDirectory: "/backup",
				Port:            22,
				ConnectTimeout:  "10s",
			}
			tt.mut(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation to fail")
			}
		})
	}
}

func TestValidateAcceptsArchiveSource(t *testing.T) {
	// A wallet_directory that names a packaged archive is a plain file;
	// every suffix the pass-through path recognizes must validate.
	for _, name := range []string{"wallet.tar", "wallet.tar.gz", "wallet.tgz"} {
		t.Run(name, func(t *testing.T) {
			archive := filepath.Join(t.TempDir(), name)
			if err := os.WriteFile(archive, []byte("archive"), 0644); err != nil {
				t.Fatalf("failed to write archive: %v", err)
			}

			cfg := &Config{
				WalletDirectory: archive,
				Hosts:           []string{"remote1"},
				BackupDirectory: "/backup",
				Port:            22,
				ConnectTimeout:  "10s",
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("validate failed for %s: %v", name, err)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	wallet := walletDir(t)
	path := writeConfigFile(t, `
wallet_directory: `+wallet+`
hosts: [remote1]
backup_directory: /from/file
`)

	t.Setenv("WALLETBACK_BACKUP_DIR", "/from/env")
	t.Setenv("WALLETBACK_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.BackupDirectory != "/from/env" {
		t.Fatalf("expected env override, got %q", cfg.BackupDirectory)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected log level override, got %q", cfg.Logging.Level)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	if got := ExpandHome("~/wallet"); got != filepath.Join(home, "wallet") {
		t.Fatalf("ExpandHome(~/wallet) = %q", got)
	}
	if got := ExpandHome("~"); got != home {
		t.Fatalf("ExpandHome(~) = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("ExpandHome must leave absolute paths alone, got %q", got)
	}
	if got := ExpandHome(""); got != "" {
		t.Fatalf("ExpandHome(\"\") = %q", got)
	}
}

func TestTimeoutFallback(t *testing.T) {
	cfg := &Config{ConnectTimeout: "250ms"}
	if cfg.Timeout() != 250*time.Millisecond {
		t.Fatalf("Timeout() = %v", cfg.Timeout())
	}

	cfg.ConnectTimeout = "garbage"
	if cfg.Timeout() != 10*time.Second {
		t.Fatalf("expected 10s fallback, got %v", cfg.Timeout())
	}
}
