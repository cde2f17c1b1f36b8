package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the resolved backup configuration
type Config struct {
	WalletDirectory string   `yaml:"wallet_directory" json:"wallet_directory"`
	Hosts           []string `yaml:"hosts" json:"hosts"`
	BackupDirectory string   `yaml:"backup_directory" json:"backup_directory"`

	Port            int    `yaml:"port" json:"port"`
	ConnectTimeout  string `yaml:"connect_timeout" json:"connect_timeout"`
	KnownHosts      string `yaml:"known_hosts" json:"known_hosts"`
	TrustOnFirstUse bool   `yaml:"trust_on_first_use" json:"trust_on_first_use"`

	Compression      string `yaml:"compression" json:"compression"`
	ArchiveDir       string `yaml:"archive_dir" json:"archive_dir"`
	KeepLocalArchive bool   `yaml:"keep_local_archive" json:"keep_local_archive"`

	HistoryDB string        `yaml:"history_db" json:"history_db"`
	Mirror    *MirrorConfig `yaml:"mirror" json:"mirror"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// MirrorConfig contains settings for the optional S3 mirror destination
type MirrorConfig struct {
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"` // optional, for S3-compatible storage
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// Load loads configuration from a file and environment variables.
// The file may be YAML or JSON (YAML is a JSON superset).
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:            22,
		ConnectTimeout:  "10s",
		KnownHosts:      "~/.walletback/known_hosts",
		TrustOnFirstUse: true,
		Compression:     "none",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			File:       "",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}

	if path == "" {
		path = os.Getenv("WALLETBACK_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables
	if backupDir := os.Getenv("WALLETBACK_BACKUP_DIR"); backupDir != "" {
		cfg.BackupDirectory = backupDir
	}

	if knownHosts := os.Getenv("WALLETBACK_KNOWN_HOSTS"); knownHosts != "" {
		cfg.KnownHosts = knownHosts
	}

	if historyDB := os.Getenv("WALLETBACK_HISTORY_DB"); historyDB != "" {
		cfg.HistoryDB = historyDB
	}

	if logLevel := os.Getenv("WALLETBACK_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.WalletDirectory) == "" {
		return fmt.Errorf("wallet_directory must be set")
	}

	info, err := os.Stat(c.WalletDirectory)
	if err != nil {
		return fmt.Errorf("wallet_directory is not accessible: %w", err)
	}
	if !info.IsDir() && !IsArchiveName(c.WalletDirectory) {
		return fmt.Errorf("wallet_directory is not a directory: %s", c.WalletDirectory)
	}

	if len(c.Hosts) == 0 {
		return fmt.Errorf("hosts must list at least one host")
	}
	for i, host := range c.Hosts {
		if strings.TrimSpace(host) == "" {
			return fmt.Errorf("hosts[%d] is empty", i)
		}
	}

	if strings.TrimSpace(c.BackupDirectory) == "" {
		return fmt.Errorf("backup_directory must be set")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if _, err := time.ParseDuration(c.ConnectTimeout); err != nil {
		return fmt.Errorf("connect_timeout is not a valid duration: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Compression)) {
	case "", "none", "gzip":
	default:
		return fmt.Errorf("compression must be one of: none, gzip")
	}

	if c.Mirror != nil {
		if c.Mirror.Bucket == "" {
			return fmt.Errorf("mirror.bucket must be set")
		}
		if c.Mirror.Region == "" && c.Mirror.Endpoint == "" {
			return fmt.Errorf("mirror requires a region or an endpoint")
		}
	}

	return nil
}

// Timeout returns the parsed connect timeout.
// Validate guarantees the value parses; a non-positive duration falls back to 10s.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func (c *Config) expandPaths() {
	c.WalletDirectory = ExpandHome(c.WalletDirectory)
	c.KnownHosts = ExpandHome(c.KnownHosts)
	c.ArchiveDir = ExpandHome(c.ArchiveDir)
	c.HistoryDB = ExpandHome(c.HistoryDB)
	c.Logging.File = ExpandHome(c.Logging.File)
}

// IsArchiveName reports whether a path already names a packaged archive.
// Validate accepts such a wallet_directory even though it is a plain file,
// and packing passes it through unchanged.
func IsArchiveName(name string) bool {
	base := strings.ToLower(filepath.Base(name))
	return strings.HasSuffix(base, ".tar") ||
		strings.HasSuffix(base, ".tar.gz") ||
		strings.HasSuffix(base, ".tgz")
}

// ExpandHome resolves a leading ~ or ~/ to the current user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return home
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}

	return path
}
