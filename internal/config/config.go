package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	OpenVPN  OpenVPNConfig  `yaml:"openvpn"`
	CA       CAConfig       `yaml:"ca"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Telegram TelegramConfig `yaml:"telegram"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP admin API configuration
type ServerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Host       string `yaml:"host"`
}

// DatabaseConfig contains audit database configuration. An empty path
// disables the audit trail.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// OpenVPNConfig contains paths of the issued client configs
type OpenVPNConfig struct {
	OutputDir    string `yaml:"output_dir"`
	TemplatePath string `yaml:"template_path"`
	Extension    string `yaml:"extension"`
}

// CAConfig contains easy-rsa configuration
type CAConfig struct {
	EasyRSADir     string `yaml:"easyrsa_dir"`
	ValidityDays   int    `yaml:"validity_days"`
	IssueTimeout   string `yaml:"issue_timeout"`
	FixPermissions bool   `yaml:"fix_permissions"`
	DirMode        string `yaml:"dir_mode"`
	Owner          string `yaml:"owner"`
}

// CatalogConfig contains catalog listing configuration
type CatalogConfig struct {
	PageSize int `yaml:"page_size"`
}

// TelegramConfig contains chat transport configuration
type TelegramConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Token        string  `yaml:"token"`
	AllowedUsers []int64 `yaml:"allowed_users"`
	Language     string  `yaml:"language"`
	PollTimeout  int     `yaml:"poll_timeout"`
}

// AdminConfig contains admin API credentials
type AdminConfig struct {
	Token           string `yaml:"token"`
	TokenHash       string `yaml:"token_hash"`
	TOTPSecret      string `yaml:"totp_secret"`
	MaxAuthFailures int    `yaml:"max_auth_failures"` // per 15 minutes, 0 disables the lockout
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file or environment value
// overrides a setting.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:8080",
		},
		Database: DatabaseConfig{
			Path: "/var/lib/ovpnbot/audit.db",
		},
		OpenVPN: OpenVPNConfig{
			OutputDir:    "/root/ovpns",
			TemplatePath: "/etc/openvpn/server/client-common.txt",
			Extension:    ".ovpn",
		},
		CA: CAConfig{
			EasyRSADir:     "/etc/openvpn/server/easy-rsa",
			ValidityDays:   3650,
			IssueTimeout:   "2m",
			FixPermissions: true,
			DirMode:        "755",
			Owner:          "root:root",
		},
		Catalog: CatalogConfig{
			PageSize: 10,
		},
		Telegram: TelegramConfig{
			Enabled:     true,
			Language:    "ru",
			PollTimeout: 60,
		},
		Admin: AdminConfig{
			MaxAuthFailures: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks if the configuration is valid for the server binary
func (c *Config) Validate() error {
	if err := c.ValidateCore(); err != nil {
		return err
	}

	// Transport validation
	if !c.Server.Enabled && !c.Telegram.Enabled {
		return fmt.Errorf("at least one of server.enabled or telegram.enabled must be set")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required when telegram is enabled")
	}
	if c.Telegram.Language != "en" && c.Telegram.Language != "ru" {
		return fmt.Errorf("telegram.language must be 'en' or 'ru'")
	}
	if c.Server.Enabled {
		if c.Server.ListenAddr == "" {
			return fmt.Errorf("server.listen_addr is required")
		}
		if c.Admin.Token == "" && c.Admin.TokenHash == "" {
			return fmt.Errorf("admin.token or admin.token_hash is required when server is enabled")
		}
		if c.Admin.MaxAuthFailures < 0 {
			return fmt.Errorf("admin.max_auth_failures must not be negative")
		}
		if c.Admin.Token == "change-me" {
			fmt.Fprintf(os.Stderr, "WARNING: Using default admin token. Please change it in production!\n")
		}
	}

	return nil
}

// ValidateCore checks the settings needed by the issuance and catalog
// components, ignoring the transports.
func (c *Config) ValidateCore() error {
	// OpenVPN validation
	if c.OpenVPN.OutputDir == "" {
		return fmt.Errorf("openvpn.output_dir is required")
	}
	if c.OpenVPN.TemplatePath == "" {
		return fmt.Errorf("openvpn.template_path is required")
	}
	if !strings.HasPrefix(c.OpenVPN.Extension, ".") || len(c.OpenVPN.Extension) < 2 {
		return fmt.Errorf("openvpn.extension must start with '.'")
	}

	// CA validation
	if c.CA.EasyRSADir == "" {
		return fmt.Errorf("ca.easyrsa_dir is required")
	}
	if c.CA.ValidityDays <= 0 {
		return fmt.Errorf("ca.validity_days must be positive")
	}
	if _, err := time.ParseDuration(c.CA.IssueTimeout); err != nil {
		return fmt.Errorf("ca.issue_timeout is invalid: %w", err)
	}
	if c.CA.FixPermissions {
		if _, err := strconv.ParseUint(c.CA.DirMode, 8, 32); err != nil {
			return fmt.Errorf("ca.dir_mode must be an octal mode: %w", err)
		}
		if c.CA.Owner == "" {
			return fmt.Errorf("ca.owner is required when ca.fix_permissions is set")
		}
	}

	// Catalog validation
	if c.Catalog.PageSize <= 0 {
		return fmt.Errorf("catalog.page_size must be positive")
	}

	// Logging validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	return nil
}

// GetIssueTimeout returns the CA invocation timeout as time.Duration
func (c *Config) GetIssueTimeout() time.Duration {
	d, _ := time.ParseDuration(c.CA.IssueTimeout)
	return d
}

// ParseAllowedUsers parses a comma separated list of Telegram user IDs.
func ParseAllowedUsers(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
