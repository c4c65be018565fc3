package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file on top of Default.
// A missing file is not an error: the defaults are returned unvalidated so
// that environment overrides can still complete them.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadWithEnv loads configuration from a file and applies environment variable overrides
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadCoreWithEnv is LoadWithEnv for tools that only drive the core
// components (no chat or HTTP transport settings are required).
func LoadCoreWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := cfg.ValidateCore(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides cfg with the environment variables that are set
func applyEnv(cfg *Config) error {
	if token := os.Getenv("BOT_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}

	if allowed := os.Getenv("ALLOWED_USERS"); allowed != "" {
		ids, err := ParseAllowedUsers(allowed)
		if err != nil {
			return fmt.Errorf("ALLOWED_USERS: %w", err)
		}
		cfg.Telegram.AllowedUsers = ids
	}

	if lang := os.Getenv("OVPNBOT_LANG"); lang != "" {
		cfg.Telegram.Language = lang
	}

	if host := os.Getenv("HOST"); host != "" {
		cfg.Server.Host = host
	}

	if dir := os.Getenv("OVPN_DIR"); dir != "" {
		cfg.OpenVPN.OutputDir = dir
	}

	if dir := os.Getenv("EASYRSA_DIR"); dir != "" {
		cfg.CA.EasyRSADir = dir
	}

	if tmpl := os.Getenv("OVPN_TEMPLATE"); tmpl != "" {
		cfg.OpenVPN.TemplatePath = tmpl
	}

	if dbPath := os.Getenv("OVPNBOT_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if listenAddr := os.Getenv("OVPNBOT_LISTEN_ADDR"); listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	if adminToken := os.Getenv("OVPNBOT_ADMIN_TOKEN"); adminToken != "" {
		cfg.Admin.Token = adminToken
	}

	if pageSize := os.Getenv("OVPNBOT_PAGE_SIZE"); pageSize != "" {
		n, err := strconv.Atoi(pageSize)
		if err != nil {
			return fmt.Errorf("OVPNBOT_PAGE_SIZE: %w", err)
		}
		cfg.Catalog.PageSize = n
	}

	return nil
}
