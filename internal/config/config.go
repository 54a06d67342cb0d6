// Package config loads the parlord daemon configuration.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Secrets   SecretsConfig   `toml:"secrets"`
	Dispatch  DispatchConfig  `toml:"dispatch"`
	Summarize SummarizeConfig `toml:"summarize"`
	Search    SearchConfig    `toml:"search"`
}

type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type SecretsConfig struct {
	// MasterKey seals stored provider API keys. Must be set in production.
	MasterKey string `toml:"master_key"`
}

type DispatchConfig struct {
	// WindowSize is the number of recent messages passed to each bot.
	WindowSize int `toml:"window_size"`
}

type SummarizeConfig struct {
	// Provider/Model/APIKey configure the shared summarizer LLM. Optional;
	// without them memory falls back to truncation.
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	BaseURL  string `toml:"base_url"`
	APIKey   string `toml:"api_key"`
}

type SearchConfig struct {
	BraveAPIKey string `toml:"brave_api_key"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server:   ServerConfig{ListenAddr: ":8087"},
		Database: DatabaseConfig{Path: "parlor.db"},
		Dispatch: DispatchConfig{WindowSize: 15},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "parlor.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("PARLOR_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("PARLOR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PARLOR_MASTER_KEY"); v != "" {
		cfg.Secrets.MasterKey = v
	}
	if v := os.Getenv("PARLOR_SUMMARIZE_API_KEY"); v != "" {
		cfg.Summarize.APIKey = v
	}
	if v := os.Getenv("PARLOR_BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}

	return cfg
}
