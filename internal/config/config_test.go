package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if cfg.Server.ListenAddr != ":8087" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Dispatch.WindowSize != 15 {
		t.Errorf("window size = %d", cfg.Dispatch.WindowSize)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parlor.toml")
	data := `
[server]
listen_addr = ":9999"

[database]
path = "/tmp/file.db"

[secrets]
master_key = "from-file"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PARLOR_MASTER_KEY", "from-env")
	cfg := Load(path)

	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("listen addr = %q, want the file value", cfg.Server.ListenAddr)
	}
	if cfg.Database.Path != "/tmp/file.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.Secrets.MasterKey != "from-env" {
		t.Errorf("master key = %q, want env to win", cfg.Secrets.MasterKey)
	}
}
