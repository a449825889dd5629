package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Client holds CLI settings persisted in config.toml.
type Client struct {
	ServerURL string   `toml:"server_url"`
	Timeout   Duration `toml:"timeout"`
}

// Duration decodes TOML strings like "30s".
type Duration struct{ time.Duration }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.Duration.String()), nil }

// DefaultClient returns built-in CLI defaults.
func DefaultClient() Client {
	return Client{ServerURL: "http://localhost:8080", Timeout: Duration{30 * time.Second}}
}

// Dir returns the per-user config directory.
func Dir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "tasklist")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tasklist")
}

// ClientPath is the default location of config.toml.
func ClientPath() string { return filepath.Join(Dir(), "config.toml") }

// LoadClient overlays defaults with the TOML file at path. A missing file is not an error.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultClient(), nil
		}
		return Client{}, err
	}
	if cfg.Timeout.Duration <= 0 {
		cfg.Timeout = DefaultClient().Timeout
	}
	return cfg, nil
}

// SaveClient writes cfg to path, creating the directory.
func SaveClient(path string, cfg Client) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
