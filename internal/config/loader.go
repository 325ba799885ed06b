package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token must be set"))
	}

	if cfg.Lavalink.Address == "" {
		errs = append(errs, errors.New("lavalink.address must be set"))
	} else if strings.Contains(cfg.Lavalink.Address, "://") {
		errs = append(errs, fmt.Errorf("lavalink.address %q must be host:port without a scheme", cfg.Lavalink.Address))
	}
	if cfg.Lavalink.Password == "" {
		errs = append(errs, errors.New("lavalink.password must be set"))
	}

	if cfg.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn must be set"))
	}

	if cfg.Player.MaxVolume < 0 || cfg.Player.MaxVolume > 1000 {
		errs = append(errs, fmt.Errorf("player.max_volume %d is out of range [0, 1000]", cfg.Player.MaxVolume))
	}
	if cfg.Player.IdleWindow < 0 {
		errs = append(errs, errors.New("player.idle_window must not be negative"))
	}
	if cfg.Player.WindowTTL < 0 {
		errs = append(errs, errors.New("player.window_ttl must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %w", errors.Join(errs...))
	}
	return nil
}
