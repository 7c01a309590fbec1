package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Server      ServerConfig      `toml:"server"`
	Store       StoreConfig       `toml:"store"`
	Auth        AuthConfig        `toml:"auth"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains the Spotify application identity.
//
// PKCE deliberately has no client secret; the client ID is the only credential needed.
type SpotifyConfig struct {
	ClientID string `toml:"client_id"`
}

// ServerConfig contains the loopback callback listener settings.
//
// Host and port must match the redirect URI registered with the provider exactly.
// They are read from config once and never renegotiated at runtime.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StoreConfig contains token store settings.
type StoreConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// AuthConfig contains authorization flow tuning.
type AuthConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
	HandoffDelayMS int `toml:"handoff_delay_ms"`
}

// RedirectURI composes the callback URI the listener serves.
//
// The result must be byte-identical to the URI registered with Spotify, including scheme, host, port, and path.
func (c *Config) RedirectURI() string {
	return fmt.Sprintf("http://%s:%d/callback", c.Server.Host, c.Server.Port)
}

// Timeout returns the authorization flow timeout as a [time.Duration].
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Auth.TimeoutSeconds) * time.Second
}

// HandoffDelay returns how long the listener waits after serving the success page before firing the host re-entry hand-off.
//
// A UX tunable, not a correctness boundary; it exists so the page can paint before the process moves on.
func (c *Config) HandoffDelay() time.Duration {
	return time.Duration(c.Auth.HandoffDelayMS) * time.Millisecond
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// SaveConfig serializes the configuration to TOML and writes it to the specified path.
func SaveConfig(path string, config *Config) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
