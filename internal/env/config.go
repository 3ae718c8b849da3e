package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/luma/samaio/protocol"
)

var ErrInvalidConfig = errors.New("Invalid configuration")

const DefaultPollTimeout = 250 * time.Millisecond

type Config struct {
	// Host of the SAM bridge, or the address the bridge command listens on
	Host string `toml:"host" env:"SAM_HOST"`

	Port    int `toml:"port" env:"SAM_PORT"`
	UDPPort int `toml:"udp_port" env:"SAM_UDP_PORT"`

	// HTTPPort serves the bridge command's debug endpoints
	HTTPPort int `toml:"http_port" env:"SAM_HTTP_PORT"`

	// Keystore is the bbolt file holding saved keys
	Keystore string `toml:"keystore" env:"SAM_KEYSTORE"`

	Debug     bool `toml:"debug" env:"SAM_DEBUG"`
	DebugHTTP bool `toml:"debug_http" env:"SAM_DEBUG_HTTP"`

	PollTimeout time.Duration `toml:"poll_timeout" env:"SAM_POLL_TIMEOUT"`
}

// LoadConfig layers the optional TOML file at path, .env.local and the
// environment, in that order, then fills in defaults.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	config := Config{}

	if path != "" {
		if _, err := toml.DecodeFile(path, &config); err != nil {
			return nil, fmt.Errorf("Failed to read config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	fromEnv := Config{}
	if err := envconfig.Process(ctx, &fromEnv); err != nil {
		return nil, err
	}

	config.merge(fromEnv)

	if err := config.FixupAndValidate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// merge overrides c with every field that is set in other.
func (c *Config) merge(other Config) {
	if other.Host != "" {
		c.Host = other.Host
	}

	if other.Port != 0 {
		c.Port = other.Port
	}

	if other.UDPPort != 0 {
		c.UDPPort = other.UDPPort
	}

	if other.HTTPPort != 0 {
		c.HTTPPort = other.HTTPPort
	}

	if other.Keystore != "" {
		c.Keystore = other.Keystore
	}

	if other.PollTimeout != 0 {
		c.PollTimeout = other.PollTimeout
	}

	c.Debug = c.Debug || other.Debug
	c.DebugHTTP = c.DebugHTTP || other.DebugHTTP
}

// FixupAndValidate fills in defaults for anything left unset and rejects
// out of range values.
func (c *Config) FixupAndValidate() error {
	if c.Host == "" {
		c.Host = protocol.DefaultHost
	}

	if c.Port == 0 {
		c.Port = protocol.DefaultTCPPort
	}

	if c.UDPPort == 0 {
		c.UDPPort = protocol.DefaultUDPPort
	}

	if c.HTTPPort == 0 {
		c.HTTPPort = 7362
	}

	if c.Keystore == "" {
		c.Keystore = "samaio.db"
	}

	if c.PollTimeout == 0 {
		c.PollTimeout = DefaultPollTimeout
	}

	for name, port := range map[string]int{"port": c.Port, "udp_port": c.UDPPort, "http_port": c.HTTPPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s %d is out of range: %w", name, port, ErrInvalidConfig)
		}
	}

	if c.PollTimeout < 0 {
		return fmt.Errorf("poll_timeout must be positive: %w", ErrInvalidConfig)
	}

	return nil
}
