// Package config loads the TOML configuration of the server and client
// binaries.
package config

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Engine selector values.
const (
	EngineMemory = "memory"
	EngineBadger = "badger"
)

// ServerTLS names the server certificate material. ClientCAFile switches on
// mutual authentication.
type ServerTLS struct {
	CertFile     string `toml:"cert_file"`
	KeyFile      string `toml:"key_file"`
	ClientCAFile string `toml:"client_ca_file"`
}

// StorageConfig selects the engine. Path is required for the badger engine.
type StorageConfig struct {
	Engine string `toml:"engine"`
	Path   string `toml:"path"`
}

// ServerConfig is the full server configuration.
type ServerConfig struct {
	ListenAddr  string        `toml:"listen_addr"`
	LogLevel    string        `toml:"log_level"`
	MetricsAddr string        `toml:"metrics_addr"`
	WALPath     string        `toml:"wal_path"`
	TLS         ServerTLS     `toml:"tls"`
	Storage     StorageConfig `toml:"storage"`
}

// DefaultServerConfig returns the baseline a config file overrides.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr: "127.0.0.1:9527",
		LogLevel:   "info",
		Storage:    StorageConfig{Engine: EngineMemory},
	}
}

func (c *ServerConfig) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr must not be empty")
	}
	if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
		return errors.New("tls cert_file and key_file are required")
	}
	switch c.Storage.Engine {
	case EngineMemory:
	case EngineBadger:
		if c.Storage.Path == "" {
			return errors.New("storage path is required for the badger engine")
		}
	default:
		return errors.Errorf("unknown storage engine %q", c.Storage.Engine)
	}
	return nil
}

// LoadServer reads path over the defaults and validates the result.
func LoadServer(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "load server config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ClientTLS names the trust anchors and the optional client identity.
type ClientTLS struct {
	CAFile   string `toml:"ca_file"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

// ClientConfig is the full client configuration.
type ClientConfig struct {
	ServerAddr string    `toml:"server_addr"`
	ServerName string    `toml:"server_name"`
	PoolSize   int       `toml:"pool_size"`
	LogLevel   string    `toml:"log_level"`
	TLS        ClientTLS `toml:"tls"`
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerAddr: "127.0.0.1:9527",
		ServerName: "localhost",
		PoolSize:   4,
		LogLevel:   "info",
	}
}

func (c *ClientConfig) Validate() error {
	if c.ServerAddr == "" {
		return errors.New("server_addr must not be empty")
	}
	if c.ServerName == "" {
		return errors.New("server_name must not be empty")
	}
	if c.PoolSize <= 0 {
		return errors.New("pool_size must be positive")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errors.New("client identity needs both cert_file and key_file")
	}
	return nil
}

// LoadClient reads path over the defaults and validates the result.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "load client config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
