package config

import "time"

// ServerConfig configures the HTTP/WS front end.
type ServerConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`

	// Version is stamped by the CLI at startup, never read from YAML.
	Version string `yaml:"-"`

	// ReadTimeout/WriteTimeout apply to plain HTTP endpoints only;
	// streaming endpoints manage their own deadlines.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// WSPingInterval is how often peers are pinged; a peer that misses
	// one interval is dropped.
	WSPingInterval time.Duration `yaml:"ws_ping_interval"`
	// WSIdleTimeout closes sockets with no activity.
	WSIdleTimeout time.Duration `yaml:"ws_idle_timeout"`
	// CompressionThreshold is the serialized-frame size above which
	// WS payloads are deflated, when the peer negotiated compression.
	CompressionThreshold int `yaml:"compression_threshold"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:                 "0.0.0.0",
		Port:                 8001,
		ReadTimeout:          30 * time.Second,
		WriteTimeout:         30 * time.Second,
		WSPingInterval:       30 * time.Second,
		WSIdleTimeout:        30 * time.Minute,
		CompressionThreshold: 1024,
	}
}
