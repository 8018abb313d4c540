// Package config holds the runtime configuration shared by the server and
// client roles.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/1ureka/netchan/internal/protocol"
)

// Role represents which end of the connection this process runs.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Transport selects the datagram socket a channel runs over.
type Transport string

const (
	TransportUDP    Transport = "udp"
	TransportWebRTC Transport = "webrtc"
)

var (
	ErrRole      = errors.New("config: role must be server or client")
	ErrTransport = errors.New("config: transport must be udp or webrtc")
)

// Config stores every tunable of a server or client process. Durations are
// written in YAML as Go duration strings ("15s").
type Config struct {
	Role      Role      `yaml:"role"`
	Transport Transport `yaml:"transport"`

	Listen     string `yaml:"listen"`      // server: UDP listen address
	Server     string `yaml:"server"`      // client: UDP server address
	SignalAddr string `yaml:"signal_addr"` // server: signaling listen address; client: signaling URL
	SignalPIN  string `yaml:"signal_pin"`

	QPort        uint16        `yaml:"qport"`          // client: zero picks a random one
	MaxPacketLen int           `yaml:"max_packet_len"` // payload budget per datagram
	FrameRate    int           `yaml:"frame_rate"`     // server frames / client commands per second
	Timeout      time.Duration `yaml:"timeout"`
	MaxClients   int           `yaml:"max_clients"`

	MetricsAddr string `yaml:"metrics_addr"` // server: status and metrics HTTP address, empty disables
	BanDB       string `yaml:"ban_db"`       // server: sqlite ban list, empty disables

	Debug bool `yaml:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Role:         RoleServer,
		Transport:    TransportUDP,
		Listen:       ":27910",
		Server:       "127.0.0.1:27910",
		MaxPacketLen: protocol.DefaultPacketLen,
		FrameRate:    10,
		Timeout:      30 * time.Second,
		MaxClients:   16,
	}
}

// Load reads a YAML file on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges. MaxPacketLen is clamped by the channel, so
// only its sign is checked here.
func (c *Config) Validate() error {
	switch c.Role {
	case RoleServer, RoleClient:
	default:
		return fmt.Errorf("%w: %q", ErrRole, c.Role)
	}
	switch c.Transport {
	case TransportUDP, TransportWebRTC:
	default:
		return fmt.Errorf("%w: %q", ErrTransport, c.Transport)
	}

	if c.MaxPacketLen < 0 {
		return fmt.Errorf("config: max_packet_len %d is negative", c.MaxPacketLen)
	}
	if c.FrameRate < 1 || c.FrameRate > 100 {
		return fmt.Errorf("config: frame_rate %d out of range 1..100", c.FrameRate)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("config: timeout %s is shorter than a second", c.Timeout)
	}
	if c.MaxClients < 1 || c.MaxClients > 255 {
		return fmt.Errorf("config: max_clients %d out of range 1..255", c.MaxClients)
	}
	if c.Transport == TransportWebRTC && c.SignalAddr == "" {
		return errors.New("config: webrtc transport needs signal_addr")
	}
	return nil
}

// FrameInterval is the time between server frames.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}
