package fins

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Transport protocols.
const (
	ProtocolUDP = "udp"
	ProtocolTCP = "tcp"
)

// DefaultPort is the standard FINS port for both UDP and TCP.
const DefaultPort = 9600

// DefaultTimeout bounds each request/response round trip.
const DefaultTimeout = 5 * time.Second

// Config is the full configuration surface consumed by Client. Header fields
// default to a single-PLC/single-PC topology: ICF 0x80, all network bytes
// zero, source node 1.
type Config struct {
	Host     string
	Port     int
	Protocol string // "udp" or "tcp"
	Timeout  time.Duration

	ICF byte
	DNA byte
	DA1 byte
	DA2 byte
	SNA byte
	SA1 byte
	SA2 byte
}

// NewConfig returns a Config for host with every other option at its default.
func NewConfig(host string) Config {
	return Config{
		Host:     host,
		Port:     DefaultPort,
		Protocol: ProtocolUDP,
		Timeout:  DefaultTimeout,
		ICF:      0x80,
		SA1:      0x01,
	}
}

// WithNodes fills the header routing fields from a PLC (destination) and PC
// (source) node pair.
func (c Config) WithNodes(plc, pc Node) Config {
	c.DNA = plc.Network
	c.DA1 = plc.Node
	c.DA2 = plc.Unit
	c.SNA = pc.Network
	c.SA1 = pc.Node
	c.SA2 = pc.Unit
	return c
}

func (c Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	switch strings.ToLower(c.Protocol) {
	case ProtocolUDP, ProtocolTCP:
	default:
		return fmt.Errorf("unsupported protocol %q (use %q or %q)", c.Protocol, ProtocolUDP, ProtocolTCP)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// rawConfig mirrors the file format: timeout is expressed in seconds and
// header fields are plain integers.
type rawConfig struct {
	Host     string  `mapstructure:"host"`
	Port     int     `mapstructure:"port"`
	Protocol string  `mapstructure:"protocol"`
	Timeout  float64 `mapstructure:"timeout"`

	ICF uint8 `mapstructure:"icf"`
	DNA uint8 `mapstructure:"dna"`
	DA1 uint8 `mapstructure:"da1"`
	DA2 uint8 `mapstructure:"da2"`
	SNA uint8 `mapstructure:"sna"`
	SA1 uint8 `mapstructure:"sa1"`
	SA2 uint8 `mapstructure:"sa2"`
}

// LoadConfig reads a client configuration from file. The format is inferred
// from the extension (yaml, json, toml, anything viper understands).
// Recognized keys: host (required), port, protocol, timeout (seconds),
// icf, dna, da1, da2, sna, sa1, sa2.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("port", DefaultPort)
	v.SetDefault("protocol", ProtocolUDP)
	v.SetDefault("timeout", DefaultTimeout.Seconds())
	v.SetDefault("icf", 0x80)
	v.SetDefault("sa1", 0x01)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg := Config{
		Host:     raw.Host,
		Port:     raw.Port,
		Protocol: strings.ToLower(raw.Protocol),
		Timeout:  time.Duration(raw.Timeout * float64(time.Second)),
		ICF:      raw.ICF,
		DNA:      raw.DNA,
		DA1:      raw.DA1,
		DA2:      raw.DA2,
		SNA:      raw.SNA,
		SA1:      raw.SA1,
		SA2:      raw.SA2,
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
