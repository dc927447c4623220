package config

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	gotoml "github.com/pelletier/go-toml/v2"

	"github.com/danmuck/telectl/internal/protocol/schema"
	"github.com/danmuck/telectl/internal/router"
	"github.com/danmuck/telectl/internal/sinks"
	"github.com/danmuck/telectl/internal/transport"
)

// Config is one board or ground station.
type Config struct {
	Name           string           `toml:"name"`
	ByteOrder      string           `toml:"byte_order"`
	TransmitPolicy string           `toml:"transmit_policy"`
	HTTP           HTTPConfig       `toml:"http"`
	Transport      TransportConfig  `toml:"transport"`
	Endpoints      []EndpointConfig `toml:"endpoints"`
}

type HTTPConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	// Token, when set, is required as a bearer token on data routes.
	Token string `toml:"token"`
}

// TransportConfig describes the remote link. Addr is the peer a board dials;
// Listen is where a ground station accepts. Either may be empty.
type TransportConfig struct {
	Addr          string              `toml:"addr"`
	Listen        string              `toml:"listen"`
	DialTimeout   string              `toml:"dial_timeout"`
	WriteTimeout  string              `toml:"write_timeout"`
	ReadTimeout   string              `toml:"read_timeout"`
	MaxFrameBytes uint32              `toml:"max_frame_bytes"`
	SecurityMode  string              `toml:"security_mode"`
	TLS           transport.TLSConfig `toml:"tls"`
}

// EndpointConfig marks one endpoint as local to this node and names the sink
// that handles it.
type EndpointConfig struct {
	Name string `toml:"name"`
	Sink string `toml:"sink"`
	Path string `toml:"path"`
}

func Default() Config {
	return Config{
		Name:           "board",
		ByteOrder:      "little",
		TransmitPolicy: router.PolicyNonLocal.String(),
		HTTP:           HTTPConfig{Addr: ":9300"},
		Transport: TransportConfig{
			DialTimeout:   "5s",
			WriteTimeout:  "5s",
			MaxFrameBytes: 1 << 20,
			SecurityMode:  string(transport.SecurityModeDevelopment),
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (Config, error) {
	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := merge(Default(), raw, meta)
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Decode parses TOML text the way Load parses a file.
func Decode(data string) (Config, error) {
	var raw Config
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed: %w", err)
	}
	cfg := merge(Default(), raw, meta)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func merge(cfg, raw Config, meta toml.MetaData) Config {
	str := func(dst *string, v string, key ...string) {
		if meta.IsDefined(key...) {
			*dst = strings.TrimSpace(v)
		}
	}
	str(&cfg.Name, raw.Name, "name")
	str(&cfg.ByteOrder, raw.ByteOrder, "byte_order")
	str(&cfg.TransmitPolicy, raw.TransmitPolicy, "transmit_policy")
	str(&cfg.HTTP.Addr, raw.HTTP.Addr, "http", "addr")
	str(&cfg.HTTP.Token, raw.HTTP.Token, "http", "token")
	if meta.IsDefined("http", "cors_origins") {
		cfg.HTTP.CorsOrigins = raw.HTTP.CorsOrigins
	}

	t := raw.Transport
	str(&cfg.Transport.Addr, t.Addr, "transport", "addr")
	str(&cfg.Transport.Listen, t.Listen, "transport", "listen")
	str(&cfg.Transport.DialTimeout, t.DialTimeout, "transport", "dial_timeout")
	str(&cfg.Transport.WriteTimeout, t.WriteTimeout, "transport", "write_timeout")
	str(&cfg.Transport.ReadTimeout, t.ReadTimeout, "transport", "read_timeout")
	str(&cfg.Transport.SecurityMode, t.SecurityMode, "transport", "security_mode")
	if meta.IsDefined("transport", "max_frame_bytes") {
		cfg.Transport.MaxFrameBytes = t.MaxFrameBytes
	}
	if meta.IsDefined("transport", "tls") {
		cfg.Transport.TLS = t.TLS
	}
	if meta.IsDefined("endpoints") {
		cfg.Endpoints = raw.Endpoints
	}
	return cfg
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("config missing name")
	}
	if _, err := cfg.Order(); err != nil {
		return err
	}
	if _, err := router.ParsePolicy(cfg.TransmitPolicy); err != nil {
		return err
	}
	if _, err := cfg.Transport.durations(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(cfg.Endpoints))
	for i, ep := range cfg.Endpoints {
		if err := ValidateEndpoint(ep); err != nil {
			return fmt.Errorf("endpoints[%d] invalid: %w", i, err)
		}
		key := strings.ToLower(ep.Name) + "|" + ep.Path
		if ep.Path != "" && seen[key] {
			return fmt.Errorf("endpoints[%d] invalid: duplicate %s sink at %s", i, ep.Name, ep.Path)
		}
		seen[key] = true
	}
	return nil
}

func ValidateEndpoint(ep EndpointConfig) error {
	if _, err := schema.ParseEndpoint(ep.Name); err != nil {
		return err
	}
	kind, err := sinks.ParseKind(ep.Sink)
	if err != nil {
		return err
	}
	if kind.NeedsPath() && strings.TrimSpace(ep.Path) == "" {
		return fmt.Errorf("%s sink requires path", kind)
	}
	return nil
}

// Order returns the configured packet byte order.
func (c Config) Order() (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(c.ByteOrder)) {
	case "", "little", "le":
		return binary.LittleEndian, nil
	case "big", "be":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("config: unknown byte_order %q", c.ByteOrder)
	}
}

func (c Config) Policy() router.TransmitPolicy {
	p, _ := router.ParsePolicy(c.TransmitPolicy)
	return p
}

type durations struct {
	dial, write, read time.Duration
}

func (t TransportConfig) durations() (durations, error) {
	var out durations
	for _, f := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"dial_timeout", t.DialTimeout, &out.dial},
		{"write_timeout", t.WriteTimeout, &out.write},
		{"read_timeout", t.ReadTimeout, &out.read},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return durations{}, fmt.Errorf("parse transport.%s: %w", f.key, err)
		}
		*f.dst = d
	}
	return out, nil
}

// Link returns the transport config for addr with this node's timeouts and
// security settings.
func (c Config) Link(addr string) transport.Config {
	out := transport.DefaultConfig()
	out.Name = c.Name
	out.Addr = addr
	if d, err := c.Transport.durations(); err == nil {
		if d.dial > 0 {
			out.DialTimeout = d.dial
		}
		if d.write > 0 {
			out.WriteTimeout = d.write
		}
		out.ReadTimeout = d.read
	}
	if c.Transport.MaxFrameBytes > 0 {
		out.MaxFrameBytes = c.Transport.MaxFrameBytes
	}
	out.SecurityMode = transport.SecurityMode(c.Transport.SecurityMode)
	out.TLS = c.Transport.TLS
	return out
}

// Render returns cfg as TOML.
func Render(cfg Config) ([]byte, error) {
	return gotoml.Marshal(cfg)
}
