// Package config loads the kvmlink YAML configuration file.
//
// The file has a primary and a secondary section; a process reads only the
// section for the role it runs. Missing fields keep the values from
// Default. Durations are written as Go duration strings ("3s", "500ms")
// or as a plain number of seconds.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chronologos/kvmlink/internal/protocol"
	"github.com/chronologos/kvmlink/internal/transport"
)

// Config is the whole configuration file.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Primary   PrimaryConfig   `yaml:"primary"`
	Secondary SecondaryConfig `yaml:"secondary"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text, json or auto (text on a terminal, JSON otherwise).
	Format string `yaml:"format"`
}

// KeepAliveConfig controls liveness tracking.
type KeepAliveConfig struct {
	// Rate is the keep-alive interval. Zero disables keep-alives.
	Rate Duration `yaml:"rate"`

	// UntilDeath is how many intervals may pass without a keep-alive
	// from the peer before the session is closed.
	UntilDeath int `yaml:"until_death"`
}

// TLSConfig points at a PEM certificate and key. Without key_file the key
// is read from cert_file. Empty paths generate an ephemeral certificate.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// PrimaryConfig configures the listening side.
type PrimaryConfig struct {
	Listen       string `yaml:"listen"`
	Transport    string `yaml:"transport"`
	ProtocolName string `yaml:"protocol_name"`

	// Screens lists the Secondary names allowed to connect. Empty accepts
	// any name.
	Screens []string `yaml:"screens"`

	KeepAlive        KeepAliveConfig `yaml:"keepalive"`
	HandshakeTimeout Duration        `yaml:"handshake_timeout"`
	Options          OptionTable     `yaml:"options"`
	TLS              TLSConfig       `yaml:"tls"`

	// StatusAddr serves /metrics, /healthz and /sessions. Empty disables it.
	StatusAddr string `yaml:"status_addr"`
}

// ScreenConfig is the geometry a Secondary reports in DINF.
type ScreenConfig struct {
	X      int16  `yaml:"x"`
	Y      int16  `yaml:"y"`
	Width  uint16 `yaml:"width"`
	Height uint16 `yaml:"height"`
}

// SecondaryConfig configures the dialing side.
type SecondaryConfig struct {
	Server    string `yaml:"server"`
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"`

	// TrustedFingerprints pins the Primary's certificate (SHA-256,
	// colon-separated hex) for the tls and quic transports.
	TrustedFingerprints []string `yaml:"trusted_fingerprints"`

	KeepAlive        KeepAliveConfig `yaml:"keepalive"`
	HandshakeTimeout Duration        `yaml:"handshake_timeout"`
	ReconnectDelay   Duration        `yaml:"reconnect_delay"`
	Screen           ScreenConfig    `yaml:"screen"`
}

// Default returns the configuration used for every field the file omits.
func Default() *Config {
	hostname, _ := os.Hostname()
	keepAlive := KeepAliveConfig{
		Rate:       Duration(protocol.KeepAliveRate),
		UntilDeath: protocol.KeepAlivesUntilDeath,
	}
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Primary: PrimaryConfig{
			Listen:           fmt.Sprintf(":%d", protocol.DefaultPort),
			Transport:        transport.ModeTCP.String(),
			ProtocolName:     protocol.BarrierProtocolName,
			KeepAlive:        keepAlive,
			HandshakeTimeout: Duration(15 * time.Second),
			StatusAddr:       "127.0.0.1:24880",
		},
		Secondary: SecondaryConfig{
			Server:           fmt.Sprintf("localhost:%d", protocol.DefaultPort),
			Name:             hostname,
			Transport:        transport.ModeTCP.String(),
			KeepAlive:        keepAlive,
			HandshakeTimeout: Duration(15 * time.Second),
			ReconnectDelay:   Duration(time.Second),
			Screen:           ScreenConfig{Width: 1920, Height: 1080},
		},
	}
}

// LoadFile reads path over the defaults. It does not validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error: %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of auto, text, json: %q", c.Log.Format))
	}

	p := c.Primary
	if p.Listen == "" {
		errs = append(errs, errors.New("primary.listen is required"))
	}
	if _, err := transport.ParseMode(p.Transport); err != nil {
		errs = append(errs, fmt.Errorf("primary.transport: %w", err))
	}
	if !protocol.IsProtocolName(p.ProtocolName) {
		errs = append(errs, fmt.Errorf("primary.protocol_name must be %q or %q: %q",
			protocol.BarrierProtocolName, protocol.SynergyProtocolName, p.ProtocolName))
	}
	seen := make(map[string]bool)
	for _, name := range p.Screens {
		if name == "" {
			errs = append(errs, errors.New("primary.screens: empty screen name"))
		} else if seen[name] {
			errs = append(errs, fmt.Errorf("primary.screens: duplicate screen %q", name))
		}
		seen[name] = true
	}
	errs = append(errs, p.KeepAlive.validate("primary.keepalive")...)
	if p.TLS.CertFile == "" && p.TLS.KeyFile != "" {
		errs = append(errs, errors.New("primary.tls: key_file needs a cert_file"))
	}

	s := c.Secondary
	if s.Server == "" {
		errs = append(errs, errors.New("secondary.server is required"))
	}
	if s.Name == "" {
		errs = append(errs, errors.New("secondary.name is required"))
	}
	if mode, err := transport.ParseMode(s.Transport); err != nil {
		errs = append(errs, fmt.Errorf("secondary.transport: %w", err))
	} else if mode == transport.ModeDual {
		errs = append(errs, errors.New("secondary.transport: dual is listen-only"))
	}
	for _, fp := range s.TrustedFingerprints {
		if _, err := transport.ParseFingerprint(fp); err != nil {
			errs = append(errs, fmt.Errorf("secondary.trusted_fingerprints: %w", err))
		}
	}
	errs = append(errs, s.KeepAlive.validate("secondary.keepalive")...)
	if s.ReconnectDelay < 0 {
		errs = append(errs, errors.New("secondary.reconnect_delay must not be negative"))
	}

	return errors.Join(errs...)
}

func (k KeepAliveConfig) validate(prefix string) []error {
	var errs []error
	if k.Rate < 0 {
		errs = append(errs, fmt.Errorf("%s.rate must not be negative", prefix))
	}
	if k.UntilDeath < 1 {
		errs = append(errs, fmt.Errorf("%s.until_death must be at least 1", prefix))
	}
	return errs
}

// Duration is a time.Duration that unmarshals from "3s" or 3.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if secs, err := strconv.ParseFloat(value.Value, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// OptionTable is written as a YAML mapping from four-character option
// names to values. Entry order is preserved.
type OptionTable protocol.Options

func (t *OptionTable) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: options must be a mapping", value.Line)
	}
	out := make(OptionTable, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		id, err := protocol.OptionID(key.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", key.Line, err)
		}
		var n uint32
		if err := val.Decode(&n); err != nil {
			return fmt.Errorf("line %d: option %s: %w", val.Line, key.Value, err)
		}
		out = append(out, protocol.Option{ID: id, Value: n})
	}
	*t = out
	return nil
}

func (t OptionTable) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, o := range t {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: protocol.OptionName(o.ID)},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatUint(uint64(o.Value), 10)})
	}
	return node, nil
}

// Protocol returns the table as wire options.
func (t OptionTable) Protocol() protocol.Options { return protocol.Options(t) }
