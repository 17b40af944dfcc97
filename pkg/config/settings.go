package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/teammate/pkg/protocol"
	"github.com/go-go-golems/teammate/pkg/security"
	"github.com/go-go-golems/teammate/pkg/session"
	"github.com/go-go-golems/teammate/pkg/transport"
)

type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreFile   StoreKind = "file"
	StoreSQLite StoreKind = "sqlite"
)

type StoreSettings struct {
	Kind StoreKind `yaml:"kind" mapstructure:"kind"`
	// Path is the YAML file or sqlite database, unused for memory stores.
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

type TransportSettings struct {
	HandshakeTimeout time.Duration `yaml:"handshake-timeout" mapstructure:"handshake-timeout"`
	WriteTimeout     time.Duration `yaml:"write-timeout" mapstructure:"write-timeout"`
	PingInterval     time.Duration `yaml:"ping-interval" mapstructure:"ping-interval"`
	SendBuffer       int           `yaml:"send-buffer" mapstructure:"send-buffer"`
	MaxMessageSize   int64         `yaml:"max-message-size" mapstructure:"max-message-size"`
	// StrictSchema validates every inbound frame against the generated JSON schema.
	StrictSchema bool `yaml:"strict-schema" mapstructure:"strict-schema"`
	// RequireTLS refuses ws:// URLs.
	RequireTLS         bool                    `yaml:"require-tls" mapstructure:"require-tls"`
	AllowLocalNetworks bool                    `yaml:"allow-local-networks" mapstructure:"allow-local-networks"`
	Backoff            transport.BackoffConfig `yaml:"backoff" mapstructure:"backoff"`
}

type Settings struct {
	URL       string            `yaml:"url" mapstructure:"url"`
	Store     StoreSettings     `yaml:"store" mapstructure:"store"`
	Transport TransportSettings `yaml:"transport" mapstructure:"transport"`
}

// DefaultDir is $HOME/.teammate, or .teammate if there is no home directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".teammate"
	}
	return filepath.Join(home, ".teammate")
}

func DefaultSettings() *Settings {
	tc := transport.DefaultConfig()
	return &Settings{
		URL: tc.URL,
		Store: StoreSettings{
			Kind: StoreFile,
			Path: filepath.Join(DefaultDir(), "session.yaml"),
		},
		Transport: TransportSettings{
			HandshakeTimeout: tc.HandshakeTimeout,
			WriteTimeout:     tc.WriteTimeout,
			PingInterval:     tc.PingInterval,
			SendBuffer:       tc.SendBuffer,
			MaxMessageSize:     tc.MaxMessageSize,
			AllowLocalNetworks: true,
			Backoff:            tc.Backoff,
		},
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

func (s *Settings) Validate() error {
	if s.URL == "" {
		return errors.New("url is required")
	}
	err := security.ValidateServiceURL(s.URL, security.ServiceURLOptions{
		AllowInsecure:      !s.Transport.RequireTLS,
		AllowLocalNetworks: s.Transport.AllowLocalNetworks,
	})
	if err != nil {
		return errors.Wrapf(err, "url %q", s.URL)
	}
	switch s.Store.Kind {
	case StoreMemory:
	case StoreFile, StoreSQLite:
		if s.Store.Path == "" {
			return errors.Errorf("store.path is required for %s stores", s.Store.Kind)
		}
	default:
		return errors.Wrapf(session.ErrUnknownStore, "store.kind %q", s.Store.Kind)
	}
	if s.Transport.SendBuffer < 0 {
		return errors.Errorf("transport.send-buffer must not be negative, got %d", s.Transport.SendBuffer)
	}
	if s.Transport.HandshakeTimeout < 0 || s.Transport.WriteTimeout < 0 || s.Transport.PingInterval < 0 {
		return errors.New("transport timeouts must not be negative")
	}
	b := s.Transport.Backoff
	if b.InitialDelay < 0 || b.MaxDelay < 0 {
		return errors.New("transport.backoff delays must not be negative")
	}
	if b.MaxDelay > 0 && b.InitialDelay > b.MaxDelay {
		return errors.Errorf("transport.backoff.initial-delay %s exceeds max-delay %s", b.InitialDelay, b.MaxDelay)
	}
	return nil
}

// TransportConfig builds the websocket configuration.
func (s *Settings) TransportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.URL = s.URL
	cfg.HandshakeTimeout = s.Transport.HandshakeTimeout
	cfg.WriteTimeout = s.Transport.WriteTimeout
	cfg.PingInterval = s.Transport.PingInterval
	cfg.SendBuffer = s.Transport.SendBuffer
	cfg.MaxMessageSize = s.Transport.MaxMessageSize
	cfg.Backoff = s.Transport.Backoff
	return cfg
}

// Decoder returns the inbound decoder, validating frames when strict-schema is set.
func (s *Settings) Decoder() (*protocol.Decoder, error) {
	if !s.Transport.StrictSchema {
		return protocol.NewDecoder(), nil
	}
	v, err := protocol.NewSchemaValidator()
	if err != nil {
		return nil, errors.Wrap(err, "could not build inbound schema")
	}
	return protocol.NewDecoder(protocol.WithSchemaValidation(v)), nil
}

// SetDefaults registers every settings key with viper so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("url", d.URL)
	v.SetDefault("store.kind", string(d.Store.Kind))
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("transport.handshake-timeout", d.Transport.HandshakeTimeout)
	v.SetDefault("transport.write-timeout", d.Transport.WriteTimeout)
	v.SetDefault("transport.ping-interval", d.Transport.PingInterval)
	v.SetDefault("transport.send-buffer", d.Transport.SendBuffer)
	v.SetDefault("transport.max-message-size", d.Transport.MaxMessageSize)
	v.SetDefault("transport.strict-schema", d.Transport.StrictSchema)
	v.SetDefault("transport.require-tls", d.Transport.RequireTLS)
	v.SetDefault("transport.allow-local-networks", d.Transport.AllowLocalNetworks)
	v.SetDefault("transport.backoff.initial-delay", d.Transport.Backoff.InitialDelay)
	v.SetDefault("transport.backoff.max-delay", d.Transport.Backoff.MaxDelay)
	v.SetDefault("transport.backoff.multiplier", d.Transport.Backoff.Multiplier)
	v.SetDefault("transport.backoff.jitter", d.Transport.Backoff.Jitter)
}

// LoadFromViper reads the settings out of v and validates them.
func LoadFromViper(v *viper.Viper) (*Settings, error) {
	s := DefaultSettings()
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}
	return s, nil
}

func (s *Settings) ToYAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// WriteFile writes s as YAML to path, creating parent directories. It refuses
// to overwrite an existing file unless force is set.
func (s *Settings) WriteFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.Errorf("%s already exists", path)
		}
	}
	b, err := s.ToYAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "could not create config directory")
	}
	return errors.Wrap(os.WriteFile(path, b, 0o644), "could not write config")
}
