package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/teammate/pkg/session"
)

func TestDefaultSettingsAreValid(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())
	assert.Equal(t, StoreFile, s.Store.Kind)
	assert.Equal(t, "session.yaml", filepath.Base(s.Store.Path))
}

func TestCloneIsDeep(t *testing.T) {
	s := DefaultSettings()
	c := s.Clone()
	c.URL = "ws://elsewhere/ws"
	c.Transport.Backoff.MaxDelay = time.Second
	assert.NotEqual(t, s.URL, c.URL)
	assert.NotEqual(t, s.Transport.Backoff.MaxDelay, c.Transport.Backoff.MaxDelay)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
		err    string
	}{
		{"missing url", func(s *Settings) { s.URL = "" }, "url is required"},
		{"http url", func(s *Settings) { s.URL = "http://localhost:6789/ws" }, "scheme"},
		{"plain ws with tls required", func(s *Settings) { s.Transport.RequireTLS = true }, "wss"},
		{"local url refused", func(s *Settings) {
			s.URL = "wss://localhost/ws"
			s.Transport.AllowLocalNetworks = false
		}, "local hostname"},
		{"unknown store", func(s *Settings) { s.Store.Kind = "redis" }, "redis"},
		{"file without path", func(s *Settings) { s.Store.Path = "" }, "store.path"},
		{"memory without path", func(s *Settings) { s.Store = StoreSettings{Kind: StoreMemory} }, ""},
		{"negative buffer", func(s *Settings) { s.Transport.SendBuffer = -1 }, "send-buffer"},
		{"backoff inverted", func(s *Settings) {
			s.Transport.Backoff.InitialDelay = time.Minute
			s.Transport.Backoff.MaxDelay = time.Second
		}, "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(s)
			err := s.Validate()
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
	assert.ErrorIs(t, (&Settings{URL: "ws://x/ws", Store: StoreSettings{Kind: "nope"}}).Validate(), session.ErrUnknownStore)
}

func TestLoadFromViperReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
url: ws://example.test/ws
store:
  kind: sqlite
  path: /tmp/teammate.db
transport:
  ping-interval: 5s
  strict-schema: true
  backoff:
    initial-delay: 100ms
    max-delay: 2s
`), 0o644))

	t.Setenv("TEAMMATE_TRANSPORT_SEND_BUFFER", "8")

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("teammate")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	require.NoError(t, v.ReadInConfig())

	s, err := LoadFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "ws://example.test/ws", s.URL)
	assert.Equal(t, StoreSQLite, s.Store.Kind)
	assert.Equal(t, 5*time.Second, s.Transport.PingInterval)
	assert.True(t, s.Transport.StrictSchema)
	assert.Equal(t, 100*time.Millisecond, s.Transport.Backoff.InitialDelay)
	assert.Equal(t, 2*time.Second, s.Transport.Backoff.MaxDelay)
	assert.Equal(t, 8, s.Transport.SendBuffer)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultSettings().Transport.WriteTimeout, s.Transport.WriteTimeout)
	assert.True(t, s.Transport.AllowLocalNetworks)
	assert.Equal(t, 2.0, s.Transport.Backoff.Multiplier)

	cfg := s.TransportConfig()
	assert.Equal(t, s.URL, cfg.URL)
	assert.Equal(t, 8, cfg.SendBuffer)
	assert.Equal(t, s.Transport.Backoff, cfg.Backoff)
}

func TestLoadFromViperRejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("store.kind", "carrier-pigeon")
	_, err := LoadFromViper(v)
	assert.ErrorIs(t, err, session.ErrUnknownStore)
}

func TestWriteFileRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	s := DefaultSettings()
	s.Transport.PingInterval = 7 * time.Second
	require.NoError(t, s.WriteFile(path, false))
	assert.Error(t, s.WriteFile(path, false))
	require.NoError(t, s.WriteFile(path, true))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "ping-interval: 7s")

	var back Settings
	require.NoError(t, yaml.Unmarshal(b, &back))
	assert.Equal(t, *s, back)
}

func TestDecoder(t *testing.T) {
	s := DefaultSettings()
	d, err := s.Decoder()
	require.NoError(t, err)
	_, err = d.Decode([]byte(`{"type":"textResponse","id":"r1","textResponse":"hi","extra":1}`))
	assert.NoError(t, err)

	s.Transport.StrictSchema = true
	d, err = s.Decoder()
	require.NoError(t, err)
	_, err = d.Decode([]byte(`{"type":"textResponse","id":"r1","textResponse":42}`))
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, s := range []StoreSettings{
		{Kind: StoreMemory},
		{Kind: StoreFile, Path: filepath.Join(dir, "session.yaml")},
		{Kind: StoreSQLite, Path: filepath.Join(dir, "db", "session.db")},
	} {
		t.Run(string(s.Kind), func(t *testing.T) {
			store, err := OpenStore(s)
			require.NoError(t, err)
			defer func() { _ = store.Close() }()

			require.NoError(t, store.Set(ctx, session.KeySessionID, "abc"))
			v, ok, err := store.Get(ctx, session.KeySessionID)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "abc", v)
		})
	}

	_, err := OpenStore(StoreSettings{Kind: "bogus"})
	assert.ErrorIs(t, err, session.ErrUnknownStore)
}
