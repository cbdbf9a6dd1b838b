package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npezzotti/chatsync/internal/types"
)

func TestNewConfig(t *testing.T) {
	var (
		server  = "http://localhost:3000"
		token   = "/tmp/credentials.json"
		orig    = []string{"http://localhost:5173"}
		timeout = 5 * time.Second
	)

	tcases := []struct {
		name     string
		server   string
		protocol types.Protocol
		token    string
		inspect  string
		orig     []string
		level    string
		policy   string
		timeout  time.Duration
		err      bool
	}{
		{
			name:     "valid config",
			server:   server,
			protocol: types.ProtocolChat,
			token:    token,
			inspect:  "localhost:8081",
			orig:     orig,
			level:    "info",
			policy:   "fetch",
			timeout:  timeout,
		},
		{
			name:     "inspect server disabled",
			server:   "https://chat.example.com/",
			protocol: types.ProtocolDirect,
			token:    token,
			level:    "DEBUG",
			policy:   "drop",
			timeout:  timeout,
		},
		{
			name:     "empty server",
			protocol: types.ProtocolChat,
			token:    token,
			level:    "info",
			policy:   "fetch",
			timeout:  timeout,
			err:      true,
		},
		{
			name:     "unsupported scheme",
			server:   "ftp://localhost",
			protocol: types.ProtocolChat,
			token:    token,
			level:    "info",
			policy:   "fetch",
			timeout:  timeout,
			err:      true,
		},
		{
			name:     "unknown protocol",
			server:   server,
			protocol: "smtp",
			token:    token,
			level:    "info",
			policy:   "fetch",
			timeout:  timeout,
			err:      true,
		},
		{
			name:     "bad inspect address",
			server:   server,
			protocol: types.ProtocolChat,
			token:    token,
			inspect:  "not an address",
			level:    "info",
			policy:   "fetch",
			timeout:  timeout,
			err:      true,
		},
		{
			name:     "unknown policy",
			server:   server,
			protocol: types.ProtocolChat,
			token:    token,
			level:    "info",
			policy:   "guess",
			timeout:  timeout,
			err:      true,
		},
		{
			name:     "zero timeout",
			server:   server,
			protocol: types.ProtocolChat,
			token:    token,
			level:    "info",
			policy:   "fetch",
			err:      true,
		},
		{
			name:     "bad origin",
			server:   server,
			protocol: types.ProtocolChat,
			token:    token,
			orig:     []string{"::"},
			level:    "info",
			policy:   "fetch",
			timeout:  timeout,
			err:      true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.server, tc.protocol, tc.token, tc.inspect, tc.orig, tc.level, tc.policy, tc.timeout)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			require.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.protocol, config.Protocol, "expected protocol to match")
			assert.Equal(t, tc.orig, config.AllowedOrigins, "expected allowed origins to match")
			assert.NotContains(t, config.ServerURL, "/api", "expected server url without api path")
		})
	}
}

func TestConfig_URLs(t *testing.T) {
	tcases := []struct {
		server string
		api    string
		ws     string
	}{
		{server: "http://localhost:3000", api: "http://localhost:3000/api", ws: "ws://localhost:3000/ws"},
		{server: "https://chat.example.com/", api: "https://chat.example.com/api", ws: "wss://chat.example.com/ws"},
		{server: "https://example.com/silex", api: "https://example.com/silex/api", ws: "wss://example.com/silex/ws"},
	}

	for _, tc := range tcases {
		t.Run(tc.server, func(t *testing.T) {
			cfg, err := NewConfig(tc.server, types.ProtocolChat, "tok.json", "", nil, "info", "fetch", time.Second)
			require.NoError(t, err)
			assert.Equal(t, tc.api, cfg.APIBaseURL())
			ws, err := cfg.WebsocketURL()
			require.NoError(t, err)
			assert.Equal(t, tc.ws, ws)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("CHATSYNC_PROTOCOL", "direct")
	t.Setenv("CHATSYNC_REQUEST_TIMEOUT", "3s")

	v := viper.New()
	SetDefaults(v)
	v.Set(KeyServer, "http://chat.local:8080")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "http://chat.local:8080", cfg.ServerURL)
	assert.Equal(t, types.ProtocolDirect, cfg.Protocol, "expected environment to override the default")
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "fetch", cfg.UnknownChatPolicy)
	assert.NotEmpty(t, cfg.TokenFile)
	assert.Empty(t, cfg.InspectAddr)
}
