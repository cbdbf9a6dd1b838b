package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/npezzotti/chatsync/internal/types"
)

const EnvPrefix = "CHATSYNC"

// Keys shared by flags, environment variables and the viper instance.
const (
	KeyServer         = "server"
	KeyProtocol       = "protocol"
	KeyTokenFile      = "token-file"
	KeyInspectAddr    = "inspect-addr"
	KeyAllowedOrigins = "allowed-origins"
	KeyLogLevel       = "log-level"
	KeyUnknownChats   = "unknown-chats"
	KeyRequestTimeout = "request-timeout"
)

type Config struct {
	ServerURL         string         `validate:"required,url"`
	Protocol          types.Protocol `validate:"oneof=chat direct"`
	TokenFile         string         `validate:"required"`
	InspectAddr       string         `validate:"omitempty,hostname_port"`
	AllowedOrigins    []string       `validate:"dive,url"`
	LogLevel          string         `validate:"oneof=trace debug info warn error"`
	UnknownChatPolicy string         `validate:"oneof=fetch drop"`
	RequestTimeout    time.Duration  `validate:"gt=0"`
}

var validate = validator.New()

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "chatsync", "credentials.json")
}

// SetDefaults registers defaults and environment lookup on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyServer, "http://localhost:3000")
	v.SetDefault(KeyProtocol, string(types.ProtocolChat))
	v.SetDefault(KeyTokenFile, defaultTokenFile())
	v.SetDefault(KeyInspectAddr, "")
	v.SetDefault(KeyAllowedOrigins, []string{})
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyUnknownChats, "fetch")
	v.SetDefault(KeyRequestTimeout, 10*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration out of v.
func Load(v *viper.Viper) (*Config, error) {
	return NewConfig(
		v.GetString(KeyServer),
		types.Protocol(v.GetString(KeyProtocol)),
		v.GetString(KeyTokenFile),
		v.GetString(KeyInspectAddr),
		v.GetStringSlice(KeyAllowedOrigins),
		v.GetString(KeyLogLevel),
		v.GetString(KeyUnknownChats),
		v.GetDuration(KeyRequestTimeout),
	)
}

func NewConfig(serverURL string, protocol types.Protocol, tokenFile, inspectAddr string, allowedOrigins []string, logLevel, unknownChats string, requestTimeout time.Duration) (*Config, error) {
	cfg := &Config{
		ServerURL:         strings.TrimRight(serverURL, "/"),
		Protocol:          protocol,
		TokenFile:         tokenFile,
		InspectAddr:       inspectAddr,
		AllowedOrigins:    allowedOrigins,
		LogLevel:          strings.ToLower(logLevel),
		UnknownChatPolicy: unknownChats,
		RequestTimeout:    requestTimeout,
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if _, err := cfg.WebsocketURL(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// APIBaseURL is the root of the REST endpoints.
func (c *Config) APIBaseURL() string {
	return c.ServerURL + "/api"
}

// WebsocketURL derives the realtime endpoint from the server url.
func (c *Config) WebsocketURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", errors.Wrap(err, "parse server url")
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
