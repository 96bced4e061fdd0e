package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	Chat  ChatConfig  `mapstructure:"chat" yaml:"chat"`
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// ChatConfig tunes the messaging core.
type ChatConfig struct {
	// JoinTimeout bounds the authorization round trip of a join.
	JoinTimeout time.Duration `mapstructure:"join_timeout" yaml:"join_timeout"`
	// PushTimeout bounds how long a single connection may block a delivery.
	PushTimeout    time.Duration `mapstructure:"push_timeout" yaml:"push_timeout"`
	PersistRetries int           `mapstructure:"persist_retries" yaml:"persist_retries"`
	PersistBackoff time.Duration `mapstructure:"persist_backoff" yaml:"persist_backoff"`
	OutboundBuffer int           `mapstructure:"outbound_buffer" yaml:"outbound_buffer"`
	MaxBodyLength  int           `mapstructure:"max_body_length" yaml:"max_body_length"`
	// SendRate is the per-user allowance of sends per second. Zero disables limiting.
	SendRate  float64 `mapstructure:"send_rate" yaml:"send_rate"`
	SendBurst int     `mapstructure:"send_burst" yaml:"send_burst"`
}

// RedisConfig configures the optional presence/unread mirror. Empty Addr disables it.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr" yaml:"addr"`
	Password    string        `mapstructure:"password" yaml:"password"`
	DB          int           `mapstructure:"db" yaml:"db"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl" yaml:"presence_ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "shelfx-chat.db",
		JWTSecret:         "change-me",
		JWTIssuer:         "shelfx",
		JWTAudience:       "shelfx-chat",
		Chat: ChatConfig{
			JoinTimeout:    3 * time.Second,
			PushTimeout:    2 * time.Second,
			PersistRetries: 3,
			PersistBackoff: 50 * time.Millisecond,
			OutboundBuffer: 64,
			MaxBodyLength:  4000,
			SendRate:       5,
			SendBurst:      10,
		},
		Redis: RedisConfig{
			PresenceTTL: 90 * time.Second,
		},
	}
}
