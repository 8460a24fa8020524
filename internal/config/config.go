package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	IdentityModeLogin   = "login"
	IdentityModeConnect = "connect"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	Secret   string `mapstructure:"secret"`
	// StaticPath serves a frontend at / and /static when set.
	StaticPath string `mapstructure:"static_path"`

	SocketPath     string   `mapstructure:"socket_path"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	IdentityMode   string   `mapstructure:"identity_mode"`
	RoomCapacity   int      `mapstructure:"room_capacity"`
	SlowConsumer   string   `mapstructure:"slow_consumer"`

	SendBuffer           int           `mapstructure:"send_buffer"`
	ReadLimit            int64         `mapstructure:"read_limit"`
	PingPeriod           time.Duration `mapstructure:"ping_period"`
	PongWait             time.Duration `mapstructure:"pong_wait"`
	WriteWait            time.Duration `mapstructure:"write_wait"`
	MaxMessagesPerSecond float64       `mapstructure:"max_messages_per_second"`

	Redis      RedisConfig `mapstructure:"redis"`
	Media      MediaConfig `mapstructure:"media"`
	ICEServers []ICEServer `mapstructure:"ice_servers"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MediaConfig struct {
	BackgroundPath string `mapstructure:"background_path"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "change-me")
	v.SetDefault("static_path", "")
	v.SetDefault("socket_path", "/socket1")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("identity_mode", IdentityModeLogin)
	v.SetDefault("room_capacity", 2)
	v.SetDefault("slow_consumer", "drop")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("max_messages_per_second", 50)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("media.background_path", "")
	v.SetDefault("media.max_upload_bytes", 16<<20)
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}

// Load reads config/config.<CONFIG_ENV>.yaml (CONFIG_ENV defaults to dev),
// then SIGNAL_* environment overrides. A missing file falls back to defaults.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("SIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("socket_path", cfg.SocketPath).
		Str("identity_mode", cfg.IdentityMode).
		Int("room_capacity", cfg.RoomCapacity).
		Msg("config ready")
	return &cfg, nil
}

var ErrInvalidConfig = errors.New("invalid config")

func (c *Config) Validate() error {
	if c.RoomCapacity < 1 {
		return fmt.Errorf("%w: room_capacity must be positive, got %d", ErrInvalidConfig, c.RoomCapacity)
	}
	switch c.IdentityMode {
	case IdentityModeLogin, IdentityModeConnect:
	default:
		return fmt.Errorf("%w: identity_mode %q", ErrInvalidConfig, c.IdentityMode)
	}
	switch c.SlowConsumer {
	case "drop", "kick":
	default:
		return fmt.Errorf("%w: slow_consumer %q", ErrInvalidConfig, c.SlowConsumer)
	}
	if c.SendBuffer < 1 {
		return fmt.Errorf("%w: send_buffer must be positive", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.SocketPath, "/") {
		return fmt.Errorf("%w: socket_path must start with /", ErrInvalidConfig)
	}
	for _, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("%w: ice server without urls", ErrInvalidConfig)
		}
		for _, u := range s.URLs {
			if !strings.HasPrefix(u, "stun:") && !strings.HasPrefix(u, "turn:") && !strings.HasPrefix(u, "turns:") {
				return fmt.Errorf("%w: ice url %q", ErrInvalidConfig, u)
			}
		}
	}
	return nil
}
