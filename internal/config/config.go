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

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	LogLevel       string        `mapstructure:"log_level"`
	Secret         string        `mapstructure:"secret"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	LedgerTTL      time.Duration `mapstructure:"ledger_ttl"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Rooms          RoomsConfig   `mapstructure:"rooms"`
	RateLimit      RateConfig    `mapstructure:"rate_limit"`
	Store          StoreConfig   `mapstructure:"store"`
}

type RoomsConfig struct {
	DefaultVisibility string `mapstructure:"default_visibility"`
	DefaultCeiling    int    `mapstructure:"default_ceiling"`
}

type RateConfig struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

const devSecret = "dev-secret"

// Load reads config/config.<CONFIG_ENV>.yaml (CONFIG_ENV defaults to dev).
// Any key can be overridden from the environment, e.g. RELAY_STORE_DRIVER.
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
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "")
	v.SetDefault("session_ttl", "1h")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_timeout", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("ledger_ttl", "1h")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("rooms.default_visibility", "public")
	v.SetDefault("rooms.default_ceiling", 2)
	v.SetDefault("rate_limit.messages", 20)
	v.SetDefault("rate_limit.interval", "10s")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.sqlite_path", "relay.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "chat")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Secret == "" {
		if cfg.Mode == "release" {
			return nil, errors.New("secret must be set in release mode")
		}
		cfg.Secret = devSecret
		log.Warn().Str("module", "config").Msg("using the development signing secret")
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("store", cfg.Store.Driver).Msg("config ready")
	return &cfg, nil
}
