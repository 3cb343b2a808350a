package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Reveal   RevealConfig   `mapstructure:"reveal"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr" validate:"required"`
	Mode              string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// LockTimeout 仅对 postgres 生效（SET LOCAL lock_timeout）
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	LogLevel    string        `mapstructure:"log_level" validate:"oneof=silent error warn info"`
}

// RedisConfig Addr 为空时不启用缓存
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	ProfileTTL time.Duration `mapstructure:"profile_ttl"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret" validate:"required,min=16"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type RetryConfig struct {
	MaxTries        uint          `mapstructure:"max_tries" validate:"gte=1"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type ChatConfig struct {
	MaxContentLength int           `mapstructure:"max_content_length" validate:"gte=1"`
	MinSendInterval  time.Duration `mapstructure:"min_send_interval" validate:"gte=0"`
	SendTimeout      time.Duration `mapstructure:"send_timeout"`
	DefaultPageSize  int           `mapstructure:"default_page_size" validate:"gte=1"`
	MaxPageSize      int           `mapstructure:"max_page_size" validate:"gtefield=DefaultPageSize"`
	MaxVoiceDuration time.Duration `mapstructure:"max_voice_duration"`
	GateIdleTTL      time.Duration `mapstructure:"gate_idle_ttl"`
	Retry            RetryConfig   `mapstructure:"retry"`
}

type RevealConfig struct {
	Thresholds []int `mapstructure:"thresholds" validate:"len=4,dive,gt=0"`
}

type RealtimeConfig struct {
	TypingInterval time.Duration `mapstructure:"typing_interval"`
	SendBuffer     int           `mapstructure:"send_buffer" validate:"gte=1"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Insecure    bool   `mapstructure:"insecure"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// Load 读取 config/config.yaml（可选）并用 UNVEIL_ 前缀的环境变量覆盖
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("UNVEIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return parse(v)
}

func parse(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验字段约束，阈值必须严格递增
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for i := 1; i < len(c.Reveal.Thresholds); i++ {
		if c.Reveal.Thresholds[i] <= c.Reveal.Thresholds[i-1] {
			return fmt.Errorf("invalid config: reveal.thresholds must be strictly ascending, got %v", c.Reveal.Thresholds)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=unveil port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.lock_timeout", 5*time.Second)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.profile_ttl", 10*time.Minute)

	v.SetDefault("jwt.secret", "change-me-in-production-please")
	v.SetDefault("jwt.issuer", "unveil")
	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("chat.max_content_length", 1000)
	v.SetDefault("chat.min_send_interval", 400*time.Millisecond)
	v.SetDefault("chat.send_timeout", 10*time.Second)
	v.SetDefault("chat.default_page_size", 50)
	v.SetDefault("chat.max_page_size", 100)
	v.SetDefault("chat.max_voice_duration", 5*time.Minute)
	v.SetDefault("chat.gate_idle_ttl", time.Minute)
	v.SetDefault("chat.retry.max_tries", 5)
	v.SetDefault("chat.retry.initial_interval", 20*time.Millisecond)
	v.SetDefault("chat.retry.max_interval", 500*time.Millisecond)

	v.SetDefault("reveal.thresholds", []int{10, 30, 50, 80})

	v.SetDefault("realtime.typing_interval", time.Second)
	v.SetDefault("realtime.send_buffer", 32)
	v.SetDefault("realtime.write_timeout", 10*time.Second)
	v.SetDefault("realtime.pong_wait", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "unveil")
	v.SetDefault("tracing.insecure", true)
}
