package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Anonymity AnonymityConfig `mapstructure:"anonymity"`
	Follow    FollowConfig    `mapstructure:"follow"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Events    EventsConfig    `mapstructure:"events"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres, sqlite
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"` // silent, error, warn, info
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// AnonymityConfig 匿名身份派生配置；Secret 绝不能出现在日志里
type AnonymityConfig struct {
	Secret        string `mapstructure:"secret"`
	ScanBatchSize int    `mapstructure:"scan_batch_size"`
}

type FollowConfig struct {
	MaxTxRetries int           `mapstructure:"max_tx_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type CacheConfig struct {
	ProfileTTL time.Duration `mapstructure:"profile_ttl"`
}

type EventsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Channel   string `mapstructure:"channel"`
	QueueSize int    `mapstructure:"queue_size"`
	Workers   int    `mapstructure:"workers"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

var (
	// ErrMissingAnonymitySecret 未配置匿名派生密钥
	ErrMissingAnonymitySecret = errors.New("anonymity.secret must be set")
	ErrMissingJWTSecret       = errors.New("jwt.secret must be set")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=community port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("jwt.secret", "")

	v.SetDefault("anonymity.secret", "")
	v.SetDefault("anonymity.scan_batch_size", 500)

	v.SetDefault("follow.max_tx_retries", 3)
	v.SetDefault("follow.retry_backoff", 20*time.Millisecond)

	v.SetDefault("cache.profile_ttl", 10*time.Minute)

	v.SetDefault("events.enabled", true)
	v.SetDefault("events.channel", "community:follows")
	v.SetDefault("events.queue_size", 10000)
	v.SetDefault("events.workers", 4)

	v.SetDefault("ratelimit.rps", 20)
	v.SetDefault("ratelimit.burst", 40)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "community-service")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load 读取 config.yaml（可选）与 COMMUNITY_ 前缀的环境变量
func Load() (*Config, error) {
	// .env 仅用于本地开发，不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("COMMUNITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验必填项
func (c *Config) Validate() error {
	if c.Anonymity.Secret == "" {
		return ErrMissingAnonymitySecret
	}
	if c.JWT.Secret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}
