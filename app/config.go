package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/sushihentaime/teamblog/internal/common"
)

type Config struct {
	Port           string `mapstructure:"PORT"`
	Environment    string `mapstructure:"ENVIRONMENT"`
	Version        string `mapstructure:"VERSION"`
	AppURL         string `mapstructure:"APP_URL"`
	TLSCertFile    string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string `mapstructure:"TLS_KEY_FILE"`
	MigrateOnStart bool   `mapstructure:"MIGRATE_ON_START"`
	MigrationsDir  string `mapstructure:"MIGRATIONS_DIR"`

	DB         DBConfig         `mapstructure:",squash"`
	Mail       MailConfig       `mapstructure:",squash"`
	RabbitMQ   RabbitMQConfig   `mapstructure:",squash"`
	Watermarks WatermarksConfig `mapstructure:",squash"`
	Cache      CacheConfig      `mapstructure:",squash"`
	Storage    StorageConfig    `mapstructure:",squash"`
	Limiter    LimiterConfig    `mapstructure:",squash"`
	Sentry     SentryConfig     `mapstructure:",squash"`
}

type DBConfig struct {
	Host         string        `mapstructure:"POSTGRES_HOST"`
	Port         string        `mapstructure:"POSTGRES_PORT"`
	User         string        `mapstructure:"POSTGRES_USER"`
	Password     string        `mapstructure:"POSTGRES_PASSWORD"`
	Name         string        `mapstructure:"POSTGRES_DB"`
	MaxOpenConns int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	MaxIdleTime  time.Duration `mapstructure:"DB_MAX_IDLE_TIME"`
}

type MailConfig struct {
	Host     string `mapstructure:"MAIL_HOST"`
	Port     int    `mapstructure:"MAIL_PORT"`
	User     string `mapstructure:"MAIL_USER"`
	Password string `mapstructure:"MAIL_PASSWORD"`
	Sender   string `mapstructure:"MAIL_SENDER"`
}

type RabbitMQConfig struct {
	Host     string `mapstructure:"RABBITMQ_HOST"`
	Port     string `mapstructure:"RABBITMQ_PORT"`
	User     string `mapstructure:"RABBITMQ_USER"`
	Password string `mapstructure:"RABBITMQ_PASSWORD"`
}

// WatermarksConfig selects where read watermarks live.
type WatermarksConfig struct {
	Backend  string `mapstructure:"WATERMARK_BACKEND"`
	MongoURI string `mapstructure:"MONGO_URI"`
	MongoDB  string `mapstructure:"MONGO_DB"`
}

// CacheConfig selects the unread cache. "none" disables it.
type CacheConfig struct {
	Backend       string        `mapstructure:"CACHE_BACKEND"`
	TTL           time.Duration `mapstructure:"CACHE_TTL"`
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
}

type StorageConfig struct {
	Backend       string `mapstructure:"STORAGE_BACKEND"`
	UploadDir     string `mapstructure:"UPLOAD_DIR"`
	MaxUploadSize int64  `mapstructure:"MAX_UPLOAD_SIZE"`
	S3Region      string `mapstructure:"S3_REGION"`
	S3Bucket      string `mapstructure:"S3_BUCKET"`
	S3AccessKey   string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey   string `mapstructure:"S3_SECRET_KEY"`
	S3Endpoint    string `mapstructure:"S3_ENDPOINT"`
}

type LimiterConfig struct {
	Enabled bool    `mapstructure:"LIMITER_ENABLED"`
	RPS     float64 `mapstructure:"LIMITER_RPS"`
	Burst   int     `mapstructure:"LIMITER_BURST"`
}

type SentryConfig struct {
	DSN string `mapstructure:"SENTRY_DSN"`
}

var configDefaults = map[string]any{
	"PORT":              ":4000",
	"ENVIRONMENT":       "development",
	"VERSION":           "1.0.0",
	"APP_URL":           "http://localhost:4000",
	"MIGRATE_ON_START":  false,
	"MIGRATIONS_DIR":    "file://migrations",
	"POSTGRES_HOST":     "localhost",
	"POSTGRES_PORT":     "5432",
	"POSTGRES_USER":     "",
	"POSTGRES_PASSWORD": "",
	"POSTGRES_DB":       "teamblog",
	"DB_MAX_OPEN_CONNS": 25,
	"DB_MAX_IDLE_CONNS": 25,
	"DB_MAX_IDLE_TIME":  "15m",
	"MAIL_HOST":         "localhost",
	"MAIL_PORT":         25,
	"MAIL_USER":         "",
	"MAIL_PASSWORD":     "",
	"MAIL_SENDER":       "Teamblog <no-reply@teamblog.local>",
	"RABBITMQ_HOST":     "localhost",
	"RABBITMQ_PORT":     "5672",
	"RABBITMQ_USER":     "guest",
	"RABBITMQ_PASSWORD": "guest",
	"WATERMARK_BACKEND": "postgres",
	"MONGO_URI":         "mongodb://localhost:27017",
	"MONGO_DB":          "teamblog",
	"CACHE_BACKEND":     "memory",
	"CACHE_TTL":         "1m",
	"REDIS_ADDR":        "localhost:6379",
	"REDIS_PASSWORD":    "",
	"REDIS_DB":          0,
	"STORAGE_BACKEND":   "disk",
	"UPLOAD_DIR":        "uploads",
	"MAX_UPLOAD_SIZE":   25 << 20,
	"S3_REGION":         "us-east-1",
	"S3_BUCKET":         "teamblog",
	"S3_ACCESS_KEY":     "",
	"S3_SECRET_KEY":     "",
	"S3_ENDPOINT":       "",
	"LIMITER_ENABLED":   true,
	"LIMITER_RPS":       2,
	"LIMITER_BURST":     4,
	"SENTRY_DSN":        "",
	"TLS_CERT_FILE":     "",
	"TLS_KEY_FILE":      "",
}

// loadConfig reads path when it exists. Environment variables override both
// the file and the defaults.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range configDefaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	v := common.NewValidator()
	v.Check(common.PermittedValue(c.Watermarks.Backend, "postgres", "mongo"), "WATERMARK_BACKEND", "must be postgres or mongo")
	v.Check(common.PermittedValue(c.Cache.Backend, "memory", "redis", "none"), "CACHE_BACKEND", "must be memory, redis or none")
	v.Check(common.PermittedValue(c.Storage.Backend, "disk", "s3"), "STORAGE_BACKEND", "must be disk or s3")
	v.Check(c.Storage.MaxUploadSize > 0, "MAX_UPLOAD_SIZE", "must be greater than zero")
	v.Check(!c.Limiter.Enabled || (c.Limiter.RPS > 0 && c.Limiter.Burst > 0), "LIMITER_RPS", "must be positive when the limiter is enabled")

	if !v.Valid() {
		return fmt.Errorf("invalid configuration: %w", v.ValidationError())
	}
	return nil
}

func (c *Config) postgresURI() string {
	return common.PostgresURI(c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name)
}

func (c *Config) rabbitURI() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

func (c *Config) isProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
