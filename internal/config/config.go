package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig   `mapstructure:"server"`
	Database       DatabaseConfig `mapstructure:"database"`
	Storage        StorageConfig  `mapstructure:"storage"`
	Log            LogConfig      `mapstructure:"log"`
	JWTSecret      string         `mapstructure:"jwt_secret" validate:"required,min=8"`
	AccessTokenTTL time.Duration  `mapstructure:"access_token_ttl" validate:"gt=0"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" validate:"gt=0,lte=65535"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type StorageConfig struct {
	Driver        string        `mapstructure:"driver" validate:"oneof=local s3"`
	LocalPath     string        `mapstructure:"local_path"`
	MaxFileSize   int64         `mapstructure:"max_file_size" validate:"gt=0"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	UploadURLTTL  time.Duration `mapstructure:"upload_url_ttl" validate:"gt=0"`
	PendingMaxAge time.Duration `mapstructure:"pending_max_age" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	// UploadRule is an expression over size, contentType, fileName and ext
	// that must hold for an upload to be accepted. Empty accepts everything.
	UploadRule string   `mapstructure:"upload_rule"`
	S3         S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	KeyPrefix      string `mapstructure:"key_prefix"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"gt=0"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required"`
	PoolSize int    `mapstructure:"pool_size" validate:"gte=0"`
}

// ConnString returns the PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "mediator")
	v.SetDefault("database.password", "mediator")
	v.SetDefault("database.name", "mediator")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_path", "./uploads")
	v.SetDefault("storage.max_file_size", 25<<20)
	v.SetDefault("storage.cache_ttl", time.Hour)
	v.SetDefault("storage.upload_url_ttl", 15*time.Minute)
	v.SetDefault("storage.pending_max_age", time.Hour)
	v.SetDefault("storage.sweep_interval", 10*time.Minute)
	v.SetDefault("storage.upload_rule", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.key_prefix", "")
	v.SetDefault("storage.s3.force_path_style", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt_secret", "changeme-secret")
	v.SetDefault("access_token_ttl", 12*time.Hour)
}

// Load reads app.yaml from the working directory (optional) and MEDIATOR_*
// environment variables, then validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../..")
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("mediator")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
