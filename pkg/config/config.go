// Package config loads the connection settings shared by every spare
// subcommand: the S3-compatible endpoint, bucket, and encryption password.
// Precedence follows the teacher's layering: CLI flags > environment
// variables (SPARE_*) > a YAML config file > defaults.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/nyxstorage/spare/pkg/objectstore/s3"
)

// S3Config is the connection configuration for the backing object store.
type S3Config struct {
	Endpoint       string        `mapstructure:"endpoint" validate:"required" yaml:"endpoint"`
	AccessKey      string        `mapstructure:"access_key" validate:"required" yaml:"access_key"`
	SecretKey      string        `mapstructure:"secret_key" validate:"required" yaml:"secret_key"`
	Region         string        `mapstructure:"region" yaml:"region,omitempty"`
	ForcePathStyle bool          `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout,omitempty"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout,omitempty"`
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts,omitempty"`
}

// LoggingConfig controls log output, mirroring the teacher's logging block.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig holds the metrics section of the config file. No command
// reads it, and no metrics HTTP server is started.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Config is the connection-level configuration shared by create, restore,
// validate, lock, and unlock. Per-operation arguments (path, skip patterns,
// force, codec, keep, snapshot selector) stay as command flags rather than
// persistent config, matching the original's separation between its
// s3_client helper and each backup.py function's own parameters.
type Config struct {
	S3       S3Config      `mapstructure:"s3" yaml:"s3"`
	Bucket   string        `mapstructure:"bucket" validate:"required" yaml:"bucket"`
	Password string        `mapstructure:"password" validate:"required" yaml:"password"`
	Logging  LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// S3StoreConfig projects Config's S3 section onto objectstore/s3.Config.
func (c *Config) S3StoreConfig() s3.Config {
	return s3.Config{
		Bucket:         c.Bucket,
		Region:         c.S3.Region,
		Endpoint:       c.S3.Endpoint,
		AccessKey:      c.S3.AccessKey,
		SecretKey:      c.S3.SecretKey,
		ForcePathStyle: c.S3.ForcePathStyle,
		ConnectTimeout: c.S3.ConnectTimeout,
		ReadTimeout:    c.S3.ReadTimeout,
		MaxAttempts:    c.S3.MaxAttempts,
	}
}

// ApplyDefaults fills unset fields with the original implementation's
// pinned values (spec §5, utils.py's s3_client).
func ApplyDefaults(cfg *Config) {
	if cfg.S3.ConnectTimeout <= 0 {
		cfg.S3.ConnectTimeout = s3.DefaultConnectTimeout
	}
	if cfg.S3.ReadTimeout <= 0 {
		cfg.S3.ReadTimeout = s3.DefaultReadTimeout
	}
	if cfg.S3.MaxAttempts <= 0 {
		cfg.S3.MaxAttempts = s3.DefaultMaxAttempts
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Load reads configuration from configPath (if non-empty and present),
// environment variables prefixed SPARE_ (SPARE_S3_ENDPOINT, SPARE_BUCKET,
// ...), applies defaults, and validates the result. Flags are bound by the
// caller directly onto v before calling Load, so they take precedence over
// everything else viper resolves.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	v.SetEnvPrefix("SPARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// durationDecodeHook lets config files and flags express timeouts as
// human-readable strings ("5s", "10s") rather than raw nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
