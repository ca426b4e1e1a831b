package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxstorage/spare/pkg/config"
	"github.com/nyxstorage/spare/pkg/objectstore/s3"
)

func TestLoad_FromFileWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
s3:
  endpoint: s3.example.com
  access_key: AKID
  secret_key: secret
bucket: backups
password: hunter2
`), 0o644))

	cfg, err := config.Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "s3.example.com", cfg.S3.Endpoint)
	assert.Equal(t, "backups", cfg.Bucket)
	assert.Equal(t, s3.DefaultConnectTimeout, cfg.S3.ConnectTimeout)
	assert.Equal(t, s3.DefaultReadTimeout, cfg.S3.ReadTimeout)
	assert.Equal(t, s3.DefaultMaxAttempts, cfg.S3.MaxAttempts)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
s3:
  endpoint: s3.example.com
  access_key: AKID
  secret_key: secret
bucket: from-file
password: hunter2
`), 0o644))

	t.Setenv("SPARE_BUCKET", "from-env")

	cfg, err := config.Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Bucket)
}

func TestLoad_MissingRequiredFieldFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bucket: backups
`), 0o644))

	_, err := config.Load(viper.New(), path)
	require.Error(t, err)
}

func TestApplyDefaults_NormalizesLogLevel(t *testing.T) {
	cfg := &config.Config{
		S3:       config.S3Config{Endpoint: "e", AccessKey: "a", SecretKey: "s"},
		Bucket:   "b",
		Password: "p",
		Logging:  config.LoggingConfig{Level: "debug"},
	}
	config.ApplyDefaults(cfg)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}
