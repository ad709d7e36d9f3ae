package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.Controller.BaseURL)
	assert.Empty(t, cfg.Controller.Secret)
	assert.Equal(t, 10, cfg.Controller.TimeoutSeconds)
	assert.Equal(t, "text", cfg.Output.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:9188", cfg.Serve.ListenAddress)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
controller:
  base_url: http://10.0.0.1:9090/
  secret: from-file
  timeout_seconds: 3
output:
  format: JSON
`)
	t.Setenv("CLASHSTAT_CONTROLLER_SECRET", "from-env")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:9090", cfg.Controller.BaseURL)
	assert.Equal(t, "from-env", cfg.Controller.Secret)
	assert.Equal(t, 3, cfg.Controller.TimeoutSeconds)
	assert.Equal(t, "json", cfg.Output.Format)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--secret", "from-flag", "-o", "yaml"}))

	cfg, err = Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Controller.Secret)
	assert.Equal(t, "yaml", cfg.Output.Format)
	// unchanged flags do not shadow the file
	assert.Equal(t, 3, cfg.Controller.TimeoutSeconds)
}

func TestLoadSecretEnv(t *testing.T) {
	path := writeConfig(t, "controller:\n  secret_env: MY_CLASH_SECRET\n")
	t.Setenv("MY_CLASH_SECRET", "s3cret")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Controller.Secret)
}

func TestLoadRejectsShortTimeout(t *testing.T) {
	_, err := Load(writeConfig(t, "controller:\n  timeout_seconds: 0\n"), nil)
	assert.ErrorContains(t, err, "timeout_seconds")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--timeout", "-3"}))
	_, err = Load("", fs)
	assert.ErrorContains(t, err, "timeout_seconds")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeConfig(t, "controller:\n  base_url: 127.0.0.1:9090\n"), nil)
	assert.ErrorContains(t, err, "base_url")

	_, err = Load(writeConfig(t, "output:\n  format: xml\n"), nil)
	assert.ErrorContains(t, err, "output format")
}
