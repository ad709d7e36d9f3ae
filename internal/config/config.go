package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultBaseURL = "http://127.0.0.1:9090"
	envPrefix      = "CLASHSTAT"
)

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// ControllerConfig is the connection context for the proxy controller API.
type ControllerConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	Secret             string `mapstructure:"secret"`
	SecretEnv          string `mapstructure:"secret_env"` // e.g. CLASH_SECRET
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

func (c ControllerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type OutputConfig struct {
	Format string `mapstructure:"format"` // text, json or yaml
}

type ServeConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
	MetricPrefix  string `mapstructure:"metric_prefix"`
}

type Config struct {
	Controller ControllerConfig `mapstructure:"controller"`
	Output     OutputConfig     `mapstructure:"output"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Serve      ServeConfig      `mapstructure:"serve"`
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"url":        "controller.base_url",
	"secret":     "controller.secret",
	"timeout":    "controller.timeout_seconds",
	"insecure":   "controller.insecure_skip_verify",
	"output":     "output.format",
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"listen":     "serve.listen_address",
	"prefix":     "serve.metric_prefix",
}

// RegisterFlags adds the flags understood by Load to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("url", DefaultBaseURL, "controller API base URL")
	fs.String("secret", "", "controller API bearer secret")
	fs.Int("timeout", 10, "request timeout in seconds")
	fs.Bool("insecure", false, "skip TLS certificate verification")
	fs.StringP("output", "o", "text", "output format: text, json or yaml")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "console", "log format: console or json")
	fs.String("listen", "127.0.0.1:9188", "listen address for serve")
	fs.String("prefix", "clash", "metric name prefix for serve")
}

// Load reads configuration from defaults, an optional YAML file, CLASHSTAT_*
// environment variables and flags, in increasing order of precedence.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// env overrides: CLASHSTAT_CONTROLLER_BASE_URL etc.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("controller.base_url", DefaultBaseURL)
	v.SetDefault("controller.secret", "")
	v.SetDefault("controller.secret_env", "")
	v.SetDefault("controller.timeout_seconds", 10)
	v.SetDefault("controller.insecure_skip_verify", false)
	v.SetDefault("output.format", "text")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("serve.listen_address", "127.0.0.1:9188")
	v.SetDefault("serve.metric_prefix", "clash")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Controller.Secret == "" && cfg.Controller.SecretEnv != "" {
		cfg.Controller.Secret = os.Getenv(cfg.Controller.SecretEnv)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Controller.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid controller base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid controller base_url %q: want http(s)://host[:port]", c.Controller.BaseURL)
	}
	c.Controller.BaseURL = strings.TrimRight(c.Controller.BaseURL, "/")

	if c.Controller.TimeoutSeconds < 1 {
		return fmt.Errorf("invalid controller timeout_seconds %d: must be at least 1", c.Controller.TimeoutSeconds)
	}

	switch strings.ToLower(c.Output.Format) {
	case "text", "json", "yaml":
		c.Output.Format = strings.ToLower(c.Output.Format)
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}
	return nil
}
