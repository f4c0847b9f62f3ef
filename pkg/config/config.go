package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bacalhau-project/shellwright/pkg/logger"
	"github.com/bacalhau-project/shellwright/pkg/sshutils"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "SHELLWRIGHT"
	ConfigFileName = ".shellwright"
	ConfigFileType = "yaml"
)

// Config is everything the CLI reads from file, environment and flags.
type Config struct {
	SSH SSHConfig     `mapstructure:"ssh" yaml:"ssh"`
	Log logger.Config `mapstructure:"log" yaml:"log"`
}

type SSHConfig struct {
	Host       string         `mapstructure:"host"        yaml:"host"`
	Port       int            `mapstructure:"port"        yaml:"port"`
	User       string         `mapstructure:"user"        yaml:"user"`
	Password   string         `mapstructure:"password"    yaml:"password"`
	KnownHosts string         `mapstructure:"known_hosts" yaml:"known_hosts"`
	MaxRetries int            `mapstructure:"max_retries" yaml:"max_retries"`
	Timeouts   TimeoutsConfig `mapstructure:"timeouts"    yaml:"timeouts"`
}

type TimeoutsConfig struct {
	Handshake     time.Duration `mapstructure:"handshake"      yaml:"handshake"`
	Auth          time.Duration `mapstructure:"auth"           yaml:"auth"`
	Read          time.Duration `mapstructure:"read"           yaml:"read"`
	ShellReady    time.Duration `mapstructure:"shell_ready"    yaml:"shell_ready"`
	Poll          time.Duration `mapstructure:"poll"           yaml:"poll"`
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
}

// SetDefaults registers every key so environment variables bind even when no
// config file sets them.
func SetDefaults(v *viper.Viper) {
	d := sshutils.DefaultTimeoutConfig()

	v.SetDefault("ssh.host", "")
	v.SetDefault("ssh.port", sshutils.DefaultSSHPort)
	v.SetDefault("ssh.user", "")
	v.SetDefault("ssh.password", "")
	v.SetDefault("ssh.known_hosts", "")
	v.SetDefault("ssh.max_retries", d.MaxRetries)
	v.SetDefault("ssh.timeouts.handshake", d.HandshakeTimeout)
	v.SetDefault("ssh.timeouts.auth", d.AuthTimeout)
	v.SetDefault("ssh.timeouts.read", d.ReadTimeout)
	v.SetDefault("ssh.timeouts.shell_ready", d.ShellReadyTimeout)
	v.SetDefault("ssh.timeouts.poll", d.PollInterval)
	v.SetDefault("ssh.timeouts.retry_interval", d.RetryInterval)

	v.SetDefault("log.level", logger.InfoLogLevel)
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.with_trace", false)
	v.SetDefault("log.enable_console", true)
}

// Setup prepares v the way the CLI uses it: defaults, SHELLWRIGHT_* environment
// variables, and either cfgFile or ~/.shellwright.yaml / ./.shellwright.yaml.
func Setup(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType(ConfigFileType)
		v.SetConfigName(ConfigFileName)
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		path, err := homedir.Expand(p)
		if err != nil {
			return fmt.Errorf("failed to expand env file path: %w", err)
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// ReadInConfig reads the config file if there is one. A missing default file is not an
// error; a missing explicit file is.
func ReadInConfig(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return nil
	}
	return fmt.Errorf("failed to read config file: %w", err)
}

// Load unmarshals v into a Config and expands ~ in path settings.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var err error
	if cfg.SSH.KnownHosts != "" {
		if cfg.SSH.KnownHosts, err = homedir.Expand(cfg.SSH.KnownHosts); err != nil {
			return nil, fmt.Errorf("failed to expand known_hosts path: %w", err)
		}
	}
	if cfg.Log.FilePath != "" {
		if cfg.Log.FilePath, err = homedir.Expand(cfg.Log.FilePath); err != nil {
			return nil, fmt.Errorf("failed to expand log file path: %w", err)
		}
	}
	return cfg, nil
}

// Validate checks the connection settings. Host is not required here because the
// run command can take it from flags.
func (c *Config) Validate() error {
	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		return fmt.Errorf("invalid ssh port: %d", c.SSH.Port)
	}
	if c.SSH.MaxRetries < 1 {
		return fmt.Errorf("ssh.max_retries must be at least 1, got %d", c.SSH.MaxRetries)
	}

	t := c.SSH.Timeouts
	for name, d := range map[string]time.Duration{
		"handshake":      t.Handshake,
		"auth":           t.Auth,
		"read":           t.Read,
		"shell_ready":    t.ShellReady,
		"poll":           t.Poll,
		"retry_interval": t.RetryInterval,
	} {
		if d < 0 {
			return fmt.Errorf("ssh.timeouts.%s cannot be negative", name)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Log.Level)
	}
	return nil
}

// TimeoutConfig maps the configured timeouts onto the session's. Zero values fall
// back to the session defaults, except retry_interval where zero means no pause
// between attempts; its default arrives through SetDefaults.
func (c *Config) TimeoutConfig() sshutils.TimeoutConfig {
	tc := sshutils.DefaultTimeoutConfig()
	t := c.SSH.Timeouts
	if t.Handshake > 0 {
		tc.HandshakeTimeout = t.Handshake
	}
	if t.Auth > 0 {
		tc.AuthTimeout = t.Auth
	}
	if t.Read > 0 {
		tc.ReadTimeout = t.Read
	}
	if t.ShellReady > 0 {
		tc.ShellReadyTimeout = t.ShellReady
	}
	if t.Poll > 0 {
		tc.PollInterval = t.Poll
	}
	if t.RetryInterval >= 0 {
		tc.RetryInterval = t.RetryInterval
	}
	if c.SSH.MaxRetries > 0 {
		tc.MaxRetries = c.SSH.MaxRetries
	}
	return tc
}
