package common

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bacalhau-project/shellwright/pkg/config"
	"github.com/bacalhau-project/shellwright/pkg/logger"
	"github.com/bacalhau-project/shellwright/pkg/sshutils"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// flag name -> config key
var connectionKeys = map[string]string{
	"port":        "ssh.port",
	"user":        "ssh.user",
	"password":    "ssh.password",
	"known-hosts": "ssh.known_hosts",
	"max-retries": "ssh.max_retries",
}

// AddConnectionFlags registers the flags shared by every command that opens a
// session. Their values override the config file and environment.
func AddConnectionFlags(fs *pflag.FlagSet) {
	fs.Int("port", sshutils.DefaultSSHPort, "SSH port")
	fs.StringP("user", "u", "", "SSH username")
	fs.StringP("password", "p", "", "SSH password (prompted for when omitted on a terminal)")
	fs.String("known-hosts", "", "known_hosts file used to verify host keys (default: accept any key)")
	fs.Int("max-retries", sshutils.SSHRetryAttempts, "connect attempts before giving up")
}

// BindConnectionFlags binds the flags registered by AddConnectionFlags to v.
func BindConnectionFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for flag, key := range connectionKeys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// LoadConfig loads and validates the merged configuration from v.
func LoadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// PasswordReader is swapped in tests.
var PasswordReader = func(fd int) ([]byte, error) {
	return term.ReadPassword(fd)
}

var IsTerminal = term.IsTerminal

// ResolvePassword returns the configured password, or prompts for one when stdin is
// a terminal.
func ResolvePassword(cfg *config.Config, prompt io.Writer) (string, error) {
	if cfg.SSH.Password != "" {
		return cfg.SSH.Password, nil
	}
	fd := int(os.Stdin.Fd()) //nolint:gosec
	if !IsTerminal(fd) {
		return "", fmt.Errorf("no password configured: use --password, SHELLWRIGHT_SSH_PASSWORD or ssh.password")
	}
	fmt.Fprintf(prompt, "SSH password for %s: ", cfg.SSH.User)
	pass, err := PasswordReader(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(string(pass), "\r\n"), nil
}

// NewSession builds a session for host from cfg. Options are applied after the
// configured ones.
func NewSession(
	cfg *config.Config,
	host, password string,
	opts ...sshutils.Option,
) (*sshutils.Session, error) {
	if cfg.SSH.User == "" {
		return nil, fmt.Errorf("user is required")
	}
	hostKeyCallback, err := sshutils.GetHostKeyCallback(cfg.SSH.KnownHosts)
	if err != nil {
		return nil, err
	}
	base := []sshutils.Option{
		sshutils.WithLogger(logger.Get()),
		sshutils.WithTimeouts(cfg.TimeoutConfig()),
		sshutils.WithHostKeyCallback(hostKeyCallback),
	}
	return sshutils.NewSession(host, cfg.SSH.Port, cfg.SSH.User, password, append(base, opts...)...)
}
