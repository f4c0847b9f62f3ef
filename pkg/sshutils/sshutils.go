package sshutils

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// GetHostKeyCallback verifies host keys against a known_hosts file. An empty path
// accepts any host key.
func GetHostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec
	}

	path, err := homedir.Expand(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand known_hosts path: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open known_hosts file: %w", err)
	}

	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse known_hosts file: %w", err)
	}
	return callback, nil
}
