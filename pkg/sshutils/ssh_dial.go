package sshutils

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/crypto/ssh"
)

var NewSSHDialFunc = NewSSHDial

// NewSSHDial returns the dialer used by sessions unless one is injected.
func NewSSHDial() SSHDialer {
	return &SSHDial{}
}

// SSHDial dials TCP and hands the connection to a background handshake.
type SSHDial struct {
	Dialer net.Dialer
}

func (d *SSHDial) Dial(
	ctx context.Context,
	network, addr string,
	config *ssh.ClientConfig,
) (Transport, error) {
	conn, err := d.Dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	return newSSHTransport(conn, addr, config), nil
}
