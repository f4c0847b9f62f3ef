package sshutils

import (
	"context"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHDialer opens the raw connection and starts the SSH handshake.
type SSHDialer interface {
	Dial(ctx context.Context, network, addr string, config *ssh.ClientConfig) (Transport, error)
}

// Transport is an SSH connection whose handshake runs in the background. Key exchange
// completion and authentication are observed through WaitHandshake and AuthPassword.
type Transport interface {
	// WaitHandshake blocks until key exchange has finished or ctx is done.
	WaitHandshake(ctx context.Context) error
	// AuthPassword hands the password to the pending handshake and blocks until
	// authentication completes or ctx is done.
	AuthPassword(ctx context.Context, password string) error
	IsActive() bool
	IsAuthenticated() bool
	// Err is the reason the handshake or connection failed, if any.
	Err() error
	OpenShell(ctx context.Context, pty PtyRequest) (Channel, error)
	NewSFTPClient() (SFTPClienter, error)
	Close() error
}

// Channel is one interactive shell stream over a Transport.
type Channel interface {
	// Send writes p. ErrWriteTimeout means the write did not finish within the timeout.
	Send(p []byte) error
	// Recv returns at most n bytes, waiting no longer than min(wait, timeout).
	// ErrReadTimeout means nothing arrived.
	Recv(n int, wait time.Duration) ([]byte, error)
	SetTimeout(d time.Duration)
	Closed() bool
	Close() error
}

// SFTPClienter is the subset of the SFTP client used for get/put.
type SFTPClienter interface {
	Open(path string) (io.ReadCloser, error)
	Create(path string) (io.WriteCloser, error)
	Stat(path string) (os.FileInfo, error)
	Close() error
}
