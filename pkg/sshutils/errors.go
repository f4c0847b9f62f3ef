package sshutils

import (
	"errors"
	"fmt"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotConnected         = errors.New("SSH transport not connected")
	ErrChannelClosed        = errors.New("SSH channel closed")
	ErrHandshakeTimeout     = errors.New("SSH handshake timeout")

	// ErrReadTimeout and ErrWriteTimeout are soft conditions: no data yet, or the peer
	// has not drained the previous write.
	ErrReadTimeout  = errors.New("channel read timeout")
	ErrWriteTimeout = errors.New("channel write timeout")
)

// ConnectionError is returned once every connect attempt has failed.
type ConnectionError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s after %d attempts: %v", e.Addr, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthenticationError reports rejected credentials or an authentication timeout.
type AuthenticationError struct {
	User     string
	Host     string
	TimedOut bool
	Err      error
}

func (e *AuthenticationError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("authentication of %s@%s timed out: %v", e.User, e.Host, e.Err)
	}
	return fmt.Sprintf("authentication of %s@%s failed: %v", e.User, e.Host, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// TransferError wraps a failed SFTP get or put. It is logged, never returned to callers
// of GetFile/PutFile.
type TransferError struct {
	Op     string
	Source string
	Target string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("file %s %s -> %s failed: %v", e.Op, e.Source, e.Target, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
