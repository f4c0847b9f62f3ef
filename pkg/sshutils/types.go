package sshutils

import (
	"time"
)

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		HandshakeTimeout:  HandshakeTimeout,
		AuthTimeout:       AuthTimeout,
		ReadTimeout:       ChannelReadTimeout,
		ShellReadyTimeout: ShellReadyTimeout,
		PollInterval:      PollInterval,
		RetryInterval:     RetryInterval,
		SendRetryDelay:    SendRetryDelay,
		ReconnectDelay:    ReconnectDelay,
		MaxRetries:        SSHRetryAttempts,
	}
}

type TimeoutConfig struct {
	HandshakeTimeout  time.Duration
	AuthTimeout       time.Duration
	ReadTimeout       time.Duration
	ShellReadyTimeout time.Duration
	PollInterval      time.Duration
	RetryInterval     time.Duration
	SendRetryDelay    time.Duration
	ReconnectDelay    time.Duration
	MaxRetries        int
}

// withDefaults fills zero fields from DefaultTimeoutConfig.
func (c TimeoutConfig) withDefaults() TimeoutConfig {
	d := DefaultTimeoutConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = d.AuthTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.ShellReadyTimeout <= 0 {
		c.ShellReadyTimeout = d.ShellReadyTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.RetryInterval < 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.SendRetryDelay < 0 {
		c.SendRetryDelay = d.SendRetryDelay
	}
	if c.ReconnectDelay < 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	return c
}

// State is the lifecycle position of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateShellReady
	StateActive
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateAuthenticating:
		return "Authenticating"
	case StateShellReady:
		return "ShellReady"
	case StateActive:
		return "Active"
	case StateReconnecting:
		return "Reconnecting"
	default:
		return "Unknown"
	}
}

// PtyRequest describes the pseudo-terminal requested for the interactive shell.
type PtyRequest struct {
	Term   string
	Width  int
	Height int
}

// Reply answers an interactive sub-prompt during Run: once Expect matches, Input is sent.
type Reply struct {
	Expect string `yaml:"expect"`
	Input  string `yaml:"input"`
}
