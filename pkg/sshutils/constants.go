package sshutils

import "time"

var (
	HandshakeTimeout   = 10 * time.Second
	AuthTimeout        = 120 * time.Second
	ChannelReadTimeout = 10 * time.Second
	ShellReadyTimeout  = 5 * time.Second
	PollInterval       = 500 * time.Millisecond
	RetryInterval      = 3 * time.Second
	SendRetryDelay     = 1 * time.Second
	ReconnectDelay     = 1 * time.Second
	SSHRetryAttempts   = 3
)

const (
	DefaultSSHPort = 22

	LineSeparator = "\n"

	// ShellPromptPattern matches the tail of any common shell prompt.
	ShellPromptPattern = `[>$#]`
	PromptSuffix       = "@#>"
	SetPromptCommand   = `PS1='\u@#>'`

	PtyTerm   = "xterm"
	PtyWidth  = 200
	PtyHeight = 200

	DefaultRecvChunkSize = 1024
	DefaultExecChunkSize = 32768
	DefaultSendAttempts  = 10
	DefaultRunTimeout    = 60 * time.Second
	DefaultRecvTimeout   = 30 * time.Second
)

// GetAggregateConnectTimeout is the longest Connect can block before giving up.
func GetAggregateConnectTimeout() time.Duration {
	return (HandshakeTimeout + RetryInterval) * time.Duration(SSHRetryAttempts)
}
