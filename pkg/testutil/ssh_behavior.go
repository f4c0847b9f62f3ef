// Package testutil provides an in-process SSH server and shell emulator for testing
// sessions end to end.
package testutil

import (
	"github.com/pkg/sftp"
)

const (
	DefaultTestUser     = "tester"
	DefaultTestPassword = "s3cret"
)

// SSHServerBuilder provides a fluent interface for configuring an SSHServer
type SSHServerBuilder struct {
	server *SSHServer
}

// NewSSHServerBuilder starts from the default credentials, greeting and an empty
// in-memory filesystem.
func NewSSHServerBuilder() *SSHServerBuilder {
	return &SSHServerBuilder{
		server: &SSHServer{
			user:     DefaultTestUser,
			password: DefaultTestPassword,
			greeting: DefaultGreeting,
			commands: map[string]string{},
			hanging:  map[string]bool{},
			handlers: sftp.InMemHandler(),
		},
	}
}

// WithCredentials sets the only user and password the server accepts
func (b *SSHServerBuilder) WithCredentials(user, password string) *SSHServerBuilder {
	b.server.user = user
	b.server.password = password
	return b
}

// WithGreeting replaces the banner printed before the first prompt
func (b *SSHServerBuilder) WithGreeting(greeting string) *SSHServerBuilder {
	b.server.greeting = greeting
	return b
}

// WithCommand makes the shell print output when it receives cmd
func (b *SSHServerBuilder) WithCommand(cmd, output string) *SSHServerBuilder {
	b.server.commands[cmd] = output
	return b
}

// WithHangingCommand makes cmd print nothing and never return to the prompt
func (b *SSHServerBuilder) WithHangingCommand(cmd string) *SSHServerBuilder {
	b.server.hanging[cmd] = true
	return b
}

// WithSFTPHandlers replaces the in-memory SFTP backend
func (b *SSHServerBuilder) WithSFTPHandlers(h sftp.Handlers) *SSHServerBuilder {
	b.server.handlers = h
	return b
}

// WithPublicKeyOnly makes the server offer public key auth only and reject every key
func (b *SSHServerBuilder) WithPublicKeyOnly() *SSHServerBuilder {
	b.server.publicKeyOnly = true
	return b
}

// Build returns the configured server without starting it
func (b *SSHServerBuilder) Build() *SSHServer {
	return b.server
}
