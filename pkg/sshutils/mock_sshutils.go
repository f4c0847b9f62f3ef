package sshutils

import (
	"context"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/ssh"
)

// MockSSHDialer is a mock implementation of SSHDialer
type MockSSHDialer struct {
	mock.Mock
}

// Dial is a mock implementation of the Dial method
func (m *MockSSHDialer) Dial(
	ctx context.Context,
	network, addr string,
	config *ssh.ClientConfig,
) (Transport, error) {
	args := m.Called(ctx, network, addr, config)
	if args.Get(1) != nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Transport), nil
}

// NewMockSSHDialer returns a MockSSHDialer with no expectations set
func NewMockSSHDialer() *MockSSHDialer {
	return &MockSSHDialer{}
}

// MockTransport is a mock implementation of Transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) WaitHandshake(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTransport) AuthPassword(ctx context.Context, password string) error {
	args := m.Called(ctx, password)
	return args.Error(0)
}

func (m *MockTransport) IsActive() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockTransport) IsAuthenticated() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockTransport) Err() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransport) OpenShell(ctx context.Context, pty PtyRequest) (Channel, error) {
	args := m.Called(ctx, pty)
	if args.Get(1) != nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Channel), nil
}

func (m *MockTransport) NewSFTPClient() (SFTPClienter, error) {
	args := m.Called()
	if args.Get(1) != nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(SFTPClienter), nil
}

func (m *MockTransport) Close() error {
	args := m.Called()
	return args.Error(0)
}

var (
	_ SSHDialer = (*MockSSHDialer)(nil)
	_ Transport = (*MockTransport)(nil)
	_ Transport = (*sshTransport)(nil)
	_ Channel   = (*shellChannel)(nil)
)
