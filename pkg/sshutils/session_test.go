package sshutils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/bacalhau-project/shellwright/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const testPassword = "s3cr3t-pa55"

func fastTimeouts() TimeoutConfig {
	return TimeoutConfig{
		HandshakeTimeout:  time.Second,
		AuthTimeout:       time.Second,
		ReadTimeout:       time.Second,
		ShellReadyTimeout: time.Second,
		PollInterval:      10 * time.Millisecond,
		RetryInterval:     0,
		SendRetryDelay:    0,
		ReconnectDelay:    0,
		MaxRetries:        3,
	}
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *logger.TestLogger) {
	t.Helper()
	tl := logger.NewTestLogger(t)
	opts = append([]Option{WithLogger(tl.Logger), WithTimeouts(fastTimeouts())}, opts...)
	s, err := NewSession("example.com", 22, "admin", testPassword, opts...)
	require.NoError(t, err)
	return s, tl
}

func TestNewSession(t *testing.T) {
	dialer := NewMockSSHDialer()
	s, err := NewSession("example.com", 2222, "admin", testPassword, WithDialer(dialer))

	require.NoError(t, err)
	assert.Equal(t, "example.com", s.Host)
	assert.Equal(t, 2222, s.Port)
	assert.Equal(t, "admin", s.User)
	assert.Equal(t, "admin@#>", s.Prompt())
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, dialer, s.dialer)
	assert.Equal(t, DefaultTimeoutConfig(), s.Timeouts)
	assert.IsType(t, &logger.Logger{}, s.logger)
	assert.False(t, s.IsActive())
}

func TestNewSessionValidation(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
		user string
	}{
		{name: "empty host", host: "", port: 22, user: "u"},
		{name: "zero port", host: "h", port: 0, user: "u"},
		{name: "port out of range", host: "h", port: 65536, user: "u"},
		{name: "empty user", host: "h", port: 22, user: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSession(tt.host, tt.port, tt.user, testPassword)
			assert.Error(t, err)
			assert.Nil(t, s)
		})
	}
}

func TestConnectRetriesThenFails(t *testing.T) {
	dialer := NewMockSSHDialer()
	s, _ := newTestSession(t, WithDialer(dialer))

	dialErr := errors.New("connection refused")
	dialer.On("Dial", mock.Anything, "tcp", "example.com:22", mock.AnythingOfType("*ssh.ClientConfig")).
		Return(nil, dialErr)

	tr, err := s.Connect(context.Background())

	assert.Nil(t, tr)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, 3, connErr.Attempts)
	assert.Equal(t, "example.com:22", connErr.Addr)
	assert.ErrorIs(t, err, dialErr)
	dialer.AssertNumberOfCalls(t, "Dial", 3)
}

func TestConnectSucceedsOnRetry(t *testing.T) {
	dialer := NewMockSSHDialer()
	s, tl := newTestSession(t, WithDialer(dialer))

	tr := &MockTransport{}
	tr.On("WaitHandshake", mock.Anything).Return(nil)
	tr.On("IsActive").Return(true)

	dialer.On("Dial", mock.Anything, "tcp", "example.com:22", mock.Anything).
		Return(nil, errors.New("connection reset")).Once()
	dialer.On("Dial", mock.Anything, "tcp", "example.com:22", mock.Anything).
		Return(tr, nil).Once()

	got, err := s.Connect(context.Background())

	require.NoError(t, err)
	assert.Same(t, tr, got)
	dialer.AssertNumberOfCalls(t, "Dial", 2)
	assert.Len(t, tl.GetLogsAtLevel(zapcore.WarnLevel), 1)
	tr.AssertExpectations(t)
}

func TestConnectClosesTransportThatDiedDuringHandshake(t *testing.T) {
	dialer := NewMockSSHDialer()
	s, _ := newTestSession(t, WithDialer(dialer))
	s.Timeouts.MaxRetries = 1

	cause := errors.New("ssh: handshake failed: EOF")
	tr := &MockTransport{}
	tr.On("WaitHandshake", mock.Anything).Return(nil)
	tr.On("IsActive").Return(false)
	tr.On("Err").Return(cause)
	tr.On("Close").Return(nil)
	dialer.On("Dial", mock.Anything, "tcp", mock.Anything, mock.Anything).Return(tr, nil)

	_, err := s.Connect(context.Background())

	assert.ErrorIs(t, err, cause)
	tr.AssertCalled(t, "Close")
}

func TestConnectZeroMaxRetriesUsesDefault(t *testing.T) {
	dialer := NewMockSSHDialer()
	s, _ := newTestSession(t, WithDialer(dialer))
	s.Timeouts.MaxRetries = 0

	dialer.On("Dial", mock.Anything, "tcp", "example.com:22", mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := s.Connect(context.Background())

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, SSHRetryAttempts, connErr.Attempts)
	dialer.AssertNumberOfCalls(t, "Dial", SSHRetryAttempts)
}

func TestLoginRefusedAfterKeyExchangeIsNotRedialed(t *testing.T) {
	dialer := NewMockSSHDialer()
	s, _ := newTestSession(t, WithDialer(dialer))

	refusal := fmt.Errorf("%w: ssh: unable to authenticate, attempted methods [none], no supported methods remain",
		ErrAuthenticationFailed)
	tr := &MockTransport{}
	tr.On("WaitHandshake", mock.Anything).Return(nil)
	tr.On("IsActive").Return(false)
	tr.On("IsAuthenticated").Return(false)
	tr.On("Err").Return(refusal)
	tr.On("AuthPassword", mock.Anything, testPassword).Return(refusal)
	tr.On("Close").Return(nil)
	dialer.On("Dial", mock.Anything, "tcp", "example.com:22", mock.Anything).Return(tr, nil)

	err := s.Login(context.Background())

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, authErr.TimedOut)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	var connErr *ConnectionError
	assert.False(t, errors.As(err, &connErr))
	dialer.AssertNumberOfCalls(t, "Dial", 1)
	assert.Equal(t, StateDisconnected, s.State())
	tr.AssertNotCalled(t, "OpenShell", mock.Anything, mock.Anything)
}

func TestConnectHandshakeTimeout(t *testing.T) {
	// accepts TCP but never speaks SSH
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				_ = c.Close()
			}
		}()
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()

	addr := l.Addr().(*net.TCPAddr)
	tl := logger.NewTestLogger(t)
	timeouts := fastTimeouts()
	timeouts.HandshakeTimeout = 100 * time.Millisecond
	timeouts.MaxRetries = 2
	s, err := NewSession(addr.IP.String(), addr.Port, "admin", testPassword, WithLogger(tl.Logger), WithTimeouts(timeouts))
	require.NoError(t, err)

	start := time.Now()
	tr, err := s.Connect(context.Background())

	assert.Nil(t, tr)
	assert.ErrorIs(t, err, ErrHandshakeTimeout)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, 2, connErr.Attempts)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, tl.GetLogsAtLevel(zapcore.WarnLevel), addr.IP.String()+" start client timeout")
}

func TestConnectHonoursContext(t *testing.T) {
	dialer := NewMockSSHDialer()
	s, _ := newTestSession(t, WithDialer(dialer))
	s.Timeouts.RetryInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	dialer.On("Dial", mock.Anything, "tcp", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, errors.New("connection refused"))

	_, err := s.Connect(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	dialer.AssertNumberOfCalls(t, "Dial", 1)
}

func TestAuthenticateSkipsWhenAlreadyAuthenticated(t *testing.T) {
	s, _ := newTestSession(t)
	tr := &MockTransport{}
	tr.On("IsAuthenticated").Return(true)

	require.NoError(t, s.Authenticate(context.Background(), tr))
	tr.AssertNotCalled(t, "AuthPassword", mock.Anything, mock.Anything)
}

func TestAuthenticateSuccess(t *testing.T) {
	s, _ := newTestSession(t)
	tr := &MockTransport{}
	tr.On("IsAuthenticated").Return(false).Once()
	tr.On("AuthPassword", mock.Anything, testPassword).Return(nil)
	tr.On("IsAuthenticated").Return(true)

	require.NoError(t, s.Authenticate(context.Background(), tr))
	tr.AssertExpectations(t)
}

func TestAuthenticateFailureReportsTransportCause(t *testing.T) {
	s, tl := newTestSession(t)
	cause := errors.New("ssh: unable to authenticate")
	tr := &MockTransport{}
	tr.On("IsAuthenticated").Return(false)
	tr.On("AuthPassword", mock.Anything, testPassword).Return(cause)
	tr.On("Err").Return(cause)

	err := s.Authenticate(context.Background(), tr)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, authErr.TimedOut)
	assert.Equal(t, "admin", authErr.User)
	assert.ErrorIs(t, err, cause)
	assert.Len(t, tl.GetLogsAtLevel(zapcore.ErrorLevel), 1)
	for _, msg := range tl.GetLogs() {
		assert.NotContains(t, msg, testPassword, "password must not be logged")
	}
}

func TestAuthenticateTimeout(t *testing.T) {
	s, tl := newTestSession(t)
	s.Timeouts.AuthTimeout = 20 * time.Millisecond

	tr := &MockTransport{}
	tr.On("IsAuthenticated").Return(false)
	tr.On("AuthPassword", mock.Anything, testPassword).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(context.DeadlineExceeded)
	tr.On("Err").Return(nil)

	err := s.Authenticate(context.Background(), tr)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.TimedOut)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Contains(t, tl.GetLogsAtLevel(zapcore.WarnLevel), "Authenticate timeout")
}

func loggedInSession(t *testing.T, ch *fakeChannel, clock *fakeClock) (*Session, *MockTransport, *logger.TestLogger) {
	t.Helper()
	dialer := NewMockSSHDialer()
	s, tl := newTestSession(t, WithDialer(dialer), WithTimeProvider(clock))

	tr := &MockTransport{}
	tr.On("WaitHandshake", mock.Anything).Return(nil)
	tr.On("IsActive").Return(true)
	tr.On("IsAuthenticated").Return(false).Once()
	tr.On("AuthPassword", mock.Anything, testPassword).Return(nil)
	tr.On("IsAuthenticated").Return(true)
	tr.On("OpenShell", mock.Anything, PtyRequest{Term: PtyTerm, Width: PtyWidth, Height: PtyHeight}).
		Return(ch, nil)
	tr.On("Close").Return(nil).Maybe()
	dialer.On("Dial", mock.Anything, "tcp", "example.com:22", mock.Anything).Return(tr, nil)

	ch.on(SetPromptCommand+LineSeparator, SetPromptCommand+"\r\n", "admin@#>")
	require.NoError(t, s.Login(context.Background()))
	return s, tr, tl
}

func TestLoginInstallsPrompt(t *testing.T) {
	clock := newFakeClock()
	ch := newFakeChannel(clock, "Last login: Mon Jan  1\r\n", "admin@host:~$ ")

	s, tr, _ := loggedInSession(t, ch, clock)

	assert.Equal(t, StateActive, s.State())
	assert.True(t, s.IsActive())
	assert.Equal(t, []string{SetPromptCommand + LineSeparator}, ch.Sent())
	assert.Equal(t, s.Timeouts.ReadTimeout, ch.timeout)
	tr.AssertExpectations(t)
	tr.AssertNotCalled(t, "Close")
}

func TestLoginWithoutInitialPromptStillCompletes(t *testing.T) {
	clock := newFakeClock()
	ch := newFakeChannel(clock)

	s, _, tl := loggedInSession(t, ch, clock)

	assert.Equal(t, StateActive, s.State())
	assert.Contains(t, tl.GetLogsAtLevel(zapcore.WarnLevel), "Has not got the command prompt yet at this connection")
}

func TestLoginAuthFailureLeavesSessionDisconnected(t *testing.T) {
	dialer := NewMockSSHDialer()
	s, _ := newTestSession(t, WithDialer(dialer))

	tr := &MockTransport{}
	tr.On("WaitHandshake", mock.Anything).Return(nil)
	tr.On("IsActive").Return(true)
	tr.On("IsAuthenticated").Return(false)
	tr.On("AuthPassword", mock.Anything, testPassword).Return(errors.New("denied"))
	tr.On("Err").Return(nil)
	tr.On("Close").Return(nil)
	dialer.On("Dial", mock.Anything, "tcp", mock.Anything, mock.Anything).Return(tr, nil)

	err := s.Login(context.Background())

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, StateDisconnected, s.State())
	assert.False(t, s.IsActive())
	tr.AssertCalled(t, "Close")
	tr.AssertNotCalled(t, "OpenShell", mock.Anything, mock.Anything)
}

func TestCloseIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	ch := newFakeChannel(clock, "$ ")
	s, tr, _ := loggedInSession(t, ch, clock)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	assert.False(t, s.IsActive())
	assert.True(t, ch.Closed())
	assert.Equal(t, StateDisconnected, s.State())
	tr.AssertNumberOfCalls(t, "Close", 1)
}
