package sshutils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bacalhau-project/shellwright/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// Session drives one interactive shell on a remote host. It owns its transport and
// at most one shell channel. A Session is meant for a single caller at a time; the
// mutex only protects the handles, not the interleaving of Send and Receive.
type Session struct {
	Host     string
	Port     int
	User     string
	password string

	Timeouts TimeoutConfig

	dialer          SSHDialer
	hostKeyCallback ssh.HostKeyCallback
	progress        ProgressFunc
	clock           TimeProvider
	logger          *logger.Logger

	mu        sync.Mutex
	transport Transport
	channel   Channel
	state     State
}

// Option configures a Session at construction.
type Option func(*Session)

func WithLogger(l *logger.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func WithDialer(d SSHDialer) Option {
	return func(s *Session) { s.dialer = d }
}

func WithTimeouts(t TimeoutConfig) Option {
	return func(s *Session) { s.Timeouts = t }
}

func WithHostKeyCallback(cb ssh.HostKeyCallback) Option {
	return func(s *Session) { s.hostKeyCallback = cb }
}

func WithProgress(fn ProgressFunc) Option {
	return func(s *Session) { s.progress = fn }
}

func WithTimeProvider(tp TimeProvider) Option {
	return func(s *Session) { s.clock = tp }
}

// NewSession validates the connection parameters. No network I/O happens until
// Connect or Login.
func NewSession(host string, port int, user, password string, opts ...Option) (*Session, error) {
	if host == "" {
		return nil, fmt.Errorf("host cannot be empty")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port number: %d", port)
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	s := &Session{
		Host:     host,
		Port:     port,
		User:     user,
		password: password,
		Timeouts: DefaultTimeoutConfig(),
		state:    StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Timeouts = s.Timeouts.withDefaults()
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.With(zap.String("host", host), zap.Int("port", port))
	if s.dialer == nil {
		s.dialer = NewSSHDialFunc()
	}
	if s.clock == nil {
		s.clock = NewDefaultTimeProvider()
	}
	if s.progress == nil {
		s.progress = s.logProgress
	}
	return s, nil
}

func (s *Session) addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Prompt is the literal prompt installed by Login.
func (s *Session) Prompt() string {
	return s.User + PromptSuffix
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) currentTransport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

func (s *Session) currentChannel() Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

func (s *Session) clientConfig() *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            s.User,
		HostKeyCallback: s.hostKeyCallback,
		Timeout:         s.Timeouts.withDefaults().HandshakeTimeout,
	}
}

// Connect dials the host and waits for key exchange, retrying up to MaxRetries attempts.
// The returned transport is not yet authenticated and not owned by the Session. A server
// that refuses the client after key exchange is not redialed; its transport is returned
// and Authenticate reports the refusal.
func (s *Session) Connect(ctx context.Context) (Transport, error) {
	addr := s.addr()
	timeouts := s.Timeouts.withDefaults()
	s.logger.Infof("Connecting to SSH server: %s", addr)

	var transport Transport
	attempts := 0
	operation := func() error {
		attempts++
		s.logger.Debugf("Attempt %d to connect via SSH", attempts)

		attemptCtx, cancel := context.WithTimeout(ctx, timeouts.HandshakeTimeout)
		defer cancel()

		t, err := s.dialer.Dial(attemptCtx, "tcp", addr, s.clientConfig())
		if err != nil {
			return err
		}
		if err := t.WaitHandshake(attemptCtx); err != nil {
			if errors.Is(err, ErrHandshakeTimeout) {
				s.logger.Warnf("%s start client timeout", s.Host)
			}
			_ = t.Close()
			return err
		}
		if !t.IsActive() {
			err := t.Err()
			if errors.Is(err, ErrAuthenticationFailed) {
				// Refused after key exchange; Authenticate reports it without redialing.
				transport = t
				return nil
			}
			_ = t.Close()
			if err != nil {
				return err
			}
			return ErrNotConnected
		}
		transport = t
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(timeouts.RetryInterval),
			uint64(timeouts.MaxRetries-1), //nolint:gosec
		),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		s.logger.Warnf("Create connect to %s failed, retrying in %v: %v", addr, next, err)
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		connErr := &ConnectionError{Addr: addr, Attempts: attempts, Err: err}
		s.logger.Error(connErr.Error())
		return nil, connErr
	}
	return transport, nil
}

// Authenticate performs password authentication unless t already is authenticated.
// It never retries; Login and Reconnect are the retry points.
func (s *Session) Authenticate(ctx context.Context, t Transport) error {
	if t == nil {
		return &AuthenticationError{User: s.User, Host: s.Host, Err: ErrNotConnected}
	}
	if t.IsAuthenticated() {
		return nil
	}

	s.logger.Infof("Authenticating %s@%s with password", s.User, s.Host)
	authCtx, cancel := context.WithTimeout(ctx, s.Timeouts.AuthTimeout)
	defer cancel()

	err := t.AuthPassword(authCtx, s.password)
	if err == nil && t.IsAuthenticated() {
		s.logger.Debugf("%s login success", s.Host)
		return nil
	}

	timedOut := errors.Is(err, context.DeadlineExceeded)
	if timedOut {
		s.logger.Warn("Authenticate timeout")
	}
	cause := t.Err()
	if cause == nil && err != nil && !timedOut {
		cause = err
	}
	if cause == nil {
		cause = ErrAuthenticationFailed
	}

	authErr := &AuthenticationError{User: s.User, Host: s.Host, TimedOut: timedOut, Err: cause}
	s.logger.Error(authErr.Error())
	return authErr
}

// Login connects (if needed), authenticates, opens the PTY shell and installs a
// deterministic prompt.
func (s *Session) Login(ctx context.Context) error {
	t := s.currentTransport()
	if t == nil || !t.IsActive() {
		if t != nil {
			_ = t.Close()
		}
		s.setState(StateConnecting)
		var err error
		t, err = s.Connect(ctx)
		if err != nil {
			s.closeHandles()
			return err
		}
		s.mu.Lock()
		s.transport = t
		s.channel = nil
		s.mu.Unlock()
	}

	s.setState(StateAuthenticating)
	if err := s.Authenticate(ctx, t); err != nil {
		s.closeHandles()
		return err
	}

	ch, err := t.OpenShell(ctx, PtyRequest{Term: PtyTerm, Width: PtyWidth, Height: PtyHeight})
	if err != nil {
		s.closeHandles()
		return fmt.Errorf("failed to open interactive shell: %w", err)
	}
	ch.SetTimeout(s.Timeouts.ReadTimeout)

	s.mu.Lock()
	old := s.channel
	s.channel = ch
	s.state = StateShellReady
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	_, matched, err := s.ReceiveUntilMatch(ctx, ShellPromptPattern, DefaultRecvChunkSize, s.Timeouts.ShellReadyTimeout)
	switch {
	case err != nil:
		s.logger.Warnf("Reading the first prompt failed: %v", err)
	case matched:
		s.logger.Infof("%s authenticate (password) successfully", s.Host)
	default:
		s.logger.Warn("Has not got the command prompt yet at this connection")
	}

	if _, ok, err := s.execCommand(
		ctx, SetPromptCommand, promptPattern(s.Prompt()), s.Timeouts.ShellReadyTimeout, DefaultExecChunkSize, false,
	); err != nil || !ok {
		s.logger.Warnf("Setting the prompt did not confirm (matched=%t): %v", ok, err)
	}

	s.setState(StateActive)
	return nil
}

// Reconnect closes the session and logs in again.
func (s *Session) Reconnect(ctx context.Context) error {
	s.closeHandles()
	s.setState(StateReconnecting)
	return s.Login(ctx)
}

// IsActive reports whether a shell channel exists and has not been closed.
func (s *Session) IsActive() bool {
	ch := s.currentChannel()
	return ch != nil && !ch.Closed()
}

// Close closes the transport, which also closes the channel. Calling it again is a no-op.
func (s *Session) Close() error {
	return s.closeHandles()
}

func (s *Session) closeHandles() error {
	s.mu.Lock()
	t := s.transport
	ch := s.channel
	s.transport = nil
	s.channel = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	var err error
	if ch != nil {
		_ = ch.Close()
	}
	if t != nil {
		err = t.Close()
	}
	return err
}
