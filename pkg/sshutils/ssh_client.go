package sshutils

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/bacalhau-project/shellwright/pkg/goroutine"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// sshTransport runs ssh.NewClientConn in the background. A verified host key marks the
// end of key exchange; the password auth methods then block until AuthPassword supplies
// the credentials. A failure after key exchange is an authentication failure, even when
// the server never asked for a password.
type sshTransport struct {
	conn net.Conn

	handshake     chan struct{}
	handshakeOnce sync.Once
	kexDone       atomic.Bool

	passwordSet  chan struct{}
	passwordOnce sync.Once
	password     string

	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	client *ssh.Client
	err    error
	dead   bool
}

func newSSHTransport(conn net.Conn, addr string, config *ssh.ClientConfig) *sshTransport {
	t := &sshTransport{
		conn:        conn,
		handshake:   make(chan struct{}),
		passwordSet: make(chan struct{}),
		done:        make(chan struct{}),
		closed:      make(chan struct{}),
	}

	cfg := *config
	cfg.Auth = append(append([]ssh.AuthMethod{}, config.Auth...),
		ssh.PasswordCallback(t.awaitPassword),
		ssh.KeyboardInteractive(t.answerChallenge),
	)
	verify := cfg.HostKeyCallback
	if verify == nil {
		verify = ssh.InsecureIgnoreHostKey() //nolint:gosec
	}
	cfg.HostKeyCallback = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if err := verify(hostname, remote, key); err != nil {
			return err
		}
		t.kexDone.Store(true)
		t.signalHandshake()
		return nil
	}

	goroutine.Go("ssh-handshake "+addr, func() { t.run(addr, &cfg) })
	return t
}

func (t *sshTransport) run(addr string, cfg *ssh.ClientConfig) {
	c, chans, reqs, err := ssh.NewClientConn(t.conn, addr, cfg)

	t.mu.Lock()
	switch {
	case err != nil && t.kexDone.Load():
		t.err = fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		t.dead = true
		_ = t.conn.Close()
	case err != nil:
		t.err = fmt.Errorf("SSH client connection failed: %w", err)
		t.dead = true
		_ = t.conn.Close()
	default:
		t.client = ssh.NewClient(c, chans, reqs)
	}
	client := t.client
	t.mu.Unlock()

	// done must be closed before the handshake signal so WaitHandshake sees the result
	close(t.done)
	t.signalHandshake()

	if client != nil {
		goroutine.Go("ssh-wait "+addr, func() {
			err := client.Wait()
			t.mu.Lock()
			t.dead = true
			if t.err == nil && err != nil {
				t.err = err
			}
			t.mu.Unlock()
		})
	}
}

func (t *sshTransport) signalHandshake() {
	t.handshakeOnce.Do(func() { close(t.handshake) })
}

func (t *sshTransport) awaitPassword() (string, error) {
	t.signalHandshake()
	select {
	case <-t.passwordSet:
		return t.password, nil
	case <-t.closed:
		return "", ErrNotConnected
	}
}

func (t *sshTransport) answerChallenge(
	name, instruction string,
	questions []string,
	echos []bool,
) ([]string, error) {
	if len(questions) == 0 {
		return nil, nil
	}
	password, err := t.awaitPassword()
	if err != nil {
		return nil, err
	}
	answers := make([]string, len(questions))
	for i := range answers {
		answers[i] = password
	}
	return answers, nil
}

func (t *sshTransport) WaitHandshake(ctx context.Context) error {
	select {
	case <-t.handshake:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrHandshakeTimeout, ctx.Err())
	}
	select {
	case <-t.done:
		if t.kexDone.Load() {
			return nil
		}
		return t.Err()
	default:
		return nil
	}
}

func (t *sshTransport) AuthPassword(ctx context.Context, password string) error {
	t.passwordOnce.Do(func() {
		t.password = password
		close(t.passwordSet)
	})
	select {
	case <-t.done:
		return t.Err()
	case <-t.closed:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *sshTransport) IsActive() bool {
	select {
	case <-t.closed:
		return false
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.dead
}

func (t *sshTransport) IsAuthenticated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil && !t.dead
}

func (t *sshTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *sshTransport) sshClient() (*ssh.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil || t.dead {
		return nil, ErrNotConnected
	}
	return t.client, nil
}

func (t *sshTransport) OpenShell(ctx context.Context, pty PtyRequest) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := t.sshClient()
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open session channel: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400, //nolint:mnd
		ssh.TTY_OP_OSPEED: 14400, //nolint:mnd
	}
	if err := session.RequestPty(pty.Term, pty.Height, pty.Width, modes); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	return newShellChannel(session, stdin, stdout), nil
}

func (t *sshTransport) NewSFTPClient() (SFTPClienter, error) {
	client, err := t.sshClient()
	if err != nil {
		return nil, err
	}
	c, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}
	return &SFTPClientWrapper{Client: c}, nil
}

// Close tears down the connection and every channel multiplexed over it.
func (t *sshTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		client := t.client
		t.dead = true
		t.mu.Unlock()
		if client != nil {
			err = client.Close()
		} else {
			err = t.conn.Close()
		}
	})
	return err
}
