package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SSHServer is an in-process SSH server with password auth, an emulated PTY shell and
// an in-memory SFTP subsystem shared by every connection.
type SSHServer struct {
	Host string
	Port int

	user     string
	password string
	greeting string
	commands map[string]string
	hanging  map[string]bool

	publicKeyOnly bool

	listener net.Listener
	config   *ssh.ServerConfig
	handlers sftp.Handlers

	dials       atomic.Int32
	connections atomic.Int32
	authFails   atomic.Int32

	mu       sync.Mutex
	conns    []*ssh.ServerConn
	channels []ssh.Channel
	shells   []*Shell
	wg       sync.WaitGroup
	closed   bool
}

// Addr is host:port of the listener.
func (s *SSHServer) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Start listens on a random loopback port. The server is closed with t.Cleanup.
func (s *SSHServer) Start(t *testing.T) *SSHServer {
	t.Helper()
	if err := s.start(); err != nil {
		t.Fatalf("failed to start SSH test server: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func (s *SSHServer) start() error {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate host key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return fmt.Errorf("failed to create host key signer: %w", err)
	}

	if s.publicKeyOnly {
		s.config = &ssh.ServerConfig{
			PublicKeyCallback: func(c ssh.ConnMetadata, _ ssh.PublicKey) (*ssh.Permissions, error) {
				s.authFails.Add(1)
				return nil, fmt.Errorf("public key rejected for %q", c.User())
			},
		}
	} else {
		s.config = &ssh.ServerConfig{
			PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
				if c.User() == s.user && string(pass) == s.password {
					return nil, nil
				}
				s.authFails.Add(1)
				return nil, fmt.Errorf("password rejected for %q", c.User())
			},
		}
	}
	s.config.AddHostKey(signer)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = l
	addr := l.Addr().(*net.TCPAddr)
	s.Host = addr.IP.String()
	s.Port = addr.Port

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *SSHServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.dials.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *SSHServer) handleConn(conn net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		_ = conn.Close()
		return
	}
	s.connections.Add(1)
	if !s.track(func() { s.conns = append(s.conns, sconn) }) {
		_ = sconn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, chReqs)
	}
}

func (s *SSHServer) track(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

func (s *SSHServer) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	for req := range reqs {
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			sh := s.newShell()
			if !s.track(func() {
				s.channels = append(s.channels, ch)
				s.shells = append(s.shells, sh)
			}) {
				_ = ch.Close()
				return
			}
			go func() {
				_ = sh.Serve(ch)
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
				_ = ch.Close()
			}()
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go func() {
				server := sftp.NewRequestServer(ch, s.handlers)
				_ = server.Serve()
				_ = server.Close()
			}()
		default:
			_ = req.Reply(false, nil)
		}
	}
}

func (s *SSHServer) newShell() *Shell {
	sh := NewShell(s.user)
	sh.greeting = s.greeting
	for k, v := range s.commands {
		sh.commands[k] = v
	}
	for k, v := range s.hanging {
		sh.hanging[k] = v
	}
	return sh
}

// Dials counts accepted TCP connections, whether or not the handshake completed.
func (s *SSHServer) Dials() int {
	return int(s.dials.Load())
}

// Connections counts completed handshakes, including ones later closed.
func (s *SSHServer) Connections() int {
	return int(s.connections.Load())
}

// AuthFailures counts rejected passwords.
func (s *SSHServer) AuthFailures() int {
	return int(s.authFails.Load())
}

// Shells returns every shell started so far, oldest first.
func (s *SSHServer) Shells() []*Shell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Shell(nil), s.shells...)
}

// DropShells closes every open shell channel from the server side, leaving the
// connections up.
func (s *SSHServer) DropShells() {
	s.mu.Lock()
	channels := s.channels
	s.channels = nil
	s.mu.Unlock()
	for _, ch := range channels {
		_ = ch.Close()
	}
}

func (s *SSHServer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	if s.listener != nil {
		_ = s.listener.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
}
