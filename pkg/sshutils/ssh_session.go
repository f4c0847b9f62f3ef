package sshutils

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bacalhau-project/shellwright/pkg/goroutine"
	"golang.org/x/crypto/ssh"
)

const shellReadBufferSize = 32 * 1024

// ShellPumpGoroutine names the goroutine reading each shell's output.
const ShellPumpGoroutine = "shell-pump"

// shellChannel adapts an interactive ssh.Session to the poll-style Channel interface.
// A reader goroutine pumps stdout into chunks so Recv can wait with a bound.
type shellChannel struct {
	session *ssh.Session
	stdin   io.WriteCloser

	chunks  chan []byte
	quit    chan struct{}
	readErr error

	closed    atomic.Bool
	closeOnce sync.Once

	timeout atomic.Int64

	rmu     sync.Mutex
	pending []byte

	// A timed out write stays in flight; the next Send waits for it instead of
	// writing the same bytes twice.
	wmu             sync.Mutex
	inflight        chan error
	inflightPayload []byte
}

func newShellChannel(session *ssh.Session, stdin io.WriteCloser, stdout io.Reader) *shellChannel {
	c := &shellChannel{
		session: session,
		stdin:   stdin,
		chunks:  make(chan []byte, 64), //nolint:mnd
		quit:    make(chan struct{}),
	}
	c.timeout.Store(int64(ChannelReadTimeout))
	goroutine.Go(ShellPumpGoroutine, func() { c.pump(stdout) })
	return c
}

func (c *shellChannel) pump(stdout io.Reader) {
	defer close(c.chunks)
	buf := make([]byte, shellReadBufferSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.chunks <- chunk:
			case <-c.quit:
				return
			}
		}
		if err != nil {
			// readErr is published by close(c.chunks)
			c.readErr = err
			c.closed.Store(true)
			return
		}
	}
}

func (c *shellChannel) SetTimeout(d time.Duration) {
	c.timeout.Store(int64(d))
}

func (c *shellChannel) currentTimeout() time.Duration {
	return time.Duration(c.timeout.Load())
}

func (c *shellChannel) Send(p []byte) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	timer := time.NewTimer(c.currentTimeout())
	defer timer.Stop()

	if c.inflight != nil && !bytes.Equal(c.inflightPayload, p) {
		select {
		case err := <-c.inflight:
			c.inflight = nil
			if err != nil {
				return err
			}
		case <-timer.C:
			return ErrWriteTimeout
		}
	}

	if c.inflight == nil {
		payload := append([]byte(nil), p...)
		done := make(chan error, 1)
		go func() {
			_, err := c.stdin.Write(payload)
			done <- err
		}()
		c.inflight = done
		c.inflightPayload = payload
	}

	select {
	case err := <-c.inflight:
		c.inflight = nil
		c.inflightPayload = nil
		return err
	case <-timer.C:
		return ErrWriteTimeout
	}
}

func (c *shellChannel) Recv(n int, wait time.Duration) ([]byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	if len(c.pending) == 0 {
		if t := c.currentTimeout(); t > 0 && t < wait {
			wait = t
		}
		if wait <= 0 {
			select {
			case chunk, ok := <-c.chunks:
				if !ok {
					return nil, c.eof()
				}
				c.pending = chunk
			default:
				return nil, ErrReadTimeout
			}
		} else {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case chunk, ok := <-c.chunks:
				if !ok {
					return nil, c.eof()
				}
				c.pending = chunk
			case <-timer.C:
				return nil, ErrReadTimeout
			}
		}
	}

	if n <= 0 || n > len(c.pending) {
		n = len(c.pending)
	}
	out := c.pending[:n]
	c.pending = c.pending[n:]
	return out, nil
}

func (c *shellChannel) eof() error {
	if c.readErr != nil && c.readErr != io.EOF {
		return c.readErr
	}
	return io.EOF
}

func (c *shellChannel) Closed() bool {
	return c.closed.Load()
}

func (c *shellChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.quit)
		err = c.session.Close()
		if err == io.EOF {
			err = nil
		}
	})
	return err
}
