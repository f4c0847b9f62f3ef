package sshutils

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bacalhau-project/shellwright/pkg/logger"
)

// fakeClock only moves when Sleep is called or a fakeChannel read times out.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.advance(d)
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// fakeChannel replays scripted chunks. Each Send pops the next entry of replies and
// queues it for reading. Reads with nothing queued advance the clock by the wait and
// report ErrReadTimeout.
type fakeChannel struct {
	mu      sync.Mutex
	clock   *fakeClock
	queue   [][]byte
	replies map[string][]string
	sent    []string
	sendErr []error
	closed  bool
	timeout time.Duration
}

func newFakeChannel(clock *fakeClock, initial ...string) *fakeChannel {
	ch := &fakeChannel{clock: clock, replies: map[string][]string{}}
	for _, s := range initial {
		ch.queue = append(ch.queue, []byte(s))
	}
	return ch
}

// on queues chunks to be readable after payload is sent.
func (c *fakeChannel) on(payload string, chunks ...string) *fakeChannel {
	c.replies[payload] = chunks
	return c
}

func (c *fakeChannel) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if len(c.sendErr) > 0 {
		err := c.sendErr[0]
		c.sendErr = c.sendErr[1:]
		if err != nil {
			return err
		}
	}
	c.sent = append(c.sent, string(p))
	for _, chunk := range c.replies[string(p)] {
		c.queue = append(c.queue, []byte(chunk))
	}
	return nil
}

func (c *fakeChannel) Recv(n int, wait time.Duration) ([]byte, error) {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		c.clock.advance(wait)
		return nil, ErrReadTimeout
	}
	chunk := c.queue[0]
	if n > 0 && n < len(chunk) {
		c.queue[0] = chunk[n:]
		chunk = chunk[:n]
	} else {
		c.queue = c.queue[1:]
	}
	c.mu.Unlock()
	return chunk, nil
}

func (c *fakeChannel) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

func (c *fakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

var _ Channel = (*fakeChannel)(nil)

type loggedSession struct {
	session *Session
	logs    *logger.TestLogger
}

func newTestLoggerSession(t *testing.T, ch *fakeChannel, clock *fakeClock) loggedSession {
	t.Helper()
	s, tl := newTestSession(t, WithTimeProvider(clock))
	s.channel = ch
	s.state = StateActive
	return loggedSession{session: s, logs: tl}
}
