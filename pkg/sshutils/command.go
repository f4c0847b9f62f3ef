package sshutils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

func promptPattern(prompt string) string {
	return regexp.QuoteMeta(prompt)
}

// PromptPattern matches the prompt installed by Login.
func (s *Session) PromptPattern() string {
	return promptPattern(s.Prompt())
}

// Send writes cmd and a line separator to the shell. An inactive session is reconnected
// once first. attempts bounds how many times a timed out write is retried, which is also
// what callers have historically passed as a "timeout".
func (s *Session) Send(ctx context.Context, cmd string, attempts int) (bool, error) {
	return s.send(ctx, cmd, attempts, true)
}

func (s *Session) send(ctx context.Context, cmd string, attempts int, reconnect bool) (bool, error) {
	if !s.IsActive() {
		if !reconnect {
			return false, ErrChannelClosed
		}
		s.logger.Warn("Reconnecting...")
		if err := s.Reconnect(ctx); err != nil {
			return false, err
		}
		if err := s.clock.Sleep(ctx, s.Timeouts.ReconnectDelay); err != nil {
			return false, err
		}
	}

	ch := s.currentChannel()
	if ch == nil {
		return false, ErrNotConnected
	}

	payload := []byte(cmd + LineSeparator)
	for i := 0; i < attempts; i++ {
		err := ch.Send(payload)
		if err == nil {
			s.logger.Infof("Send cmd: %s", cmd)
			return true, nil
		}
		if !errors.Is(err, ErrWriteTimeout) {
			return false, err
		}
		s.logger.Warnf("%s execute cmd: %s timeout", s.Host, cmd)
		if err := s.clock.Sleep(ctx, s.Timeouts.SendRetryDelay); err != nil {
			return false, err
		}
	}
	return false, nil
}

// ReceiveUntilMatch reads from the shell until pattern matches the accumulated output or
// timeout elapses. The output is returned with escape sequences stripped either way;
// matched reports which of the two happened. Only channel failures other than a read
// timeout are returned as errors.
func (s *Session) ReceiveUntilMatch(
	ctx context.Context,
	pattern string,
	chunkSize int,
	timeout time.Duration,
) (string, bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", false, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	ch := s.currentChannel()
	if ch == nil {
		return "", false, ErrNotConnected
	}

	var buf bytes.Buffer
	deadline := s.clock.Now().Add(timeout)
	noDataLogged := false

	for {
		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return StripEscapes(buf.String()), false, err
		}

		data, err := ch.Recv(chunkSize, remaining)
		switch {
		case errors.Is(err, ErrReadTimeout):
			if !noDataLogged {
				noDataLogged = true
				s.logger.Debugf("%s echo is not received yet", s.Host)
			}
		case err != nil:
			s.logger.Errorf("Reading from %s failed: %v", s.Host, err)
			return StripEscapes(buf.String()), false, err
		default:
			buf.Write(data)
			if re.Match(buf.Bytes()) {
				return StripEscapes(buf.String()), true, nil
			}
		}

		pause := s.Timeouts.PollInterval
		if left := deadline.Sub(s.clock.Now()); left < pause {
			pause = left
		}
		if err := s.clock.Sleep(ctx, pause); err != nil {
			return StripEscapes(buf.String()), false, err
		}
	}

	s.logger.Warnf("Did not receive '%s' until timeout(%v):\n%s", pattern, timeout, buf.String())
	return StripEscapes(buf.String()), false, nil
}

// ExecCommand sends cmd and waits for pattern. Nothing is read if the send fails.
func (s *Session) ExecCommand(
	ctx context.Context,
	cmd, pattern string,
	timeout time.Duration,
	chunkSize int,
) (string, bool, error) {
	return s.execCommand(ctx, cmd, pattern, timeout, chunkSize, true)
}

func (s *Session) execCommand(
	ctx context.Context,
	cmd, pattern string,
	timeout time.Duration,
	chunkSize int,
	reconnect bool,
) (string, bool, error) {
	sent, err := s.send(ctx, cmd, DefaultSendAttempts, reconnect)
	if err != nil || !sent {
		return "", false, err
	}
	return s.ReceiveUntilMatch(ctx, pattern, chunkSize, timeout)
}

type runOptions struct {
	expect  string
	replies []Reply
	timeout time.Duration
}

// RunOption customizes Run.
type RunOption func(*runOptions)

// WithExpect overrides the final pattern, which defaults to the session prompt.
func WithExpect(pattern string) RunOption {
	return func(o *runOptions) { o.expect = pattern }
}

// WithReplies scripts answers to interactive sub-prompts raised by the command.
func WithReplies(replies ...Reply) RunOption {
	return func(o *runOptions) { o.replies = append(o.replies, replies...) }
}

// WithTimeout bounds every step. Zero skips the command entirely.
func WithTimeout(d time.Duration) RunOption {
	return func(o *runOptions) { o.timeout = d }
}

type runStep struct {
	input  string
	expect string
}

func alternatives(patterns ...string) string {
	wrapped := make([]string, len(patterns))
	for i, p := range patterns {
		wrapped[i] = "(?:" + p + ")"
	}
	return strings.Join(wrapped, "|")
}

// Run executes command, answers any scripted replies, and returns the output with the
// echoed command, carriage returns and prompt removed.
func (s *Session) Run(ctx context.Context, command string, opts ...RunOption) (string, error) {
	o := runOptions{expect: s.PromptPattern(), timeout: DefaultRunTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		s.logger.Debugf("Skipping cmd <%s>: no timeout given", command)
		return "", nil
	}

	steps := []runStep{{input: command}}
	for _, r := range o.replies {
		steps[len(steps)-1].expect = alternatives(r.Expect, o.expect)
		steps = append(steps, runStep{input: r.Input})
	}
	steps[len(steps)-1].expect = o.expect

	var stdout strings.Builder
	for _, step := range steps {
		out, _, err := s.ExecCommand(ctx, step.input, step.expect, o.timeout, DefaultExecChunkSize)
		if err != nil {
			return "", err
		}
		if out == "" {
			s.logger.Errorf("%s cmd: <%s> recv nothing", s.Host, step.input)
			continue
		}
		stdout.WriteString(out)
	}

	raw := stdout.String()
	s.logger.Debug(strings.ReplaceAll(raw, "\r", ""))

	cleanup, err := regexp.Compile(`\s*\r|` + alternatives(o.expect))
	if err != nil {
		return "", fmt.Errorf("invalid pattern %q: %w", o.expect, err)
	}
	result := cleanup.ReplaceAllString(raw, "")
	result = strings.ReplaceAll(result, command, "")
	return strings.TrimSpace(result), nil
}
