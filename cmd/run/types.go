package run

import (
	"fmt"
	"regexp"
	"time"

	"github.com/bacalhau-project/shellwright/pkg/sshutils"
)

const DefaultParallelism = 8

// RunConfig holds everything needed to run one command across one or more hosts
type RunConfig struct {
	// Required fields
	Hosts   []string
	Command string

	// Optional fields
	Expect      string           // Final pattern; defaults to the session prompt
	Replies     []sshutils.Reply // Answers to interactive sub-prompts
	ReplyFile   string           // YAML file with more replies
	Timeout     time.Duration    // Per step
	Parallelism int              // Hosts handled at once
}

// Validate checks if the configuration is valid
func (c *RunConfig) Validate() error {
	if len(c.Hosts) == 0 {
		return fmt.Errorf("at least one host is required")
	}
	for _, h := range c.Hosts {
		if h == "" {
			return fmt.Errorf("host cannot be empty")
		}
	}
	if c.Command == "" {
		return fmt.Errorf("command is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1")
	}
	if c.Expect != "" {
		if _, err := regexp.Compile(c.Expect); err != nil {
			return fmt.Errorf("invalid expect pattern: %w", err)
		}
	}
	for i, r := range c.Replies {
		if err := validateReply(r); err != nil {
			return fmt.Errorf("reply %d: %w", i+1, err)
		}
	}
	return nil
}

func validateReply(r sshutils.Reply) error {
	if r.Expect == "" {
		return fmt.Errorf("expect pattern is required")
	}
	if _, err := regexp.Compile(r.Expect); err != nil {
		return fmt.Errorf("invalid expect pattern %q: %w", r.Expect, err)
	}
	return nil
}

// RunOptions turns the configuration into session Run options
func (c *RunConfig) RunOptions() []sshutils.RunOption {
	opts := []sshutils.RunOption{sshutils.WithTimeout(c.Timeout)}
	if c.Expect != "" {
		opts = append(opts, sshutils.WithExpect(c.Expect))
	}
	if len(c.Replies) > 0 {
		opts = append(opts, sshutils.WithReplies(c.Replies...))
	}
	return opts
}
