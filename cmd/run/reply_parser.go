package run

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bacalhau-project/shellwright/pkg/logger"
	"github.com/bacalhau-project/shellwright/pkg/sshutils"
	"gopkg.in/yaml.v3"
)

// ReplyParser reads reply scripts: a YAML list of {expect, input} entries
type ReplyParser struct {
	// Configuration constants
	maxReplies     int
	maxInputLength int
}

// NewReplyParser creates a new reply parser with default limits
func NewReplyParser() *ReplyParser {
	return &ReplyParser{
		maxReplies:     64,   //nolint:mnd
		maxInputLength: 4096, //nolint:mnd
	}
}

// WithMaxReplies sets the maximum number of replies in one script
func (p *ReplyParser) WithMaxReplies(n int) *ReplyParser {
	p.maxReplies = n
	return p
}

// WithMaxInputLength sets the maximum length of a single input
func (p *ReplyParser) WithMaxInputLength(length int) *ReplyParser {
	p.maxInputLength = length
	return p
}

// ParseFile reads and parses a reply script, returning the replies or an error
func (p *ReplyParser) ParseFile(filePath string) ([]sshutils.Reply, error) {
	l := logger.Get()
	if filePath == "" {
		l.Debug("No reply file provided. Skipping reply parsing")
		return nil, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open reply file: %w", err)
	}
	defer file.Close()

	return p.parseReader(file)
}

// ParseString parses a reply script from a string
func (p *ReplyParser) ParseString(content string) ([]sshutils.Reply, error) {
	return p.parseReader(strings.NewReader(content))
}

func (p *ReplyParser) parseReader(r io.Reader) ([]sshutils.Reply, error) {
	var replies []sshutils.Reply
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&replies); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse reply script: %w", err)
	}

	if len(replies) > p.maxReplies {
		return nil, fmt.Errorf("too many replies: %d (max %d)", len(replies), p.maxReplies)
	}
	for i, r := range replies {
		if err := validateReply(r); err != nil {
			return nil, fmt.Errorf("reply %d: %w", i+1, err)
		}
		if len(r.Input) > p.maxInputLength {
			return nil, fmt.Errorf("reply %d: input exceeds maximum length of %d", i+1, p.maxInputLength)
		}
	}
	return replies, nil
}
