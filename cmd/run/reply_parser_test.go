package run

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bacalhau-project/shellwright/internal/testdata"
	"github.com/bacalhau-project/shellwright/internal/testutil"
	"github.com/bacalhau-project/shellwright/pkg/sshutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyParserParseFile(t *testing.T) {
	path, cleanup, err := testutil.WriteStringToTempFileWithExtension(testdata.TestReplyScript, ".yaml")
	require.NoError(t, err)
	defer cleanup()

	replies, err := NewReplyParser().ParseFile(path)

	require.NoError(t, err)
	assert.Equal(t, []sshutils.Reply{
		{Expect: `Continue\? \[y/N\]`, Input: "y"},
		{Expect: "[Pp]assword:", Input: "hunter2"},
	}, replies)
}

func TestReplyParserEmptyInputs(t *testing.T) {
	replies, err := NewReplyParser().ParseFile("")
	require.NoError(t, err)
	assert.Empty(t, replies)

	replies, err = NewReplyParser().ParseString("")
	require.NoError(t, err)
	assert.Empty(t, replies)
}

func TestReplyParserMissingFile(t *testing.T) {
	_, err := NewReplyParser().ParseFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to open reply file")
}

func TestReplyParserErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		parser  *ReplyParser
		wantErr string
	}{
		{
			name:    "not a list",
			content: "expect: foo\ninput: bar\n",
			wantErr: "failed to parse reply script",
		},
		{
			name:    "unknown field",
			content: "- expect: foo\n  answer: bar\n",
			wantErr: "failed to parse reply script",
		},
		{
			name:    "missing expect",
			content: "- input: bar\n",
			wantErr: "expect pattern is required",
		},
		{
			name:    "bad regexp",
			content: "- expect: '('\n  input: bar\n",
			wantErr: "invalid expect pattern",
		},
		{
			name:    "too many replies",
			content: "- {expect: a, input: b}\n- {expect: c, input: d}\n",
			parser:  NewReplyParser().WithMaxReplies(1),
			wantErr: "too many replies",
		},
		{
			name:    "input too long",
			content: "- expect: a\n  input: " + strings.Repeat("x", 20) + "\n",
			parser:  NewReplyParser().WithMaxInputLength(10),
			wantErr: "input exceeds maximum length",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.parser
			if p == nil {
				p = NewReplyParser()
			}
			_, err := p.ParseString(tt.content)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestReplyParserEmptyInputIsAllowed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- expect: 'Press ENTER'\n  input: ''\n"), 0600))

	replies, err := NewReplyParser().ParseFile(path)

	require.NoError(t, err)
	assert.Equal(t, []sshutils.Reply{{Expect: "Press ENTER", Input: ""}}, replies)
}
