package sshutils

import (
	"github.com/charmbracelet/x/ansi"
)

// StripEscapes removes terminal control sequences (colors, cursor movement, OSC titles)
// from captured shell output.
func StripEscapes(s string) string {
	return ansi.Strip(s)
}
