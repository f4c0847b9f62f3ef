package testutil

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

const (
	DefaultGreeting = "Welcome to the shellwright test server\r\n"
	DefaultPrompt   = "$ "
	ConfirmQuestion = "Continue? [y/N] "
	ColoredOutput   = "\x1b[31mred\x1b[0m \x1b[1;32mgreen\x1b[0m"
)

// Shell emulates just enough of an interactive login shell on a PTY: it echoes
// input, honours PS1, and answers a handful of canned commands.
type Shell struct {
	user     string
	greeting string
	commands map[string]string
	hanging  map[string]bool

	mu     sync.Mutex
	prompt string
	lines  []string
}

func NewShell(user string) *Shell {
	return &Shell{
		user:     user,
		greeting: DefaultGreeting,
		prompt:   DefaultPrompt,
		commands: map[string]string{},
		hanging:  map[string]bool{},
	}
}

// Prompt is the prompt currently printed after each command.
func (sh *Shell) Prompt() string {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.prompt
}

// Lines returns every line the shell has received, in order.
func (sh *Shell) Lines() []string {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return append([]string(nil), sh.lines...)
}

// Serve runs the read-eval-print loop until rw is closed or "exit" is received.
func (sh *Shell) Serve(rw io.ReadWriter) error {
	r := bufio.NewReader(rw)
	if _, err := io.WriteString(rw, sh.greeting+sh.Prompt()); err != nil {
		return err
	}

	for {
		line, err := readLine(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		sh.record(line)

		// tty echo
		if _, err := io.WriteString(rw, line+"\r\n"); err != nil {
			return err
		}

		res, err := sh.eval(line, r, rw)
		if err != nil {
			return err
		}
		if res.exit {
			return nil
		}
		if res.hang {
			continue
		}
		if _, err := io.WriteString(rw, res.out+sh.Prompt()); err != nil {
			return err
		}
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (sh *Shell) record(line string) {
	sh.mu.Lock()
	sh.lines = append(sh.lines, line)
	sh.mu.Unlock()
}

type evalResult struct {
	out  string
	exit bool
	// hang leaves the command "running": no output and no prompt.
	hang bool
}

func (sh *Shell) eval(line string, r *bufio.Reader, w io.Writer) (evalResult, error) {
	cmd := strings.TrimSpace(line)
	switch {
	case cmd == "":
		return evalResult{}, nil
	case cmd == "exit":
		return evalResult{exit: true}, nil
	case strings.HasPrefix(cmd, "PS1="):
		sh.mu.Lock()
		sh.prompt = sh.user + "@#>"
		sh.mu.Unlock()
		return evalResult{}, nil
	case sh.hanging[cmd]:
		return evalResult{hang: true}, nil
	case cmd == "confirm":
		if _, err := io.WriteString(w, ConfirmQuestion); err != nil {
			return evalResult{}, err
		}
		answer, err := readLine(r)
		if err != nil {
			return evalResult{}, err
		}
		sh.record(answer)
		return evalResult{out: fmt.Sprintf("%s\r\nanswer: %s\r\n", answer, answer)}, nil
	case cmd == "colors":
		return evalResult{out: ColoredOutput + "\r\n"}, nil
	case strings.HasPrefix(cmd, "echo "):
		return evalResult{out: strings.TrimPrefix(cmd, "echo ") + "\r\n"}, nil
	}

	if out, ok := sh.commands[cmd]; ok {
		if out == "" {
			return evalResult{}, nil
		}
		return evalResult{out: strings.ReplaceAll(strings.TrimSuffix(out, "\n"), "\n", "\r\n") + "\r\n"}, nil
	}
	name := strings.Fields(cmd)[0]
	return evalResult{out: fmt.Sprintf("sh: %s: command not found\r\n", name)}, nil
}
