package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// terminal reads prompted input and writes command output.
type terminal struct {
	in  *bufio.Reader
	out io.Writer
	// fd is the input's file descriptor when it is a terminal, otherwise -1.
	fd int
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	t := &terminal{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.fd = int(f.Fd())
	}
	return t
}

func (t *terminal) printf(format string, a ...any) {
	fmt.Fprintf(t.out, format, a...)
}

// readLine prompts and returns the trimmed line. def is returned for an empty answer.
func (t *terminal) readLine(prompt, def string) (string, error) {
	if def != "" {
		t.printf("%s [%s]: ", prompt, def)
	} else {
		t.printf("%s: ", prompt)
	}
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(prompt), err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// readSecret prompts without echo when reading from a terminal.
func (t *terminal) readSecret(prompt string) (string, error) {
	if t.fd < 0 {
		return t.readLine(prompt, "")
	}
	t.printf("%s: ", prompt)
	b, err := term.ReadPassword(t.fd)
	t.printf("\n")
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(prompt), err)
	}
	return string(b), nil
}
