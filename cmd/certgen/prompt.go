package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter asks the operator for answers the flags did not provide. Prompts
// go to stderr so stdout stays clean for redirection.
type prompter struct {
	in      io.Reader
	out     io.Writer
	scanner *bufio.Scanner
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, out: out}
}

// interactive reports whether stdin is a terminal. Piped answers still work
// when it is not.
func (p *prompter) interactive() bool {
	f, ok := p.in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *prompter) scanLine() (string, error) {
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.in)
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

// ask returns current when already set, otherwise prompts until a non-empty
// answer arrives.
func (p *prompter) ask(label, current string) (string, error) {
	if current != "" {
		return current, nil
	}
	for {
		fmt.Fprintf(p.out, "%s: ", label)
		line, err := p.scanLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("no answer for %q", label)
			}
			return "", err
		}
		if answer := strings.TrimSpace(line); answer != "" {
			return answer, nil
		}
	}
}

// confirm asks a yes/no question. Only an explicit yes counts.
func (p *prompter) confirm(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	line, err := p.scanLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
