package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// IsTerminal reports whether stdin and stdout are both attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Prompter asks the operator questions. On a terminal it uses the bubbletea
// prompts; otherwise it reads plain lines, so piped answers work.
type Prompter struct {
	Interactive bool
	In          *bufio.Reader
	Out         io.Writer
}

// NewPrompter returns a prompter bound to the process's stdin and stdout.
func NewPrompter() *Prompter {
	return &Prompter{
		Interactive: IsTerminal(),
		In:          bufio.NewReader(os.Stdin),
		Out:         os.Stdout,
	}
}

// Input asks for a line of text. An empty answer yields defaultValue.
func (p *Prompter) Input(title, defaultValue string) (string, error) {
	if p.Interactive {
		return RunTextInputPrompt(title, defaultValue)
	}
	if defaultValue != "" {
		fmt.Fprintf(p.Out, "%s (%s): ", title, defaultValue)
	} else {
		fmt.Fprintf(p.Out, "%s: ", title)
	}
	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return defaultValue, nil
	}
	return line, nil
}

// Select asks the operator to pick one of options and returns its index.
func (p *Prompter) Select(title string, options []string) (int, error) {
	if p.Interactive {
		return RunSelectPrompt(title, options)
	}
	fmt.Fprintln(p.Out, title)
	for i, opt := range options {
		fmt.Fprintf(p.Out, "  %d) %s\n", i+1, opt)
	}
	for {
		fmt.Fprintf(p.Out, "Choose [1-%d] (1): ", len(options))
		line, err := p.readLine()
		if err != nil {
			return 0, err
		}
		if line == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(line)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		fmt.Fprintf(p.Out, "Please enter a number between 1 and %d.\n", len(options))
	}
}

// Confirm asks a yes/no question.
func (p *Prompter) Confirm(question string, defaultYes bool) (bool, error) {
	if p.Interactive {
		return RunYesNoPrompt(question, defaultYes)
	}
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	fmt.Fprintf(p.Out, "%s [%s]: ", question, hint)
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "":
		return defaultYes, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// readLine returns the next trimmed line. EOF on an empty line is reported as
// ErrCancelled so scripted runs cannot loop forever.
func (p *Prompter) readLine() (string, error) {
	line, err := p.In.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSpace(line), nil
		}
		if err == io.EOF {
			return "", ErrCancelled
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
