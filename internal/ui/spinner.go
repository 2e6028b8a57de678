package ui

import (
	"time"

	"github.com/briandowns/spinner"
)

// Status shows msg next to a spinner until the returned func is called. When
// stdout is not a terminal the message is printed once instead.
func Status(msg string) (stop func()) {
	if !IsTerminal() {
		PrintInfo(msg)
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(Stdout))
	s.Suffix = " " + msg
	s.Start()
	return s.Stop
}
