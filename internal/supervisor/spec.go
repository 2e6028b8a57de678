package supervisor

import "fmt"

// Spec describes one child process. Command is looked up on PATH.
type Spec struct {
	Name    string
	Command string
	Args    []string
	Dir     string
	// Port is informational; the command line already carries it.
	Port int
	// Env entries ("NAME=value") are appended to the parent environment.
	Env []string
}

// ExitError reports a supervised process that exited unsuccessfully.
type ExitError struct {
	Name string
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited: %v", e.Name, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
