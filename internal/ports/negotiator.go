package ports

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrPortInUse is returned by the fail-fast policy for an occupied port.
var ErrPortInUse = errors.New("port is already in use")

// ErrNoFreePort is returned when no replacement port could be found.
var ErrNoFreePort = errors.New("no free port found")

// Role names the process a port belongs to.
type Role string

const (
	Frontend Role = "frontend"
	Backend  Role = "backend"
)

// Binding is the outcome of negotiating one port.
type Binding struct {
	Role      Role
	Requested int
	Resolved  int
}

// Changed reports whether the resolved port differs from the requested one.
func (b Binding) Changed() bool {
	return b.Requested != b.Resolved
}

// Policy decides what happens when the requested port is occupied.
type Policy int

const (
	// PolicyPrompt asks the operator to terminate the occupant or pick a port.
	PolicyPrompt Policy = iota
	// PolicyNextFree moves to the next free port without asking.
	PolicyNextFree
	// PolicyFailFast returns ErrPortInUse.
	PolicyFailFast
)

// Prompter is the interactive surface PolicyPrompt needs.
type Prompter interface {
	Select(title string, options []string) (int, error)
	Input(title, defaultValue string) (string, error)
}

// Negotiator resolves requested ports to usable ones.
type Negotiator struct {
	Policy   Policy
	Prompter Prompter
	Logger   *zap.Logger

	// Hooks for tests; nil means the real implementations above.
	Probe     func(port int) bool
	NextFree  func(start int) int
	Occupant  func(ctx context.Context, port int) (Occupant, bool)
	Terminate func(ctx context.Context, occ Occupant) error

	// ReleaseWait bounds how long to wait for a terminated occupant to release the port.
	ReleaseWait time.Duration
}

const (
	choiceTerminate = 0
	choiceChange    = 1
)

// Resolve returns a free port for role, starting from requested. A free
// requested port is returned unchanged.
func (n *Negotiator) Resolve(ctx context.Context, role Role, requested int) (Binding, error) {
	resolved, err := n.resolve(ctx, role, requested)
	if err != nil {
		return Binding{Role: role, Requested: requested}, err
	}
	if resolved != requested {
		n.logger().Debug("port changed", zap.String("role", string(role)), zap.Int("requested", requested), zap.Int("resolved", resolved))
	}
	return Binding{Role: role, Requested: requested, Resolved: resolved}, nil
}

func (n *Negotiator) resolve(ctx context.Context, role Role, port int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s port %d is out of range", role, port)
	}
	if n.probe(port) {
		return port, nil
	}

	switch n.Policy {
	case PolicyFailFast:
		return 0, fmt.Errorf("%s port %d: %w", role, port, ErrPortInUse)
	case PolicyNextFree:
		return n.nextFree(role, port)
	default:
		return n.prompt(ctx, role, port)
	}
}

func (n *Negotiator) nextFree(role Role, port int) (int, error) {
	next := n.findNext(port + 1)
	if next == 0 {
		return 0, fmt.Errorf("%s port after %d: %w", role, port, ErrNoFreePort)
	}
	return next, nil
}

func (n *Negotiator) prompt(ctx context.Context, role Role, port int) (int, error) {
	if n.Prompter == nil {
		return n.nextFree(role, port)
	}

	occ, found := n.lookup(ctx, port)
	holder := "another process"
	if found {
		holder = occ.String()
	}
	title := fmt.Sprintf("Port %d for the %s is in use by %s", port, role, holder)

	options := []string{"Terminate " + holder, "Use a different port"}
	choice := choiceChange
	if found {
		var err error
		choice, err = n.Prompter.Select(title, options)
		if err != nil {
			return 0, err
		}
	}

	if choice == choiceTerminate {
		if err := n.terminate(ctx, occ); err != nil {
			return 0, fmt.Errorf("failed to terminate %s: %w", holder, err)
		}
		if n.waitReleased(ctx, port) {
			return port, nil
		}
		n.logger().Debug("port still busy after terminate", zap.Int("port", port))
	}

	suggestion := n.findNext(port + 1)
	answer, err := n.Prompter.Input(fmt.Sprintf("Enter a new %s port", role), strconv.Itoa(suggestion))
	if err != nil {
		return 0, err
	}
	next, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", answer)
	}
	return n.resolve(ctx, role, next)
}

func (n *Negotiator) waitReleased(ctx context.Context, port int) bool {
	wait := n.ReleaseWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	deadline := time.Now().Add(wait)
	for {
		if n.probe(port) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (n *Negotiator) probe(port int) bool {
	if n.Probe != nil {
		return n.Probe(port)
	}
	return IsPortAvailable(port)
}

func (n *Negotiator) findNext(start int) int {
	if n.NextFree != nil {
		return n.NextFree(start)
	}
	return FindAvailablePort(start)
}

func (n *Negotiator) lookup(ctx context.Context, port int) (Occupant, bool) {
	if n.Occupant != nil {
		return n.Occupant(ctx, port)
	}
	return FindOccupant(ctx, port)
}

func (n *Negotiator) terminate(ctx context.Context, occ Occupant) error {
	if n.Terminate != nil {
		return n.Terminate(ctx, occ)
	}
	return Terminate(ctx, occ)
}

func (n *Negotiator) logger() *zap.Logger {
	if n.Logger == nil {
		return zap.NewNop()
	}
	return n.Logger
}
