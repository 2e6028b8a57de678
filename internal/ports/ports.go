package ports

import (
	"context"
	"fmt"
	"net"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// maxScan bounds how far FindAvailablePort searches.
const maxScan = 100

// IsPortAvailable checks if a port is available for binding
func IsPortAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// FindAvailablePort finds the next available port starting from the given port.
// It returns 0 when nothing is free within maxScan ports.
func FindAvailablePort(startPort int) int {
	for i := 0; i < maxScan; i++ {
		port := startPort + i
		if port > 65535 {
			break
		}
		if IsPortAvailable(port) {
			return port
		}
	}
	return 0
}

// Occupant describes the process listening on a port.
type Occupant struct {
	PID  int32
	Name string
}

func (o Occupant) String() string {
	if o.Name == "" {
		return fmt.Sprintf("PID %d", o.PID)
	}
	return fmt.Sprintf("%s (PID %d)", o.Name, o.PID)
}

// FindOccupant returns the process listening on port. ok is false when the
// connection table does not show a listener (or is not readable).
func FindOccupant(ctx context.Context, port int) (Occupant, bool) {
	conns, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return Occupant{}, false
	}
	for _, c := range conns {
		if int(c.Laddr.Port) != port || c.Status != "LISTEN" || c.Pid <= 0 {
			continue
		}
		occ := Occupant{PID: c.Pid}
		if p, err := process.NewProcessWithContext(ctx, c.Pid); err == nil {
			occ.Name, _ = p.NameWithContext(ctx)
		}
		return occ, true
	}
	return Occupant{}, false
}

// Terminate asks the occupant to exit, and kills it if it is still alive after
// the request.
func Terminate(ctx context.Context, occ Occupant) error {
	p, err := process.NewProcessWithContext(ctx, occ.PID)
	if err != nil {
		return fmt.Errorf("process %d: %w", occ.PID, err)
	}
	if err := p.TerminateWithContext(ctx); err != nil {
		return p.KillWithContext(ctx)
	}
	return nil
}
