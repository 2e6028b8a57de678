//go:build !windows

package supervisor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func sleeper(name string) Spec {
	return Spec{Name: name, Command: "sleep", Args: []string{"30"}}
}

func TestRunCancelTerminatesAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var pids []int
	notices := 0

	sup := &Supervisor{
		Output: &lockedBuffer{},
		Grace:  time.Second,
		Notice: func(string) { notices++ },
		OnStart: func(_ Spec, pid int) {
			mu.Lock()
			defer mu.Unlock()
			pids = append(pids, pid)
			if len(pids) == 2 {
				cancel()
			}
		},
	}

	err := sup.Run(ctx, []Spec{sleeper("frontend"), sleeper("backend")}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v; want context.Canceled", err)
	}
	if len(pids) != 2 {
		t.Fatalf("started %d processes; want 2", len(pids))
	}
	for _, pid := range pids {
		if alive(pid) {
			t.Errorf("process %d still alive after Run returned", pid)
		}
	}
	if notices != 1 {
		t.Errorf("shutdown notice emitted %d times; want 1", notices)
	}
}

func TestRunStartFailureTearsDownStarted(t *testing.T) {
	var started []int
	sup := &Supervisor{
		Output:  &lockedBuffer{},
		Grace:   time.Second,
		OnStart: func(_ Spec, pid int) { started = append(started, pid) },
	}

	bad := Spec{Name: "backend", Command: "/nonexistent/trellis-test-binary"}
	err := sup.Run(context.Background(), []Spec{sleeper("frontend"), bad, sleeper("never")}, nil)
	if err == nil {
		t.Fatal("expected a start error")
	}
	if !strings.Contains(err.Error(), "backend") {
		t.Errorf("error %q should name the failing spec", err)
	}
	if len(started) != 1 {
		t.Fatalf("started %d processes; want only the one before the failure", len(started))
	}
	if alive(started[0]) {
		t.Errorf("process %d survived a failed start", started[0])
	}
}

func TestRunForegroundExitError(t *testing.T) {
	sup := &Supervisor{Output: &lockedBuffer{}, Grace: time.Second}
	fg := Spec{Name: "backend", Command: "sh", Args: []string{"-c", "exit 3"}}

	err := sup.Run(context.Background(), []Spec{sleeper("frontend")}, &fg)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Run = %v; want *ExitError", err)
	}
	if exitErr.Name != "backend" {
		t.Errorf("ExitError.Name = %q; want backend", exitErr.Name)
	}
}

func TestRunPrefixesOutput(t *testing.T) {
	out := &lockedBuffer{}
	sup := &Supervisor{Output: out, Grace: time.Second}
	fg := Spec{Name: "web", Command: "sh", Args: []string{"-c", "echo hello; printf partial"}}

	if err := sup.Run(context.Background(), nil, &fg); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "[web] hello\n") {
		t.Errorf("output %q missing prefixed line", got)
	}
	if !strings.Contains(got, "[web] partial\n") {
		t.Errorf("output %q missing flushed partial line", got)
	}
}

func TestRunBackgroundOnlyWaitsForAll(t *testing.T) {
	sup := &Supervisor{Output: &lockedBuffer{}, Grace: time.Second}
	quick := Spec{Name: "a", Command: "sh", Args: []string{"-c", "exit 0"}}
	failing := Spec{Name: "b", Command: "sh", Args: []string{"-c", "sleep 0.2; exit 1"}}

	err := sup.Run(context.Background(), []Spec{quick, failing}, nil)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Name != "b" {
		t.Fatalf("Run = %v; want ExitError for b", err)
	}
}

func TestRunReportsCrashBeforeCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	sup := &Supervisor{Output: &lockedBuffer{}, Grace: time.Second}
	crash := Spec{Name: "backend", Command: "sh", Args: []string{"-c", "exit 1"}}

	err := sup.Run(ctx, []Spec{sleeper("frontend"), crash}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v; want the context error", err)
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Name != "backend" {
		t.Fatalf("Run = %v; want ExitError for backend", err)
	}
}

func TestShutdownKillsAfterGrace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var pid int
	sup := &Supervisor{
		Output: &lockedBuffer{},
		Grace:  200 * time.Millisecond,
		OnStart: func(_ Spec, p int) {
			pid = p
			go func() {
				time.Sleep(100 * time.Millisecond)
				cancel()
			}()
		},
	}
	stubborn := Spec{Name: "stubborn", Command: "sh", Args: []string{"-c", `trap "" TERM; sleep 30`}}

	start := time.Now()
	if err := sup.Run(ctx, []Spec{stubborn}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v; want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("shutdown took %v", elapsed)
	}
	if alive(pid) {
		t.Errorf("process %d ignored TERM and survived", pid)
	}
}

func TestRunPanicStillShutsDown(t *testing.T) {
	var pid int
	sup := &Supervisor{
		Output: &lockedBuffer{},
		Grace:  time.Second,
		OnStart: func(_ Spec, p int) {
			pid = p
			panic("boom")
		},
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected the panic to propagate")
			}
		}()
		sup.Run(context.Background(), []Spec{sleeper("frontend")}, nil)
	}()

	if pid == 0 || alive(pid) {
		t.Errorf("process %d still alive after a panic in Run", pid)
	}
}
