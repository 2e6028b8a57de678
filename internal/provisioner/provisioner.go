// Package provisioner prepares the frontend workspace: it detects the package
// manager, installs dependencies and builds the commands that run scripts.
package provisioner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// PackageManager represents a detected package manager
type PackageManager string

const (
	NPM  PackageManager = "npm"
	PNPM PackageManager = "pnpm"
	Yarn PackageManager = "yarn"
	Bun  PackageManager = "bun"
)

// lockFiles in detection order: the first one present wins.
var lockFiles = []struct {
	name    string
	manager PackageManager
}{
	{"pnpm-lock.yaml", PNPM},
	{"bun.lockb", Bun},
	{"bun.lock", Bun},
	{"yarn.lock", Yarn},
	{"package-lock.json", NPM},
}

// Toolchain is the package manager chosen for a frontend directory.
type Toolchain struct {
	Dir       string
	Manager   PackageManager
	LockFile  string
	Installed bool
	Version   string
}

// Detect picks the package manager for dir from its lock file, falling back to
// npm, and checks whether it is on PATH.
func Detect(dir string) Toolchain {
	tc := Toolchain{Dir: dir, Manager: NPM}
	for _, lf := range lockFiles {
		if _, err := os.Stat(filepath.Join(dir, lf.name)); err == nil {
			tc.Manager = lf.manager
			tc.LockFile = lf.name
			break
		}
	}
	tc.Installed, tc.Version = checkManagerInstalled(string(tc.Manager))
	return tc
}

// checkManagerInstalled checks if a package manager is installed and returns its version
func checkManagerInstalled(manager string) (bool, string) {
	if _, err := exec.LookPath(manager); err != nil {
		return false, ""
	}
	output, err := exec.Command(manager, "--version").Output()
	if err != nil {
		return true, ""
	}
	return true, strings.TrimSpace(string(output))
}

// InstallHint tells the operator how to get the missing manager.
func (tc Toolchain) InstallHint() string {
	switch tc.Manager {
	case PNPM:
		return "Please run 'corepack enable pnpm' to continue."
	case Yarn:
		return "Please run 'corepack enable yarn' to continue."
	case Bun:
		return "Please install bun from https://bun.sh"
	default:
		return "Please install Node.js from https://nodejs.org"
	}
}

// Check returns an error naming the manager when it is not installed.
func (tc Toolchain) Check() error {
	if tc.Installed {
		return nil
	}
	return fmt.Errorf("%s is not installed. %s", tc.Manager, tc.InstallHint())
}

// NeedsInstall reports whether node_modules is missing.
func (tc Toolchain) NeedsInstall() bool {
	_, err := os.Stat(filepath.Join(tc.Dir, "node_modules"))
	return err != nil
}

// InstallArgs is the command line that installs dependencies.
func (tc Toolchain) InstallArgs() []string {
	return []string{string(tc.Manager), "install"}
}

// AddArgs is the command line that adds packages as dependencies.
func (tc Toolchain) AddArgs(packages ...string) []string {
	verb := "add"
	if tc.Manager == NPM {
		verb = "install"
	}
	return append([]string{string(tc.Manager), verb}, packages...)
}

// RunArgs is the command line that runs a package.json script.
func (tc Toolchain) RunArgs(script string, extra ...string) []string {
	args := []string{string(tc.Manager), "run", script}
	if len(extra) > 0 {
		if tc.Manager == NPM {
			args = append(args, "--")
		}
		args = append(args, extra...)
	}
	return args
}

// Install installs dependencies, and then any extra packages, streaming output to out.
func (tc Toolchain) Install(ctx context.Context, out io.Writer, extra ...string) error {
	if err := tc.Check(); err != nil {
		return err
	}
	if err := tc.run(ctx, out, tc.InstallArgs()); err != nil {
		return fmt.Errorf("failed to install frontend dependencies: %w", err)
	}
	if len(extra) > 0 {
		if err := tc.run(ctx, out, tc.AddArgs(extra...)); err != nil {
			return fmt.Errorf("failed to add frontend packages: %w", err)
		}
	}
	return nil
}

// RunScript runs a package.json script to completion.
func (tc Toolchain) RunScript(ctx context.Context, out io.Writer, script string, env []string) error {
	if err := tc.Check(); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, string(tc.Manager), "run", script)
	cmd.Dir = tc.Dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s run %s: %w", tc.Manager, script, err)
	}
	return nil
}

func (tc Toolchain) run(ctx context.Context, out io.Writer, args []string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = tc.Dir
	cmd.Stdout = out
	cmd.Stderr = out
	return cmd.Run()
}
