// Package doctor checks the preconditions commands depend on: an initialised
// project, a requirements.txt, and the python and node runtimes.
package doctor

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/harshul/trellis/internal/config"
)

// RequirementsFile lists the backend's python dependencies.
const RequirementsFile = "requirements.txt"

var (
	// ErrNotInitialized is returned when the directory has no trellis.yaml.
	ErrNotInitialized = config.ErrNotInitialized
	// ErrNoRequirements is returned when requirements.txt is missing.
	ErrNoRequirements = errors.New("requirements.txt is required for deployment")
)

// RuntimeStatus represents the status of a runtime check
type RuntimeStatus struct {
	Name      string
	Installed bool
	Version   string
	Path      string
}

// Diagnosis contains the full health check results
type Diagnosis struct {
	ProjectPath string
	Runtimes    []RuntimeStatus
	Healthy     bool
	Issues      []string
}

// lookup is swapped in tests.
var lookup = lookupRuntime

// Diagnose checks the runtimes and project files under projectPath.
func Diagnose(projectPath string) Diagnosis {
	d := Diagnosis{ProjectPath: projectPath, Healthy: true}

	for _, rt := range []RuntimeStatus{lookup("Python", "python3", "python"), lookup("Node.js", "node")} {
		d.Runtimes = append(d.Runtimes, rt)
		if !rt.Installed {
			d.Healthy = false
			d.Issues = append(d.Issues, rt.Name+" runtime is not installed")
		}
	}

	if err := CheckInitialized(projectPath); err != nil {
		d.Healthy = false
		d.Issues = append(d.Issues, err.Error())
	}
	if _, err := Requirements(projectPath); err != nil {
		d.Healthy = false
		d.Issues = append(d.Issues, err.Error())
	}
	return d
}

// lookupRuntime returns the first of bins found on PATH with its version.
func lookupRuntime(name string, bins ...string) RuntimeStatus {
	status := RuntimeStatus{Name: name}
	for _, bin := range bins {
		path, err := exec.LookPath(bin)
		if err != nil {
			continue
		}
		status.Installed = true
		status.Path = path
		// python2 prints its version on stderr
		if out, err := exec.Command(bin, "--version").CombinedOutput(); err == nil {
			status.Version = strings.TrimSpace(string(out))
		}
		break
	}
	return status
}

// CheckInitialized returns ErrNotInitialized unless dir holds a trellis.yaml.
func CheckInitialized(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, config.FileName)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotInitialized
		}
		return err
	}
	return nil
}

// Requirements returns the package names listed in dir/requirements.txt.
func Requirements(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, RequirementsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoRequirements
		}
		return nil, fmt.Errorf("failed to read %s: %w", RequirementsFile, err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		names = append(names, PackageName(line))
	}
	return names, scanner.Err()
}

// PackageName strips the version specifier and extras from a requirement line.
func PackageName(req string) string {
	end := len(req)
	for _, sep := range []string{"==", ">=", "<=", "~=", "!=", ">", "<", "[", ";", " "} {
		if i := strings.Index(req, sep); i > 0 && i < end {
			end = i
		}
	}
	return strings.TrimSpace(req[:end])
}

// EnsureRequirements creates requirements.txt with pkgs when it is missing and
// appends any of pkgs it does not list yet.
func EnsureRequirements(dir string, pkgs ...string) error {
	path := filepath.Join(dir, RequirementsFile)
	have, err := Requirements(dir)
	if err != nil && !errors.Is(err, ErrNoRequirements) {
		return err
	}

	listed := make(map[string]bool, len(have))
	for _, name := range have {
		listed[strings.ToLower(name)] = true
	}
	var missing []string
	for _, p := range pkgs {
		if !listed[strings.ToLower(PackageName(p))] {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	existing, _ := os.ReadFile(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		fmt.Fprintln(f)
	}
	for _, p := range missing {
		if _, err := fmt.Fprintln(f, p); err != nil {
			return err
		}
	}
	return nil
}
