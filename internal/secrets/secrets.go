// Package secrets finds the environment variables an app's code reads, so
// run and deploy can warn about ones that are never set.
package secrets

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// EnvVar represents a detected environment variable
type EnvVar struct {
	Name string
	File string // relative to the scanned root
	Line int
	// Required is set for names that look like credentials and have no
	// default in an example env file.
	Required bool
}

// Patterns for detecting environment variable usage
var envPatterns = map[string]*regexp.Regexp{
	// os.environ["X"], os.environ.get("X"), os.getenv("X")
	".py": regexp.MustCompile(`os\.environ(?:\.get\(|\[)\s*['"]([A-Z][A-Z0-9_]*)['"]|os\.getenv\(\s*['"]([A-Z][A-Z0-9_]*)['"]`),
	// process.env.X or process.env['X']
	".js": regexp.MustCompile(`process\.env\.([A-Z][A-Z0-9_]*)|process\.env\[['"]([A-Z][A-Z0-9_]*)['"]\]`),
}

var extAlias = map[string]string{".jsx": ".js", ".ts": ".js", ".tsx": ".js", ".mjs": ".js"}

// skipDirs are never scanned.
var skipDirs = map[string]bool{
	"node_modules": true, ".git": true, "__pycache__": true, ".venv": true,
	"venv": true, "_static": true, ".next": true, "alembic": true,
}

// Common env vars to ignore (usually system-provided or set by trellis)
var ignoredEnvVars = map[string]bool{
	"PATH":     true,
	"HOME":     true,
	"USER":     true,
	"NODE_ENV": true,
	"LANG":     true,
	"PORT":     true,
	"HOST":     true,
	"DEBUG":    true,
	"CI":       true,
	"API_URL":  true,
}

// exampleFiles may hold defaults for variables.
var exampleFiles = []string{".env.example", ".env.sample", ".env.template"}

// Scan walks root and returns every environment variable the python and
// javascript sources reference, sorted by name.
func Scan(root string) ([]EnvVar, error) {
	seen := map[string]bool{}
	var vars []EnvVar

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if info.IsDir() {
			if path != root && skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if alias, ok := extAlias[ext]; ok {
			ext = alias
		}
		re, ok := envPatterns[ext]
		if !ok {
			return nil
		}

		found, err := scanFile(path, re)
		if err != nil {
			return nil // Skip files we can't read
		}
		rel, _ := filepath.Rel(root, path)
		for _, v := range found {
			if seen[v.Name] || ignoredEnvVars[v.Name] || strings.HasPrefix(v.Name, "TRELLIS_") {
				continue
			}
			seen[v.Name] = true
			v.File = filepath.ToSlash(rel)
			vars = append(vars, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	defaults := exampleDefaults(root)
	for i := range vars {
		vars[i].Required = isCriticalEnvVar(vars[i].Name) && !defaults[vars[i].Name]
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars, nil
}

// Missing returns the required vars that are not in defined.
func Missing(vars []EnvVar, defined map[string]string) []EnvVar {
	var missing []EnvVar
	for _, v := range vars {
		if !v.Required {
			continue
		}
		if _, ok := defined[v.Name]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}

// Names returns the names of vars.
func Names(vars []EnvVar) []string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}
	return names
}

// exampleDefaults returns the names given a non-empty value in an example file.
func exampleDefaults(root string) map[string]bool {
	defaults := make(map[string]bool)
	for _, name := range exampleFiles {
		vars, err := godotenv.Read(filepath.Join(root, name))
		if err != nil {
			continue
		}
		for k, v := range vars {
			if v != "" {
				defaults[k] = true
			}
		}
	}
	return defaults
}

// isCriticalEnvVar checks if a name looks like a credential.
func isCriticalEnvVar(name string) bool {
	for _, marker := range []string{"KEY", "SECRET", "TOKEN", "PASSWORD", "CREDENTIAL", "DATABASE_URL", "DSN"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

func scanFile(path string, re *regexp.Regexp) ([]EnvVar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var vars []EnvVar
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		for _, m := range re.FindAllStringSubmatch(scanner.Text(), -1) {
			for _, name := range m[1:] {
				if name != "" {
					vars = append(vars, EnvVar{Name: name, Line: line})
				}
			}
		}
	}
	return vars, scanner.Err()
}
