// Package scaffold writes the files of a new trellis app from embedded
// templates.
package scaffold

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/agnivade/levenshtein"
)

//go:embed all:templates
var templates embed.FS

// Template names accepted by `trellis init --template`.
const (
	Default = "default"
	Blank   = "blank"
)

// Templates lists the app templates.
var Templates = []string{Default, Blank}

var (
	ErrUnknownTemplate = errors.New("unknown template")
	ErrInvalidName     = errors.New("invalid app name")
)

// GitignoreEntries are ensured in the project's .gitignore.
var GitignoreEntries = []string{"*.db", "__pycache__/", ".web/", "*.py[cod]", "frontend.zip", "backend.zip"}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Data is passed to every .tmpl file.
type Data struct {
	AppName string
}

// ParseTemplate validates name, suggesting the closest template on a typo.
func ParseTemplate(name string) (string, error) {
	best, bestDist := "", 3
	for _, t := range Templates {
		if t == name {
			return t, nil
		}
		if d := levenshtein.ComputeDistance(name, t); d < bestDist {
			best, bestDist = t, d
		}
	}
	if best != "" {
		return "", fmt.Errorf("%w %q, did you mean %q?", ErrUnknownTemplate, name, best)
	}
	return "", fmt.Errorf("%w %q, expected one of %s", ErrUnknownTemplate, name, strings.Join(Templates, ", "))
}

// DefaultAppName derives an app name from the directory's base name.
func DefaultAppName(dir string) (string, error) {
	name := strings.ReplaceAll(filepath.Base(dir), "-", "_")
	if err := ValidateAppName(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateAppName rejects names that cannot be python modules, and "trellis".
func ValidateAppName(name string) error {
	if name == "trellis" {
		return fmt.Errorf("%w: an app cannot be named trellis", ErrInvalidName)
	}
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w %q: use letters, digits and underscores, not starting with a digit", ErrInvalidName, name)
	}
	return nil
}

// InitApp writes the python package for appName into dir. Existing files are
// left untouched.
func InitApp(dir, appName, tmpl string) error {
	return render(path.Join("templates", tmpl), dir, Data{AppName: appName}, func(rel string) string {
		// app/app.py -> todo/todo.py
		parts := strings.Split(rel, "/")
		if parts[0] == "app" {
			parts[0] = appName
		}
		if last := len(parts) - 1; parts[last] == "app.py" {
			parts[last] = appName + ".py"
		}
		return path.Join(parts...)
	})
}

// InitWeb writes the frontend skeleton into webDir. Existing files are kept.
func InitWeb(webDir, appName string) error {
	return render("templates/web", webDir, Data{AppName: appName}, func(rel string) string { return rel })
}

// InitGitignore appends any missing GitignoreEntries to dir/.gitignore.
func InitGitignore(dir string) error {
	p := filepath.Join(dir, ".gitignore")
	existing, err := os.ReadFile(p)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	have := map[string]bool{}
	for _, line := range strings.Split(string(existing), "\n") {
		have[strings.TrimSpace(line)] = true
	}
	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n")) {
		buf.WriteByte('\n')
	}
	added := false
	for _, e := range GitignoreEntries {
		if !have[e] {
			buf.WriteString(e + "\n")
			added = true
		}
	}
	if !added {
		return nil
	}
	return os.WriteFile(p, buf.Bytes(), 0o644)
}

func render(root, dest string, data Data, rename func(string) string) error {
	if _, err := fs.Stat(templates, root); err != nil {
		return fmt.Errorf("%w %q", ErrUnknownTemplate, path.Base(root))
	}
	return fs.WalkDir(templates, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel := strings.TrimPrefix(p, root+"/")
		isTmpl := strings.HasSuffix(rel, ".tmpl")
		rel = rename(strings.TrimSuffix(rel, ".tmpl"))
		target := filepath.Join(dest, filepath.FromSlash(rel))

		if _, err := os.Stat(target); err == nil {
			return nil
		}

		content, err := templates.ReadFile(p)
		if err != nil {
			return err
		}
		if isTmpl {
			t, err := template.New(rel).Parse(string(content))
			if err != nil {
				return fmt.Errorf("template %s: %w", p, err)
			}
			var buf bytes.Buffer
			if err := t.Execute(&buf, data); err != nil {
				return fmt.Errorf("template %s: %w", p, err)
			}
			content = buf.Bytes()
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, content, 0o644)
	})
}
