package export

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"testing"
)

func writeFiles(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(f), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestMatcher(t *testing.T) {
	m := NewMatcher([]string{"# comment", "*.log", "build/", "/secrets.txt", "docs/**/*.md", "!keep.log"})

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"app.log", false, true},
		{"sub/app.log", false, true},
		{"build", true, true},
		{"build", false, false},
		{"sub/build", true, true},
		{"secrets.txt", false, true},
		{"sub/secrets.txt", false, false},
		{"docs/a/b/readme.md", false, true},
		{"main.py", false, false},
		{"keep.log", false, true},
	}
	for _, tt := range tests {
		if got := m.Match(tt.path, tt.isDir); got != tt.want {
			t.Errorf("Match(%q, %v) = %v; want %v", tt.path, tt.isDir, got, tt.want)
		}
	}
}

func TestZipDirSkipsIgnored(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"todo/todo.py",
		"todo/__pycache__/todo.cpython-311.pyc",
		".web/package.json",
		"requirements.txt",
		"notes.tmp",
	)
	os.WriteFile(filepath.Join(root, IgnoreFile), []byte("*.tmp\n"), 0o644)

	m, err := LoadMatcher(root)
	if err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(root, BackendZip)
	if err := ZipDir(root, dest, m); err != nil {
		t.Fatalf("ZipDir: %v", err)
	}

	want := []string{IgnoreFile, "requirements.txt", "todo/todo.py"}
	if got := zipNames(t, dest); !slices.Equal(got, want) {
		t.Errorf("zip = %v; want %v", got, want)
	}
}

type fakeRunner struct {
	root   string
	script string
	env    []string
	err    error
}

func (f *fakeRunner) RunScript(ctx context.Context, out io.Writer, script string, env []string) error {
	f.script, f.env = script, env
	if f.err != nil {
		return f.err
	}
	static := filepath.Join(f.root, StaticDir)
	os.MkdirAll(static, 0o755)
	return os.WriteFile(filepath.Join(static, "index.html"), []byte("<html></html>"), 0o644)
}

func TestExport(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	writeFiles(t, root, "todo/todo.py", "requirements.txt")
	runner := &fakeRunner{root: root}

	res, err := Export(context.Background(), Options{
		Dir:       root,
		OutDir:    out,
		Frontend:  true,
		Backend:   true,
		Zip:       true,
		APIURL:    "https://todo-api.trellis.app",
		DeployURL: "https://todo.trellis.app",
		Runner:    runner,
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if runner.script != "export" || !slices.Contains(runner.env, "TRELLIS_API_URL=https://todo-api.trellis.app") {
		t.Errorf("runner got %q %v", runner.script, runner.env)
	}
	if got := zipNames(t, res.FrontendZip); !slices.Equal(got, []string{"index.html"}) {
		t.Errorf("frontend zip = %v", got)
	}
	if got := zipNames(t, res.BackendZip); !slices.Equal(got, []string{"requirements.txt", "todo/todo.py"}) {
		t.Errorf("backend zip = %v", got)
	}
}

func TestExportNoZip(t *testing.T) {
	root := t.TempDir()
	res, err := Export(context.Background(), Options{Dir: root, Frontend: true, Backend: true, Runner: &fakeRunner{root: root}})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.FrontendZip != "" || res.BackendZip != "" {
		t.Errorf("archives written with zip disabled: %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, FrontendZip)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("frontend.zip exists: %v", err)
	}
}

func TestExportBuildFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := Export(context.Background(), Options{Dir: t.TempDir(), Frontend: true, Zip: true, Runner: &fakeRunner{err: boom}})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v; want boom", err)
	}
}
