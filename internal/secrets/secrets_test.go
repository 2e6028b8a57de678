package secrets

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	os.MkdirAll(filepath.Dir(path), 0o755)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	write(t, root, "todo/todo.py", `import os
DB = os.environ["DATABASE_URL"]
KEY = os.environ.get("STRIPE_KEY")
REGION = os.getenv('REGION')
API = os.getenv("TRELLIS_API_URL")
`)
	write(t, root, ".web/pages/index.js", "const t = process.env.ANALYTICS_TOKEN;\nconst p = process.env.PORT;\n")
	write(t, root, ".web/node_modules/lib/index.js", "process.env.IGNORED_SECRET\n")
	write(t, root, ".env.example", "STRIPE_KEY=sk_test_123\n")

	vars, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{"ANALYTICS_TOKEN", "DATABASE_URL", "REGION", "STRIPE_KEY"}
	if got := Names(vars); !slices.Equal(got, want) {
		t.Fatalf("names = %v; want %v", got, want)
	}

	required := map[string]bool{}
	for _, v := range vars {
		required[v.Name] = v.Required
	}
	if !required["DATABASE_URL"] || !required["ANALYTICS_TOKEN"] {
		t.Errorf("credentials not required: %v", required)
	}
	if required["STRIPE_KEY"] {
		t.Error("STRIPE_KEY has an example default but is required")
	}
	if required["REGION"] {
		t.Error("REGION does not look like a credential")
	}
	if vars[1].File != "todo/todo.py" || vars[1].Line != 2 {
		t.Errorf("DATABASE_URL at %s:%d", vars[1].File, vars[1].Line)
	}
}

func TestMissing(t *testing.T) {
	vars := []EnvVar{
		{Name: "DATABASE_URL", Required: true},
		{Name: "REGION"},
		{Name: "STRIPE_KEY", Required: true},
	}
	missing := Missing(vars, map[string]string{"STRIPE_KEY": "x"})
	if got := Names(missing); !slices.Equal(got, []string{"DATABASE_URL"}) {
		t.Errorf("missing = %v", got)
	}
}
