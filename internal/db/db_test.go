package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
)

type call struct {
	args []string
	env  []string
}

type fakeAlembic struct {
	calls  []call
	output string
	err    error
	// dir receives alembic.ini on "init", like the real command.
	dir string
}

func (f *fakeAlembic) run(ctx context.Context, dir string, env []string, out io.Writer, args ...string) error {
	f.calls = append(f.calls, call{args: args, env: env})
	if args[0] == "init" {
		os.WriteFile(filepath.Join(f.dir, AlembicConfig), []byte("[alembic]\n"), 0o644)
		return nil
	}
	io.WriteString(out, f.output)
	return f.err
}

func newMigrator(t *testing.T, dbURL string) (*Migrator, *fakeAlembic) {
	t.Helper()
	dir := t.TempDir()
	fake := &fakeAlembic{dir: dir}
	return &Migrator{Dir: dir, DBURL: dbURL, Run: fake.run}, fake
}

func TestInit(t *testing.T) {
	m, fake := newMigrator(t, "sqlite:///app.db")
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var got [][]string
	for _, c := range fake.calls {
		got = append(got, c.args)
	}
	want := [][]string{
		{"init", "alembic"},
		{"revision", "--autogenerate", "-m", "initial"},
		{"upgrade", "head"},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("calls = %v; want %v", got, want)
	}
	if !slices.Contains(fake.calls[0].env, "TRELLIS_SKIP_COMPILE=yes") || !slices.Contains(fake.calls[0].env, "TRELLIS_DB_URL=sqlite:///app.db") {
		t.Errorf("env = %v", fake.calls[0].env)
	}

	if err := m.Init(context.Background()); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Init = %v; want ErrAlreadyInitialized", err)
	}
}

func TestInitRequiresURL(t *testing.T) {
	m, fake := newMigrator(t, "")
	if err := m.Init(context.Background()); !errors.Is(err, ErrNoDBURL) {
		t.Errorf("err = %v; want ErrNoDBURL", err)
	}
	if len(fake.calls) != 0 {
		t.Errorf("alembic ran: %v", fake.calls)
	}
}

func TestMigrateNotInitialized(t *testing.T) {
	m, _ := newMigrator(t, "sqlite:///app.db")
	if err := m.Migrate(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("err = %v; want ErrNotInitialized", err)
	}
}

func TestMakeMigrationsNotUpToDate(t *testing.T) {
	m, fake := newMigrator(t, "sqlite:///app.db")
	os.WriteFile(filepath.Join(m.Dir, AlembicConfig), nil, 0o644)
	fake.output = "FAILED: Target database is not up to date.\n"
	fake.err = errors.New("exit status 255")

	if err := m.MakeMigrations(context.Background(), "add users"); !errors.Is(err, ErrNotUpToDate) {
		t.Errorf("err = %v; want ErrNotUpToDate", err)
	}

	fake.output = "some other failure"
	if err := m.MakeMigrations(context.Background(), ""); err == nil || errors.Is(err, ErrNotUpToDate) {
		t.Errorf("err = %v; want a plain alembic error", err)
	}
	if args := fake.calls[len(fake.calls)-1].args; len(args) != 2 {
		t.Errorf("args without message = %v", args)
	}
}

func writeRevision(t *testing.T, dir, rev, down string) {
	t.Helper()
	versions := filepath.Join(dir, MigrationsDir, "versions")
	os.MkdirAll(versions, 0o755)
	downVal := "None"
	if down != "" {
		downVal = "'" + down + "'"
	}
	src := fmt.Sprintf("\"\"\"%s\"\"\"\nrevision: str = '%s'\ndown_revision: Union[str, None] = %s\n", rev, rev, downVal)
	if err := os.WriteFile(filepath.Join(versions, rev+"_rev.py"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHeadRevisions(t *testing.T) {
	dir := t.TempDir()
	writeRevision(t, dir, "a1", "")
	writeRevision(t, dir, "b2", "a1")
	writeRevision(t, dir, "c3", "b2")

	heads, err := HeadRevisions(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(heads, []string{"c3"}) {
		t.Errorf("heads = %v; want [c3]", heads)
	}
}

func TestSchemaUpToDate(t *testing.T) {
	m, _ := newMigrator(t, "sqlite:///app.db")
	ctx := context.Background()

	if ok, err := m.SchemaUpToDate(ctx); err != nil || !ok {
		t.Errorf("uninitialised = %v, %v; want true", ok, err)
	}

	os.WriteFile(filepath.Join(m.Dir, AlembicConfig), nil, 0o644)
	writeRevision(t, m.Dir, "a1", "")
	writeRevision(t, m.Dir, "b2", "a1")

	if ok, err := m.SchemaUpToDate(ctx); err != nil || ok {
		t.Errorf("missing database = %v, %v; want false", ok, err)
	}

	conn, err := sqlx.Connect("sqlite3", filepath.Join(m.Dir, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.MustExec("CREATE TABLE alembic_version (version_num VARCHAR(32) NOT NULL PRIMARY KEY)")
	conn.MustExec("INSERT INTO alembic_version (version_num) VALUES ('a1')")

	if rev, err := CurrentRevision(ctx, m.Dir, m.DBURL); err != nil || rev != "a1" {
		t.Errorf("CurrentRevision = %q, %v", rev, err)
	}
	if ok, _ := m.SchemaUpToDate(ctx); ok {
		t.Error("behind by one revision but reported up to date")
	}

	conn.MustExec("UPDATE alembic_version SET version_num = 'b2'")
	if ok, err := m.SchemaUpToDate(ctx); err != nil || !ok {
		t.Errorf("at head = %v, %v; want true", ok, err)
	}
}

func TestCurrentRevisionUnsupported(t *testing.T) {
	_, err := CurrentRevision(context.Background(), t.TempDir(), "postgresql://localhost/app")
	if !errors.Is(err, ErrUnsupportedURL) || !strings.Contains(err.Error(), "postgresql") {
		t.Errorf("err = %v", err)
	}
}
