package db

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ErrUnsupportedURL is returned for databases whose state trellis cannot read.
var ErrUnsupportedURL = errors.New("only sqlite databases can be inspected")

var (
	revisionRe     = regexp.MustCompile(`^revision\s*(?::\s*str\s*)?=\s*['"]([^'"]+)['"]`)
	downRevisionRe = regexp.MustCompile(`^down_revision\s*(?::[^=]*)?=\s*(.+)$`)
	quotedRe       = regexp.MustCompile(`['"]([^'"]+)['"]`)
)

// SQLitePath extracts the file path from a sqlite:/// URL.
func SQLitePath(dbURL string) (string, error) {
	rest, ok := strings.CutPrefix(dbURL, "sqlite:///")
	if !ok || rest == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedURL, dbURL)
	}
	return rest, nil
}

// CurrentRevision reads the applied revision from alembic_version. A database
// that has never been migrated yields "".
func CurrentRevision(ctx context.Context, dir, dbURL string) (string, error) {
	path, err := SQLitePath(dbURL)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}

	conn, err := sqlx.ConnectContext(ctx, "sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer conn.Close()

	var rev string
	err = conn.GetContext(ctx, &rev, "SELECT version_num FROM alembic_version LIMIT 1")
	switch {
	case err == nil:
		return rev, nil
	case errors.Is(err, sql.ErrNoRows), strings.Contains(err.Error(), "no such table"):
		return "", nil
	default:
		return "", fmt.Errorf("failed to read alembic_version: %w", err)
	}
}

// HeadRevisions returns the revisions in alembic/versions that no other
// revision builds on.
func HeadRevisions(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, MigrationsDir, "versions", "*.py"))
	if err != nil {
		return nil, err
	}

	var revisions []string
	parents := map[string]bool{}
	for _, f := range files {
		rev, downs, err := parseRevision(f)
		if err != nil {
			return nil, err
		}
		if rev == "" {
			continue
		}
		revisions = append(revisions, rev)
		for _, d := range downs {
			parents[d] = true
		}
	}

	var heads []string
	for _, r := range revisions {
		if !parents[r] {
			heads = append(heads, r)
		}
	}
	return heads, nil
}

func parseRevision(path string) (rev string, downs []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := revisionRe.FindStringSubmatch(line); m != nil {
			rev = m[1]
		} else if m := downRevisionRe.FindStringSubmatch(line); m != nil {
			for _, q := range quotedRe.FindAllStringSubmatch(m[1], -1) {
				downs = append(downs, q[1])
			}
		}
	}
	return rev, downs, scanner.Err()
}

// SchemaUpToDate reports whether the database is at the single head revision.
// Projects without migrations or with a non-sqlite database are reported as
// up to date.
func (m *Migrator) SchemaUpToDate(ctx context.Context) (bool, error) {
	if m.DBURL == "" || !m.Initialized() {
		return true, nil
	}
	heads, err := HeadRevisions(m.Dir)
	if err != nil {
		return false, err
	}
	if len(heads) == 0 {
		return true, nil
	}
	current, err := CurrentRevision(ctx, m.Dir, m.DBURL)
	if errors.Is(err, ErrUnsupportedURL) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(heads) == 1 && heads[0] == current, nil
}
