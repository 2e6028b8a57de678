// Package db wraps the alembic migration tool and reads migration state from
// the app's database.
package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/harshul/trellis/internal/config"
)

// Alembic layout inside the project.
const (
	AlembicConfig = "alembic.ini"
	MigrationsDir = "alembic"
)

// notUpToDate is alembic's message when autogenerate runs against an old schema.
const notUpToDate = "Target database is not up to date."

var (
	ErrNoDBURL = errors.New("db_url is not configured, cannot initialize")
	// ErrAlreadyInitialized is returned by Init when alembic.ini exists.
	ErrAlreadyInitialized = errors.New("database is already initialized. Use `trellis db makemigrations` to create schema change scripts and `trellis db migrate` to apply migrations to a new or existing database")
	ErrNotInitialized     = errors.New("database is not initialized, run `trellis db init` first")
	// ErrNotUpToDate is returned by MakeMigrations when pending migrations
	// have not been applied.
	ErrNotUpToDate = errors.New("target database is not up to date, run `trellis db migrate` to update database")
)

// CommandRunner runs alembic with args in dir, writing combined output to out.
type CommandRunner func(ctx context.Context, dir string, env []string, out io.Writer, args ...string) error

// ExecRunner runs the real alembic binary.
func ExecRunner(ctx context.Context, dir string, env []string, out io.Writer, args ...string) error {
	cmd := exec.CommandContext(ctx, "alembic", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = out
	cmd.Stderr = out
	return cmd.Run()
}

// Migrator runs migration commands for one project.
type Migrator struct {
	Dir    string
	DBURL  string
	Run    CommandRunner
	Output io.Writer
	Logger *zap.Logger
}

// New returns a Migrator for the project in dir that shells out to alembic.
func New(dir string, p *config.Project, out io.Writer, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{Dir: dir, DBURL: p.DBURL, Run: ExecRunner, Output: out, Logger: logger}
}

// Initialized reports whether alembic.ini exists.
func (m *Migrator) Initialized() bool {
	_, err := os.Stat(filepath.Join(m.Dir, AlembicConfig))
	return err == nil
}

// Init creates the alembic configuration, an initial autogenerated revision
// and applies it.
func (m *Migrator) Init(ctx context.Context) error {
	if m.DBURL == "" {
		return ErrNoDBURL
	}
	if m.Initialized() {
		return ErrAlreadyInitialized
	}
	if err := m.alembic(ctx, nil, "init", MigrationsDir); err != nil {
		return fmt.Errorf("alembic init: %w", err)
	}
	if err := m.MakeMigrations(ctx, "initial"); err != nil {
		return err
	}
	return m.Migrate(ctx)
}

// Migrate applies all pending migrations.
func (m *Migrator) Migrate(ctx context.Context) error {
	if !m.Initialized() {
		return ErrNotInitialized
	}
	if err := m.alembic(ctx, nil, "upgrade", "head"); err != nil {
		return fmt.Errorf("alembic upgrade: %w", err)
	}
	return nil
}

// MakeMigrations autogenerates a revision script named by message.
func (m *Migrator) MakeMigrations(ctx context.Context, message string) error {
	if !m.Initialized() {
		return ErrNotInitialized
	}
	args := []string{"revision", "--autogenerate"}
	if message != "" {
		args = append(args, "-m", message)
	}

	var captured bytes.Buffer
	err := m.alembic(ctx, &captured, args...)
	if err != nil {
		if strings.Contains(captured.String(), notUpToDate) {
			return ErrNotUpToDate
		}
		return fmt.Errorf("alembic revision: %w", err)
	}
	return nil
}

// alembic runs one command; when capture is set output is also copied there.
func (m *Migrator) alembic(ctx context.Context, capture *bytes.Buffer, args ...string) error {
	out := m.Output
	if out == nil {
		out = io.Discard
	}
	if capture != nil {
		out = io.MultiWriter(out, capture)
	}
	env := []string{
		config.EnvSkipCompile + "=yes",
		config.EnvDBURL + "=" + m.DBURL,
	}
	m.Logger.Debug("running alembic", zap.Strings("args", args), zap.String("dir", m.Dir))
	return m.Run(ctx, m.Dir, env, out, args...)
}
