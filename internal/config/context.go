package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ErrNotInitialized is returned by commands that need a trellis.yaml.
var ErrNotInitialized = errors.New("the app is not initialized, run `trellis init` first")

// Context is everything a command needs about the current project and user.
// It is loaded once per invocation and passed down explicitly.
type Context struct {
	Dir         string
	Path        string
	Project     *Project
	Credentials *CredentialStore
	Logger      *zap.Logger
}

// Load resolves the project in dir. A missing trellis.yaml is not an error;
// Project is left nil so `init` can still run.
func Load(dir string, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	c := &Context{
		Dir:         abs,
		Path:        filepath.Join(abs, FileName),
		Credentials: NewCredentialStore(DefaultCredentialsPath()),
		Logger:      logger,
	}

	p, err := Read(c.Path)
	switch {
	case err == nil:
		c.Project = &p
		logger.Debug("loaded project config", zap.String("path", c.Path), zap.String("app", p.AppName))
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("no project config", zap.String("path", c.Path))
	default:
		return nil, fmt.Errorf("failed to load %s: %w", FileName, err)
	}
	return c, nil
}

// RequireProject returns the loaded project or ErrNotInitialized.
func (c *Context) RequireProject() (*Project, error) {
	if c == nil || c.Project == nil {
		return nil, ErrNotInitialized
	}
	return c.Project, nil
}

// Settings returns the loaded project, or a project holding only defaults and
// environment overrides when there is none. Commands such as login use it for
// the control-plane URLs outside an app directory.
func (c *Context) Settings() Project {
	if c.Project != nil {
		return *c.Project
	}
	var p Project
	p.applyDefaults()
	p.applyEnv(os.Getenv)
	return p
}

// Token returns the stored access token, or "" when not logged in.
func (c *Context) Token() string {
	creds, err := c.Credentials.Load()
	if err != nil {
		c.Logger.Debug("reading credentials", zap.Error(err))
		return ""
	}
	return creds.Token
}

type contextKey struct{}

// WithContext attaches c to ctx.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the Context attached by WithContext, or nil.
func FromContext(ctx context.Context) *Context {
	c, _ := ctx.Value(contextKey{}).(*Context)
	return c
}
