// Package toolchain turns a project configuration into the command lines of
// the frontend dev server and the backend app server.
package toolchain

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/harshul/trellis/internal/config"
	"github.com/harshul/trellis/internal/provisioner"
	"github.com/harshul/trellis/internal/supervisor"
)

// WebDir is the generated frontend project inside an app.
const WebDir = ".web"

// Frontend scripts defined by the .web package.json.
const (
	ScriptDev    = "dev"
	ScriptProd   = "prod"
	ScriptExport = "export"
)

// Env selects the dev or prod command set.
type Env string

const (
	Dev  Env = "dev"
	Prod Env = "prod"
)

// ParseEnv validates an --env value.
func ParseEnv(s string) (Env, error) {
	switch e := Env(strings.ToLower(s)); e {
	case Dev, Prod:
		return e, nil
	}
	return "", fmt.Errorf("invalid env %q: expected dev or prod", s)
}

// Options are the resolved values the commands are built from.
type Options struct {
	Dir          string
	AppModule    string
	FrontendPort int
	BackendPort  int
	BackendHost  string
	APIURL       string
	LogLevel     string
	// Env entries are passed to both processes, typically from .env.
	Env []string
}

// FromProject fills Options from a loaded project.
func FromProject(dir string, p *config.Project) Options {
	return Options{
		Dir:          dir,
		AppModule:    AppModule(p),
		FrontendPort: p.FrontendPort,
		BackendPort:  p.BackendPort,
		BackendHost:  p.BackendHost,
		APIURL:       p.APIURL,
		LogLevel:     p.LogLevel,
	}
}

// AppModule is the python module holding the app: app_module, or
// "<app_name>.<app_name>".
func AppModule(p *config.Project) string {
	if p.AppModule != "" {
		return p.AppModule
	}
	return p.AppName + "." + p.AppName
}

// Frontend builds the frontend server process for env.
func Frontend(env Env, tc provisioner.Toolchain, o Options) supervisor.Spec {
	script := ScriptDev
	if env == Prod {
		script = ScriptProd
	}
	args := tc.RunArgs(script)
	return supervisor.Spec{
		Name:    "frontend",
		Command: args[0],
		Args:    args[1:],
		Dir:     filepath.Join(o.Dir, WebDir),
		Port:    o.FrontendPort,
		Env: append([]string{
			"PORT=" + strconv.Itoa(o.FrontendPort),
			config.EnvAPIURL + "=" + o.APIURL,
		}, o.Env...),
	}
}

// Backend builds the backend server process for env. frontendOff marks a
// backend-only run, which skips compiling the frontend on import.
func Backend(env Env, o Options, frontendOff bool) supervisor.Spec {
	target := o.AppModule + ":api"
	var cmd string
	var args []string
	switch env {
	case Prod:
		cmd = "gunicorn"
		args = []string{
			"--worker-class", "uvicorn.workers.UvicornH11Worker",
			"--preload",
			"--timeout", "300",
			"--log-level", serverLevel(o.LogLevel),
			"--bind", fmt.Sprintf("%s:%d", o.BackendHost, o.BackendPort),
			"--threads", strconv.Itoa(2*runtime.NumCPU() + 1),
			target,
		}
	default:
		cmd = "uvicorn"
		args = []string{
			target,
			"--host", o.BackendHost,
			"--port", strconv.Itoa(o.BackendPort),
			"--log-level", serverLevel(o.LogLevel),
			"--reload",
			"--reload-dir", strings.SplitN(o.AppModule, ".", 2)[0],
		}
	}

	vars := append([]string{config.EnvAPIURL + "=" + o.APIURL}, o.Env...)
	if frontendOff {
		vars = append(vars, config.EnvSkipCompile+"=yes")
	}
	return supervisor.Spec{
		Name:    "backend",
		Command: cmd,
		Args:    args,
		Dir:     o.Dir,
		Port:    o.BackendPort,
		Env:     vars,
	}
}

// serverLevel maps a trellis log level onto the python servers' --log-level.
func serverLevel(level string) string {
	switch strings.ToLower(level) {
	case "debug", "info", "warning", "error", "critical":
		return strings.ToLower(level)
	}
	return "info"
}
