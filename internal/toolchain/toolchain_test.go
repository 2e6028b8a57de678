package toolchain

import (
	"path/filepath"
	"slices"
	"testing"

	"github.com/harshul/trellis/internal/config"
	"github.com/harshul/trellis/internal/provisioner"
)

func testOptions() Options {
	return Options{
		Dir:          "/app",
		AppModule:    "todo.todo",
		FrontendPort: 3001,
		BackendPort:  8001,
		BackendHost:  "0.0.0.0",
		APIURL:       "http://localhost:8001",
		LogLevel:     "warning",
		Env:          []string{"SECRET=1"},
	}
}

func TestParseEnv(t *testing.T) {
	for in, want := range map[string]Env{"dev": Dev, "PROD": Prod} {
		got, err := ParseEnv(in)
		if err != nil || got != want {
			t.Errorf("ParseEnv(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseEnv("staging"); err == nil {
		t.Error("expected an error for staging")
	}
}

func TestAppModule(t *testing.T) {
	if got := AppModule(&config.Project{AppName: "todo"}); got != "todo.todo" {
		t.Errorf("AppModule = %q", got)
	}
	if got := AppModule(&config.Project{AppName: "todo", AppModule: "api.main"}); got != "api.main" {
		t.Errorf("AppModule = %q", got)
	}
}

func TestFrontendSpec(t *testing.T) {
	tc := provisioner.Toolchain{Manager: provisioner.Bun}

	spec := Frontend(Dev, tc, testOptions())
	if spec.Command != "bun" || !slices.Equal(spec.Args, []string{"run", "dev"}) {
		t.Errorf("dev command = %s %v", spec.Command, spec.Args)
	}
	if spec.Dir != filepath.Join("/app", WebDir) {
		t.Errorf("Dir = %q", spec.Dir)
	}
	if !slices.Contains(spec.Env, "PORT=3001") || !slices.Contains(spec.Env, "SECRET=1") {
		t.Errorf("Env = %v", spec.Env)
	}

	if spec := Frontend(Prod, tc, testOptions()); !slices.Equal(spec.Args, []string{"run", "prod"}) {
		t.Errorf("prod args = %v", spec.Args)
	}
}

func TestBackendSpec(t *testing.T) {
	spec := Backend(Dev, testOptions(), false)
	if spec.Command != "uvicorn" {
		t.Fatalf("Command = %q", spec.Command)
	}
	want := []string{"todo.todo:api", "--host", "0.0.0.0", "--port", "8001", "--log-level", "warning", "--reload", "--reload-dir", "todo"}
	if !slices.Equal(spec.Args, want) {
		t.Errorf("Args = %v; want %v", spec.Args, want)
	}
	if slices.Contains(spec.Env, config.EnvSkipCompile+"=yes") {
		t.Error("skip compile set with the frontend running")
	}

	spec = Backend(Prod, testOptions(), true)
	if spec.Command != "gunicorn" || !slices.Contains(spec.Args, "0.0.0.0:8001") || spec.Args[len(spec.Args)-1] != "todo.todo:api" {
		t.Errorf("prod = %s %v", spec.Command, spec.Args)
	}
	if !slices.Contains(spec.Env, config.EnvSkipCompile+"=yes") {
		t.Errorf("Env = %v; want skip compile", spec.Env)
	}
}
