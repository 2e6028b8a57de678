package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/harshul/trellis/internal/config"
	"github.com/harshul/trellis/internal/deploy"
	"github.com/harshul/trellis/internal/hosting"
	"github.com/harshul/trellis/internal/supervisor"
)

func TestDeploymentRows(t *testing.T) {
	headers, rows := deploymentRows([]hosting.Deployment{
		{"url": "https://todo.trellis.app", "key": "todo", "regions": []any{"sjc"}},
		{"key": "blog", "status": "stopped"},
	})

	if !slices.Equal(headers, []string{"key", "regions", "status", "url"}) {
		t.Fatalf("headers = %v", headers)
	}
	if !slices.Equal(rows[0], []string{"todo", "[sjc]", "", "https://todo.trellis.app"}) {
		t.Errorf("row 0 = %v", rows[0])
	}
	if !slices.Equal(rows[1], []string{"blog", "", "stopped", ""}) {
		t.Errorf("row 1 = %v", rows[1])
	}
}

func newDeployFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	addDeployFlags(cmd.Flags())
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	return cmd
}

func TestDeployIntent(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "prod.env")
	os.WriteFile(envFile, []byte("DB_PASSWORD=file\nSECRET=file\n"), 0o644)

	cmd := newDeployFlags(t, "-k", "todo-prod", "-r", "sjc,lhr", "--env", "SECRET=flag", "--env-file", envFile, "--no-interactive")
	in, err := deployIntent(cmd, &config.Project{AppName: "todo"})
	if err != nil {
		t.Fatalf("deployIntent: %v", err)
	}

	if in.AppName != "todo" || in.Key != "todo-prod" || in.Interactive {
		t.Errorf("intent = %+v", in)
	}
	if !slices.Equal(in.Regions, []string{"sjc", "lhr"}) {
		t.Errorf("Regions = %v", in.Regions)
	}
	want := []string{"DB_PASSWORD=file", "SECRET=file", "SECRET=flag"}
	if !slices.Equal(in.Envs, want) {
		t.Errorf("Envs = %v; want %v", in.Envs, want)
	}
}

func TestDeployIntentMissingEnvFile(t *testing.T) {
	cmd := newDeployFlags(t, "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	if _, err := deployIntent(cmd, &config.Project{AppName: "todo"}); err == nil {
		t.Error("expected an error for a missing env file")
	}
}

func TestExplainClientError(t *testing.T) {
	client := hosting.NewClient("http://cp.example")
	tests := []struct {
		err  error
		want string
	}{
		{&hosting.Error{Type: hosting.ErrorTypeAuthentication, Message: "unauthorized"}, "trellis login"},
		{&hosting.Error{Type: hosting.ErrorTypeNetwork, Message: "dial failed"}, "http://cp.example"},
		{errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		err := explainClientError(client, tt.err)
		if !errors.Is(err, tt.err) {
			t.Errorf("%v does not wrap %v", err, tt.err)
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%q does not mention %q", err, tt.want)
		}
	}
}

func TestRunResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runResult(ctx, context.Canceled); err != nil {
		t.Errorf("clean interrupt = %v; want nil", err)
	}

	crash := &supervisor.ExitError{Name: "backend", Err: errors.New("exit status 1")}
	err := runResult(ctx, multierr.Append(context.Canceled, crash))
	var exitErr *supervisor.ExitError
	if !errors.As(err, &exitErr) || exitErr.Name != "backend" {
		t.Errorf("crash before interrupt = %v; want ExitError for backend", err)
	}

	boom := errors.New("boom")
	if err := runResult(context.Background(), boom); err != boom {
		t.Errorf("runResult = %v; want %v", err, boom)
	}
}

func TestSuccessMessageUsesConfirmedFrontendURL(t *testing.T) {
	res := deploy.Resolved{Key: "todo", Regions: []string{"sjc", "lhr"}, DeployURL: "https://todo.trellis.app"}
	outcome := deploy.Outcome{
		Response:   hosting.DeployResponse{FrontendURL: "https://todo-sjc.trellis.app"},
		BackendUp:  true,
		FrontendUp: true,
	}
	want := "Your site [ todo ] at sjc, lhr is up: https://todo-sjc.trellis.app"
	if got := successMessage(res, outcome); got != want {
		t.Errorf("successMessage = %q; want %q", got, want)
	}

	outcome.Response.FrontendURL = ""
	if got := successMessage(res, outcome); !strings.HasSuffix(got, "https://todo.trellis.app") {
		t.Errorf("successMessage without a reported URL = %q", got)
	}
}
