package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harshul/trellis/internal/config"
	"github.com/harshul/trellis/internal/db"
	"github.com/harshul/trellis/internal/ports"
	"github.com/harshul/trellis/internal/provisioner"
	"github.com/harshul/trellis/internal/secrets"
	"github.com/harshul/trellis/internal/supervisor"
	"github.com/harshul/trellis/internal/toolchain"
	"github.com/harshul/trellis/internal/ui"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the app in the current directory",
	Long: `The run command starts the frontend server and the backend app server
together. In dev the app stops when the backend exits; in prod it runs until
both servers have exited. Ctrl+C stops both.

If a port is taken you are asked whether to terminate the process holding it
or to pick another port; without a terminal the next free port is used. A
changed port is saved to trellis.yaml.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("env", string(toolchain.Dev), "The environment to run the app in (dev, prod)")
	runCmd.Flags().Bool("frontend-only", false, "Execute only frontend")
	runCmd.Flags().Bool("backend-only", false, "Execute only backend")
	runCmd.Flags().Int("frontend-port", 0, "Specify a different frontend port")
	runCmd.Flags().Int("backend-port", 0, "Specify a different backend port")
	runCmd.Flags().String("backend-host", "", "Specify the backend host")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc, p, err := projectContext(cmd)
	if err != nil {
		return err
	}
	logger := cc.Logger

	envFlag, _ := cmd.Flags().GetString("env")
	env, err := toolchain.ParseEnv(envFlag)
	if err != nil {
		return err
	}
	frontend, _ := cmd.Flags().GetBool("frontend-only")
	backend, _ := cmd.Flags().GetBool("backend-only")
	if !frontend && !backend {
		frontend, backend = true, true
	}

	opts := toolchain.FromProject(cc.Dir, p)
	if port, _ := cmd.Flags().GetInt("frontend-port"); port > 0 {
		opts.FrontendPort = port
	}
	if port, _ := cmd.Flags().GetInt("backend-port"); port > 0 {
		opts.BackendPort = port
	}
	if host, _ := cmd.Flags().GetString("backend-host"); host != "" {
		opts.BackendHost = host
	}

	dotenv, err := config.ReadDotenv(filepath.Join(cc.Dir, ".env"), false)
	if err != nil {
		return err
	}
	opts.Env = config.EnvPairs(dotenv)
	warnMissingEnv(cmd, cc.Dir, withProcessEnv(dotenv), "Add them to .env to run locally.")

	if err := negotiatePorts(cmd, p, &opts, frontend, backend); err != nil {
		return err
	}

	ui.PrintHeader("Starting trellis app")

	migrator := db.New(cc.Dir, p, io.Discard, logger)
	if ok, err := migrator.SchemaUpToDate(ctx); err != nil {
		logger.Debug("schema check", zap.Error(err))
	} else if !ok {
		ui.PrintWarning("Detected database schema changes. Run `trellis db migrate` to update the database.")
	}

	var background []supervisor.Spec
	var foreground *supervisor.Spec
	if frontend {
		tc, err := setupFrontend(cmd, filepath.Join(cc.Dir, toolchain.WebDir), p.FrontendPackages)
		if err != nil {
			return err
		}
		background = append(background, toolchain.Frontend(env, tc, opts))
		ui.PrintHighlight("App running at", fmt.Sprintf("http://localhost:%d", opts.FrontendPort))
	}
	if backend {
		spec := toolchain.Backend(env, opts, !frontend)
		// dev keeps the reloading backend in the foreground
		if env == toolchain.Dev {
			foreground = &spec
		} else {
			background = append(background, spec)
		}
		ui.PrintHighlight("Backend running at", fmt.Sprintf("http://%s:%d", opts.BackendHost, opts.BackendPort))
	}

	ui.PrintDivider()

	sup := &supervisor.Supervisor{
		Output: os.Stdout,
		Logger: logger,
		Notice: ui.PrintInfo,
	}
	return runResult(ctx, sup.Run(ctx, background, foreground))
}

// runResult hides a clean interrupt but keeps a server that crashed before it.
func runResult(ctx context.Context, err error) error {
	var exitErr *supervisor.ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// negotiatePorts resolves both ports and saves changed ones to trellis.yaml.
func negotiatePorts(cmd *cobra.Command, p *config.Project, opts *toolchain.Options, frontend, backend bool) error {
	cc := config.FromContext(cmd.Context())
	n := &ports.Negotiator{
		Policy:   ports.PolicyNextFree,
		Prompter: ui.NewPrompter(),
		Logger:   cc.Logger,
	}
	if ui.IsTerminal() {
		n.Policy = ports.PolicyPrompt
	}

	var save struct{ frontend, backend int }
	if frontend {
		b, err := n.Resolve(cmd.Context(), ports.Frontend, opts.FrontendPort)
		if err != nil {
			return err
		}
		if b.Changed() {
			ui.PrintWarning(fmt.Sprintf("Frontend port %d is in use, using %d", b.Requested, b.Resolved))
		}
		opts.FrontendPort = b.Resolved
		if b.Resolved != p.FrontendPort {
			save.frontend = b.Resolved
		}
	}
	if backend {
		b, err := n.Resolve(cmd.Context(), ports.Backend, opts.BackendPort)
		if err != nil {
			return err
		}
		if b.Changed() {
			ui.PrintWarning(fmt.Sprintf("Backend port %d is in use, using %d", b.Requested, b.Resolved))
		}
		// the default api_url follows the backend port
		if opts.APIURL == fmt.Sprintf("http://localhost:%d", p.BackendPort) {
			opts.APIURL = fmt.Sprintf("http://localhost:%d", b.Resolved)
		}
		opts.BackendPort = b.Resolved
		if b.Resolved != p.BackendPort {
			save.backend = b.Resolved
		}
	}

	if save.frontend > 0 || save.backend > 0 {
		if err := config.SavePorts(cc.Path, save.frontend, save.backend); err != nil {
			return fmt.Errorf("failed to save ports: %w", err)
		}
		cc.Logger.Debug("saved ports", zap.Int("frontend", save.frontend), zap.Int("backend", save.backend))
	}
	return nil
}

// setupFrontend detects the package manager in webDir and installs
// dependencies when node_modules is missing.
func setupFrontend(cmd *cobra.Command, webDir string, packages []string) (provisioner.Toolchain, error) {
	cc := config.FromContext(cmd.Context())
	tc := provisioner.Detect(webDir)
	cc.Logger.Debug("frontend toolchain", zap.String("manager", string(tc.Manager)), zap.String("version", tc.Version), zap.String("lockfile", tc.LockFile))
	if err := tc.Check(); err != nil {
		return tc, err
	}
	if !tc.NeedsInstall() {
		return tc, nil
	}

	var out bytes.Buffer
	stop := ui.Status("Installing frontend packages ...")
	err := tc.Install(cmd.Context(), &out, packages...)
	stop()
	if err != nil {
		cc.Logger.Debug("install output", zap.String("output", out.String()))
		return tc, err
	}
	return tc, nil
}

// warnMissingEnv warns about credential-like variables the app's code reads
// that defined does not set.
func warnMissingEnv(cmd *cobra.Command, dir string, defined map[string]string, hint string) {
	cc := config.FromContext(cmd.Context())
	vars, err := secrets.Scan(dir)
	if err != nil {
		cc.Logger.Debug("scanning env references", zap.Error(err))
		return
	}
	if missing := secrets.Missing(vars, defined); len(missing) > 0 {
		ui.PrintWarning(fmt.Sprintf("Environment variables used in code but not set: %s. %s",
			strings.Join(secrets.Names(missing), ", "), hint))
	}
}

// withProcessEnv overlays env on the current process environment.
func withProcessEnv(env map[string]string) map[string]string {
	merged := make(map[string]string, len(env))
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	for k, v := range env {
		merged[k] = v
	}
	return merged
}
