package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harshul/trellis/internal/config"
	"github.com/harshul/trellis/internal/doctor"
	"github.com/harshul/trellis/internal/scaffold"
	"github.com/harshul/trellis/internal/toolchain"
	"github.com/harshul/trellis/internal/ui"
)

// backendRequirements are ensured in requirements.txt by init.
var backendRequirements = []string{"fastapi", "uvicorn[standard]", "gunicorn", "sqlalchemy", "alembic"}

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new trellis app in the current directory",
	Long: `The init command creates trellis.yaml, the backend package and the .web
frontend project. Running it again in an initialized app keeps the existing
configuration and only restores missing files.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().String("name", "", "The name of the app to initialize (default: the directory name)")
	initCmd.Flags().String("template", scaffold.Default, "The template to initialize the app with (default, blank)")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := config.FromContext(ctx)

	printSystemInfo(cmd)

	name, _ := cmd.Flags().GetString("name")
	tmplFlag, _ := cmd.Flags().GetString("template")
	tmpl, err := scaffold.ParseTemplate(tmplFlag)
	if err != nil {
		return err
	}

	if cc.Project != nil && name == "" {
		name = cc.Project.AppName
	}
	if name == "" {
		if name, err = scaffold.DefaultAppName(cc.Dir); err != nil {
			return fmt.Errorf("%w, pass --name", err)
		}
	} else if err := scaffold.ValidateAppName(name); err != nil {
		return err
	}

	ui.PrintHeader("Initializing " + name)

	webDir := filepath.Join(cc.Dir, toolchain.WebDir)
	if err := scaffold.InitWeb(webDir, name); err != nil {
		return fmt.Errorf("failed to create the frontend project: %w", err)
	}

	p := cc.Project
	if p == nil {
		project := config.New(name)
		if err := config.Write(cc.Path, project); err != nil {
			return fmt.Errorf("failed to write %s: %w", config.FileName, err)
		}
		if err := scaffold.InitApp(cc.Dir, name, tmpl); err != nil {
			return fmt.Errorf("failed to create the app: %w", err)
		}
		p = &project
	} else {
		cc.Logger.Debug("re-initializing", zap.String("app", p.AppName))
	}

	if err := scaffold.InitGitignore(cc.Dir); err != nil {
		return fmt.Errorf("failed to update .gitignore: %w", err)
	}
	if err := doctor.EnsureRequirements(cc.Dir, backendRequirements...); err != nil {
		return fmt.Errorf("failed to update %s: %w", doctor.RequirementsFile, err)
	}

	if _, err := setupFrontend(cmd, webDir, p.FrontendPackages); err != nil {
		ui.PrintWarning(fmt.Sprintf("Frontend packages were not installed: %v", err))
	}

	d := doctor.Diagnose(cc.Dir)
	for _, rt := range d.Runtimes {
		cc.Logger.Debug("runtime", zap.String("name", rt.Name), zap.Bool("installed", rt.Installed), zap.String("version", rt.Version))
	}
	for _, issue := range d.Issues {
		ui.PrintWarning(issue)
	}

	ui.PrintSuccess("Initialized " + name)
	return nil
}

func printSystemInfo(cmd *cobra.Command) {
	cc := config.FromContext(cmd.Context())
	info := doctor.GetSystemInfo(cmd.Context())
	cc.Logger.Debug("system info", zap.Any("info", info))
	ui.PrintTable([]string{"System", ""}, info.Rows())
}
