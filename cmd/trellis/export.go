package main

import (
	"bytes"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harshul/trellis/internal/config"
	"github.com/harshul/trellis/internal/export"
	"github.com/harshul/trellis/internal/toolchain"
	"github.com/harshul/trellis/internal/ui"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the app to zip files",
	Long: `The export command builds the production frontend and writes
frontend.zip (the static site) and backend.zip (the project without the paths
listed in .trellisignore) to the current directory.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().Bool("no-zip", false, "Disable zip for backend and frontend exports")
	exportCmd.Flags().Bool("backend-only", false, "Export only backend")
	exportCmd.Flags().Bool("frontend-only", false, "Export only frontend")
}

func runExport(cmd *cobra.Command, args []string) error {
	cc, p, err := projectContext(cmd)
	if err != nil {
		return err
	}
	noZip, _ := cmd.Flags().GetBool("no-zip")
	backendOnly, _ := cmd.Flags().GetBool("backend-only")
	frontendOnly, _ := cmd.Flags().GetBool("frontend-only")

	ui.PrintHeader("Compiling production app and preparing for export.")

	res, err := exportApp(cmd, p, export.Options{
		Dir:       cc.Dir,
		Frontend:  !backendOnly,
		Backend:   !frontendOnly,
		Zip:       !noZip,
		APIURL:    p.APIURL,
		DeployURL: p.DeployURL,
	})
	if err != nil {
		return err
	}

	if res.FrontendZip != "" {
		ui.PrintHighlight("Frontend", res.FrontendZip)
	} else if res.StaticDir != "" {
		ui.PrintHighlight("Frontend", res.StaticDir)
	}
	if res.BackendZip != "" {
		ui.PrintHighlight("Backend", res.BackendZip)
	}
	ui.PrintSuccess("Export completed.")
	return nil
}

// exportApp sets up the frontend when it is exported and runs the export.
func exportApp(cmd *cobra.Command, p *config.Project, opts export.Options) (export.Result, error) {
	cc := config.FromContext(cmd.Context())
	if opts.Frontend {
		tc, err := setupFrontend(cmd, filepath.Join(opts.Dir, toolchain.WebDir), p.FrontendPackages)
		if err != nil {
			return export.Result{}, err
		}
		opts.Runner = tc
	}

	var out bytes.Buffer
	opts.Output = &out
	opts.Logger = cc.Logger

	stop := ui.Status("Exporting app ...")
	res, err := export.Export(cmd.Context(), opts)
	stop()
	if err != nil {
		cc.Logger.Debug("export output", zap.String("output", out.String()))
		return res, err
	}
	return res, nil
}
