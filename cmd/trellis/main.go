package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harshul/trellis/internal/config"
	"github.com/harshul/trellis/internal/hosting"
	"github.com/harshul/trellis/internal/ui"
)

// Version information (can be set at build time)
var (
	version = "0.1.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trellis",
	Short: "Create, run and deploy full-stack web apps",
	Long: `Trellis creates full-stack web apps, runs the frontend dev server and the
backend app server side by side, and deploys them to trellis hosting.

Usage:
  trellis init      Create a new app in the current directory
  trellis run       Run the frontend and backend together
  trellis deploy    Export the app and deploy it`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadContext,
}

func init() {
	rootCmd.PersistentFlags().String("loglevel", "", "The log level to use ("+strings.Join(ui.LogLevels, ", ")+")")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(deploymentsCmd)
}

// loadContext reads trellis.yaml once and hands it to every command through
// cmd.Context().
func loadContext(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	level, _ := cmd.Flags().GetString("loglevel")

	cc, err := config.Load(cwd, zap.NewNop())
	if err != nil {
		return err
	}
	if level == "" && cc.Project != nil {
		level = cc.Project.LogLevel
	}
	logger, err := ui.NewLogger(level)
	if err != nil {
		return err
	}
	cc.Logger = logger

	cmd.SetContext(config.WithContext(cmd.Context(), cc))
	return nil
}

// projectContext returns the loaded context and its project, or
// config.ErrNotInitialized.
func projectContext(cmd *cobra.Command) (*config.Context, *config.Project, error) {
	cc := config.FromContext(cmd.Context())
	p, err := cc.RequireProject()
	if err != nil {
		return nil, nil, err
	}
	return cc, p, nil
}

// newClient builds a control-plane client carrying the stored token.
func newClient(cc *config.Context) *hosting.Client {
	return hosting.NewClient(cc.Settings().ControlPlane.BackendURL,
		hosting.WithToken(cc.Token()),
		hosting.WithLogger(cc.Logger),
	)
}

// explainClientError adds the next step to control-plane failures.
func explainClientError(client *hosting.Client, err error) error {
	switch {
	case hosting.IsAuthenticationError(err):
		return fmt.Errorf("%w; run `trellis login` again", err)
	case hosting.IsNetworkError(err):
		return fmt.Errorf("%w; is %s reachable?", err, client.BaseURL())
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
