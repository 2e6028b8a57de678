package main

import (
	"github.com/spf13/cobra"

	"github.com/harshul/trellis/internal/auth"
	"github.com/harshul/trellis/internal/config"
	"github.com/harshul/trellis/internal/retry"
	"github.com/harshul/trellis/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the trellis control plane",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored access token",
	RunE:  runLogout,
}

func newAuthFlow(cc *config.Context) *auth.Flow {
	s := cc.Settings()
	return &auth.Flow{
		Client:      newClient(cc),
		Store:       cc.Credentials,
		WebURL:      s.ControlPlane.WebURL,
		OpenBrowser: ui.OpenBrowser,
		Policy:      retry.Fixed(s.Hosting.AuthPollAttempts, auth.DefaultInterval),
		Notify:      ui.PrintInfo,
		Status:      ui.Status,
		Logger:      cc.Logger,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	cc := config.FromContext(cmd.Context())
	res, err := newAuthFlow(cc).Login(cmd.Context())
	if err != nil {
		return err
	}
	if res.Reused {
		ui.PrintSuccess("You already logged in.")
	} else {
		ui.PrintSuccess("Successfully logged in.")
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cc := config.FromContext(cmd.Context())
	if err := newAuthFlow(cc).Logout(); err != nil {
		return err
	}
	ui.PrintSuccess("Successfully logged out.")
	return nil
}
