package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/harshul/trellis/internal/config"
	"github.com/harshul/trellis/internal/deploy"
	"github.com/harshul/trellis/internal/doctor"
	"github.com/harshul/trellis/internal/export"
	"github.com/harshul/trellis/internal/retry"
	"github.com/harshul/trellis/internal/ui"
)

var errNotLoggedIn = errors.New("not logged in, run `trellis login` first")

// deployCmd represents the deploy command
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the app to trellis hosting",
	Long: `The deploy command reserves a deployment key with the control plane,
exports the app against the deployment's URLs, uploads both archives and waits
until the backend and the frontend answer.

Without --no-interactive you are asked to confirm the key, the region and
environment variables.`,
	RunE: runDeploy,
}

func init() {
	addDeployFlags(deployCmd.Flags())
}

func addDeployFlags(flags *pflag.FlagSet) {
	flags.StringP("deployment-key", "k", "", "The name of the deployment")
	flags.String("app-name", "", "The name of the app (default: app_name from trellis.yaml)")
	flags.StringSliceP("region", "r", nil, "The regions to deploy to")
	flags.StringArray("env", nil, "The environment variables to set: <name>=<value>")
	flags.String("env-file", "", "A dotenv file merged into the environment variables")
	flags.Int("cpus", 0, "The number of CPUs to allocate")
	flags.Int("memory-mb", 0, "The amount of memory to allocate")
	flags.Bool("auto-start", true, "Whether to auto start the instance")
	flags.Bool("auto-stop", true, "Whether to auto stop the instance")
	flags.String("frontend-hostname", "", "The hostname of the frontend")
	flags.Bool("interactive", true, "Whether to list configuration options and ask for confirmation")
	flags.Bool("no-interactive", false, "Same as --interactive=false")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc, p, err := projectContext(cmd)
	if err != nil {
		return err
	}
	if _, err := doctor.Requirements(cc.Dir); err != nil {
		return err
	}

	intent, err := deployIntent(cmd, p)
	if err != nil {
		return err
	}

	if cc.Token() == "" {
		if !intent.Interactive {
			return errNotLoggedIn
		}
		if _, err := newAuthFlow(cc).Login(ctx); err != nil {
			return err
		}
	}
	client := newClient(cc)

	engine := &deploy.Engine{
		Client:   client,
		Prompter: ui.NewPrompter(),
		Notify:   ui.PrintInfo,
		Logger:   cc.Logger,
	}
	res, err := engine.Negotiate(ctx, intent)
	if err != nil {
		if errors.Is(err, deploy.ErrAborted) {
			ui.PrintWarning("Deployment aborted.")
			return err
		}
		return explainClientError(client, err)
	}

	ui.PrintBox("Deployment", fmt.Sprintf("Key:      %s\nRegions:  %s\nBackend:  %s\nFrontend: %s",
		res.Key, strings.Join(res.Regions, ", "), res.APIURL, res.DeployURL))
	warnMissingEnv(cmd, cc.Dir, res.Envs, "Pass them with --env or --env-file.")

	tmp, err := os.MkdirTemp("", "trellis-deploy-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	ui.PrintHeader("Compiling production app and preparing for deploy.")
	exported, err := exportApp(cmd, p, export.Options{
		Dir:       cc.Dir,
		OutDir:    tmp,
		Frontend:  true,
		Backend:   true,
		Zip:       true,
		APIURL:    res.APIURL,
		DeployURL: res.DeployURL,
	})
	if err != nil {
		return err
	}

	ctrl := &deploy.Controller{
		Client:    client,
		Backend:   retry.Fixed(p.Hosting.BackendPollAttempts, time.Second),
		Frontend:  retry.Fixed(p.Hosting.FrontendPollAttempts, time.Second),
		DrainWait: time.Duration(p.Hosting.DrainWait),
		Notify:    ui.PrintInfo,
		Status:    ui.Status,
		Logger:    cc.Logger,
	}
	outcome, err := ctrl.Run(ctx, deploy.Artifacts{Frontend: exported.FrontendZip, Backend: exported.BackendZip}, res, intent)
	if err != nil {
		return explainClientError(client, err)
	}

	if outcome.Up() {
		ui.PrintSuccess(successMessage(res, outcome))
		return nil
	}
	ui.PrintWarning(fmt.Sprintf("Your deployment is taking unusually long. Check back later on its status: `trellis deployments status %s`", res.Key))
	return nil
}

// successMessage names the frontend URL the control plane reported and the
// poll confirmed.
func successMessage(res deploy.Resolved, outcome deploy.Outcome) string {
	site := outcome.Response.FrontendURL
	if site == "" {
		site = res.DeployURL
	}
	return fmt.Sprintf("Your site [ %s ] at %s is up: %s", res.Key, strings.Join(res.Regions, ", "), site)
}

// deployIntent collects the operator's flags into a deploy.Intent.
func deployIntent(cmd *cobra.Command, p *config.Project) (deploy.Intent, error) {
	flags := cmd.Flags()
	key, _ := flags.GetString("deployment-key")
	appName, _ := flags.GetString("app-name")
	regions, _ := flags.GetStringSlice("region")
	envs, _ := flags.GetStringArray("env")
	envFile, _ := flags.GetString("env-file")
	cpus, _ := flags.GetInt("cpus")
	memory, _ := flags.GetInt("memory-mb")
	autoStart, _ := flags.GetBool("auto-start")
	autoStop, _ := flags.GetBool("auto-stop")
	hostname, _ := flags.GetString("frontend-hostname")
	interactive, _ := flags.GetBool("interactive")
	noInteractive, _ := flags.GetBool("no-interactive")

	if appName == "" {
		appName = p.AppName
	}
	if envFile != "" {
		fileEnvs, err := config.ReadDotenv(envFile, true)
		if err != nil {
			return deploy.Intent{}, err
		}
		// --env entries come last so they win over the file
		envs = append(config.EnvPairs(fileEnvs), envs...)
	}

	return deploy.Intent{
		AppName:          appName,
		Key:              key,
		Regions:          regions,
		Envs:             envs,
		CPUs:             cpus,
		MemoryMB:         memory,
		AutoStart:        autoStart,
		AutoStop:         autoStop,
		FrontendHostname: hostname,
		Interactive:      interactive && !noInteractive,
	}, nil
}
