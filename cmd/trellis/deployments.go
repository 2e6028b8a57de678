package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/harshul/trellis/internal/config"
	"github.com/harshul/trellis/internal/hosting"
	"github.com/harshul/trellis/internal/ui"
)

var deploymentsCmd = &cobra.Command{
	Use:   "deployments",
	Short: "Subcommands for managing the deployments",
}

var deploymentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all the hosted deployments of the authenticated user",
	Args:  cobra.NoArgs,
	RunE:  runDeploymentsList,
}

var deploymentsDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a hosted instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeploymentsDelete,
}

var deploymentsStatusCmd = &cobra.Command{
	Use:   "status <key>",
	Short: "Check the status of a deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeploymentsStatus,
}

var deploymentsLogsCmd = &cobra.Command{
	Use:   "logs <key>",
	Short: "Stream the logs of a deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeploymentsLogs,
}

func init() {
	deploymentsListCmd.Flags().BoolP("json", "j", false, "Whether to output the result in json format")

	deploymentsCmd.AddCommand(deploymentsListCmd)
	deploymentsCmd.AddCommand(deploymentsDeleteCmd)
	deploymentsCmd.AddCommand(deploymentsStatusCmd)
	deploymentsCmd.AddCommand(deploymentsLogsCmd)
}

// authedClient returns a client for commands that need a stored token.
func authedClient(cmd *cobra.Command) (*hosting.Client, error) {
	cc := config.FromContext(cmd.Context())
	if cc.Token() == "" {
		return nil, errNotLoggedIn
	}
	return newClient(cc), nil
}

func runDeploymentsList(cmd *cobra.Command, args []string) error {
	client, err := authedClient(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	deployments, err := client.ListDeployments(cmd.Context())
	if err != nil {
		return explainClientError(client, fmt.Errorf("unable to list deployments: %w", err))
	}

	if asJSON {
		data, err := json.MarshalIndent(deployments, "", "  ")
		if err != nil {
			return err
		}
		ui.Println(string(data))
		return nil
	}
	if len(deployments) == 0 {
		ui.PrintInfo("No deployments found.")
		return nil
	}
	headers, rows := deploymentRows(deployments)
	ui.PrintTable(headers, rows)
	return nil
}

// deploymentRows flattens deployments into a table; columns are the union of
// their fields with "key" first.
func deploymentRows(deployments []hosting.Deployment) ([]string, [][]string) {
	seen := map[string]bool{}
	var headers []string
	for _, d := range deployments {
		for k := range d {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Slice(headers, func(i, j int) bool {
		if headers[i] == "key" || headers[j] == "key" {
			return headers[i] == "key"
		}
		return headers[i] < headers[j]
	})

	rows := make([][]string, 0, len(deployments))
	for _, d := range deployments {
		row := make([]string, len(headers))
		for i, h := range headers {
			if v, ok := d[h]; ok && v != nil {
				row[i] = fmt.Sprint(v)
			}
		}
		rows = append(rows, row)
	}
	return headers, rows
}

func runDeploymentsDelete(cmd *cobra.Command, args []string) error {
	client, err := authedClient(cmd)
	if err != nil {
		return err
	}
	if err := client.DeleteDeployment(cmd.Context(), args[0]); err != nil {
		return explainClientError(client, fmt.Errorf("unable to delete deployment: %w", err))
	}
	ui.PrintSuccess(fmt.Sprintf("Successfully deleted [ %s ].", args[0]))
	return nil
}

func runDeploymentsStatus(cmd *cobra.Command, args []string) error {
	client, err := authedClient(cmd)
	if err != nil {
		return err
	}
	status, err := client.GetDeploymentStatus(cmd.Context(), args[0])
	if err != nil {
		return explainClientError(client, fmt.Errorf("unable to get deployment status: %w", err))
	}

	headers := []string{"Component", "Reachable", "Status", "URL", "Updated at"}
	row := func(name string, c hosting.ComponentStatus) []string {
		return []string{name, strconv.FormatBool(c.Reachable), c.Status, c.URL, c.LocalUpdatedAt()}
	}
	ui.PrintTable(headers, [][]string{
		row("backend", status.Backend),
		row("frontend", status.Frontend),
	})
	return nil
}

func runDeploymentsLogs(cmd *cobra.Command, args []string) error {
	client, err := authedClient(cmd)
	if err != nil {
		return err
	}
	ui.PrintInfo("Note: there is a few seconds delay for logs to be available.")

	err = client.StreamLogs(cmd.Context(), args[0], ui.Println)
	if err != nil && cmd.Context().Err() == nil {
		return explainClientError(client, fmt.Errorf("unable to get deployment logs: %w", err))
	}
	return nil
}
