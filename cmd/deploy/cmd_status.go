package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/cli"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the services of the current project",
	Long: `Show the last recorded deployment of the current project and one snapshot
of its services on the saved SSH host. Nothing is changed on the remote host.`,
	Args: cobra.NoArgs,
	RunE: showStatus,
}

func init() {
	statusCmd.Flags().StringVar(&configPath, "config", "", "Path of the saved answers file")
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	deployer, err := cli.NewDeployer(app)
	if err != nil {
		return err
	}
	return deployer.Status(context.Background())
}
