package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/cli"
)

var (
	resetForce  bool
	resetConfig bool
	resetKey    string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget recorded deployments",
	Long: `Clear the records of past deployments.

By default, this command will clear the deployment records but will NOT
delete your saved answers (SSH host, remote folder, port, proxy IP).

Use --config to also delete the saved answers and start completely fresh.
Use --key to forget a single saved answer, for example --key port.`,
	Args: cobra.NoArgs,
	RunE: resetState,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	resetCmd.Flags().BoolVarP(&resetConfig, "config", "c", false, "Also delete the saved answers")
	resetCmd.Flags().StringVarP(&resetKey, "key", "k", "", "Forget only this saved answer")
	rootCmd.AddCommand(resetCmd)
}

func resetState(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if resetKey != "" {
		return cli.ForgetAnswer(app, resetKey)
	}

	// Confirmation prompt
	if !resetForce {
		app.UI.Header("Reset Deployment State")
		app.UI.Warningf("This will clear the deployment records in %s", app.Records.Dir())
		if resetConfig {
			app.UI.Warning("Saved answers will also be DELETED")
			app.UI.Warningf("  %s", app.Config.FilePath())
		} else {
			app.UI.Info("Saved answers will NOT be deleted")
			app.UI.Info("Use --config flag to also delete them")
		}
		fmt.Println()

		confirm, err := app.UI.PromptYesNo("Are you sure you want to reset?", false)
		if err != nil {
			return err
		}

		if !confirm {
			app.UI.Info("Reset cancelled")
			return nil
		}
	}

	if err := cli.Reset(app, resetConfig); err != nil {
		return err
	}

	app.UI.Separator()
	app.UI.Success("Reset complete!")
	return nil
}
