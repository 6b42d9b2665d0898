package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/cli"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/pkg/version"
)

var (
	dryRun         bool
	verbose        bool
	nonInteractive bool
	pollInterval   time.Duration
	configPath     string
)

var rootCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the current project to a remote Docker host",
	Long: `Deploy the Git project in the current folder to a remote host over SSH.

The committed, Git-tracked files are synced with rsync into
<remote parent folder>/<project name>, a .env file is created when needed,
and the services are started with Docker Compose. Their status is then
shown every few seconds until you press Ctrl+C.

Answers are saved and offered as defaults on the next run.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true, // We handle errors manually, but silence usage on error
	SilenceErrors: true, // We format errors ourselves for consistent output
	RunE:          runDeploy,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Info())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Show detailed step messages and log at debug level")
	flags.BoolVar(&nonInteractive, "non-interactive", false, "Use saved or default answers without prompting")

	rootCmd.Flags().StringVar(&configPath, "config", "", "Path of the saved answers file")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run every check but change nothing on the remote host")
	rootCmd.Flags().DurationVar(&pollInterval, "interval", 0, "Time between service status checks (default 5s)")

	rootCmd.AddCommand(versionCmd)
}

// newApp builds the shared dependencies for the current folder.
func newApp() (*cli.App, error) {
	projectDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get the current folder: %w", err)
	}

	app, err := cli.NewApp(cli.Options{
		ProjectDir:     projectDir,
		ConfigPath:     configPath,
		DryRun:         dryRun,
		Verbose:        verbose,
		NonInteractive: nonInteractive || !term.IsTerminal(int(os.Stdin.Fd())),
		Interval:       pollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return app, nil
}

func runDeploy(cmd *cobra.Command, args []string) error {
	if err := cli.CheckRequiredCommands(); err != nil {
		return err
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	deployer, err := cli.NewDeployer(app)
	if err != nil {
		return err
	}
	return deployer.Run(context.Background())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
