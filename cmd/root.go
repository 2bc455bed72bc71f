package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sitepilot/internal/log"
)

var (
	verbose bool
	version = "dev"
)

// rootCmd launches the chat interface when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "sitepilot",
	Short: "Edit your website by talking to it",
	Long: `Sitepilot is a conversational client for your website's editing agent.

Describe a change in plain language and the agent edits, previews, and
publishes it for you. Multiple tabs let independent conversations run at
once, and a deploy watcher tells you the moment a published change is live.

Quick start:
  sitepilot                      # open the chat interface
  sitepilot login <token>        # store your access token
  sitepilot conversations        # list past conversations
  sitepilot changes              # recent published edits`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel("debug")
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
