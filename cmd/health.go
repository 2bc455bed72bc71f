package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"sitepilot/internal/config"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// healthCmd probes the agent service and reports reachability
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the editing agent is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		client := newServiceClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fmt.Printf("Agent:  %s\n", cfg.AgentBaseURL)
		if err := client.Health(ctx); err != nil {
			fmt.Printf("Status: %s (%v)\n", failStyle.Render("unreachable"), err)
			os.Exit(1)
		}
		fmt.Printf("Status: %s\n", okStyle.Render("ok"))

		creds := config.NewCredentialStore(cfg.CredentialPath)
		switch {
		case creds.Token() == "":
			fmt.Printf("Token:  %s\n", failStyle.Render("missing, run `sitepilot login`"))
		case creds.Expired():
			fmt.Printf("Token:  %s\n", failStyle.Render("expired, run `sitepilot login`"))
		default:
			fmt.Printf("Token:  %s\n", okStyle.Render("present"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
