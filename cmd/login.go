package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sitepilot/internal/config"
)

// loginCmd stores the access token the agent service issued
var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Store your access token",
	Long: `Store the access token for your website's editing agent.

Pass the token as an argument, or pipe it in:
  sitepilot login eyJhbGciOi...
  pbpaste | sitepilot login`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("no token provided")
			}
			token = line
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return fmt.Errorf("no token provided")
		}

		cfg := config.Get()
		creds := config.NewCredentialStore(cfg.CredentialPath)
		if err := creds.Set(token); err != nil {
			return fmt.Errorf("failed to store token: %w", err)
		}
		fmt.Println("Token stored.")
		return nil
	},
}

// logoutCmd clears the stored token
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		config.NewCredentialStore(cfg.CredentialPath).Clear()
		fmt.Println("Token cleared.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
