package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"sitepilot/internal/api"
	"sitepilot/internal/config"
)

var conversationsDelete string

var (
	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("62"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// conversationsCmd lists or deletes past conversations on the service
var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"convos"},
	Short:   "List past conversations",
	Long: `List the conversations stored by your editing agent.

Each conversation can be reopened in a tab from the chat interface.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newServiceClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if conversationsDelete != "" {
			if err := client.DeleteConversation(ctx, conversationsDelete); err != nil {
				return fmt.Errorf("failed to delete conversation: %w", err)
			}
			fmt.Printf("Deleted conversation %s\n", conversationsDelete)
			return nil
		}

		conversations, err := client.ListConversations(ctx)
		if err != nil {
			return fmt.Errorf("failed to list conversations: %w", err)
		}
		if len(conversations) == 0 {
			fmt.Println(dimStyle.Render("No conversations yet."))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, tableHeaderStyle.Render("ID")+"\t"+
			tableHeaderStyle.Render("TITLE")+"\t"+
			tableHeaderStyle.Render("MESSAGES")+"\t"+
			tableHeaderStyle.Render("UPDATED"))
		for _, c := range conversations {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				dimStyle.Render(c.ID), c.Title, c.MessageCount, formatWhen(c.UpdatedAt))
		}
		return w.Flush()
	},
}

// newServiceClient builds a client for one-shot CLI calls
func newServiceClient() *api.Client {
	cfg := config.Get()
	creds := config.NewCredentialStore(cfg.CredentialPath)
	return api.NewClient(cfg.AgentBaseURL, creds, api.Options{})
}

// formatWhen renders a timestamp relative for recent values, absolute otherwise
func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return t.Format("2006-01-02")
	}
}

func init() {
	conversationsCmd.Flags().StringVar(&conversationsDelete, "delete", "", "Delete the conversation with this id")
	rootCmd.AddCommand(conversationsCmd)
}
