package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var changesLimit int

// changesCmd shows the site's recent edit log
var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recently published edits",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newServiceClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		changes, err := client.ListChanges(ctx, changesLimit)
		if err != nil {
			return fmt.Errorf("failed to fetch change log: %w", err)
		}
		if len(changes) == 0 {
			fmt.Println(dimStyle.Render("No published changes yet."))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, tableHeaderStyle.Render("WHEN")+"\t"+
			tableHeaderStyle.Render("CHANGE")+"\t"+
			tableHeaderStyle.Render("COMMIT"))
		for _, c := range changes {
			commit := c.CommitRef
			if len(commit) > 8 {
				commit = commit[:8]
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", formatWhen(c.CreatedAt), c.Description, dimStyle.Render(commit))
		}
		return w.Flush()
	},
}

func init() {
	changesCmd.Flags().IntVarP(&changesLimit, "limit", "n", 20, "How many entries to show")
	rootCmd.AddCommand(changesCmd)
}
