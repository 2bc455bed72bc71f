package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// usageCmd reports credit utilization for the account
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show account usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newServiceClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		usage, err := client.GetUsage(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch usage: %w", err)
		}

		if usage.Plan != "" {
			fmt.Printf("Plan:  %s\n", usage.Plan)
		}
		if usage.Limit > 0 {
			fmt.Printf("Used:  %d of %d\n", usage.Used, usage.Limit)
		} else {
			fmt.Printf("Used:  %d\n", usage.Used)
		}
		if usage.ResetsAt != nil {
			fmt.Printf("Resets: %s\n", usage.ResetsAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)
}
