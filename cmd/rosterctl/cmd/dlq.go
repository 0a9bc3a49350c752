package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Dead-letter queue commands",
	Long:  "Inspect and redrive messages that exceeded MAX_RECEIVE_COUNT on EVENTS_QUEUE",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered messages, oldest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt64("limit")

		rt, err := redisOnly(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		letters, err := rt.DeadLetters(cmd.Context(), limit)
		if err != nil {
			return err
		}

		type row struct {
			ID           string            `json:"id"`
			SourceQueue  string            `json:"source_queue"`
			SourceID     string            `json:"source_id"`
			ReceiveCount int               `json:"receive_count"`
			DeadAt       string            `json:"dead_at"`
			Attributes   map[string]string `json:"attributes,omitempty"`
			Body         string            `json:"body"`
		}
		rows := make([]row, len(letters))
		for i, dl := range letters {
			rows[i] = row{
				ID:           dl.ID,
				SourceQueue:  dl.SourceQueue,
				SourceID:     dl.SourceID,
				ReceiveCount: dl.ReceiveCount,
				DeadAt:       dl.DeadAt.Format(time.RFC3339),
				Attributes:   dl.Attributes,
				Body:         string(dl.Body),
			}
		}
		return printJSON(cmd.OutOrStdout(), rows)
	},
}

var dlqRedriveCmd = &cobra.Command{
	Use:   "redrive",
	Short: "Move dead-lettered messages back to their source queue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt64("limit")

		rt, err := redisOnly(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		n, err := rt.Redrive(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("redrive stopped after %d messages: %w", n, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "redriven %d messages\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqRedriveCmd)

	dlqListCmd.Flags().Int64("limit", 50, "maximum messages to list")
	dlqRedriveCmd.Flags().Int64("limit", 100, "maximum messages to redrive")
}
