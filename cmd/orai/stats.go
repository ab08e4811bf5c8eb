package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hexploration-Inc/orai/internal/db"
	"github.com/Hexploration-Inc/orai/internal/display"
)

type statsOutput struct {
	Owners []db.OwnerCount `json:"owners"`
	Total  int             `json:"total"`
	Unread int             `json:"unread"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-mailbox cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		counts, err := store.MessageCounts(cmd.Context())
		if err != nil {
			return fmt.Errorf("message counts: %w", err)
		}

		out := statsOutput{Owners: counts}
		for _, c := range counts {
			out.Total += c.Total
			out.Unread += c.Unread
		}
		if jsonOutput {
			return printJSON(cmd, out)
		}

		w := cmd.OutOrStdout()
		display.Header(w, "orai cache")
		fmt.Fprintln(w)
		if len(counts) == 0 {
			fmt.Fprintln(w, display.Dim.Render("  No mailboxes yet. Sign in through the web app to start syncing."))
			return nil
		}

		now := time.Now()
		for _, c := range counts {
			syncInfo := ""
			if c.LastSync != "" {
				syncInfo = fmt.Sprintf("(last sync: %s)", display.TimeAgo(display.ParseStamp(c.LastSync), now))
			}
			fmt.Fprintf(w, "  %-30s %5d messages  %4d unread  %4d inbox  %3d spam  %s\n",
				display.Truncate(c.Email, 30), c.Total, c.Unread, c.Inbox, c.Spam, display.Dim.Render(syncInfo))
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Total: %d messages (%d unread) across %d mailboxes\n", out.Total, out.Unread, len(counts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
