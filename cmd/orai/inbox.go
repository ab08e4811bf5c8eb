package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hexploration-Inc/orai/internal/db"
	"github.com/Hexploration-Inc/orai/internal/display"
)

var (
	inboxOwner string
	inboxView  string
	inboxLimit int
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List cached messages for one mailbox, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		msgs, err := store.ListMessages(cmd.Context(), inboxOwner, db.ListFilter{View: inboxView, Limit: inboxLimit})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, msgs)
		}

		w := cmd.OutOrStdout()
		if len(msgs) == 0 {
			fmt.Fprintf(w, "No %s messages.\n", inboxView)
			return nil
		}
		fmt.Fprintf(w, "%s (%d):\n\n", display.Bold.Render(inboxView), len(msgs))
		now := time.Now()
		for _, m := range msgs {
			fmt.Fprintf(w, "%s  %s\n", display.MessageLine(m, now), display.Muted.Render(m.ID))
		}
		return nil
	},
}

func init() {
	inboxCmd.Flags().StringVar(&inboxOwner, "owner", "", "Mailbox owner id (required)")
	inboxCmd.Flags().StringVar(&inboxView, "view", db.ViewInbox, "View: all, inbox, archived, spam")
	inboxCmd.Flags().IntVar(&inboxLimit, "limit", db.DefaultListLimit, "Maximum messages to list")
	_ = inboxCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(inboxCmd)
}
